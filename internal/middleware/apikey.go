package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// APIKeyConfig configures API key authentication for the owner-facing API.
type APIKeyConfig struct {
	// ValidKeys maps valid API keys to their descriptions.
	ValidKeys map[string]string
	// HeaderName is the API key header (default: X-API-Key).
	HeaderName string
}

type APIKey struct {
	config APIKeyConfig
}

func NewAPIKey(config APIKeyConfig) *APIKey {
	if config.HeaderName == "" {
		config.HeaderName = "X-API-Key"
	}
	return &APIKey{config: config}
}

func (ak *APIKey) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader(ak.config.HeaderName)

		// Authorization: Bearer is accepted as a fallback.
		if apiKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				apiKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if apiKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "missing_api_key",
				"message": "API key required via the X-API-Key header or Authorization: Bearer",
			})
			c.Abort()
			return
		}

		// Constant-time comparison against every configured key.
		valid := false
		var keyName string
		for validKey, name := range ak.config.ValidKeys {
			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(validKey)) == 1 {
				valid = true
				keyName = name
				break
			}
		}

		if !valid {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_api_key",
				"message": "Invalid API key",
			})
			c.Abort()
			return
		}

		c.Set("api_key_name", keyName)
		c.Next()
	}
}

// RequireAPIKey builds middleware guarding routes with the given keys.
func RequireAPIKey(validKeys map[string]string) gin.HandlerFunc {
	ak := NewAPIKey(APIKeyConfig{ValidKeys: validKeys})
	return ak.Middleware()
}
