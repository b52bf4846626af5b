package webhook_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/mkorolev/qrlink/internal/webhook"
	"github.com/stretchr/testify/assert"
)

func TestSignPayload(t *testing.T) {
	payload := []byte(`{"event":"scan"}`)
	ts := int64(1767225600)

	a := webhook.SignPayload(payload, "secret", ts)
	b := webhook.SignPayload(payload, "secret", ts)
	assert.Equal(t, a, b)

	// Any input change yields a different signature.
	assert.NotEqual(t, a, webhook.SignPayload([]byte(`{"event":"scam"}`), "secret", ts))
	assert.NotEqual(t, a, webhook.SignPayload(payload, "other-secret", ts))
	assert.NotEqual(t, a, webhook.SignPayload(payload, "secret", ts+1))

	// A receiver verifying the documented "{ts}.{payload}" scheme gets the
	// same digest.
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte("1767225600."))
	mac.Write(payload)
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), a)
}

func TestNextRetryDelay(t *testing.T) {
	assert.Equal(t, 30*time.Second, webhook.NextRetryDelay(1))
	assert.Equal(t, 2*time.Minute, webhook.NextRetryDelay(2))
	assert.Equal(t, 15*time.Minute, webhook.NextRetryDelay(3))
	assert.Equal(t, time.Hour, webhook.NextRetryDelay(4))
	assert.Equal(t, 4*time.Hour, webhook.NextRetryDelay(5))

	// The ladder flattens out instead of growing without bound.
	assert.Equal(t, 4*time.Hour, webhook.NextRetryDelay(10))
}
