package service

import (
	"strings"
)

// Signature tables for user-agent classification. Matching is plain substring
// search over the lowercased header; order matters where one product embeds
// another's token (Edge carries "chrome", Chrome carries "safari").
var botSignatures = []string{
	"bot",
	"crawler",
	"spider",
	"slurp",
	"curl",
	"wget",
	"python-requests",
	"python-urllib",
	"go-http-client",
	"java/",
	"okhttp",
	"httpclient",
	"libwww",
	"headlesschrome",
	"phantomjs",
	"facebookexternalhit",
	"whatsapp/",
	"telegrambot",
	"slackbot",
	"discordbot",
	"pingdom",
	"uptimerobot",
	"monitoring",
}

// VisitorInfo is the parsed device/OS/browser triple.
type VisitorInfo struct {
	DeviceType string
	OS         string
	Browser    string
}

// IsBot reports whether the user agent looks like automated traffic.
// A missing user agent counts as a bot.
func IsBot(userAgent string) bool {
	if strings.TrimSpace(userAgent) == "" {
		return true
	}

	ua := strings.ToLower(userAgent)
	for _, sig := range botSignatures {
		if strings.Contains(ua, sig) {
			return true
		}
	}

	return false
}

// ClassifyUserAgent parses device type, OS and browser from the user agent.
func ClassifyUserAgent(userAgent string) VisitorInfo {
	ua := strings.ToLower(userAgent)

	return VisitorInfo{
		DeviceType: parseDevice(ua),
		OS:         parseOS(ua),
		Browser:    parseBrowser(ua),
	}
}

func parseDevice(ua string) string {
	switch {
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		return "tablet"
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "iphone") || strings.Contains(ua, "android"):
		return "mobile"
	default:
		return "desktop"
	}
}

func parseOS(ua string) string {
	switch {
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad") || strings.Contains(ua, "ios"):
		return "ios"
	case strings.Contains(ua, "android"):
		return "android"
	case strings.Contains(ua, "windows"):
		return "windows"
	case strings.Contains(ua, "mac os") || strings.Contains(ua, "macintosh"):
		return "macos"
	case strings.Contains(ua, "linux"):
		return "linux"
	default:
		return "other"
	}
}

func parseBrowser(ua string) string {
	switch {
	case strings.Contains(ua, "edg/") || strings.Contains(ua, "edge/"):
		return "edge"
	case strings.Contains(ua, "opr/") || strings.Contains(ua, "opera"):
		return "opera"
	case strings.Contains(ua, "samsungbrowser"):
		return "samsung"
	case strings.Contains(ua, "firefox/"):
		return "firefox"
	case strings.Contains(ua, "chrome/") || strings.Contains(ua, "crios/"):
		return "chrome"
	case strings.Contains(ua, "safari/"):
		return "safari"
	default:
		return "other"
	}
}
