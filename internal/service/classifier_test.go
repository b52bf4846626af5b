package service_test

import (
	"testing"

	"github.com/mkorolev/qrlink/internal/service"
	"github.com/stretchr/testify/assert"
)

const (
	uaChromeWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	uaSafariIPhone  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	uaFirefoxLinux  = "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
	uaEdgeWindows   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0"
	uaChromeAndroid = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36"
	uaSafariIPad    = "Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
)

func TestIsBot(t *testing.T) {
	bots := []string{
		"",
		"   ",
		"Googlebot/2.1 (+http://www.google.com/bot.html)",
		"Mozilla/5.0 (compatible; bingbot/2.0)",
		"curl/8.4.0",
		"Wget/1.21",
		"python-requests/2.31.0",
		"Go-http-client/1.1",
		"facebookexternalhit/1.1",
		"Slackbot-LinkExpanding 1.0",
		"Mozilla/5.0 (X11; Linux x86_64) HeadlessChrome/120.0.0.0",
	}
	for _, ua := range bots {
		assert.True(t, service.IsBot(ua), "expected bot: %q", ua)
	}

	humans := []string{
		uaChromeWindows,
		uaSafariIPhone,
		uaFirefoxLinux,
		uaChromeAndroid,
	}
	for _, ua := range humans {
		assert.False(t, service.IsBot(ua), "expected human: %q", ua)
	}
}

func TestClassifyUserAgent(t *testing.T) {
	cases := []struct {
		name    string
		ua      string
		device  string
		os      string
		browser string
	}{
		{"chrome on windows", uaChromeWindows, "desktop", "windows", "chrome"},
		{"safari on iphone", uaSafariIPhone, "mobile", "ios", "safari"},
		{"firefox on linux", uaFirefoxLinux, "desktop", "linux", "firefox"},
		{"edge on windows", uaEdgeWindows, "desktop", "windows", "edge"},
		{"chrome on android", uaChromeAndroid, "mobile", "android", "chrome"},
		{"safari on ipad", uaSafariIPad, "tablet", "ios", "safari"},
		{"unknown", "SomethingNobodyShips/1.0", "desktop", "other", "other"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info := service.ClassifyUserAgent(tc.ua)
			assert.Equal(t, tc.device, info.DeviceType)
			assert.Equal(t, tc.os, info.OS)
			assert.Equal(t, tc.browser, info.Browser)
		})
	}
}
