package scrape

import (
	"net/http"
	"strings"
)

// BlockType describes the kind of block detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockStatus     BlockType = "status"
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
)

// Challenge pages are small; captcha widgets on full listing pages (contact
// forms) must not trip detection.
const challengeBodyLimit = 16 * 1024

// DetectBlock checks a response for signs of anti-bot protection. header may
// be nil when the page came from a renderer.
func DetectBlock(statusCode int, header http.Header, body []byte) (bool, BlockType) {
	if statusCode == http.StatusForbidden || statusCode == http.StatusTooManyRequests || statusCode == http.StatusServiceUnavailable {
		if header != nil && (header.Get("cf-ray") != "" || header.Get("cf-cache-status") != "" ||
			strings.EqualFold(header.Get("server"), "cloudflare")) {
			return true, BlockCloudflare
		}
		if statusCode != http.StatusServiceUnavailable {
			return true, BlockStatus
		}
	}

	lower := strings.ToLower(string(body))

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge") && len(body) < challengeBodyLimit {
		return true, BlockCloudflare
	}

	if len(body) < challengeBodyLimit &&
		(strings.Contains(lower, "captcha") ||
			strings.Contains(lower, "are you a robot") ||
			strings.Contains(lower, "px-captcha")) {
		return true, BlockCaptcha
	}

	// JS-only shell: tiny body with noscript or meta refresh.
	if len(body) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return true, BlockJSShell
		}
		if strings.Contains(lower, `meta http-equiv="refresh"`) {
			return true, BlockJSShell
		}
	}

	return false, BlockNone
}
