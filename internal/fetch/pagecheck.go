package fetch

import (
	"strings"
)

// PageState describes what a captured document contains.
type PageState string

const (
	PageOK         PageState = "ok"
	PageEmpty      PageState = "empty"
	PageNotFound   PageState = "not_found"
	PageCloudflare PageState = "cloudflare"
	PageCaptcha    PageState = "captcha"
)

// Cacheable reports whether a document in this state should be written to
// the cache.
func (s PageState) Cacheable() bool { return s == PageOK }

// Blocked reports whether the source refused to serve the page.
func (s PageState) Blocked() bool { return s == PageCloudflare || s == PageCaptcha }

// smallPage bounds how large a challenge page can be. Real quote pages are
// far larger and may mention captcha vendors in script tags.
const smallPage = 20000

// ClassifyPage inspects rendered HTML for the source's "symbol not found"
// result and for anti-bot interstitials.
func ClassifyPage(html string) PageState {
	if strings.TrimSpace(html) == "" {
		return PageEmpty
	}

	lower := strings.ToLower(html)

	if strings.Contains(lower, "symbol not found") {
		return PageNotFound
	}

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") {
		return PageCloudflare
	}

	if len(html) < smallPage {
		if strings.Contains(lower, "<title>just a moment") {
			return PageCloudflare
		}
		if strings.Contains(lower, "captcha") {
			return PageCaptcha
		}
	}

	return PageOK
}
