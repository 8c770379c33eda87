// Package blockpage recognizes bot-protection interstitials. A challenge
// page is not site content; scanning it would produce meaningless match
// records, so the crawler treats a detection as a fetch failure.
package blockpage

import (
	"bytes"
	"net/http"
	"strings"
)

// Detector examines a response to determine whether a protection vendor
// blocked or challenged the request.
type Detector func(status int, header http.Header, body []byte) (detected bool, vendor string)

// DefaultDetectors returns the standard detector chain.
func DefaultDetectors() []Detector {
	return []Detector{
		detectCloudflare,
		detectAkamai,
		detectDataDome,
		detectPerimeterX,
	}
}

// Detect runs the response through the default chain. The first detector
// that triggers wins.
func Detect(status int, header http.Header, body []byte) (bool, string) {
	for _, d := range DefaultDetectors() {
		if detected, vendor := d(status, header, body); detected {
			return true, vendor
		}
	}
	return false, ""
}

func detectCloudflare(status int, header http.Header, body []byte) (bool, string) {
	if status != http.StatusForbidden && status != http.StatusServiceUnavailable {
		return false, ""
	}
	if strings.Contains(strings.ToLower(header.Get("Server")), "cloudflare") {
		return true, "Cloudflare"
	}
	for _, sig := range [][]byte{
		[]byte("cf-browser-verification"),
		[]byte("cf-turnstile"),
		[]byte("Attention Required! | Cloudflare"),
	} {
		if bytes.Contains(body, sig) {
			return true, "Cloudflare"
		}
	}
	return false, ""
}

func detectAkamai(status int, header http.Header, body []byte) (bool, string) {
	if status != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(strings.ToLower(header.Get("Server")), "akamaighost") {
		return true, "Akamai"
	}
	if bytes.Contains(body, []byte("ak_bmsc")) || bytes.Contains(body, []byte("_abck")) {
		return true, "Akamai"
	}
	return false, ""
}

func detectDataDome(status int, header http.Header, body []byte) (bool, string) {
	if header.Get("X-DataDome") != "" {
		return true, "DataDome"
	}
	if status == http.StatusForbidden && bytes.Contains(body, []byte("geo.captcha-delivery.com")) {
		return true, "DataDome"
	}
	return false, ""
}

func detectPerimeterX(status int, header http.Header, body []byte) (bool, string) {
	if status != http.StatusForbidden {
		return false, ""
	}
	if bytes.Contains(body, []byte("window._pxAppId")) || bytes.Contains(body, []byte("px-captcha")) {
		return true, "PerimeterX"
	}
	return false, ""
}
