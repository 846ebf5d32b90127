package scraper

import (
	"fmt"
	"net/url"
	"strings"
)

// ResolveURL joins a fixture URL onto the manifest base and normalizes the
// result. The normalized form is the checkpoint key, so the same input must
// always yield the same key across runs.
func ResolveURL(baseURL, fixtureURL string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	ref, err := url.Parse(fixtureURL)
	if err != nil {
		return "", fmt.Errorf("parse fixture url: %w", err)
	}
	return normalizeURL(base.ResolveReference(ref))
}

// normalizeURL lowercases scheme and host, strips default ports and the
// fragment, and sorts query parameters so equivalent URLs map to one key.
func normalizeURL(u *url.URL) (string, error) {
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", u.String())
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawQuery = u.Query().Encode()

	return u.String(), nil
}
