package helpers

import (
	"errors"
	"net/url"
	"path"
	"strings"
)

// UnwrapRedirect resolves provider-side redirect wrappers to the true
// destination URL. DuckDuckGo wraps organic result links as
// //duckduckgo.com/l/?uddg=<escaped-url>&rut=... and the wrapped form must
// never be treated as the canonical identity of a hit.
func UnwrapRedirect(raw string) string {
	trimmed := strings.TrimSpace(raw)
	candidate := trimmed
	if strings.HasPrefix(candidate, "//") {
		candidate = "https:" + candidate
	}
	parsed, err := url.Parse(candidate)
	if err != nil {
		return trimmed
	}
	host := strings.ToLower(parsed.Hostname())
	if host != "duckduckgo.com" && !strings.HasSuffix(host, ".duckduckgo.com") {
		return trimmed
	}
	if !strings.HasPrefix(parsed.Path, "/l/") && parsed.Path != "/l" {
		return trimmed
	}
	target := parsed.Query().Get("uddg")
	if target == "" {
		return trimmed
	}
	return target
}

// CanonicalURL normalises a URL string so hits pointing at the same page
// compare equal: lowercased scheme and host, default ports removed, fragment
// dropped, path segments cleaned. The query string is dropped entirely since
// search hits for the same page routinely differ only in tracking parameters.
// A missing scheme defaults to https.
func CanonicalURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty url")
	}

	parsed, err := parseMaybeSchemeless(raw)
	if err != nil {
		return "", err
	}

	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)

	host := strings.ToLower(parsed.Host)
	if host == "" {
		return "", errors.New("url missing host")
	}
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		port := host[idx+1:]
		if (parsed.Scheme == "http" && port == "80") || (parsed.Scheme == "https" && port == "443") {
			host = host[:idx]
		}
	}
	parsed.Host = host

	cleanPath := path.Clean(parsed.Path)
	if cleanPath == "." || cleanPath == "/" {
		cleanPath = ""
	}
	parsed.Path = cleanPath

	parsed.Fragment = ""
	parsed.RawQuery = ""
	parsed.User = nil

	return parsed.String(), nil
}

// Domain extracts the lowercased host of a URL, without port.
func Domain(raw string) string {
	parsed, err := parseMaybeSchemeless(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

// MatchDomain reports whether host matches a blocked/allowed-domain pattern.
// A pattern containing '*' is treated as a glob over the host ("192.168.*",
// "*.example.com"); otherwise a substring match is used.
func MatchDomain(pattern, host string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	host = strings.ToLower(strings.TrimSpace(host))
	if pattern == "" || host == "" {
		return false
	}
	if pattern == "*" {
		return true
	}
	if strings.Contains(pattern, "*") {
		ok, err := path.Match(pattern, host)
		return err == nil && ok
	}
	return strings.Contains(host, pattern)
}

func parseMaybeSchemeless(raw string) (*url.URL, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if parsed.Scheme == "" && parsed.Host == "" {
		if strings.HasPrefix(raw, "//") {
			return url.Parse("https:" + raw)
		}
		return url.Parse("https://" + raw)
	}
	return parsed, nil
}
