package model

import (
	"net"
	"net/url"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// trackingParams are query parameters that never change the listing shown.
// Any utm_* parameter is tracking as well.
var trackingParams = map[string]bool{
	"fbclid":  true,
	"gclid":   true,
	"mc_cid":  true,
	"mc_eid":  true,
	"ref_src": true,
}

// NormalizeURL canonicalizes a listing URL so that equivalent spellings map to
// the same in-flight key. It rejects relative URLs and non-HTTP(S) schemes.
// The result is a dedup key only; fetches use the caller's URL.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", eris.New("url: empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", eris.Wrap(err, "url: parse")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", eris.Errorf("url: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" || u.Opaque != "" {
		return "", eris.Errorf("url: not absolute: %s", raw)
	}

	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else {
		u.Host = host
	}

	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil
	switch {
	case u.Path == "":
		u.Path = "/"
		u.RawPath = ""
	case len(u.Path) > 1:
		u.Path = strings.TrimRight(u.Path, "/")
		if u.Path == "" {
			u.Path = "/"
		}
		u.RawPath = ""
	}
	u.RawQuery = canonicalQuery(u.RawQuery)
	u.ForceQuery = false

	return u.String(), nil
}

// canonicalQuery drops tracking parameters and sorts the rest by name while
// keeping each pair as written, so valueless flags like "?123" survive.
func canonicalQuery(raw string) string {
	if raw == "" {
		return ""
	}
	type pair struct{ name, text string }
	var pairs []pair
	for _, text := range strings.Split(raw, "&") {
		if text == "" {
			continue
		}
		name, _, _ := strings.Cut(text, "=")
		if decoded, err := url.QueryUnescape(name); err == nil {
			name = decoded
		}
		if isTracking(name) {
			continue
		}
		pairs = append(pairs, pair{name: name, text: text})
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].name < pairs[j].name })

	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = p.text
	}
	return strings.Join(parts, "&")
}

func isTracking(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasPrefix(lower, "utm_") || trackingParams[lower]
}

// PortalFromHost derives a short portal name from a listing URL host,
// e.g. "https://www.idealista.pt/imovel/1" -> "idealista".
func PortalFromHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	return host
}
