package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sells-group/listing-intel/internal/resilience"
)

// Kind classifies a scrape failure.
type Kind string

const (
	KindTimeout       Kind = "timeout"
	KindBlocked       Kind = "blocked"
	KindNotFound      Kind = "not_found"
	KindRenderFailure Kind = "render_failure"
	KindInvalidURL    Kind = "invalid_url"
)

// Error is the structured failure every scraper returns.
type Error struct {
	Kind       Kind
	Provider   string
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("scrape")
	if e.Provider != "" {
		b.WriteString(" [" + e.Provider + "]")
	}
	b.WriteString(": " + string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.URL != "" {
		b.WriteString(" " + e.URL)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the first *Error in err's chain, or "" when err
// is not a scrape error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// IsTransient reports whether a scrape failure is worth another attempt.
// Timeouts and blocks are; dead links, render failures and bad URLs are not.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindBlocked:
		return true
	default:
		return false
	}
}

// ValidateURL checks that raw is an absolute http(s) URL with a host.
func ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, &Error{Kind: KindInvalidURL, URL: raw, Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &Error{Kind: KindInvalidURL, URL: raw, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}
	if u.Host == "" {
		return nil, &Error{Kind: KindInvalidURL, URL: raw, Err: errors.New("missing host")}
	}
	return u, nil
}

// kindForStatus maps an HTTP status to a failure kind; "" means success.
func kindForStatus(code int) Kind {
	switch {
	case code == http.StatusNotFound || code == http.StatusGone:
		return KindNotFound
	case code == http.StatusForbidden || code == http.StatusTooManyRequests ||
		code == http.StatusUnauthorized || code == 451:
		return KindBlocked
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return KindTimeout
	case code >= 400:
		return KindRenderFailure
	default:
		return ""
	}
}

// classify wraps a transport-level error. Deadline expiry and network
// timeouts become KindTimeout; everything else is a render failure.
func classify(ctx context.Context, provider, target string, err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	kind := KindRenderFailure
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		kind = KindTimeout
	} else if resilience.IsTransient(err) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Provider: provider, URL: target, Err: err}
}
