// Package parser turns a scraped listing page into an ExtractedLead, either
// through the Anthropic Messages API or from the page's JSON-LD alone.
package parser

import (
	"context"
	"errors"
	"fmt"

	"github.com/sells-group/listing-intel/internal/model"
)

// Parser extracts a lead from one scraped page.
type Parser interface {
	Parse(ctx context.Context, page *model.ScrapedPage) (*model.ExtractedLead, error)
	Name() string
}

// Kind classifies a parse failure.
type Kind string

const (
	// KindModelUnavailable covers transport failures, rate limits and
	// overloaded responses. Retryable.
	KindModelUnavailable Kind = "model_unavailable"
	// KindMalformedResponse means the model answered with something that is
	// not a listing object.
	KindMalformedResponse Kind = "malformed_response"
	// KindLowConfidence means title, price or location could not be recovered.
	KindLowConfidence Kind = "low_confidence"
)

// Error is the structured failure every parser returns.
type Error struct {
	Kind Kind
	URL  string
	Err  error
}

func (e *Error) Error() string {
	msg := "parse: " + string(e.Kind)
	if e.URL != "" {
		msg += " " + e.URL
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsTransient reports whether retrying the same input could succeed.
func IsTransient(err error) bool {
	return KindOf(err) == KindModelUnavailable
}
