package intel

import (
	"errors"
	"fmt"

	"github.com/sells-group/listing-intel/internal/model"
	"github.com/sells-group/listing-intel/internal/parser"
	"github.com/sells-group/listing-intel/internal/scrape"
)

// Kind classifies an orchestration failure.
type Kind string

const (
	// KindInvalidURL is returned before any network activity.
	KindInvalidURL Kind = "invalid_url"
	// KindUpstreamFailure wraps the last scrape or parse error once retries
	// are exhausted or the error is not retryable.
	KindUpstreamFailure Kind = "upstream_failure"
	// KindTimeout means the overall deadline expired or the caller gave up.
	KindTimeout Kind = "timeout"
)

// Error is the single structured failure returned by AnalyzeLeadFromURL.
type Error struct {
	Kind  Kind
	Stage model.Stage
	Cause error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("intel: %s", e.Kind)
	if e.Stage != "" {
		msg += " during " + string(e.Stage)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// CauseKind returns the stage-level kind behind the failure ("blocked",
// "low_confidence", ...), or "" when the cause is not a stage error.
func (e *Error) CauseKind() string {
	if k := scrape.KindOf(e.Cause); k != "" {
		return string(k)
	}
	if k := parser.KindOf(e.Cause); k != "" {
		return string(k)
	}
	return ""
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return ""
}
