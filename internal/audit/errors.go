package audit

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/citation-cli/internal/resilience"
)

var (
	// ErrInvalidRunState is returned when an operation is called on a run in
	// the wrong lifecycle state. It indicates a caller bug.
	ErrInvalidRunState = eris.New("audit: invalid run state")
	// ErrMalformedListings is returned when the provider's listing payload
	// fails validation.
	ErrMalformedListings = eris.New("audit: malformed provider listings")
)

// IsTransient reports whether err should be swallowed by the scheduler and
// retried on the next poll.
func IsTransient(err error) bool {
	return resilience.IsTransient(err)
}
