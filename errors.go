package creditsync

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors.
var (
	ErrInvalidAmount  = errors.New("creditsync: amount must be positive")
	ErrBalanceUnknown = errors.New("creditsync: balance not loaded")
	ErrFetchFailed    = errors.New("creditsync: balance fetch failed")
	ErrClosed         = errors.New("creditsync: session closed")
	ErrInvalidConfig  = errors.New("creditsync: invalid config")
)

// StatusError is a refusal returned by the server for a feature or balance call.
// Message is the human-readable text the server authored for display.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("creditsync: server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("creditsync: server returned %d: %s", e.StatusCode, e.Message)
}

// AsStatusError extracts a *StatusError from err's chain.
func AsStatusError(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsLimitStatus returns true if err carries a forbidden status, the only status the
// limit classifier looks at.
func IsLimitStatus(err error) bool {
	se, ok := AsStatusError(err)
	return ok && se.StatusCode == http.StatusForbidden
}
