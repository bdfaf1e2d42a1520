package game

import (
	"errors"
	"fmt"
)

var (
	ErrPlayerNotFound = errors.New("player not found")
	ErrItemNotFound   = errors.New("item not found")
)

// Rejection is an error that should be surfaced to the requesting client.
// These are not system failures - just invalid or ineligible requests.
type Rejection struct {
	Message string
}

func (r *Rejection) Error() string {
	return r.Message
}

// Reject creates a client-facing rejection.
func Reject(format string, args ...any) *Rejection {
	return &Rejection{Message: fmt.Sprintf(format, args...)}
}

// IsRejection reports whether err is a client-facing rejection and
// returns it if so.
func IsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}
