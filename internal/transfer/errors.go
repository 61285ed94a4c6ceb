package transfer

import (
	"errors"
	"fmt"

	"github.com/flowport/flowport/internal/api"
)

// ErrAlreadyRunning is returned when a transfer is started while one is in
// flight; a Manager coordinates a single run at a time.
var ErrAlreadyRunning = errors.New("a transfer is already running")

// ConnectivityError aborts a run before any workflow data is touched. It
// carries the suggestion text from the connection test.
type ConnectivityError struct {
	Role   string // "SOURCE" or "TARGET"
	Result *api.ConnectionResult
}

func (e *ConnectivityError) Error() string {
	msg := fmt.Sprintf("%s connection failed: %s", e.Role, e.Result.Error)
	if e.Result.Suggestion != "" {
		msg += " (" + e.Result.Suggestion + ")"
	}
	return msg
}
