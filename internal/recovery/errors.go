package recovery

import "errors"

// ErrUnknownAction reports a decision table action with no registered adapter
var ErrUnknownAction = errors.New("no adapter registered for recovery action")
