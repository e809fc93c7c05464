package notify

import "errors"

// ErrUnknownChannel is returned when a notification names a channel no
// adapter is registered for
var ErrUnknownChannel = errors.New("no adapter registered for channel")
