package incident

import "errors"

// ErrIncidentNotFound is returned when a lifecycle operation names an
// incident that does not exist
var ErrIncidentNotFound = errors.New("incident not found")
