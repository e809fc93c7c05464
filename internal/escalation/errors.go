package escalation

import "errors"

// ErrNoEscalationRule is returned when no enabled rule matches an incident's
// service and severity
var ErrNoEscalationRule = errors.New("no escalation rule matches incident")
