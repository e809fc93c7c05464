package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/slawatch/slawatch/internal/model"
)

// subject builds the alert subject line shared by email and Teams
func subject(inc *model.Incident) string {
	return fmt.Sprintf("[%s] SLA Breach Alert - %s", strings.ToUpper(string(inc.Severity)), inc.Service)
}

// bodyText builds the plain-text alert body
func bodyText(inc *model.Incident, dashboardURL string) string {
	var b strings.Builder
	b.WriteString("SLA BREACH ALERT\n\n")
	fmt.Fprintf(&b, "Service: %s\n", inc.Service)
	fmt.Fprintf(&b, "Severity: %s\n", strings.ToUpper(string(inc.Severity)))
	fmt.Fprintf(&b, "Status: %s\n", inc.Status)
	fmt.Fprintf(&b, "Escalation Level: %d\n", inc.EscalationLevel)
	fmt.Fprintf(&b, "Created: %s\n", inc.CreatedAt.UTC().Format(time.RFC3339))
	b.WriteString("\nImpact Assessment:\n")
	fmt.Fprintf(&b, "- Affected Services: %s\n", strings.Join(inc.Impact.AffectedServices, ", "))
	fmt.Fprintf(&b, "- Estimated Impact: %s\n", inc.Impact.EstimatedImpact)
	fmt.Fprintf(&b, "- Business Impact: %s\n", inc.Impact.BusinessImpact)
	if dashboardURL != "" {
		fmt.Fprintf(&b, "\nView incident: %s\n", incidentURL(dashboardURL, inc.ID))
	}
	return b.String()
}

// shortText builds the SMS-sized alert body
func shortText(inc *model.Incident) string {
	return fmt.Sprintf("[%s] SLA breach on %s (incident %s)",
		strings.ToUpper(string(inc.Severity)), inc.Service, inc.ID)
}

// severityColor maps severity to Slack attachment colors
func severityColor(s model.Severity) string {
	switch s {
	case model.SeverityWarning:
		return "warning"
	case model.SeverityCritical, model.SeverityEmergency:
		return "danger"
	default:
		return "good"
	}
}

// severityHex maps severity to a hex theme color for Teams cards
func severityHex(s model.Severity) string {
	switch s {
	case model.SeverityWarning:
		return "DAA038"
	case model.SeverityCritical, model.SeverityEmergency:
		return "A30200"
	default:
		return "2EB886"
	}
}

func incidentURL(dashboardURL, id string) string {
	return strings.TrimSuffix(dashboardURL, "/") + "/incidents/" + id
}
