package render

import (
	"fmt"
	"strings"

	"escalation-service/internal/models"
)

// Renderer builds channel-appropriate text for an alert. It is a pure
// function over the alert and step; the escalation core only sees this
// interface.
type Renderer interface {
	Render(alert *models.Alert, step *models.EscalationStep, kind models.ChannelKind) models.Message
}

// Text is the built-in plain-text renderer.
type Text struct{}

// Render composes the outbound message. Voice gets a short spoken script,
// email gets the full detail block, SMS/WhatsApp get a compact line set.
func (Text) Render(alert *models.Alert, step *models.EscalationStep, kind models.ChannelKind) models.Message {
	hazard := strings.ToUpper(alert.Type)
	subject := fmt.Sprintf("%s ALERT [severity %d] %s", hazard, alert.Severity, alert.Event.Region)

	var b strings.Builder
	switch kind {
	case models.ChannelVoice:
		fmt.Fprintf(&b, "This is an automated %s alert for %s, severity %d out of 5. ", strings.ToLower(alert.Type), alert.Event.Region, alert.Severity)
		if alert.Event.Magnitude > 0 {
			fmt.Fprintf(&b, "Magnitude %.1f. ", alert.Event.Magnitude)
		}
		b.WriteString("Please check your messages and acknowledge.")
	case models.ChannelEmail:
		fmt.Fprintf(&b, "%s detected.\n\n", hazard)
		fmt.Fprintf(&b, "Region: %s\n", alert.Event.Region)
		fmt.Fprintf(&b, "Severity: %d/5\n", alert.Severity)
		if alert.Event.Magnitude > 0 {
			fmt.Fprintf(&b, "Magnitude: %.1f\n", alert.Event.Magnitude)
		}
		if alert.Event.DepthKM > 0 {
			fmt.Fprintf(&b, "Depth: %.0f km\n", alert.Event.DepthKM)
		}
		if alert.Event.Latitude != 0 || alert.Event.Longitude != 0 {
			fmt.Fprintf(&b, "Location: %.3f, %.3f\n", alert.Event.Latitude, alert.Event.Longitude)
		}
		fmt.Fprintf(&b, "Occurred: %s\n", alert.Event.OccurredAt.Format("2006-01-02 15:04:05 MST"))
	default:
		fmt.Fprintf(&b, "%s severity %d/5 in %s.", hazard, alert.Severity, alert.Event.Region)
		if alert.Event.Magnitude > 0 {
			fmt.Fprintf(&b, " M%.1f.", alert.Event.Magnitude)
		}
	}

	if step != nil && step.TimeoutMinutes > 0 && kind != models.ChannelVoice {
		fmt.Fprintf(&b, "\nPlease acknowledge within %d minutes or the alert will escalate.", step.TimeoutMinutes)
	}

	return models.Message{Subject: subject, Body: b.String()}
}
