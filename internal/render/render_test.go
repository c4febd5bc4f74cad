package render

import (
	"strings"
	"testing"
	"time"

	"escalation-service/internal/models"
)

func sampleAlert() *models.Alert {
	return &models.Alert{
		ID:       "alert-1",
		Type:     "tsunami",
		Severity: 5,
		Event: models.HazardEvent{
			Type:       "tsunami",
			Severity:   5,
			Magnitude:  8.1,
			DepthKM:    24,
			Latitude:   39.027,
			Longitude:  143.85,
			Region:     "Sanriku Coast",
			OccurredAt: time.Date(2026, 3, 1, 7, 58, 0, 0, time.UTC),
		},
	}
}

func TestRenderSMSIsCompact(t *testing.T) {
	msg := Text{}.Render(sampleAlert(), nil, models.ChannelSMS)
	if !strings.Contains(msg.Body, "TSUNAMI") {
		t.Errorf("sms body missing hazard type: %q", msg.Body)
	}
	if !strings.Contains(msg.Body, "severity 5/5") {
		t.Errorf("sms body missing severity: %q", msg.Body)
	}
	if !strings.Contains(msg.Body, "M8.1") {
		t.Errorf("sms body missing magnitude: %q", msg.Body)
	}
	if strings.Contains(msg.Body, "Depth") {
		t.Errorf("sms body carries email-only detail: %q", msg.Body)
	}
}

func TestRenderEmailCarriesDetail(t *testing.T) {
	msg := Text{}.Render(sampleAlert(), nil, models.ChannelEmail)
	for _, want := range []string{"Region: Sanriku Coast", "Severity: 5/5", "Magnitude: 8.1", "Depth: 24 km", "39.027, 143.850"} {
		if !strings.Contains(msg.Body, want) {
			t.Errorf("email body missing %q:\n%s", want, msg.Body)
		}
	}
	if !strings.Contains(msg.Subject, "TSUNAMI ALERT [severity 5] Sanriku Coast") {
		t.Errorf("subject = %q", msg.Subject)
	}
}

func TestRenderVoiceIsSpoken(t *testing.T) {
	msg := Text{}.Render(sampleAlert(), nil, models.ChannelVoice)
	if !strings.Contains(msg.Body, "automated tsunami alert") {
		t.Errorf("voice script = %q", msg.Body)
	}
	if !strings.Contains(msg.Body, "acknowledge") {
		t.Errorf("voice script missing acknowledge prompt: %q", msg.Body)
	}
}

func TestRenderAcknowledgmentDeadline(t *testing.T) {
	step := &models.EscalationStep{StepNumber: 1, TimeoutMinutes: 5}

	msg := Text{}.Render(sampleAlert(), step, models.ChannelSMS)
	if !strings.Contains(msg.Body, "acknowledge within 5 minutes") {
		t.Errorf("sms body missing deadline: %q", msg.Body)
	}

	// The voice script keeps its own fixed prompt.
	msg = Text{}.Render(sampleAlert(), step, models.ChannelVoice)
	if strings.Contains(msg.Body, "within 5 minutes") {
		t.Errorf("voice script carries the text deadline: %q", msg.Body)
	}
}
