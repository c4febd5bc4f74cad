package models

// ChannelKind identifies one outbound notification transport.
type ChannelKind string

const (
	ChannelSMS      ChannelKind = "sms"
	ChannelWhatsApp ChannelKind = "whatsapp"
	ChannelVoice    ChannelKind = "voice"
	ChannelEmail    ChannelKind = "email"
)

// AllChannels lists every known channel kind.
var AllChannels = []ChannelKind{ChannelSMS, ChannelWhatsApp, ChannelVoice, ChannelEmail}

// Valid reports whether k is a known channel kind.
func (k ChannelKind) Valid() bool {
	switch k {
	case ChannelSMS, ChannelWhatsApp, ChannelVoice, ChannelEmail:
		return true
	}
	return false
}

// SeverityLevel names a numeric severity band.
type SeverityLevel string

const (
	SeverityLow      SeverityLevel = "low"
	SeverityMedium   SeverityLevel = "medium"
	SeverityHigh     SeverityLevel = "high"
	SeverityCritical SeverityLevel = "critical"
)

// LevelForSeverity maps a 1-5 numeric severity to its named band.
func LevelForSeverity(severity int) SeverityLevel {
	switch {
	case severity >= 5:
		return SeverityCritical
	case severity == 4:
		return SeverityHigh
	case severity == 3:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
