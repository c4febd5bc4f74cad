package channels

import (
	"sort"

	"escalation-service/internal/models"
)

// SelectorConfig drives channel eligibility and ordering.
type SelectorConfig struct {
	// Enabled is the set of globally enabled channel kinds.
	Enabled []models.ChannelKind
	// SeverityMatrix maps a severity level to its allowed channel kinds.
	SeverityMatrix map[models.SeverityLevel][]models.ChannelKind
	// Priority orders kinds ascending; lower values are sent first.
	Priority map[models.ChannelKind]int
}

// DefaultSeverityMatrix is the built-in severity-level to channel policy.
// Low-urgency alerts stay on cheap channels; critical ones use everything.
var DefaultSeverityMatrix = map[models.SeverityLevel][]models.ChannelKind{
	models.SeverityLow:      {models.ChannelSMS, models.ChannelEmail},
	models.SeverityMedium:   {models.ChannelSMS, models.ChannelWhatsApp, models.ChannelEmail},
	models.SeverityHigh:     {models.ChannelSMS, models.ChannelWhatsApp, models.ChannelEmail, models.ChannelVoice},
	models.SeverityCritical: {models.ChannelSMS, models.ChannelWhatsApp, models.ChannelEmail, models.ChannelVoice},
}

// DefaultPriority favors the fastest, most reliable channel first.
var DefaultPriority = map[models.ChannelKind]int{
	models.ChannelSMS:      1,
	models.ChannelWhatsApp: 2,
	models.ChannelEmail:    3,
	models.ChannelVoice:    4,
}

// Selector decides which channels to use for a contact at a given severity.
type Selector struct {
	cfg SelectorConfig
}

// NewSelector applies defaults for any unset config field.
func NewSelector(cfg SelectorConfig) *Selector {
	if len(cfg.Enabled) == 0 {
		cfg.Enabled = models.AllChannels
	}
	if cfg.SeverityMatrix == nil {
		cfg.SeverityMatrix = DefaultSeverityMatrix
	}
	if cfg.Priority == nil {
		cfg.Priority = DefaultPriority
	}
	return &Selector{cfg: cfg}
}

// Select returns the ordered channel kinds to attempt for contact at
// severity. An empty result is valid: the contact simply has no eligible
// channel and must be skipped by the caller.
func (s *Selector) Select(contact *models.Contact, severity int) []models.ChannelKind {
	level := models.LevelForSeverity(severity)
	allowed := s.cfg.SeverityMatrix[level]

	var out []models.ChannelKind
	for _, kind := range allowed {
		if !contains(s.cfg.Enabled, kind) {
			continue
		}
		if _, ok := contact.DestinationFor(kind); !ok {
			continue
		}
		if !contact.AllowsChannel(kind) {
			continue
		}
		out = append(out, kind)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return s.cfg.Priority[out[i]] < s.cfg.Priority[out[j]]
	})
	return out
}

func contains(kinds []models.ChannelKind, kind models.ChannelKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}
