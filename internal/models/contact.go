package models

import "time"

// Contact is one person reachable during an escalation. Destination fields
// are optional; a contact with no usable destination for a channel is
// silently skipped for that channel.
type Contact struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	SubjectID string    `json:"subject_id"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	WhatsApp  string    `json:"whatsapp,omitempty"`
	Active    bool      `json:"active"`
	// NotificationChannels is an optional allow-list; nil/empty means
	// "no restriction".
	NotificationChannels []ChannelKind `json:"notification_channels,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
}

// DestinationFor returns the address to use for a channel kind and whether
// the contact has one.
func (c *Contact) DestinationFor(kind ChannelKind) (string, bool) {
	switch kind {
	case ChannelSMS, ChannelVoice:
		return c.Phone, c.Phone != ""
	case ChannelWhatsApp:
		return c.WhatsApp, c.WhatsApp != ""
	case ChannelEmail:
		return c.Email, c.Email != ""
	}
	return "", false
}

// AllowsChannel checks the contact's allow-list, treating absence as
// unrestricted.
func (c *Contact) AllowsChannel(kind ChannelKind) bool {
	if len(c.NotificationChannels) == 0 {
		return true
	}
	for _, k := range c.NotificationChannels {
		if k == kind {
			return true
		}
	}
	return false
}

// HasRole reports whether the contact's role is in the given set.
func (c *Contact) HasRole(roles []string) bool {
	for _, r := range roles {
		if c.Role == r {
			return true
		}
	}
	return false
}
