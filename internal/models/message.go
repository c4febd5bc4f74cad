package models

// Message is rendered, channel-appropriate content ready for transport.
type Message struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
