package providers

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"escalation-service/internal/config"
	"escalation-service/internal/models"
)

// Email sends plain-text mail over SMTP.
type Email struct {
	server   string
	port     int
	username string
	password string
	fromName string
}

func NewEmail(cfg config.Config) *Email {
	return &Email{
		server:   cfg.Email.SMTPServer,
		port:     cfg.Email.SMTPPort,
		username: cfg.Email.Username,
		password: cfg.Email.Password,
		fromName: cfg.Email.FromName,
	}
}

func (e *Email) DependencyName() string { return "smtp" }

// Send delivers msg to one recipient. SMTP has no message id; an empty
// provider id with a nil error means accepted by the relay.
func (e *Email) Send(ctx context.Context, to string, msg models.Message) (string, error) {
	if !strings.Contains(to, "@") {
		return "", fmt.Errorf("invalid email address: %s", to)
	}
	if e.server == "" || e.port == 0 || e.username == "" {
		return "", fmt.Errorf("missing Email configuration: SMTPServer, SMTPPort or Username is empty")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	message := fmt.Sprintf("From: %s <%s>\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		e.fromName, e.username, to, msg.Subject, msg.Body)
	auth := smtp.PlainAuth("", e.username, e.password, e.server)
	addr := fmt.Sprintf("%s:%d", e.server, e.port)

	if err := smtp.SendMail(addr, auth, e.username, []string{to}, []byte(message)); err != nil {
		return "", fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return "", nil
}
