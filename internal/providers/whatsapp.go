package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"golang.org/x/time/rate"

	"escalation-service/internal/config"
	"escalation-service/internal/models"
)

// WhatsApp sends messages through Twilio's WhatsApp channel. Twilio expects
// both sender and recipient prefixed with "whatsapp:".
type WhatsApp struct {
	client  *twilio.RestClient
	from    string
	limiter *rate.Limiter
}

func NewWhatsApp(cfg config.Config) *WhatsApp {
	return &WhatsApp{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.SMS.AccountSID,
			Password: cfg.SMS.AuthToken,
		}),
		from:    cfg.SMS.WhatsAppFrom,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.SMS.RatePerSec)), cfg.SMS.RatePerSec),
	}
}

func (w *WhatsApp) DependencyName() string { return "twilio-whatsapp" }

func (w *WhatsApp) Send(ctx context.Context, toNumber string, msg models.Message) (string, error) {
	if !strings.HasPrefix(toNumber, "+") && !strings.HasPrefix(toNumber, "whatsapp:") {
		return "", fmt.Errorf("invalid whatsapp number: %s", toNumber)
	}
	if err := w.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("whatsapp rate limit: %w", err)
	}
	if !strings.HasPrefix(toNumber, "whatsapp:") {
		toNumber = "whatsapp:" + toNumber
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(toNumber)
	params.SetFrom(w.from)
	params.SetBody(fmt.Sprintf("*%s*\n%s", msg.Subject, msg.Body))

	resp, err := w.client.Api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("failed to send WhatsApp message to %s: %w", toNumber, err)
	}
	if resp.Sid == nil {
		return "", nil
	}
	return *resp.Sid, nil
}
