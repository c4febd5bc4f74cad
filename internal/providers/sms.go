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

// SMS sends text messages through Twilio.
type SMS struct {
	client  *twilio.RestClient
	from    string
	limiter *rate.Limiter
}

// NewSMS builds the SMS provider from Twilio credentials.
func NewSMS(cfg config.Config) *SMS {
	return &SMS{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.SMS.AccountSID,
			Password: cfg.SMS.AuthToken,
		}),
		from:    cfg.SMS.FromNumber,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.SMS.RatePerSec)), cfg.SMS.RatePerSec),
	}
}

func (s *SMS) DependencyName() string { return "twilio-sms" }

// Send delivers msg as a single SMS. The returned id is Twilio's message SID.
func (s *SMS) Send(ctx context.Context, toNumber string, msg models.Message) (string, error) {
	if !strings.HasPrefix(toNumber, "+") {
		return "", fmt.Errorf("invalid phone number: %s", toNumber)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("sms rate limit: %w", err)
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(toNumber)
	params.SetFrom(s.from)
	params.SetBody(fmt.Sprintf("%s\n%s", msg.Subject, msg.Body))

	resp, err := s.client.Api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("failed to send SMS to %s: %w", toNumber, err)
	}
	if resp.Sid == nil {
		return "", nil
	}
	return *resp.Sid, nil
}
