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

// Voice places automated calls through Twilio, reading the message body
// aloud via inline TwiML.
type Voice struct {
	client  *twilio.RestClient
	from    string
	limiter *rate.Limiter
}

func NewVoice(cfg config.Config) *Voice {
	return &Voice{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.SMS.AccountSID,
			Password: cfg.SMS.AuthToken,
		}),
		from:    cfg.SMS.FromNumber,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.SMS.RatePerSec)), cfg.SMS.RatePerSec),
	}
}

func (v *Voice) DependencyName() string { return "twilio-voice" }

func (v *Voice) Send(ctx context.Context, toNumber string, msg models.Message) (string, error) {
	if !strings.HasPrefix(toNumber, "+") {
		return "", fmt.Errorf("invalid phone number: %s", toNumber)
	}
	if err := v.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("voice rate limit: %w", err)
	}

	twiml := fmt.Sprintf("<Response><Say loop=\"2\">%s</Say></Response>", escapeXML(msg.Body))
	params := &twilioApi.CreateCallParams{}
	params.SetTo(toNumber)
	params.SetFrom(v.from)
	params.SetTwiml(twiml)

	resp, err := v.client.Api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("failed to place call to %s: %w", toNumber, err)
	}
	if resp.Sid == nil {
		return "", nil
	}
	return *resp.Sid, nil
}

func escapeXML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
