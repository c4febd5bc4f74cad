package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"escalation-service/internal/models"
)

// BreakerSettings configures one named circuit breaker.
type BreakerSettings struct {
	FailureThreshold float64 // percent, e.g. 50
	ResetTimeout     time.Duration
	MonitoringWindow time.Duration
	MinimumCalls     int
}

// Config holds application configuration loaded from environment.
type Config struct {
	Kafka struct {
		Broker  string
		Topic   string
		GroupID string
	}
	DB struct {
		DSN string
	}
	SMS struct {
		AccountSID string
		AuthToken  string
		FromNumber string
		// WhatsAppFrom is the Twilio WhatsApp-enabled sender, e.g.
		// "whatsapp:+14155238886".
		WhatsAppFrom string
		RatePerSec   int
	}
	Email struct {
		SMTPServer string
		SMTPPort   int
		Username   string
		Password   string
		FromName   string
	}
	Telegram struct {
		BotToken  string
		OpsChatID int64
	}
	API struct {
		Port     string
		BasePath string
	}
	Queue struct {
		IndividualWorkers int
		BulkWorkers       int
		PollInterval      time.Duration
		BackoffBase       time.Duration
		BackoffCap        time.Duration
		IndividualRetries int
		BulkRetries       int
	}
	Channels struct {
		Enabled []models.ChannelKind
		SendGap time.Duration // courtesy delay between fan-out sends
		DryRun  bool
	}
	Breakers map[string]BreakerSettings
	Logging  struct {
		Dir   string
		Level string
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config

	// Kafka settings
	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.Topic = os.Getenv("KAFKA_TOPIC")
	cfg.Kafka.GroupID = os.Getenv("KAFKA_GROUP_ID")

	// Database DSN
	cfg.DB.DSN = os.Getenv("DB_DSN")

	// Twilio settings
	cfg.SMS.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	cfg.SMS.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	cfg.SMS.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	cfg.SMS.WhatsAppFrom = os.Getenv("TWILIO_WHATSAPP_FROM")
	cfg.SMS.RatePerSec = envInt("TWILIO_RATE_PER_SEC", 5)

	// Email settings
	cfg.Email.SMTPServer = os.Getenv("EMAIL_SMTP_SERVER")
	cfg.Email.SMTPPort = envInt("EMAIL_SMTP_PORT", 587)
	cfg.Email.Username = os.Getenv("EMAIL_USERNAME")
	cfg.Email.Password = os.Getenv("EMAIL_PASSWORD")
	cfg.Email.FromName = os.Getenv("EMAIL_FROM_NAME")

	// Operator Telegram channel
	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if id, err := strconv.ParseInt(os.Getenv("TELEGRAM_OPS_CHAT_ID"), 10, 64); err == nil {
		cfg.Telegram.OpsChatID = id
	}

	// API settings
	cfg.API.Port = os.Getenv("API_PORT")
	cfg.API.BasePath = os.Getenv("API_BASE_PATH")

	// Queue settings
	cfg.Queue.IndividualWorkers = envInt("QUEUE_INDIVIDUAL_WORKERS", 10)
	cfg.Queue.BulkWorkers = envInt("QUEUE_BULK_WORKERS", 2)
	cfg.Queue.PollInterval = envDuration("QUEUE_POLL_INTERVAL", 500*time.Millisecond)
	cfg.Queue.BackoffBase = envDuration("QUEUE_BACKOFF_BASE", 2*time.Second)
	cfg.Queue.BackoffCap = envDuration("QUEUE_BACKOFF_CAP", time.Minute)
	cfg.Queue.IndividualRetries = envInt("QUEUE_INDIVIDUAL_RETRIES", 3)
	cfg.Queue.BulkRetries = envInt("QUEUE_BULK_RETRIES", 1)

	// Channel settings
	cfg.Channels.Enabled = parseChannels(os.Getenv("ENABLED_CHANNELS"))
	cfg.Channels.SendGap = envDuration("CHANNEL_SEND_GAP", 200*time.Millisecond)
	cfg.Channels.DryRun = os.Getenv("DRY_RUN") == "true"

	// Per-dependency breaker settings. Outbound alerting is latency-critical,
	// so the Twilio breakers trip early and recover fast; SMTP tolerates more.
	cfg.Breakers = map[string]BreakerSettings{
		"twilio-sms": {
			FailureThreshold: envFloat("BREAKER_SMS_THRESHOLD", 30),
			ResetTimeout:     envDuration("BREAKER_SMS_RESET", 30*time.Second),
			MonitoringWindow: envDuration("BREAKER_SMS_WINDOW", 2*time.Minute),
			MinimumCalls:     envInt("BREAKER_SMS_MIN_CALLS", 5),
		},
		"twilio-whatsapp": {
			FailureThreshold: envFloat("BREAKER_WHATSAPP_THRESHOLD", 30),
			ResetTimeout:     envDuration("BREAKER_WHATSAPP_RESET", 30*time.Second),
			MonitoringWindow: envDuration("BREAKER_WHATSAPP_WINDOW", 2*time.Minute),
			MinimumCalls:     envInt("BREAKER_WHATSAPP_MIN_CALLS", 5),
		},
		"twilio-voice": {
			FailureThreshold: envFloat("BREAKER_VOICE_THRESHOLD", 50),
			ResetTimeout:     envDuration("BREAKER_VOICE_RESET", 60*time.Second),
			MonitoringWindow: envDuration("BREAKER_VOICE_WINDOW", 5*time.Minute),
			MinimumCalls:     envInt("BREAKER_VOICE_MIN_CALLS", 5),
		},
		"smtp": {
			FailureThreshold: envFloat("BREAKER_SMTP_THRESHOLD", 60),
			ResetTimeout:     envDuration("BREAKER_SMTP_RESET", 2*time.Minute),
			MonitoringWindow: envDuration("BREAKER_SMTP_WINDOW", 10*time.Minute),
			MinimumCalls:     envInt("BREAKER_SMTP_MIN_CALLS", 10),
		},
	}

	// Logging settings
	cfg.Logging.Dir = os.Getenv("LOG_DIR")
	cfg.Logging.Level = os.Getenv("LOG_LEVEL")

	// Validate required settings
	missing := []string{}
	if cfg.Kafka.Broker == "" {
		missing = append(missing, "KAFKA_BROKER")
	}
	if cfg.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	// Apply defaults
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "hazard_events"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "escalation-service"
	}
	if cfg.API.Port == "" {
		cfg.API.Port = ":8080"
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api/v0"
	}
	if len(cfg.Channels.Enabled) == 0 {
		cfg.Channels.Enabled = models.AllChannels
	}

	return cfg, nil
}

func parseChannels(s string) []models.ChannelKind {
	if s == "" {
		return nil
	}
	var out []models.ChannelKind
	for _, part := range strings.Split(s, ",") {
		k := models.ChannelKind(strings.TrimSpace(part))
		if k.Valid() {
			out = append(out, k)
		}
	}
	return out
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return def
}
