package kafka

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"escalation-service/internal/db"
	"escalation-service/internal/escalation"
	"escalation-service/internal/logging"
	"escalation-service/internal/models"
)

// Consumer turns detected hazard events into alerts and kicks off their
// escalations. One event, one alert, one initiation.
type Consumer struct {
	reader *kafka.Reader
	db     *db.DB
	svc    *escalation.Service
	logger *logging.Logger
	dryRun bool
}

func NewConsumer(brokers []string, topic, groupID string, database *db.DB, svc *escalation.Service, logger *logging.Logger, dryRun bool) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})
	return &Consumer{reader: reader, db: database, svc: svc, logger: logger, dryRun: dryRun}
}

// Start consumes until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.logger.Infof("Kafka consumer started on topic %s", c.reader.Config().Topic)
		for {
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					c.logger.Infof("Kafka consumer stopped")
					return
				}
				c.logger.Errorf("Read message failed: %v", err)
				continue
			}
			c.handle(ctx, msg.Value)
		}
	}()
}

type hazardMessage struct {
	EventID    string  `json:"event_id"`
	Type       string  `json:"type"`
	Severity   int     `json:"severity"`
	SubjectID  string  `json:"subject_id"`
	PolicyID   string  `json:"policy_id"`
	Magnitude  float64 `json:"magnitude"`
	DepthKM    float64 `json:"depth_km"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Region     string  `json:"region"`
	OccurredAt string  `json:"occurred_at"`
}

func (c *Consumer) handle(ctx context.Context, value []byte) {
	var ev hazardMessage
	if err := json.Unmarshal(value, &ev); err != nil {
		c.logger.Errorf("Unmarshal hazard event failed: %v", err)
		return
	}
	if ev.EventID == "" || ev.Type == "" || ev.Severity < 1 || ev.SubjectID == "" || ev.PolicyID == "" {
		c.logger.Errorf("Invalid hazard event: missing event_id, type, severity, subject_id or policy_id")
		return
	}

	occurredAt, err := time.Parse(time.RFC3339, ev.OccurredAt)
	if err != nil {
		occurredAt = time.Now()
	}

	alert := models.Alert{
		ID:        uuid.New().String(),
		Type:      ev.Type,
		Severity:  ev.Severity,
		SubjectID: ev.SubjectID,
		PolicyID:  ev.PolicyID,
		CreatedAt: time.Now(),
		Event: models.HazardEvent{
			EventID:    ev.EventID,
			Type:       ev.Type,
			Severity:   ev.Severity,
			Magnitude:  ev.Magnitude,
			DepthKM:    ev.DepthKM,
			Latitude:   ev.Latitude,
			Longitude:  ev.Longitude,
			Region:     ev.Region,
			SubjectID:  ev.SubjectID,
			OccurredAt: occurredAt,
		},
	}

	if err := c.db.CreateAlert(ctx, alert); err != nil {
		c.logger.Errorf("CreateAlert failed for event %s: %v", ev.EventID, err)
		return
	}
	c.logger.Infof("Created alert %s for %s event %s (severity %d)", alert.ID, ev.Type, ev.EventID, ev.Severity)

	res := c.svc.Initiate(ctx, alert.ID, c.dryRun)
	if !res.Success {
		c.logger.Errorf("Escalation initiation failed for alert %s: %s", alert.ID, res.Error)
		return
	}
	c.logger.Infof("Escalation initiated for alert %s: step 1 sent %d notifications", alert.ID, res.NotificationsSent)
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Errorf("Kafka reader close failed: %v", err)
	}
}
