package escalation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"escalation-service/internal/breaker"
	"escalation-service/internal/channels"
	"escalation-service/internal/logging"
	"escalation-service/internal/models"
	"escalation-service/internal/queue"
	"escalation-service/internal/render"
)

// AttemptPublisher pushes attempt outcomes to live observers (the operator
// websocket feed). Optional.
type AttemptPublisher interface {
	PublishAttempt(attempt models.DeliveryAttempt)
}

// StepResult reports one step execution. Logs are operator-facing lines for
// the ops console, not recipient content.
type StepResult struct {
	Success   bool     `json:"success"`
	Attempted int      `json:"attempted"`
	Sent      int      `json:"sent"`
	Logs      []string `json:"logs"`
}

// Executor runs exactly one escalation step against one alert: role filter,
// contact × step-channel fan-out, one DeliveryAttempt per eligible pair.
type Executor struct {
	dispatcher *channels.Dispatcher
	renderer   render.Renderer
	attempts   AttemptStore
	scheduler  Scheduler
	publisher  AttemptPublisher
	logger     *logging.Logger
	sendGap    time.Duration
	now        func() time.Time
}

// NewExecutor wires the step executor. publisher may be nil.
func NewExecutor(dispatcher *channels.Dispatcher, renderer render.Renderer, attempts AttemptStore, scheduler Scheduler, publisher AttemptPublisher, logger *logging.Logger, sendGap time.Duration) *Executor {
	return &Executor{
		dispatcher: dispatcher,
		renderer:   renderer,
		attempts:   attempts,
		scheduler:  scheduler,
		publisher:  publisher,
		logger:     logger,
		sendGap:    sendGap,
		now:        time.Now,
	}
}

// ExecuteStep fans one step out to its role-matched contacts. Partial
// delivery failures never fail the step; escalation advances on time and
// acknowledgment only.
func (e *Executor) ExecuteStep(ctx context.Context, alert *models.Alert, step *models.EscalationStep, contacts []models.Contact, dryRun bool) StepResult {
	res := StepResult{Success: true}

	var matched []models.Contact
	for _, c := range contacts {
		if c.Active && c.HasRole(step.ContactRoles) {
			matched = append(matched, c)
		}
	}
	if len(matched) == 0 {
		line := fmt.Sprintf("Step %d: no active contacts match roles %v, nothing to send", step.StepNumber, step.ContactRoles)
		e.logger.Infof("%s (alert %s)", line, alert.ID)
		res.Logs = append(res.Logs, line)
		return res
	}

	first := true
	for i := range matched {
		contact := &matched[i]
		// Step channels are policy-authored and fixed; only destination
		// presence filters a pair out here.
		for _, kind := range step.Channels {
			if _, ok := contact.DestinationFor(kind); !ok {
				e.logger.Debugf("Skipping %s via %s: no destination (alert %s)", contact.Name, kind, alert.ID)
				continue
			}

			if !first && e.sendGap > 0 && !dryRun {
				time.Sleep(e.sendGap)
			}
			first = false

			res.Attempted++
			attempt := models.DeliveryAttempt{
				ID:          uuid.New().String(),
				AlertID:     alert.ID,
				StepNumber:  step.StepNumber,
				ContactID:   contact.ID,
				ContactName: contact.Name,
				Channel:     kind,
				Attempt:     1,
				AttemptedAt: e.now(),
			}

			if dryRun {
				attempt.Status = models.AttemptDryRun
				res.Logs = append(res.Logs, fmt.Sprintf("→ %s via %s: dry run", contact.Name, kind))
				e.record(ctx, &attempt)
				continue
			}

			msg := e.renderer.Render(alert, step, kind)
			providerID, err := e.dispatcher.Dispatch(ctx, contact, kind, msg)
			if err != nil {
				attempt.Status = models.AttemptFailed
				attempt.Error = err.Error()
				outcome := "failed"
				if breaker.IsOpen(err) {
					outcome = "provider circuit open"
				}
				res.Logs = append(res.Logs, fmt.Sprintf("→ %s via %s: %s (%v)", contact.Name, kind, outcome, err))
				e.record(ctx, &attempt)
				e.enqueueRetry(ctx, alert, step, contact, kind)
				continue
			}

			now := e.now()
			attempt.Status = models.AttemptSent
			attempt.ProviderMessageID = providerID
			attempt.DeliveredAt = &now
			res.Sent++
			res.Logs = append(res.Logs, fmt.Sprintf("→ %s via %s: sent", contact.Name, kind))
			e.record(ctx, &attempt)
		}
	}

	return res
}

func (e *Executor) record(ctx context.Context, attempt *models.DeliveryAttempt) {
	if err := e.attempts.RecordAttempt(ctx, attempt); err != nil {
		e.logger.Errorf("RecordAttempt failed for alert %s step %d: %v", attempt.AlertID, attempt.StepNumber, err)
	}
	if e.publisher != nil {
		e.publisher.PublishAttempt(*attempt)
	}
}

// enqueueRetry hands a failed pair to the individual lane; the queue owns
// backoff and the attempt cap from here.
func (e *Executor) enqueueRetry(ctx context.Context, alert *models.Alert, step *models.EscalationStep, contact *models.Contact, kind models.ChannelKind) {
	if e.scheduler == nil {
		return
	}
	_, err := e.scheduler.AddAlert(ctx, queue.SendPayload{
		AlertID:    alert.ID,
		StepNumber: step.StepNumber,
		ContactID:  contact.ID,
		Channel:    kind,
	}, alert.Severity)
	if err != nil {
		e.logger.Errorf("Failed to enqueue retry for alert %s contact %s via %s: %v", alert.ID, contact.ID, kind, err)
	}
}
