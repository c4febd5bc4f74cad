package escalation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"escalation-service/internal/models"
	"escalation-service/internal/queue"
)

// RegisterHandlers binds the escalation service onto the queue's job kinds.
func (s *Service) RegisterHandlers(q *queue.Queue) {
	q.Register(queue.KindAdvance, func(ctx context.Context, job *queue.Job) error {
		var p queue.AdvancePayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("bad advance payload: %w", err)
		}
		return s.HandleAdvanceJob(ctx, p)
	})
	q.Register(queue.KindSend, func(ctx context.Context, job *queue.Job) error {
		var p queue.SendPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("bad send payload: %w", err)
		}
		return s.HandleSendJob(ctx, p)
	})
	q.Register(queue.KindBulk, func(ctx context.Context, job *queue.Job) error {
		var p queue.BulkPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("bad bulk payload: %w", err)
		}
		n, err := q.ExpandBulk(ctx, p)
		if err != nil {
			return fmt.Errorf("bulk expansion stopped after %d jobs: %w", n, err)
		}
		s.logger.Infof("Bulk job for alert %s expanded into %d sends", p.AlertID, n)
		return nil
	})
}

// HandleSendJob performs one queued (contact, channel) send. An error return
// hands the job back to the queue for backoff; the attempt row for the pair
// is updated on every try, not duplicated.
func (s *Service) HandleSendJob(ctx context.Context, p queue.SendPayload) error {
	alert, err := s.alerts.GetAlert(ctx, p.AlertID)
	if err != nil {
		return fmt.Errorf("send job: alert %s: %w", p.AlertID, err)
	}
	contact, err := s.contacts.GetContact(ctx, p.ContactID)
	if err != nil {
		return fmt.Errorf("send job: contact %s: %w", p.ContactID, err)
	}

	// Step 0 means a bulk-lane send outside any policy step.
	var step *models.EscalationStep
	if p.StepNumber > 0 {
		policy, err := s.policies.GetPolicy(ctx, alert.PolicyID)
		if err != nil {
			return fmt.Errorf("send job: policy %s: %w", alert.PolicyID, err)
		}
		step = policy.Step(p.StepNumber)
		if step == nil {
			return fmt.Errorf("send job: policy %s has no step %d", alert.PolicyID, p.StepNumber)
		}
	}

	if p.DryRun {
		s.executor.record(ctx, &models.DeliveryAttempt{
			ID:          uuid.New().String(),
			AlertID:     alert.ID,
			StepNumber:  p.StepNumber,
			ContactID:   contact.ID,
			ContactName: contact.Name,
			Channel:     p.Channel,
			Status:      models.AttemptDryRun,
			Attempt:     1,
			AttemptedAt: s.now(),
		})
		return nil
	}

	return s.executor.SendOne(ctx, alert, step, contact, p.Channel)
}

// SendOne dispatches a single pair and records the outcome on the pair's
// logical attempt row. Returns the dispatch error for queue retry handling.
func (e *Executor) SendOne(ctx context.Context, alert *models.Alert, step *models.EscalationStep, contact *models.Contact, kind models.ChannelKind) error {
	if _, ok := contact.DestinationFor(kind); !ok {
		// Eligibility changed since enqueue; nothing to deliver, not a
		// failure worth retrying.
		e.logger.Warnf("Send for alert %s dropped: contact %s has no %s destination", alert.ID, contact.ID, kind)
		return nil
	}

	stepNumber := 0
	if step != nil {
		stepNumber = step.StepNumber
	}
	attempt := models.DeliveryAttempt{
		ID:          uuid.New().String(),
		AlertID:     alert.ID,
		StepNumber:  stepNumber,
		ContactID:   contact.ID,
		ContactName: contact.Name,
		Channel:     kind,
		Attempt:     1,
		AttemptedAt: e.now(),
	}

	msg := e.renderer.Render(alert, step, kind)
	providerID, err := e.dispatcher.Dispatch(ctx, contact, kind, msg)
	if err != nil {
		attempt.Status = models.AttemptFailed
		attempt.Error = err.Error()
		e.record(ctx, &attempt)
		return err
	}

	now := e.now()
	attempt.Status = models.AttemptSent
	attempt.ProviderMessageID = providerID
	attempt.DeliveredAt = &now
	e.record(ctx, &attempt)
	return nil
}
