package escalation

import (
	"context"
	"fmt"
	"time"

	"escalation-service/internal/logging"
	"escalation-service/internal/models"
	"escalation-service/internal/queue"
)

// Scheduler is the slice of the job queue the escalation core needs.
// *queue.Queue satisfies it.
type Scheduler interface {
	AddAlert(ctx context.Context, p queue.SendPayload, severity int) (*queue.Job, error)
	ScheduleAdvance(ctx context.Context, alertID string, expectStep int, runAt time.Time) (*queue.Job, error)
}

// InitiateResult is the structured outcome of an initiation request. Policy
// problems come back here as a reason string, never as a panic or a lost
// error.
type InitiateResult struct {
	Success           bool     `json:"success"`
	EscalationStarted bool     `json:"escalation_started"`
	StepExecuted      int      `json:"step_executed,omitempty"`
	NotificationsSent int      `json:"notifications_sent"`
	Logs              []string `json:"logs,omitempty"`
	Error             string   `json:"error,omitempty"`
}

// AdvanceResult is the outcome of a scheduled step advance.
type AdvanceResult struct {
	Success      bool     `json:"success"`
	StepExecuted int      `json:"step_executed,omitempty"`
	Completed    bool     `json:"completed"`
	Logs         []string `json:"logs,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// Service is the escalation state machine. It owns every mutation of the
// alert's escalation fields; advancement is driven purely by time and
// acknowledgment, never by delivery success.
type Service struct {
	alerts    AlertStore
	policies  PolicyStore
	contacts  ContactStore
	executor  *Executor
	scheduler Scheduler
	logger    *logging.Logger
	now       func() time.Time
}

func NewService(alerts AlertStore, policies PolicyStore, contacts ContactStore, executor *Executor, scheduler Scheduler, logger *logging.Logger) *Service {
	return &Service{
		alerts:    alerts,
		policies:  policies,
		contacts:  contacts,
		executor:  executor,
		scheduler: scheduler,
		logger:    logger,
		now:       time.Now,
	}
}

// Initiate starts the escalation for an alert: marks it started, executes
// step 1 synchronously, and schedules step 2 through the durable queue.
// Double initiation is rejected so step-1 fan-out cannot run twice.
func (s *Service) Initiate(ctx context.Context, alertID string, dryRun bool) InitiateResult {
	alert, err := s.alerts.GetAlert(ctx, alertID)
	if err != nil {
		return InitiateResult{Error: fmt.Sprintf("alert %s not found: %v", alertID, err)}
	}
	if alert.Acknowledged {
		return InitiateResult{Error: fmt.Sprintf("alert %s is already acknowledged", alertID)}
	}
	if alert.EscalationStarted {
		return InitiateResult{Error: fmt.Sprintf("escalation already started for alert %s", alertID)}
	}

	policy, err := s.policies.GetPolicy(ctx, alert.PolicyID)
	if err != nil {
		return InitiateResult{Error: fmt.Sprintf("policy %s unavailable: %v", alert.PolicyID, err)}
	}

	started, err := s.alerts.StartEscalation(ctx, alertID, s.now())
	if err != nil {
		return InitiateResult{Error: fmt.Sprintf("failed to start escalation: %v", err)}
	}
	if !started {
		// Lost the race with a concurrent initiation.
		return InitiateResult{Error: fmt.Sprintf("escalation already started for alert %s", alertID)}
	}
	alert.EscalationStarted = true
	alert.EscalationStep = 1

	s.logger.Infof("Escalation started for alert %s (policy %s, dry_run=%v)", alertID, policy.ID, dryRun)

	step := policy.Step(1)
	stepRes := s.executeStep(ctx, alert, step, dryRun)
	s.scheduleNext(ctx, alert, policy, 1)

	return InitiateResult{
		Success:           true,
		EscalationStarted: true,
		StepExecuted:      1,
		NotificationsSent: stepRes.Sent,
		Logs:              stepRes.Logs,
	}
}

// CheckAcknowledgment is a pure read used before a scheduled advance fires.
func (s *Service) CheckAcknowledgment(ctx context.Context, alertID string) (bool, error) {
	alert, err := s.alerts.GetAlert(ctx, alertID)
	if err != nil {
		return false, err
	}
	return alert.Acknowledged, nil
}

// Acknowledge flips the alert's acknowledged flag. The next scheduled
// advance sees it and completes the escalation without sending.
func (s *Service) Acknowledge(ctx context.Context, alertID string) (bool, error) {
	ok, err := s.alerts.Acknowledge(ctx, alertID, s.now())
	if err != nil {
		return false, err
	}
	if ok {
		s.logger.Infof("Alert %s acknowledged", alertID)
	}
	return ok, nil
}

// EscalateToNextStep advances the alert one step and executes it. Called by
// the queue's advance handler when a step's wait window elapses.
func (s *Service) EscalateToNextStep(ctx context.Context, alertID string) AdvanceResult {
	alert, err := s.alerts.GetAlert(ctx, alertID)
	if err != nil {
		return AdvanceResult{Error: fmt.Sprintf("alert %s not found: %v", alertID, err)}
	}
	if !alert.EscalationStarted {
		return AdvanceResult{Error: fmt.Sprintf("escalation not started for alert %s", alertID)}
	}
	if alert.EscalationComplete {
		return AdvanceResult{Success: true, Completed: true}
	}

	// Acknowledgment is checked lazily, at the moment the advance fires.
	if alert.Acknowledged {
		if err := s.alerts.MarkEscalationComplete(ctx, alertID); err != nil {
			s.logger.Errorf("MarkEscalationComplete failed for alert %s: %v", alertID, err)
		}
		s.logger.Infof("Alert %s acknowledged, escalation completed without step %d", alertID, alert.EscalationStep+1)
		return AdvanceResult{
			Success:   true,
			Completed: true,
			Logs:      []string{fmt.Sprintf("acknowledged before step %d, escalation complete", alert.EscalationStep+1)},
		}
	}

	policy, err := s.policies.GetPolicy(ctx, alert.PolicyID)
	if err != nil {
		return AdvanceResult{Error: fmt.Sprintf("policy %s unavailable: %v", alert.PolicyID, err)}
	}

	next := alert.EscalationStep + 1
	step := policy.Step(next)
	if step == nil {
		// Policy exhausted: terminal, not an error.
		if err := s.alerts.MarkEscalationComplete(ctx, alertID); err != nil {
			s.logger.Errorf("MarkEscalationComplete failed for alert %s: %v", alertID, err)
		}
		s.logger.Infof("Alert %s exhausted policy %s after step %d", alertID, policy.ID, alert.EscalationStep)
		return AdvanceResult{
			Success:   true,
			Completed: true,
			Logs:      []string{fmt.Sprintf("no step %d in policy, escalation complete", next)},
		}
	}

	advanced, err := s.alerts.AdvanceEscalation(ctx, alertID, alert.EscalationStep, next, s.now())
	if err != nil {
		return AdvanceResult{Error: fmt.Sprintf("failed to advance escalation: %v", err)}
	}
	if !advanced {
		// Double-fired advance or concurrent acknowledgment; the other
		// actor won, nothing to do.
		s.logger.Warnf("Advance for alert %s to step %d skipped, state moved underneath", alertID, next)
		return AdvanceResult{Success: true}
	}
	alert.EscalationStep = next

	stepRes := s.executeStep(ctx, alert, step, false)
	s.scheduleNext(ctx, alert, policy, next)

	return AdvanceResult{
		Success:      true,
		StepExecuted: next,
		Logs:         stepRes.Logs,
	}
}

// HandleAdvanceJob adapts a queued advance job onto EscalateToNextStep,
// honoring the payload's expected-step guard.
func (s *Service) HandleAdvanceJob(ctx context.Context, p queue.AdvancePayload) error {
	alert, err := s.alerts.GetAlert(ctx, p.AlertID)
	if err != nil {
		return fmt.Errorf("advance job: alert %s: %w", p.AlertID, err)
	}
	if alert.EscalationStep != p.ExpectStep {
		// A newer advance already ran; stale job is a no-op.
		s.logger.Debugf("Stale advance for alert %s (expected step %d, at %d)", p.AlertID, p.ExpectStep, alert.EscalationStep)
		return nil
	}
	res := s.EscalateToNextStep(ctx, p.AlertID)
	if res.Error != "" {
		return fmt.Errorf("advance job: %s", res.Error)
	}
	return nil
}

func (s *Service) executeStep(ctx context.Context, alert *models.Alert, step *models.EscalationStep, dryRun bool) StepResult {
	contacts, err := s.contacts.GetContactsBySubject(ctx, alert.SubjectID)
	if err != nil {
		// A failed contact lookup does not halt the chain; log and carry on
		// with an empty set so the advance still gets scheduled.
		s.logger.Errorf("Contact lookup failed for subject %s: %v", alert.SubjectID, err)
		contacts = nil
	}
	res := s.executor.ExecuteStep(ctx, alert, step, contacts, dryRun)
	s.logger.Infof("Alert %s step %d executed: attempted=%d sent=%d", alert.ID, step.StepNumber, res.Attempted, res.Sent)
	return res
}

// scheduleNext enqueues the durable advance for the step after current, if
// the policy has one. The wait is the next step's own wait window.
func (s *Service) scheduleNext(ctx context.Context, alert *models.Alert, policy *models.EscalationPolicy, current int) {
	next := policy.Step(current + 1)
	if next == nil {
		return
	}
	runAt := s.now().Add(time.Duration(next.WaitMinutes) * time.Minute)
	if _, err := s.scheduler.ScheduleAdvance(ctx, alert.ID, current, runAt); err != nil {
		s.logger.Errorf("Failed to schedule step %d for alert %s: %v", current+1, alert.ID, err)
		return
	}
	s.logger.Infof("Scheduled step %d for alert %s at %s", current+1, alert.ID, runAt.Format(time.RFC3339))
}
