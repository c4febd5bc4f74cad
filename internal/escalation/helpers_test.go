package escalation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"escalation-service/internal/breaker"
	"escalation-service/internal/channels"
	"escalation-service/internal/config"
	"escalation-service/internal/logging"
	"escalation-service/internal/models"
	"escalation-service/internal/queue"
	"escalation-service/internal/render"
)

// In-memory fakes mirroring the conditional-update semantics of internal/db.

type fakeAlertStore struct {
	mu     sync.Mutex
	alerts map[string]*models.Alert
}

func newFakeAlertStore(alerts ...*models.Alert) *fakeAlertStore {
	s := &fakeAlertStore{alerts: make(map[string]*models.Alert)}
	for _, a := range alerts {
		cp := *a
		s.alerts[a.ID] = &cp
	}
	return s
}

func (s *fakeAlertStore) GetAlert(_ context.Context, id string) (*models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, fmt.Errorf("alert %s not found", id)
	}
	cp := *a
	return &cp, nil
}

func (s *fakeAlertStore) StartEscalation(_ context.Context, id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok || a.EscalationStarted {
		return false, nil
	}
	a.EscalationStarted = true
	a.EscalationStep = 1
	a.LastEscalationAt = &now
	return true, nil
}

func (s *fakeAlertStore) AdvanceEscalation(_ context.Context, id string, fromStep, toStep int, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok || a.EscalationStep != fromStep || a.Acknowledged || a.EscalationComplete {
		return false, nil
	}
	a.EscalationStep = toStep
	a.LastEscalationAt = &now
	return true, nil
}

func (s *fakeAlertStore) MarkEscalationComplete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.alerts[id]; ok {
		a.EscalationComplete = true
	}
	return nil
}

func (s *fakeAlertStore) Acknowledge(_ context.Context, id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok || a.Acknowledged {
		return false, nil
	}
	a.Acknowledged = true
	a.AcknowledgedAt = &now
	return true, nil
}

type fakePolicyStore struct {
	policies map[string]*models.EscalationPolicy
}

func (s *fakePolicyStore) GetPolicy(_ context.Context, id string) (*models.EscalationPolicy, error) {
	p, ok := s.policies[id]
	if !ok {
		return nil, fmt.Errorf("policy %s not found", id)
	}
	return p, nil
}

type fakeContactStore struct {
	contacts []models.Contact
	failList bool
}

func (s *fakeContactStore) GetContactsBySubject(_ context.Context, subjectID string) ([]models.Contact, error) {
	if s.failList {
		return nil, errors.New("contact lookup unavailable")
	}
	var out []models.Contact
	for _, c := range s.contacts {
		if c.SubjectID == subjectID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeContactStore) GetContact(_ context.Context, id string) (*models.Contact, error) {
	for i := range s.contacts {
		if s.contacts[i].ID == id {
			cp := s.contacts[i]
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("contact %s not found", id)
}

// fakeAttemptStore applies the same upsert key as the Postgres store: a
// repeat record for (alert, step, contact, channel) bumps the attempt counter
// on the existing row.
type fakeAttemptStore struct {
	mu       sync.Mutex
	attempts []models.DeliveryAttempt
}

func (s *fakeAttemptStore) RecordAttempt(_ context.Context, attempt *models.DeliveryAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.attempts {
		a := &s.attempts[i]
		if a.AlertID == attempt.AlertID && a.StepNumber == attempt.StepNumber &&
			a.ContactID == attempt.ContactID && a.Channel == attempt.Channel {
			attempt.Attempt = a.Attempt + 1
			attempt.ID = a.ID
			*a = *attempt
			return nil
		}
	}
	s.attempts = append(s.attempts, *attempt)
	return nil
}

func (s *fakeAttemptStore) ListAttempts(_ context.Context, alertID string) ([]models.DeliveryAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.DeliveryAttempt
	for _, a := range s.attempts {
		if a.AlertID == alertID {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeScheduler struct {
	mu       sync.Mutex
	sends    []queue.SendPayload
	advances []struct {
		AlertID    string
		ExpectStep int
		RunAt      time.Time
	}
}

func (s *fakeScheduler) AddAlert(_ context.Context, p queue.SendPayload, severity int) (*queue.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, p)
	return &queue.Job{ID: fmt.Sprintf("send-%d", len(s.sends))}, nil
}

func (s *fakeScheduler) ScheduleAdvance(_ context.Context, alertID string, expectStep int, runAt time.Time) (*queue.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advances = append(s.advances, struct {
		AlertID    string
		ExpectStep int
		RunAt      time.Time
	}{alertID, expectStep, runAt})
	return &queue.Job{ID: fmt.Sprintf("advance-%d", len(s.advances))}, nil
}

// fakeProvider stands in for a Twilio/SMTP adapter.
type fakeProvider struct {
	name  string
	err   error
	sends []string
}

func (p *fakeProvider) Send(_ context.Context, destination string, _ models.Message) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.sends = append(p.sends, destination)
	return fmt.Sprintf("%s-msg-%d", p.name, len(p.sends)), nil
}

func (p *fakeProvider) DependencyName() string { return p.name }

type fakePublisher struct {
	published []models.DeliveryAttempt
}

func (p *fakePublisher) PublishAttempt(a models.DeliveryAttempt) {
	p.published = append(p.published, a)
}

func testDispatcher(providers map[models.ChannelKind]channels.Provider) *channels.Dispatcher {
	// Permissive breakers so dispatch behavior, not tripping, is under test.
	reg := breaker.NewRegistry(nil, config.BreakerSettings{FailureThreshold: 100, MinimumCalls: 1000}, nil)
	return channels.NewDispatcher(providers, reg, logging.NewTest())
}

func testAlert() *models.Alert {
	return &models.Alert{
		ID:        "alert-1",
		Type:      "tsunami",
		Severity:  5,
		SubjectID: "vessel-7",
		PolicyID:  "policy-1",
		CreatedAt: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		Event: models.HazardEvent{
			EventID:    "evt-1",
			Type:       "tsunami",
			Severity:   5,
			Magnitude:  8.1,
			Region:     "Sanriku Coast",
			SubjectID:  "vessel-7",
			OccurredAt: time.Date(2026, 3, 1, 7, 58, 0, 0, time.UTC),
		},
	}
}

func testPolicy() *models.EscalationPolicy {
	return &models.EscalationPolicy{
		ID:     "policy-1",
		Name:   "vessel-default",
		Status: "active",
		Steps: []models.EscalationStep{
			{StepNumber: 1, WaitMinutes: 0, Channels: []models.ChannelKind{models.ChannelSMS}, ContactRoles: []string{"operator"}, TimeoutMinutes: 5},
			{StepNumber: 2, WaitMinutes: 15, Channels: []models.ChannelKind{models.ChannelVoice, models.ChannelEmail}, ContactRoles: []string{"harbor_master"}},
		},
	}
}

var _ render.Renderer = render.Text{}
