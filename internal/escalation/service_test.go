package escalation

import (
	"context"
	"strings"
	"testing"
	"time"

	"escalation-service/internal/channels"
	"escalation-service/internal/logging"
	"escalation-service/internal/models"
	"escalation-service/internal/queue"
	"escalation-service/internal/render"
)

type serviceFixture struct {
	svc       *Service
	alerts    *fakeAlertStore
	attempts  *fakeAttemptStore
	scheduler *fakeScheduler
	sms       *fakeProvider
	voice     *fakeProvider
	email     *fakeProvider
	now       time.Time
}

func newServiceFixture(t *testing.T, alert *models.Alert, policy *models.EscalationPolicy, contacts []models.Contact) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		alerts:    newFakeAlertStore(alert),
		attempts:  &fakeAttemptStore{},
		scheduler: &fakeScheduler{},
		sms:       &fakeProvider{name: "twilio-sms"},
		voice:     &fakeProvider{name: "twilio-voice"},
		email:     &fakeProvider{name: "smtp"},
		now:       time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	dispatcher := testDispatcher(map[models.ChannelKind]channels.Provider{
		models.ChannelSMS:   f.sms,
		models.ChannelVoice: f.voice,
		models.ChannelEmail: f.email,
	})
	logger := logging.NewTest()
	executor := NewExecutor(dispatcher, render.Text{}, f.attempts, f.scheduler, nil, logger, 0)
	executor.now = func() time.Time { return f.now }

	policies := &fakePolicyStore{policies: map[string]*models.EscalationPolicy{}}
	if policy != nil {
		policies.policies[policy.ID] = policy
	}
	f.svc = NewService(f.alerts, policies, &fakeContactStore{contacts: contacts}, executor, f.scheduler, logger)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func vesselContacts() []models.Contact {
	return []models.Contact{
		{ID: "c1", Name: "Operator", Role: "operator", SubjectID: "vessel-7", Phone: "+81900000001", Active: true},
		{ID: "c2", Name: "Harbor Master", Role: "harbor_master", SubjectID: "vessel-7", Phone: "+81900000002", Email: "harbor@example.org", Active: true},
	}
}

func TestInitiateExecutesStepOneAndSchedulesStepTwo(t *testing.T) {
	f := newServiceFixture(t, testAlert(), testPolicy(), vesselContacts())
	ctx := context.Background()

	res := f.svc.Initiate(ctx, "alert-1", false)
	if res.Error != "" {
		t.Fatalf("Initiate error: %s", res.Error)
	}
	if !res.Success || !res.EscalationStarted || res.StepExecuted != 1 {
		t.Fatalf("Initiate result = %+v", res)
	}
	if res.NotificationsSent != 1 {
		t.Fatalf("notifications sent = %d, want 1 (operator sms)", res.NotificationsSent)
	}
	if len(f.sms.sends) != 1 || f.sms.sends[0] != "+81900000001" {
		t.Fatalf("sms sends = %v", f.sms.sends)
	}

	alert, _ := f.alerts.GetAlert(ctx, "alert-1")
	if !alert.EscalationStarted || alert.EscalationStep != 1 {
		t.Fatalf("alert state = started=%v step=%d", alert.EscalationStarted, alert.EscalationStep)
	}

	// Step 2 waits 15 minutes; the advance is scheduled durably for then.
	if len(f.scheduler.advances) != 1 {
		t.Fatalf("scheduled advances = %d, want 1", len(f.scheduler.advances))
	}
	adv := f.scheduler.advances[0]
	if adv.AlertID != "alert-1" || adv.ExpectStep != 1 {
		t.Fatalf("advance = %+v", adv)
	}
	if want := f.now.Add(15 * time.Minute); !adv.RunAt.Equal(want) {
		t.Fatalf("advance run_at = %s, want %s", adv.RunAt, want)
	}
}

func TestInitiateRejectsDoubleStart(t *testing.T) {
	f := newServiceFixture(t, testAlert(), testPolicy(), vesselContacts())
	ctx := context.Background()

	if res := f.svc.Initiate(ctx, "alert-1", false); res.Error != "" {
		t.Fatalf("first Initiate error: %s", res.Error)
	}
	res := f.svc.Initiate(ctx, "alert-1", false)
	if res.Error == "" {
		t.Fatal("second Initiate succeeded, want rejection")
	}
	if !strings.Contains(res.Error, "already started") {
		t.Fatalf("rejection = %q", res.Error)
	}
	// Step 1 fan-out ran exactly once.
	if len(f.sms.sends) != 1 {
		t.Fatalf("sms sends = %v, want 1", f.sms.sends)
	}
}

func TestInitiateRejectsAcknowledgedAlert(t *testing.T) {
	alert := testAlert()
	alert.Acknowledged = true
	f := newServiceFixture(t, alert, testPolicy(), vesselContacts())

	res := f.svc.Initiate(context.Background(), "alert-1", false)
	if res.Error == "" || !strings.Contains(res.Error, "acknowledged") {
		t.Fatalf("Initiate on acknowledged alert = %+v", res)
	}
}

func TestInitiateSurfacesMissingPolicy(t *testing.T) {
	f := newServiceFixture(t, testAlert(), nil, vesselContacts())

	res := f.svc.Initiate(context.Background(), "alert-1", false)
	if res.Error == "" || !strings.Contains(res.Error, "policy") {
		t.Fatalf("Initiate without policy = %+v", res)
	}
	alert, _ := f.alerts.GetAlert(context.Background(), "alert-1")
	if alert.EscalationStarted {
		t.Fatal("escalation started despite missing policy")
	}
}

func TestInitiateDryRunRecordsWithoutSending(t *testing.T) {
	f := newServiceFixture(t, testAlert(), testPolicy(), vesselContacts())
	ctx := context.Background()

	res := f.svc.Initiate(ctx, "alert-1", true)
	if res.Error != "" {
		t.Fatalf("Initiate error: %s", res.Error)
	}
	if res.NotificationsSent != 0 {
		t.Fatalf("dry run sent = %d, want 0", res.NotificationsSent)
	}
	if len(f.sms.sends) != 0 {
		t.Fatalf("dry run reached provider: %v", f.sms.sends)
	}
	rows, _ := f.attempts.ListAttempts(ctx, "alert-1")
	if len(rows) != 1 || rows[0].Status != models.AttemptDryRun {
		t.Fatalf("attempt rows = %+v, want one dry_run row", rows)
	}
	// Dry runs still walk the step chain.
	if len(f.scheduler.advances) != 1 {
		t.Fatalf("advances = %d, want 1", len(f.scheduler.advances))
	}
}

func TestAdvanceExecutesNextStep(t *testing.T) {
	f := newServiceFixture(t, testAlert(), testPolicy(), vesselContacts())
	ctx := context.Background()

	f.svc.Initiate(ctx, "alert-1", false)
	f.now = f.now.Add(15 * time.Minute)

	res := f.svc.EscalateToNextStep(ctx, "alert-1")
	if res.Error != "" {
		t.Fatalf("advance error: %s", res.Error)
	}
	if !res.Success || res.StepExecuted != 2 || res.Completed {
		t.Fatalf("advance result = %+v", res)
	}

	// Step 2 is voice+email to the harbor master.
	if len(f.voice.sends) != 1 || f.voice.sends[0] != "+81900000002" {
		t.Fatalf("voice sends = %v", f.voice.sends)
	}
	if len(f.email.sends) != 1 || f.email.sends[0] != "harbor@example.org" {
		t.Fatalf("email sends = %v", f.email.sends)
	}

	alert, _ := f.alerts.GetAlert(ctx, "alert-1")
	if alert.EscalationStep != 2 {
		t.Fatalf("alert step = %d, want 2", alert.EscalationStep)
	}
}

func TestAdvanceAfterAcknowledgmentCompletesWithoutSending(t *testing.T) {
	f := newServiceFixture(t, testAlert(), testPolicy(), vesselContacts())
	ctx := context.Background()

	f.svc.Initiate(ctx, "alert-1", false)
	sendsAfterStep1 := len(f.sms.sends)

	ok, err := f.svc.Acknowledge(ctx, "alert-1")
	if err != nil || !ok {
		t.Fatalf("Acknowledge = %v, %v", ok, err)
	}

	// The already-scheduled advance fires, sees the ack, and completes.
	res := f.svc.EscalateToNextStep(ctx, "alert-1")
	if res.Error != "" {
		t.Fatalf("advance error: %s", res.Error)
	}
	if !res.Completed {
		t.Fatalf("advance result = %+v, want completed", res)
	}
	if len(f.sms.sends) != sendsAfterStep1 || len(f.voice.sends) != 0 || len(f.email.sends) != 0 {
		t.Fatal("acknowledged advance still sent notifications")
	}

	alert, _ := f.alerts.GetAlert(ctx, "alert-1")
	if !alert.EscalationComplete {
		t.Fatal("escalation not marked complete after ack")
	}
}

func TestAdvancePastLastStepCompletes(t *testing.T) {
	f := newServiceFixture(t, testAlert(), testPolicy(), vesselContacts())
	ctx := context.Background()

	f.svc.Initiate(ctx, "alert-1", false)
	f.svc.EscalateToNextStep(ctx, "alert-1")

	// Policy has two steps; the third advance exhausts it.
	res := f.svc.EscalateToNextStep(ctx, "alert-1")
	if res.Error != "" {
		t.Fatalf("advance error: %s", res.Error)
	}
	if !res.Completed {
		t.Fatalf("advance result = %+v, want completed", res)
	}
	alert, _ := f.alerts.GetAlert(ctx, "alert-1")
	if !alert.EscalationComplete {
		t.Fatal("escalation not marked complete after policy exhaustion")
	}

	// Further advances on a completed escalation are no-ops.
	res = f.svc.EscalateToNextStep(ctx, "alert-1")
	if !res.Success || !res.Completed {
		t.Fatalf("advance on completed escalation = %+v", res)
	}
}

func TestHandleAdvanceJobIgnoresStaleStep(t *testing.T) {
	f := newServiceFixture(t, testAlert(), testPolicy(), vesselContacts())
	ctx := context.Background()

	f.svc.Initiate(ctx, "alert-1", false)
	f.svc.EscalateToNextStep(ctx, "alert-1") // now at step 2

	// A duplicate advance expecting step 1 is stale and must not re-fire
	// step 2's fan-out.
	voiceBefore := len(f.voice.sends)
	if err := f.svc.HandleAdvanceJob(ctx, queue.AdvancePayload{AlertID: "alert-1", ExpectStep: 1}); err != nil {
		t.Fatalf("stale advance job = %v, want nil", err)
	}
	if len(f.voice.sends) != voiceBefore {
		t.Fatal("stale advance re-executed a step")
	}

	alert, _ := f.alerts.GetAlert(ctx, "alert-1")
	if alert.EscalationStep != 2 {
		t.Fatalf("alert step = %d, want 2", alert.EscalationStep)
	}
}

func TestEscalationAdvancesDespiteUndeliverableStep(t *testing.T) {
	// A step whose only matched contact lacks the step's channel produces
	// zero attempts but still schedules the next advance. Delivery outcomes
	// never drive advancement.
	policy := &models.EscalationPolicy{
		ID:     "policy-1",
		Name:   "vessel-default",
		Status: "active",
		Steps: []models.EscalationStep{
			{StepNumber: 1, WaitMinutes: 0, Channels: []models.ChannelKind{models.ChannelEmail}, ContactRoles: []string{"captain"}},
			{StepNumber: 2, WaitMinutes: 10, Channels: []models.ChannelKind{models.ChannelSMS}, ContactRoles: []string{"operator"}},
		},
	}
	contacts := []models.Contact{
		{ID: "c1", Name: "Captain", Role: "captain", SubjectID: "vessel-7", Phone: "+81900000001", Active: true}, // no email
		{ID: "c2", Name: "Operator", Role: "operator", SubjectID: "vessel-7", Phone: "+81900000002", Active: true},
	}
	f := newServiceFixture(t, testAlert(), policy, contacts)
	ctx := context.Background()

	res := f.svc.Initiate(ctx, "alert-1", false)
	if res.Error != "" {
		t.Fatalf("Initiate error: %s", res.Error)
	}
	if res.NotificationsSent != 0 {
		t.Fatalf("step 1 sent = %d, want 0", res.NotificationsSent)
	}
	if len(f.scheduler.advances) != 1 {
		t.Fatalf("advances after step 1 = %d, want 1", len(f.scheduler.advances))
	}
	if want := f.now.Add(10 * time.Minute); !f.scheduler.advances[0].RunAt.Equal(want) {
		t.Fatalf("step 2 run_at = %s, want %s", f.scheduler.advances[0].RunAt, want)
	}

	adv := f.svc.EscalateToNextStep(ctx, "alert-1")
	if adv.Error != "" || adv.StepExecuted != 2 {
		t.Fatalf("advance result = %+v", adv)
	}
	if len(f.sms.sends) != 1 {
		t.Fatalf("step 2 sms sends = %v, want 1", f.sms.sends)
	}
}

func TestContactLookupFailureDoesNotHaltChain(t *testing.T) {
	f := newServiceFixture(t, testAlert(), testPolicy(), nil)
	f.svc.contacts = &fakeContactStore{failList: true}
	ctx := context.Background()

	res := f.svc.Initiate(ctx, "alert-1", false)
	if res.Error != "" {
		t.Fatalf("Initiate error: %s", res.Error)
	}
	// Nothing sent, but the advance to step 2 is still on the books.
	if res.NotificationsSent != 0 {
		t.Fatalf("sent = %d, want 0", res.NotificationsSent)
	}
	if len(f.scheduler.advances) != 1 {
		t.Fatalf("advances = %d, want 1", len(f.scheduler.advances))
	}
}

func TestAcknowledgeIsIdempotent(t *testing.T) {
	f := newServiceFixture(t, testAlert(), testPolicy(), vesselContacts())
	ctx := context.Background()

	ok, err := f.svc.Acknowledge(ctx, "alert-1")
	if err != nil || !ok {
		t.Fatalf("first Acknowledge = %v, %v", ok, err)
	}
	ok, err = f.svc.Acknowledge(ctx, "alert-1")
	if err != nil {
		t.Fatalf("second Acknowledge error: %v", err)
	}
	if ok {
		t.Fatal("second Acknowledge reported a state change")
	}

	acked, err := f.svc.CheckAcknowledgment(ctx, "alert-1")
	if err != nil || !acked {
		t.Fatalf("CheckAcknowledgment = %v, %v", acked, err)
	}
}
