package models

import "fmt"

// EscalationPolicy is an operator-authored, ordered plan of who to notify,
// via which channels, after how long. Steps are stored as JSONB and validated
// whenever a policy is read; malformed policies never reach the escalation
// logic as untyped maps.
type EscalationPolicy struct {
	ID     string           `json:"id"`
	Name   string           `json:"name"`
	Status string           `json:"status"`
	Steps  []EscalationStep `json:"steps"`
}

// EscalationStep is one rung of a policy.
type EscalationStep struct {
	StepNumber     int           `json:"step_number"` // 1-based, contiguous
	WaitMinutes    int           `json:"wait_minutes"`
	Channels       []ChannelKind `json:"channels"`
	ContactRoles   []string      `json:"contact_roles"`
	TimeoutMinutes int           `json:"timeout_minutes,omitempty"`
}

// Validate rejects malformed policies at load time.
func (p *EscalationPolicy) Validate() error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("policy %s has no steps", p.ID)
	}
	for i, step := range p.Steps {
		if step.StepNumber != i+1 {
			return fmt.Errorf("policy %s: step %d has number %d, want %d", p.ID, i, step.StepNumber, i+1)
		}
		if step.WaitMinutes < 0 {
			return fmt.Errorf("policy %s step %d: negative wait_minutes", p.ID, step.StepNumber)
		}
		if len(step.Channels) == 0 {
			return fmt.Errorf("policy %s step %d: no channels", p.ID, step.StepNumber)
		}
		for _, ch := range step.Channels {
			if !ch.Valid() {
				return fmt.Errorf("policy %s step %d: unknown channel %q", p.ID, step.StepNumber, ch)
			}
		}
		if len(step.ContactRoles) == 0 {
			return fmt.Errorf("policy %s step %d: no contact roles", p.ID, step.StepNumber)
		}
	}
	return nil
}

// Step returns the step with the given 1-based number, or nil.
func (p *EscalationPolicy) Step(number int) *EscalationStep {
	if number < 1 || number > len(p.Steps) {
		return nil
	}
	return &p.Steps[number-1]
}
