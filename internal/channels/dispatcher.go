package channels

import (
	"context"
	"fmt"

	"escalation-service/internal/breaker"
	"escalation-service/internal/logging"
	"escalation-service/internal/models"
)

// Provider is one channel transport adapter. Given rendered content and a
// destination address it returns the provider's message identifier.
type Provider interface {
	Send(ctx context.Context, destination string, msg models.Message) (string, error)
	// DependencyName names the external dependency for breaker accounting.
	DependencyName() string
}

// Dispatcher sends one message to one contact over one channel, through the
// circuit breaker guarding that channel's provider.
type Dispatcher struct {
	providers map[models.ChannelKind]Provider
	breakers  *breaker.Registry
	logger    *logging.Logger
}

// NewDispatcher wires providers to their breaker-guarded dispatch path.
func NewDispatcher(providers map[models.ChannelKind]Provider, breakers *breaker.Registry, logger *logging.Logger) *Dispatcher {
	return &Dispatcher{providers: providers, breakers: breakers, logger: logger}
}

// Dispatch resolves the contact's destination for kind and sends msg.
// A circuit-open rejection comes back as a *breaker.OpenError so callers can
// tell "provider is down" apart from "this message failed".
func (d *Dispatcher) Dispatch(ctx context.Context, contact *models.Contact, kind models.ChannelKind, msg models.Message) (string, error) {
	provider, ok := d.providers[kind]
	if !ok {
		return "", fmt.Errorf("no provider registered for channel %s", kind)
	}
	dest, ok := contact.DestinationFor(kind)
	if !ok {
		return "", fmt.Errorf("contact %s has no destination for channel %s", contact.ID, kind)
	}

	var providerID string
	err := d.breakers.Execute(ctx, provider.DependencyName(), func() error {
		var sendErr error
		providerID, sendErr = provider.Send(ctx, dest, msg)
		return sendErr
	})
	if err != nil {
		d.logger.Warnf("Dispatch to %s via %s failed: %v", contact.Name, kind, err)
		return "", err
	}
	d.logger.Debugf("Dispatched to %s via %s (provider id %s)", contact.Name, kind, providerID)
	return providerID, nil
}

// HasProvider reports whether a provider is registered for kind.
func (d *Dispatcher) HasProvider(kind models.ChannelKind) bool {
	_, ok := d.providers[kind]
	return ok
}
