package crisis

import "context"

// Notifier delivers alert events to the external notification service that
// feeds human crisis-response workflows.
type Notifier interface {
	Emit(ctx context.Context, event string, payload map[string]any) error
	Close() error
}

// NopNotifier is the default when no notification transport is configured.
type NopNotifier struct{}

func (NopNotifier) Emit(ctx context.Context, event string, payload map[string]any) error {
	return nil
}

func (NopNotifier) Close() error { return nil }
