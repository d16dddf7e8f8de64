package telemetry

import (
	"context"
	"errors"
	"time"
)

// Outcome values carried on events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Event is an authentication lifecycle event, e.g. login_success or refresh_reuse.
type Event struct {
	Type      string            `json:"eventType"`
	UserID    string            `json:"userId,omitempty"`
	Device    string            `json:"device,omitempty"`
	Outcome   string            `json:"outcome"`
	Source    string            `json:"source"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// EventEmitter emits auth events (e.g. to OTel Logs or Kafka). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}

// MultiEmitter fans an event out to every emitter and joins their errors.
type MultiEmitter []EventEmitter

// Emit implements EventEmitter.
func (m MultiEmitter) Emit(ctx context.Context, event *Event) error {
	var errs []error
	for _, e := range m {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
