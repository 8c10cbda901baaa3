package core

import (
	"context"
	"time"
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now returns the wrapped function's time.
func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// MetricsRecorder receives one observation per service operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan ends a single traced operation.
type TraceSpan interface {
	End(err error)
}

// AuditStatus classifies an audit entry outcome.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry captures one service operation for the audit trail.
type AuditEntry struct {
	Operation  string      `json:"operation"`
	Status     AuditStatus `json:"status"`
	EntityID   string      `json:"entity_id,omitempty"`
	ActorID    string      `json:"actor_id,omitempty"`
	Error      string      `json:"error,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// AuditRecorder receives audit entries emitted by the service.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}
