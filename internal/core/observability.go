package core

import (
	"context"
	"time"

	"handoff/pkg/domain"
)

// Logger is the structured logging surface the service writes to.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// AuditStatus reports the outcome of an audited operation.
type AuditStatus string

const (
	// AuditStatusSuccess marks a committed operation.
	AuditStatusSuccess AuditStatus = "success"
	// AuditStatusError marks an aborted operation.
	AuditStatusError AuditStatus = "error"
)

// AuditEntry captures one registry mutation attempt.
type AuditEntry struct {
	Operation string            `json:"operation"`
	Entity    domain.EntityType `json:"entity"`
	Action    domain.Action     `json:"action"`
	EntityID  string            `json:"entity_id,omitempty"`
	Caller    domain.Principal  `json:"caller"`
	Status    AuditStatus       `json:"status"`
	Error     string            `json:"error,omitempty"`
	Duration  time.Duration     `json:"duration"`
	Timestamp time.Time         `json:"timestamp"`
}

// AuditRecorder receives audit entries for every mutating operation.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// MetricsRecorder observes operation outcomes and latency.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts a span around a service operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is finished with the operation's error, if any.
type TraceSpan interface {
	End(err error)
}

// Clock supplies timestamps for audit entries.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

type auditTarget struct {
	entity domain.EntityType
	action domain.Action
}

// auditTargets maps audited operations to the entity they touch.
var auditTargets = map[string]auditTarget{
	OpCreateResource:     {domain.EntityResource, domain.ActionCreate},
	OpLock:               {domain.EntityResource, domain.ActionUpdate},
	OpUnlock:             {domain.EntityResource, domain.ActionUpdate},
	OpApproveDelegate:    {domain.EntityResource, domain.ActionUpdate},
	OpApproveAllDelegate: {domain.EntityOperator, domain.ActionUpdate},
	OpTransfer:           {domain.EntityResource, domain.ActionUpdate},
	OpTransferUnchecked:  {domain.EntityResource, domain.ActionUpdate},
	OpWithdraw:           {domain.EntityTreasury, domain.ActionUpdate},
}

func (s *Service) recordAudit(ctx context.Context, op string, caller domain.Principal, entityID string, duration time.Duration, err error) {
	target, ok := auditTargets[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    target.entity,
		Action:    target.action,
		EntityID:  entityID,
		Caller:    caller,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.clock.Now().UTC(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}
