package core

import (
	"context"
	"time"

	"pharmanet/pkg/domain"
)

// Logger is the structured logging surface used by the service. Arguments are
// alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Clock supplies wall-clock time for audit timestamps.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// AuditStatus captures the outcome of an audited operation.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one mutating operation for compliance trails.
type AuditEntry struct {
	Operation string
	Entity    domain.EntityType
	Action    domain.Action
	EntityID  string
	Caller    string
	TxID      string
	Status    AuditStatus
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// AuditRecorder receives audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// MetricsRecorder observes operation outcomes.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended with the operation error, if any.
type TraceSpan interface {
	End(err error)
}

type noopAudit struct{}

func (noopAudit) Record(context.Context, AuditEntry) {}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// ServiceOption configures optional collaborators of a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	clock   Clock
	logger  Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
	access  AccessPolicy
	rules   *domain.RulesEngine
	index   CompanyIndex
	events  EventPublisher
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		clock:   ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:  noopLogger{},
		audit:   noopAudit{},
		metrics: noopMetrics{},
		tracer:  noopTracer{},
		access:  DefaultAccessPolicy(),
		rules:   NewDefaultRulesEngine(),
		index:   ScanIndex{},
		events:  noopPublisher{},
	}
}

// WithClock overrides the audit clock.
func WithClock(clock Clock) ServiceOption {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithAuditRecorder sets the audit sink.
func WithAuditRecorder(recorder AuditRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.audit = recorder
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(recorder MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.metrics = recorder
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) ServiceOption {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithAccessPolicy replaces the operation to organization mapping.
func WithAccessPolicy(policy AccessPolicy) ServiceOption {
	return func(o *serviceOptions) {
		if policy != nil {
			o.access = policy
		}
	}
}

// WithRulesEngine replaces the default rules engine.
func WithRulesEngine(engine *domain.RulesEngine) ServiceOption {
	return func(o *serviceOptions) {
		if engine != nil {
			o.rules = engine
		}
	}
}

// WithCompanyIndex substitutes the company resolution index.
func WithCompanyIndex(index CompanyIndex) ServiceOption {
	return func(o *serviceOptions) {
		if index != nil {
			o.index = index
		}
	}
}

// WithEventPublisher sets where committed domain events are sent.
func WithEventPublisher(publisher EventPublisher) ServiceOption {
	return func(o *serviceOptions) {
		if publisher != nil {
			o.events = publisher
		}
	}
}
