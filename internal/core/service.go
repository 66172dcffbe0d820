// Package core implements the resource registry: identifier issuance, the
// ownership and lock registry, delegate approvals, the lock/transfer/acknowledge
// protocol and creation orchestration, all executed as serialized store
// transactions.
package core

import (
	"context"
	"time"

	"handoff/internal/blob"
	"handoff/internal/deploy"
	"handoff/internal/infra/persistence/memory"
	"handoff/internal/metadata"
	"handoff/internal/receiver"
	"handoff/pkg/domain"

	"github.com/holiman/uint256"
)

// Operation names used for tracing, metrics and audit entries.
const (
	OpCreateResource     = "create_resource"
	OpLock               = "lock"
	OpUnlock             = "unlock"
	OpApproveDelegate    = "approve_delegate"
	OpApproveAllDelegate = "approve_all_delegate"
	OpTransfer           = "transfer"
	OpTransferUnchecked  = "transfer_unchecked"
	OpWithdraw           = "withdraw"
)

// Service exposes the registry operations over a persistent store.
type Service struct {
	store       domain.PersistentStore
	engine      *domain.RulesEngine
	logger      Logger
	audit       AuditRecorder
	metrics     MetricsRecorder
	tracer      Tracer
	clock       Clock
	receivers   domain.ReceiverResolver
	deployer    domain.Deployer
	metadata    domain.MetadataStore
	fee         *domain.Amount
	admin       domain.Principal
	subscribers []EventSubscriber
}

// Option configures a Service.
type Option func(*Service)

// WithLogger routes service logs to logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAuditRecorder records an audit entry per mutating operation.
func WithAuditRecorder(recorder AuditRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.audit = recorder
		}
	}
}

// WithMetricsRecorder observes operation latency and outcome.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer wraps operations in spans.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithClock overrides the audit timestamp source.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithReceivers sets the resolver that identifies programmable recipients.
func WithReceivers(resolver domain.ReceiverResolver) Option {
	return func(s *Service) {
		if resolver != nil {
			s.receivers = resolver
		}
	}
}

// WithDeployer sets the deployment collaborator.
func WithDeployer(deployer domain.Deployer) Option {
	return func(s *Service) {
		if deployer != nil {
			s.deployer = deployer
		}
	}
}

// WithMetadataStore sets the metadata collaborator.
func WithMetadataStore(store domain.MetadataStore) Option {
	return func(s *Service) {
		if store != nil {
			s.metadata = store
		}
	}
}

// WithCreationFee sets the fixed fee CreateResource requires.
func WithCreationFee(fee *domain.Amount) Option {
	return func(s *Service) {
		if fee != nil {
			s.fee = new(uint256.Int).Set(fee)
		}
	}
}

// WithAdmin sets the principal allowed to withdraw collected fees.
func WithAdmin(admin domain.Principal) Option {
	return func(s *Service) { s.admin = admin }
}

// WithEventSubscriber adds a subscriber notified of committed events.
func WithEventSubscriber(sub EventSubscriber) Option {
	return func(s *Service) {
		if sub != nil {
			s.subscribers = append(s.subscribers, sub)
		}
	}
}

// NewService constructs a service backed by the supplied store. Collaborators
// default to a zero-anchored CREATE2 factory, an in-memory metadata store and
// an empty receiver directory.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:     store,
		logger:    noopLogger{},
		audit:     noopAuditRecorder{},
		metrics:   noopMetricsRecorder{},
		tracer:    noopTracer{},
		clock:     ClockFunc(func() time.Time { return time.Now().UTC() }),
		receivers: receiver.NewDirectory(),
		deployer:  deploy.NewFactory(domain.NullPrincipal),
		metadata:  metadata.New(blob.NewMemory()),
		fee:       new(uint256.Int),
	}
	if withEngine, ok := store.(interface{ RulesEngine() *domain.RulesEngine }); ok {
		s.engine = withEngine.RulesEngine()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service over a fresh in-memory store. A nil
// engine selects NewDefaultRulesEngine.
func NewInMemoryService(engine *domain.RulesEngine, opts ...Option) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying persistent store.
func (s *Service) Store() domain.PersistentStore { return s.store }

// RulesEngine returns the engine evaluated on every commit, if the store exposes one.
func (s *Service) RulesEngine() *domain.RulesEngine { return s.engine }

// CreationFee returns a copy of the fixed creation fee.
func (s *Service) CreationFee() *domain.Amount { return new(uint256.Int).Set(s.fee) }

// Admin returns the treasury administrator.
func (s *Service) Admin() domain.Principal { return s.admin }

// run wraps an operation with tracing, metrics, audit and logging. fn returns
// the identifier of the entity it touched for the audit trail.
func (s *Service) run(ctx context.Context, op string, caller domain.Principal, fn func(context.Context) (string, error)) error {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	entityID, err := fn(ctx)
	duration := time.Since(started)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)
	s.recordAudit(ctx, op, caller, entityID, duration, err)
	if err != nil {
		s.logger.Error("registry operation failed", "operation", op, "caller", caller.Hex(), "error", err)
		return err
	}
	s.logger.Debug("registry operation completed", "operation", op, "entity", entityID, "duration", duration)
	return nil
}

// mutate runs fn inside a store transaction behind the reentrancy check and
// publishes the captured events once the transaction commits.
func (s *Service) mutate(ctx context.Context, op string, caller domain.Principal, fn func(context.Context, domain.Transaction) (string, error)) error {
	return s.run(ctx, op, caller, func(ctx context.Context) (string, error) {
		if err := checkReentry(ctx); err != nil {
			return "", domain.Fail(op, domain.NoResource, err)
		}
		var entityID string
		_, events, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			entityID, err = fn(ctx, tx)
			return err
		})
		if err != nil {
			return entityID, err
		}
		s.publish(ctx, events)
		return entityID, nil
	})
}

// read evaluates fn against the pending state when called from inside an
// acceptance callback, and against committed state otherwise.
func (s *Service) read(ctx context.Context, fn func(domain.TransactionView) error) error {
	if view, ok := pendingView(ctx); ok {
		return fn(view)
	}
	return s.store.View(ctx, fn)
}
