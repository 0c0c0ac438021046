package core

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"pharmanet/internal/infra/ledger/memory"
	"pharmanet/pkg/domain"
)

// Operation names used for access control, metrics, tracing and audit.
const (
	OpRegisterCompany     = "register_company"
	OpMintDrug            = "mint_drug"
	OpCreatePurchaseOrder = "create_purchase_order"
	OpCreateShipment      = "create_shipment"
	OpDeliverShipment     = "deliver_shipment"
	OpRetailDrug          = "retail_drug"
	OpResolveCompany      = "resolve_company"
	OpDrugState           = "drug_state"
	OpDrugHistory         = "drug_history"
	OpGetPurchaseOrder    = "get_purchase_order"
	OpGetShipment         = "get_shipment"
)

type auditTarget struct {
	entity domain.EntityType
	action domain.Action
}

var auditedOperations = map[string]auditTarget{
	OpRegisterCompany:     {domain.EntityCompany, domain.ActionCreate},
	OpMintDrug:            {domain.EntityDrug, domain.ActionCreate},
	OpCreatePurchaseOrder: {domain.EntityPurchaseOrder, domain.ActionCreate},
	OpCreateShipment:      {domain.EntityShipment, domain.ActionCreate},
	OpDeliverShipment:     {domain.EntityShipment, domain.ActionUpdate},
	OpRetailDrug:          {domain.EntityDrug, domain.ActionUpdate},
}

// Service runs the supply-chain operations against a ledger. Every mutating
// operation is authorized, executed in one ledger transaction and observed
// through the configured logger, metrics, tracer and audit sinks.
type Service struct {
	ledger  domain.Ledger
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

// NewService constructs a service backed by the supplied ledger.
func NewService(ledger domain.Ledger, opts ...ServiceOption) *Service {
	cfg := defaultServiceOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &Service{
		ledger:  ledger,
		clock:   cfg.clock,
		logger:  cfg.logger,
		audit:   cfg.audit,
		metrics: cfg.metrics,
		tracer:  cfg.tracer,
		access:  cfg.access,
		rules:   cfg.rules,
		index:   cfg.index,
		events:  cfg.events,
	}
}

// NewInMemoryService creates a service over a fresh in-memory ledger.
func NewInMemoryService(opts ...ServiceOption) *Service {
	return NewService(memory.New(), opts...)
}

// Ledger returns the underlying ledger.
func (s *Service) Ledger() domain.Ledger { return s.ledger }

// RulesEngine returns the active rules engine.
func (s *Service) RulesEngine() *domain.RulesEngine { return s.rules }

// mutation is what an engine hands back after staging its writes.
type mutation struct {
	entityID string
	event    string
	payload  any
}

type runInfo struct {
	entityID string
	caller   string
	txID     string
}

// mutate authorizes caller, runs fn in a ledger transaction, applies the
// staged batch and publishes the resulting event once committed.
func (s *Service) mutate(ctx context.Context, op, caller string, fn func(ctx context.Context, assets *AssetStore) (mutation, error)) (domain.Result, error) {
	var res domain.Result
	err := s.run(ctx, op, caller, func(ctx context.Context, info *runInfo) error {
		if err := s.access.Check(op, caller); err != nil {
			return err
		}
		var (
			m  mutation
			ts time.Time
		)
		err := s.ledger.RunInTransaction(ctx, func(tx domain.Transaction) error {
			assets := NewAssetStore(tx, s.rules, s.index)
			info.txID = tx.TxID()
			ts = tx.Timestamp()
			var err error
			m, err = fn(ctx, assets)
			if err != nil {
				return err
			}
			res, err = assets.Apply(ctx)
			return err
		})
		if err != nil {
			return asInvalidKey(err)
		}
		info.entityID = m.entityID
		s.afterCommit(ctx, op, caller, info.txID, ts, m)
		return nil
	})
	return res, err
}

// query runs fn against a read-only snapshot.
func (s *Service) query(ctx context.Context, op string, fn func(ctx context.Context, assets *AssetStore) error) error {
	return s.run(ctx, op, "", func(ctx context.Context, info *runInfo) error {
		err := s.ledger.View(ctx, func(tx domain.Transaction) error {
			info.txID = tx.TxID()
			return fn(ctx, NewAssetStore(tx, s.rules, s.index))
		})
		return asInvalidKey(err)
	})
}

func (s *Service) afterCommit(ctx context.Context, op, caller, txID string, ts time.Time, m mutation) {
	if op == OpRegisterCompany {
		if err := s.index.Observe(ctx, m.entityID); err != nil {
			s.logger.Warn("company index update failed", "operation", op, "key", domain.PrintableKey(m.entityID), "error", err)
		}
	}
	if m.event == "" {
		return
	}
	payload, err := json.Marshal(m.payload)
	if err != nil {
		s.logger.Warn("encode event payload failed", "event", m.event, "error", err)
		return
	}
	event := Event{Name: m.event, Key: m.entityID, TxID: txID, Caller: caller, Timestamp: ts, Payload: payload}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("publish event failed", "event", m.event, "tx_id", txID, "error", err)
	}
}

func (s *Service) run(ctx context.Context, op, caller string, fn func(ctx context.Context, info *runInfo) error) error {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	info := &runInfo{caller: caller}
	err := fn(ctx, info)
	duration := time.Since(started)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)

	if err != nil {
		s.recordAuditError(ctx, op, info, duration, err)
		kind := domain.KindOf(err)
		if kind == "" {
			s.logger.Error("operation failed", "operation", op, "caller", caller, "duration", duration, "error", err)
		} else {
			s.logger.Warn("operation rejected", "operation", op, "caller", caller, "kind", string(kind), "error", err)
		}
		return err
	}
	s.recordAuditSuccess(ctx, op, info, duration)
	s.logger.Debug("operation completed", "operation", op, "caller", caller, "tx_id", info.txID, "duration", duration)
	return nil
}

func (s *Service) recordAuditSuccess(ctx context.Context, op string, info *runInfo, duration time.Duration) {
	s.recordAudit(ctx, op, info, AuditStatusSuccess, duration, nil)
}

func (s *Service) recordAuditError(ctx context.Context, op string, info *runInfo, duration time.Duration, err error) {
	s.recordAudit(ctx, op, info, AuditStatusError, duration, err)
}

func (s *Service) recordAudit(ctx context.Context, op string, info *runInfo, status AuditStatus, duration time.Duration, err error) {
	target, ok := auditedOperations[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    target.entity,
		Action:    target.action,
		EntityID:  info.entityID,
		Caller:    info.caller,
		TxID:      info.txID,
		Status:    status,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

// IsRetryable reports whether err is a ledger conflict worth resubmitting.
func IsRetryable(err error) bool {
	return errors.Is(err, domain.ErrConcurrencyConflict)
}
