// Package fabric adapts a chaincode stub to the domain ledger contract. The
// peer executes and validates the transaction, so RunInTransaction only binds
// the stub; read-set conflicts surface as MVCC failures at commit time.
package fabric

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-protos-go/ledger/queryresult"

	"pharmanet/internal/core"
	"pharmanet/pkg/domain"
)

var _ domain.Ledger = (*Ledger)(nil)

// Ledger wraps the stub of one chaincode invocation.
type Ledger struct {
	stub shim.ChaincodeStubInterface
}

// New binds a ledger to stub.
func New(stub shim.ChaincodeStubInterface) *Ledger {
	return &Ledger{stub: stub}
}

// RunInTransaction implements domain.Ledger.
func (l *Ledger) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := l.bind(false)
	if err != nil {
		return err
	}
	return fn(tx)
}

// View implements domain.Ledger.
func (l *Ledger) View(ctx context.Context, fn func(domain.Transaction) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := l.bind(true)
	if err != nil {
		return err
	}
	return fn(tx)
}

func (l *Ledger) bind(readOnly bool) (*transaction, error) {
	ts, err := l.stub.GetTxTimestamp()
	if err != nil {
		return nil, fmt.Errorf("read tx timestamp: %w", err)
	}
	var at time.Time
	if ts != nil {
		at = ts.AsTime().UTC()
	}
	return &transaction{stub: l.stub, ts: at, readOnly: readOnly}, nil
}

// ErrReadOnly is returned when a query attempts to write.
var ErrReadOnly = errors.New("fabric ledger: write in read-only transaction")

type transaction struct {
	stub     shim.ChaincodeStubInterface
	ts       time.Time
	readOnly bool
}

func (tx *transaction) TxID() string         { return tx.stub.GetTxID() }
func (tx *transaction) Timestamp() time.Time { return tx.ts }

func (tx *transaction) GetState(key string) ([]byte, error) {
	return tx.stub.GetState(key)
}

func (tx *transaction) PutState(key string, value []byte) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	return tx.stub.PutState(key, value)
}

func (tx *transaction) GetStateByPartialCompositeKey(namespace string, attributes []string) (domain.StateIterator, error) {
	it, err := tx.stub.GetStateByPartialCompositeKey(namespace, attributes)
	if err != nil {
		return nil, err
	}
	return stateIterator{it}, nil
}

func (tx *transaction) GetHistoryForKey(key string) (domain.HistoryIterator, error) {
	it, err := tx.stub.GetHistoryForKey(key)
	if err != nil {
		return nil, err
	}
	return historyIterator{it}, nil
}

type stateIterator struct {
	shim.StateQueryIteratorInterface
}

func (it stateIterator) Next() (domain.KV, error) {
	kv, err := it.StateQueryIteratorInterface.Next()
	if err != nil {
		return domain.KV{}, err
	}
	return toKV(kv), nil
}

type historyIterator struct {
	shim.HistoryQueryIteratorInterface
}

func (it historyIterator) Next() (domain.KeyModification, error) {
	mod, err := it.HistoryQueryIteratorInterface.Next()
	if err != nil {
		return domain.KeyModification{}, err
	}
	return toKeyModification(mod), nil
}

func toKV(kv *queryresult.KV) domain.KV {
	if kv == nil {
		return domain.KV{}
	}
	return domain.KV{Key: kv.GetKey(), Value: kv.GetValue()}
}

func toKeyModification(mod *queryresult.KeyModification) domain.KeyModification {
	if mod == nil {
		return domain.KeyModification{}
	}
	out := domain.KeyModification{TxID: mod.GetTxId(), Value: mod.GetValue(), IsDelete: mod.GetIsDelete()}
	if ts := mod.GetTimestamp(); ts != nil {
		out.Timestamp = ts.AsTime().UTC()
	}
	return out
}

// EventPublisher emits committed domain events as chaincode events. Fabric
// keeps one event per transaction, so the last published event wins.
type EventPublisher struct {
	stub shim.ChaincodeStubInterface
}

// NewEventPublisher binds a publisher to stub.
func NewEventPublisher(stub shim.ChaincodeStubInterface) *EventPublisher {
	return &EventPublisher{stub: stub}
}

// Publish implements core.EventPublisher.
func (p *EventPublisher) Publish(_ context.Context, event core.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.Name, err)
	}
	return p.stub.SetEvent(event.Name, payload)
}
