package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pharmanet/pkg/domain"
	"pharmanet/pkg/keyspace"
)

// CompanyKey derives the ledger key of a company.
func CompanyKey(crn, name string) (string, error) {
	return encodeKey(domain.NamespaceCompany, crn, name)
}

// DrugKey derives the ledger key of a drug unit.
func DrugKey(name, serialNo string) (string, error) {
	return encodeKey(domain.NamespaceDrug, name, serialNo)
}

// PurchaseOrderKey derives the ledger key of a buyer's order for a drug.
func PurchaseOrderKey(buyerCRN, drugName string) (string, error) {
	return encodeKey(domain.NamespacePurchaseOrder, buyerCRN, drugName)
}

// ShipmentKey derives the ledger key of a buyer's shipment for a drug.
func ShipmentKey(buyerCRN, drugName string) (string, error) {
	return encodeKey(domain.NamespaceShipment, buyerCRN, drugName)
}

func encodeKey(namespace string, attrs ...string) (string, error) {
	key, err := keyspace.Encode(namespace, attrs...)
	if err != nil {
		return "", &domain.Error{Kind: domain.KindInvalidArgument, Message: "invalid key attribute", Err: err}
	}
	return key, nil
}

// AssetStore is the typed view of one ledger transaction. Reads decode JSON
// records; writes are staged and applied together by Apply once the rules
// engine has accepted them.
type AssetStore struct {
	tx      domain.Transaction
	rules   *domain.RulesEngine
	index   CompanyIndex
	pending []domain.Change
	staged  map[string]struct{}
}

// NewAssetStore binds an asset store to a ledger transaction.
func NewAssetStore(tx domain.Transaction, rules *domain.RulesEngine, index CompanyIndex) *AssetStore {
	if rules == nil {
		rules = domain.NewRulesEngine()
	}
	if index == nil {
		index = ScanIndex{}
	}
	return &AssetStore{tx: tx, rules: rules, index: index, staged: make(map[string]struct{})}
}

// TxID returns the id of the underlying transaction.
func (a *AssetStore) TxID() string { return a.tx.TxID() }

// Timestamp returns the transaction timestamp.
func (a *AssetStore) Timestamp() time.Time { return a.tx.Timestamp() }

// Company loads a company by key.
func (a *AssetStore) Company(key string) (domain.Company, bool, error) {
	return getRecord[domain.Company](a.tx, key)
}

// Drug loads a drug unit by key.
func (a *AssetStore) Drug(key string) (domain.Drug, bool, error) {
	return getRecord[domain.Drug](a.tx, key)
}

// PurchaseOrder loads a purchase order by key.
func (a *AssetStore) PurchaseOrder(key string) (domain.PurchaseOrder, bool, error) {
	return getRecord[domain.PurchaseOrder](a.tx, key)
}

// Shipment loads a shipment by key.
func (a *AssetStore) Shipment(key string) (domain.Shipment, bool, error) {
	return getRecord[domain.Shipment](a.tx, key)
}

// FindCompany implements domain.RuleView.
func (a *AssetStore) FindCompany(key string) (domain.Company, bool, error) { return a.Company(key) }

// FindDrug implements domain.RuleView.
func (a *AssetStore) FindDrug(key string) (domain.Drug, bool, error) { return a.Drug(key) }

// CompaniesByCRN resolves companies through the configured index.
func (a *AssetStore) CompaniesByCRN(ctx context.Context, crn string) ([]domain.Company, error) {
	kvs, err := a.index.ResolveByPrefix(ctx, a.tx, domain.NamespaceCompany, crn)
	if err != nil {
		return nil, err
	}
	return decodeCompanies(kvs)
}

// ScanCompaniesByCRN resolves companies with a ledger range scan, which joins
// the transaction's range-read set. Uniqueness checks must use it.
func (a *AssetStore) ScanCompaniesByCRN(ctx context.Context, crn string) ([]domain.Company, error) {
	kvs, err := ScanIndex{}.ResolveByPrefix(ctx, a.tx, domain.NamespaceCompany, crn)
	if err != nil {
		return nil, err
	}
	return decodeCompanies(kvs)
}

// History opens the version iterator of key.
func (a *AssetStore) History(key string) (domain.HistoryIterator, error) {
	it, err := a.tx.GetHistoryForKey(key)
	if err != nil {
		return nil, fmt.Errorf("history for %s: %w", key, err)
	}
	return it, nil
}

// Stage queues a write. Every key may be staged once per transaction; the
// caller must have read the key in this transaction before staging it.
func (a *AssetStore) Stage(entity domain.EntityType, action domain.Action, key string, before, after any) error {
	if _, dup := a.staged[key]; dup {
		return domain.InvariantViolation(entity, key, "%s %s staged twice in one transaction", entity, key)
	}
	a.staged[key] = struct{}{}
	a.pending = append(a.pending, domain.Change{Entity: entity, Action: action, Key: key, Before: before, After: after})
	return nil
}

// Pending returns the staged changes.
func (a *AssetStore) Pending() []domain.Change {
	out := make([]domain.Change, len(a.pending))
	copy(out, a.pending)
	return out
}

// Apply evaluates the rules over the staged batch and writes it. A blocking
// violation writes nothing.
func (a *AssetStore) Apply(ctx context.Context) (domain.Result, error) {
	if len(a.pending) == 0 {
		return domain.Result{}, nil
	}
	res, err := a.rules.Evaluate(ctx, a, a.Pending())
	if err != nil {
		return domain.Result{}, fmt.Errorf("evaluate rules: %w", err)
	}
	if res.HasBlocking() {
		return res, domain.RuleViolationError{Result: res}
	}
	for _, change := range a.pending {
		payload, err := json.Marshal(change.After)
		if err != nil {
			return res, fmt.Errorf("encode %s %s: %w", change.Entity, change.Key, err)
		}
		if err := a.tx.PutState(change.Key, payload); err != nil {
			return res, fmt.Errorf("put %s: %w", change.Entity, err)
		}
	}
	a.pending = nil
	return res, nil
}

func getRecord[T any](tx domain.Transaction, key string) (T, bool, error) {
	var out T
	raw, err := tx.GetState(key)
	if err != nil {
		return out, false, fmt.Errorf("get state: %w", err)
	}
	if len(raw) == 0 {
		return out, false, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false, fmt.Errorf("decode %T: %w", out, err)
	}
	return out, true, nil
}

func decodeCompanies(kvs []domain.KV) ([]domain.Company, error) {
	out := make([]domain.Company, 0, len(kvs))
	for _, kv := range kvs {
		var company domain.Company
		if err := json.Unmarshal(kv.Value, &company); err != nil {
			return nil, fmt.Errorf("decode company %q: %w", kv.Key, err)
		}
		out = append(out, company)
	}
	return out, nil
}

// asInvalidKey maps keyspace encoding errors raised by a ledger to InvalidArgument.
func asInvalidKey(err error) error {
	if errors.Is(err, keyspace.ErrInvalidAttribute) && domain.KindOf(err) == "" {
		return &domain.Error{Kind: domain.KindInvalidArgument, Message: "invalid key attribute", Err: err}
	}
	return err
}
