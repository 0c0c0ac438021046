package core

import (
	"context"
	"fmt"

	"pharmanet/pkg/domain"
)

// CompanyIndex resolves partially known composite keys to ledger records.
// Implementations must read every returned record through tx so the result
// participates in the transaction's conflict detection.
type CompanyIndex interface {
	ResolveByPrefix(ctx context.Context, tx domain.Transaction, namespace string, attributes ...string) ([]domain.KV, error)
	// Observe is called with the key of every record committed under an
	// indexed namespace.
	Observe(ctx context.Context, key string) error
}

// ScanIndex resolves prefixes with ledger range scans.
type ScanIndex struct{}

// ResolveByPrefix implements CompanyIndex.
func (ScanIndex) ResolveByPrefix(_ context.Context, tx domain.Transaction, namespace string, attributes ...string) ([]domain.KV, error) {
	it, err := tx.GetStateByPartialCompositeKey(namespace, attributes)
	if err != nil {
		return nil, asInvalidKey(fmt.Errorf("scan %s: %w", namespace, err))
	}
	defer func() { _ = it.Close() }()
	var out []domain.KV
	for it.HasNext() {
		kv, err := it.Next()
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", namespace, err)
		}
		out = append(out, kv)
	}
	return out, nil
}

// Observe implements CompanyIndex; scans need no maintenance.
func (ScanIndex) Observe(context.Context, string) error { return nil }
