// Package redisindex keeps a Redis set per first key attribute so that a
// partial key lookup does not have to range-scan the ledger. The ledger stays
// authoritative: every indexed key is re-read through the transaction and
// stale members are skipped.
package redisindex

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-redis/redis/v8"

	"pharmanet/internal/core"
	"pharmanet/pkg/domain"
	"pharmanet/pkg/keyspace"
)

var _ core.CompanyIndex = (*Index)(nil)

// DefaultPrefix namespaces index sets inside a shared Redis database.
const DefaultPrefix = "pharmanet:idx"

// Options configures a Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Index resolves composite key prefixes through Redis sets.
type Index struct {
	client *redis.Client
	prefix string
	scan   core.ScanIndex
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, opts Options) (*Index, error) {
	client := redis.NewClient(&redis.Options{Addr: opts.Addr, Password: opts.Password, DB: opts.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return NewWithClient(client, opts.Prefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, prefix string) *Index {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Index{client: client, prefix: strings.TrimSuffix(prefix, ":")}
}

// Close closes the Redis client.
func (i *Index) Close() error { return i.client.Close() }

func (i *Index) setKey(namespace, attr string) string {
	return i.prefix + ":" + namespace + ":" + attr
}

// Observe adds a committed key to the set of its first attribute.
func (i *Index) Observe(ctx context.Context, key string) error {
	namespace, attrs, err := keyspace.Decode(key)
	if err != nil {
		return fmt.Errorf("index %q: %w", domain.PrintableKey(key), err)
	}
	if len(attrs) == 0 {
		return nil
	}
	return i.client.SAdd(ctx, i.setKey(namespace, attrs[0]), key).Err()
}

// ResolveByPrefix implements core.CompanyIndex. Lookups by anything other
// than exactly the first attribute, and cache misses, fall back to a ledger
// scan; a miss backfills the set.
func (i *Index) ResolveByPrefix(ctx context.Context, tx domain.Transaction, namespace string, attributes ...string) ([]domain.KV, error) {
	if len(attributes) != 1 {
		return i.scan.ResolveByPrefix(ctx, tx, namespace, attributes...)
	}
	members, err := i.client.SMembers(ctx, i.setKey(namespace, attributes[0])).Result()
	if err != nil {
		return nil, fmt.Errorf("redis index lookup: %w", err)
	}
	if len(members) == 0 {
		return i.scanAndBackfill(ctx, tx, namespace, attributes[0])
	}
	sort.Strings(members)
	out := make([]domain.KV, 0, len(members))
	for _, key := range members {
		value, err := tx.GetState(key)
		if err != nil {
			return nil, fmt.Errorf("read indexed key: %w", err)
		}
		if len(value) == 0 {
			continue
		}
		out = append(out, domain.KV{Key: key, Value: value})
	}
	return out, nil
}

func (i *Index) scanAndBackfill(ctx context.Context, tx domain.Transaction, namespace, attr string) ([]domain.KV, error) {
	kvs, err := i.scan.ResolveByPrefix(ctx, tx, namespace, attr)
	if err != nil || len(kvs) == 0 {
		return kvs, err
	}
	members := make([]any, 0, len(kvs))
	for _, kv := range kvs {
		members = append(members, kv.Key)
	}
	// A failed backfill only costs the next lookup another scan.
	_ = i.client.SAdd(ctx, i.setKey(namespace, attr), members...).Err()
	return kvs, nil
}
