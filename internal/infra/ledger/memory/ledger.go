// Package memory provides an in-process versioned key-value ledger with
// optimistic concurrency control. Persistent backends wrap it and persist the
// committed versions through commit hooks.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pharmanet/pkg/domain"
	"pharmanet/pkg/keyspace"
)

// Compile-time contract assertion ensuring the ledger satisfies the domain interface.
var _ domain.Ledger = (*Ledger)(nil)

// ErrReadOnly is returned when a View transaction attempts a write.
var ErrReadOnly = errors.New("memory ledger: write in read-only transaction")

// Record is one committed version of a key.
type Record struct {
	Seq       uint64    `json:"seq"`
	Key       string    `json:"key"`
	TxID      string    `json:"tx_id"`
	Timestamp time.Time `json:"timestamp"`
	Value     []byte    `json:"value"`
	IsDelete  bool      `json:"is_delete"`
}

// CommitHook observes the records of a commit before they become visible.
// A hook error aborts the commit.
type CommitHook func(ctx context.Context, records []Record) error

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the transaction timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithTxIDGenerator overrides transaction id generation.
func WithTxIDGenerator(fn func() string) Option {
	return func(l *Ledger) {
		if fn != nil {
			l.newTxID = fn
		}
	}
}

// WithCommitHook registers a hook invoked for every non-empty commit.
func WithCommitHook(hook CommitHook) Option {
	return func(l *Ledger) {
		if hook != nil {
			l.hooks = append(l.hooks, hook)
		}
	}
}

// Ledger is an in-memory multi-version store.
type Ledger struct {
	mu       sync.RWMutex
	versions map[string][]Record
	keys     []string
	seq      uint64
	now      func() time.Time
	newTxID  func() string
	hooks    []CommitHook
}

// New constructs an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		versions: make(map[string][]Record),
		now:      func() time.Time { return time.Now().UTC() },
		newTxID:  func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RunInTransaction executes fn against a snapshot and commits its buffered
// writes if fn succeeds and no key it read was changed concurrently.
func (l *Ledger) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := l.begin(false)
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.commit(ctx, tx)
}

// View executes fn against a read-only snapshot.
func (l *Ledger) View(ctx context.Context, fn func(domain.Transaction) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(l.begin(true))
}

// Import loads previously committed records, typically read back from a
// persistent backend. Records must not be older than the current state.
func (l *Ledger) Import(records []Record) error {
	sorted := append([]Record(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, rec := range sorted {
		if rec.Seq == 0 || rec.Seq < l.seq {
			return fmt.Errorf("import record %d for %q: sequence behind ledger head %d", rec.Seq, rec.Key, l.seq)
		}
		if rec.Key == "" {
			return fmt.Errorf("import record %d: empty key", rec.Seq)
		}
		l.appendLocked(rec)
		if rec.Seq > l.seq {
			l.seq = rec.Seq
		}
	}
	return nil
}

// Records returns every committed version ordered by commit sequence.
func (l *Ledger) Records() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Record
	for _, key := range l.keys {
		for _, rec := range l.versions[key] {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Seq != out[j].Seq {
			return out[i].Seq < out[j].Seq
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Height returns the sequence of the latest commit.
func (l *Ledger) Height() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seq
}

func (l *Ledger) begin(readOnly bool) *transaction {
	l.mu.RLock()
	snapshot := l.seq
	l.mu.RUnlock()
	return &transaction{
		ledger:   l,
		id:       l.newTxID(),
		ts:       l.now(),
		snapshot: snapshot,
		readOnly: readOnly,
		reads:    make(map[string]uint64),
		writes:   make(map[string][]byte),
	}
}

func (l *Ledger) commit(ctx context.Context, tx *transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.validateLocked(tx); err != nil {
		return err
	}
	if len(tx.order) == 0 {
		return nil
	}
	next := l.seq + 1
	records := make([]Record, 0, len(tx.order))
	for _, key := range tx.order {
		records = append(records, Record{
			Seq:       next,
			Key:       key,
			TxID:      tx.id,
			Timestamp: tx.ts,
			Value:     tx.writes[key],
		})
	}
	for _, hook := range l.hooks {
		if err := hook(ctx, records); err != nil {
			return fmt.Errorf("commit hook: %w", err)
		}
	}
	for _, rec := range records {
		l.appendLocked(rec)
	}
	l.seq = next
	return nil
}

func (l *Ledger) validateLocked(tx *transaction) error {
	for key, seen := range tx.reads {
		if current := l.latestSeqLocked(key, l.seq); current != seen {
			return domain.ConcurrencyConflict(key, fmt.Errorf("read version %d, committed version %d", seen, current))
		}
	}
	for _, rr := range tx.ranges {
		current := l.scanLocked(rr.prefix, l.seq)
		if len(current) != len(rr.seen) {
			return domain.ConcurrencyConflict(rr.prefix, fmt.Errorf("range changed from %d to %d keys", len(rr.seen), len(current)))
		}
		for _, rec := range current {
			if seq, ok := rr.seen[rec.Key]; !ok || seq != rec.Seq {
				return domain.ConcurrencyConflict(rec.Key, errors.New("range member changed"))
			}
		}
	}
	return nil
}

func (l *Ledger) appendLocked(rec Record) {
	if _, ok := l.versions[rec.Key]; !ok {
		i := sort.SearchStrings(l.keys, rec.Key)
		l.keys = append(l.keys, "")
		copy(l.keys[i+1:], l.keys[i:])
		l.keys[i] = rec.Key
	}
	l.versions[rec.Key] = append(l.versions[rec.Key], cloneRecord(rec))
}

// versionAtLocked returns the i-th version of key if it is visible at
// snapshot.
func (l *Ledger) versionAtLocked(key string, i int, snapshot uint64) (Record, bool) {
	versions := l.versions[key]
	if i >= len(versions) || versions[i].Seq > snapshot {
		return Record{}, false
	}
	return versions[i], true
}

// visibleLocked returns the newest version of key at or below snapshot.
func (l *Ledger) visibleLocked(key string, snapshot uint64) (Record, bool) {
	versions := l.versions[key]
	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i].Seq <= snapshot {
			return versions[i], true
		}
	}
	return Record{}, false
}

func (l *Ledger) latestSeqLocked(key string, snapshot uint64) uint64 {
	rec, ok := l.visibleLocked(key, snapshot)
	if !ok {
		return 0
	}
	return rec.Seq
}

// scanLocked returns the live versions of every key under prefix.
func (l *Ledger) scanLocked(prefix string, snapshot uint64) []Record {
	var out []Record
	for i := sort.SearchStrings(l.keys, prefix); i < len(l.keys); i++ {
		key := l.keys[i]
		if !keyspace.HasPrefix(key, prefix) {
			break
		}
		rec, ok := l.visibleLocked(key, snapshot)
		if !ok || rec.IsDelete {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func cloneRecord(rec Record) Record {
	if rec.Value != nil {
		rec.Value = append([]byte(nil), rec.Value...)
	}
	return rec
}
