package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var expvarSeq uint64

// ExpvarMetricsRecorder publishes per-operation counters under one expvar map.
// Keys take the form "<operation>.success", "<operation>.error" and
// "<operation>.duration_ms".
type ExpvarMetricsRecorder struct {
	name string
	vars *expvar.Map
}

// ExpvarMetricsSnapshot is a point-in-time copy of the recorder state.
type ExpvarMetricsSnapshot struct {
	DurationsMS map[string]float64          `json:"durations_ms_total"`
	Results     map[string]map[string]int64 `json:"results_total"`
	RecordedAt  time.Time                   `json:"recorded_at"`
}

// NewExpvarMetricsRecorder publishes a recorder under name, or under a
// generated name when name is empty. expvar names are process-global, so
// publishing the same name twice panics.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("pharmanet_service_metrics_%d", atomic.AddUint64(&expvarSeq, 1))
	}
	return &ExpvarMetricsRecorder{name: name, vars: expvar.NewMap(name)}
}

// Name returns the expvar export name.
func (r *ExpvarMetricsRecorder) Name() string {
	return r.name
}

// Observe implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := string(AuditStatusError)
	if success {
		status = string(AuditStatusSuccess)
	}
	r.vars.Add(operation+"."+status, 1)
	r.vars.AddFloat(operation+".duration_ms", float64(duration)/float64(time.Millisecond))
}

// Snapshot folds the flat expvar keys back into per-operation totals.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	snap := ExpvarMetricsSnapshot{
		DurationsMS: make(map[string]float64),
		Results:     make(map[string]map[string]int64),
		RecordedAt:  time.Now().UTC(),
	}
	r.vars.Do(func(kv expvar.KeyValue) {
		idx := strings.LastIndexByte(kv.Key, '.')
		if idx <= 0 {
			return
		}
		op, field := kv.Key[:idx], kv.Key[idx+1:]
		switch v := kv.Value.(type) {
		case *expvar.Float:
			if field == "duration_ms" {
				snap.DurationsMS[op] = v.Value()
			}
		case *expvar.Int:
			if snap.Results[op] == nil {
				snap.Results[op] = make(map[string]int64, 2)
			}
			snap.Results[op][field] = v.Value()
		}
	})
	return snap
}

// JSONTraceEntry is one finished span as written by JSONTraceTracer.
type JSONTraceEntry struct {
	SpanID     string    `json:"span_id"`
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// JSONTraceTracer writes spans as JSON lines and keeps them for inspection.
type JSONTraceTracer struct {
	mu      sync.Mutex
	entries []JSONTraceEntry
	enc     *json.Encoder
}

// NewJSONTracer constructs a tracer writing to w. A nil writer only retains
// spans in memory.
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	t := &JSONTraceTracer{}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Entries returns a copy of all finished spans.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]JSONTraceEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Start implements Tracer.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonTraceSpan{
		tracer:    t,
		id:        uuid.NewString(),
		operation: operation,
		started:   time.Now().UTC(),
	}
}

type jsonTraceSpan struct {
	tracer    *JSONTraceTracer
	id        string
	operation string
	started   time.Time
}

func (s *jsonTraceSpan) End(err error) {
	ended := time.Now().UTC()
	entry := JSONTraceEntry{
		SpanID:     s.id,
		Operation:  s.operation,
		Status:     string(AuditStatusSuccess),
		DurationMS: float64(ended.Sub(s.started)) / float64(time.Millisecond),
		StartedAt:  s.started,
		EndedAt:    ended,
	}
	if err != nil {
		entry.Status = string(AuditStatusError)
		entry.Error = err.Error()
	}

	s.tracer.mu.Lock()
	defer s.tracer.mu.Unlock()
	s.tracer.entries = append(s.tracer.entries, entry)
	if s.tracer.enc != nil {
		_ = s.tracer.enc.Encode(entry)
	}
}
