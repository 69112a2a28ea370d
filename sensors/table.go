package sensors

import (
	"sync"
	"sync/atomic"

	"github.com/watertreat/rtu/types"
)

// Table is the shared sensor-value table of §3 "IO Data Record" /
// "Publish": single writer per sensor (its own scheduler or HTTP-poll
// worker), many readers (C3 rule evaluation, C4 cyclic input publish).
// Each record is swapped atomically so a reader always observes either the
// prior complete Reading or the new one, never a torn mix (§5 "Ordering
// guarantees").
type Table struct {
	mu      sync.RWMutex // guards the map itself, not its values
	records map[int64]*atomic.Pointer[types.Reading]
}

// NewTable builds an empty Table.
func NewTable() *Table {
	return &Table{records: make(map[int64]*atomic.Pointer[types.Reading])}
}

// Register pre-allocates the atomic slot for a sensor id so Publish never
// needs to take the write lock on the hot path. Safe to call more than
// once for the same id.
func (t *Table) Register(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.records[id]; !ok {
		t.records[id] = &atomic.Pointer[types.Reading]{}
	}
}

func (t *Table) slot(id int64) *atomic.Pointer[types.Reading] {
	t.mu.RLock()
	p, ok := t.records[id]
	t.mu.RUnlock()
	if ok {
		return p
	}
	t.Register(id)
	t.mu.RLock()
	p = t.records[id]
	t.mu.RUnlock()
	return p
}

// Publish atomically installs a new Reading for its SensorID (§4.2
// "Publish"). Timestamps must be monotonic per sensor (§8 invariant 1); the
// caller (Scheduler) is the only writer for a given id, so no ordering
// enforcement is needed here beyond the atomic swap.
func (t *Table) Publish(r types.Reading) {
	t.slot(r.SensorID).Store(&r)
}

// MarkError sets status=error for id, leaving the last published value
// unchanged (§4.2 "Failure semantics"): a torn read is never possible
// because the whole Reading is replaced, not mutated in place.
func (t *Table) MarkError(id int64) {
	p := t.slot(id)
	prev := p.Load()
	next := types.Reading{SensorID: id, Status: types.StatusError}
	if prev != nil {
		next.Value = prev.Value
		next.TsMs = prev.TsMs
	}
	p.Store(&next)
}

// Get returns the last published Reading for id, if any.
func (t *Table) Get(id int64) (types.Reading, bool) {
	p := t.slot(id)
	r := p.Load()
	if r == nil {
		return types.Reading{}, false
	}
	return *r, true
}

// Snapshot returns a copy of every currently-registered id's last Reading.
// Because each entry is read via its own atomic load, the result is a
// consistent-per-sensor snapshot (§5): some entries may be newer than
// others within the same tick, but none is partially written.
func (t *Table) Snapshot() map[int64]types.Reading {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[int64]types.Reading, len(t.records))
	for id, p := range t.records {
		if r := p.Load(); r != nil {
			out[id] = *r
		}
	}
	return out
}
