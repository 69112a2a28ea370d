package alarms

import (
	"context"
	"sync"
	"time"

	"github.com/watertreat/rtu/errcode"
	"github.com/watertreat/rtu/logx"
	"github.com/watertreat/rtu/types"
)

// HistoryStore is the persistence seam History flushes through; satisfied
// by *store.Store. Writes happen only on the flush goroutine, never on the
// evaluation tick (§5 "Shared resources").
type HistoryStore interface {
	RecordAlarmHistory(ctx context.Context, inst types.AlarmInstance) (int64, error)
	UpdateAlarmHistoryState(ctx context.Context, id int64, inst types.AlarmInstance) error
}

// flushOp is one pending persistence action for the flush goroutine.
type flushOp struct {
	inst   types.AlarmInstance
	update bool
}

const (
	flushAttempts = 3
	flushBackoff  = 250 * time.Millisecond
	flushQueueLen = 64
)

// History owns the live alarm-instance set: at most one non-cleared
// instance per rule (§3 invariant), monotonic state transitions, and a
// write-behind flush into the persistent store with bounded retry (§7:
// "logged and retried at most three times with backoff; then dropped").
type History struct {
	log *logx.Logger
	st  HistoryStore

	mu     sync.Mutex
	nextID int64
	open   map[int64]*types.AlarmInstance // rule id -> non-cleared instance
	all    map[int64]*types.AlarmInstance // instance id -> instance

	flush chan flushOp
}

// NewHistory builds a History flushing into st. st may be nil (tests,
// config-check runs); flush ops are then discarded.
func NewHistory(log *logx.Logger, st HistoryStore) *History {
	return &History{
		log:   log,
		st:    st,
		open:  make(map[int64]*types.AlarmInstance),
		all:   make(map[int64]*types.AlarmInstance),
		flush: make(chan flushOp, flushQueueLen),
	}
}

// Raise creates a new active instance for rule unless one is already open,
// enforcing the at-most-one-non-cleared invariant.
func (h *History) Raise(rule types.AlarmRule, state types.RuleState, trigger float64, message string) *types.AlarmInstance {
	h.mu.Lock()
	defer h.mu.Unlock()

	if inst, ok := h.open[rule.ID]; ok {
		return inst
	}
	h.nextID++
	inst := &types.AlarmInstance{
		ID:           h.nextID,
		RuleID:       rule.ID,
		SensorID:     rule.SensorID,
		Severity:     rule.Severity,
		State:        types.InstanceActive,
		RaisedAt:     time.Now(),
		Message:      message,
		TriggerValue: trigger,
	}
	h.open[rule.ID] = inst
	h.all[inst.ID] = inst
	h.post(flushOp{inst: *inst})
	return inst
}

// Acknowledge transitions an instance active -> acknowledged; it never
// clears (§4.3). by records the operator identity.
func (h *History) Acknowledge(instID int64, by string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	inst, ok := h.all[instID]
	if !ok {
		return &errcode.E{C: errcode.NotFound, Op: "alarms.Acknowledge"}
	}
	if inst.State != types.InstanceActive {
		return &errcode.E{C: errcode.InvalidState, Op: "alarms.Acknowledge", Msg: string(inst.State)}
	}
	inst.State = types.InstanceAcknowledged
	inst.AcknowledgedAt = time.Now()
	inst.AcknowledgedBy = by
	h.post(flushOp{inst: *inst, update: true})
	return nil
}

// Clear transitions an instance to cleared, from active or acknowledged.
func (h *History) Clear(instID int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	inst, ok := h.all[instID]
	if !ok {
		return &errcode.E{C: errcode.NotFound, Op: "alarms.Clear"}
	}
	h.clearLocked(inst)
	return nil
}

// ClearRule clears any non-cleared instance of the rule; used both by the
// engine's auto-clear transition and by operator commands addressing a
// rule rather than an instance.
func (h *History) ClearRule(ruleID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if inst, ok := h.open[ruleID]; ok {
		h.clearLocked(inst)
	}
}

func (h *History) clearLocked(inst *types.AlarmInstance) {
	if inst.State == types.InstanceCleared {
		return
	}
	inst.State = types.InstanceCleared
	inst.ClearedAt = time.Now()
	delete(h.open, inst.RuleID)
	h.post(flushOp{inst: *inst, update: true})
}

// Open returns the current non-cleared instance for a rule, if any.
func (h *History) Open(ruleID int64) (types.AlarmInstance, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	inst, ok := h.open[ruleID]
	if !ok {
		return types.AlarmInstance{}, false
	}
	return *inst, true
}

// Active returns a copy of every non-cleared instance, newest first left
// to the caller to sort; used by the operator surfaces.
func (h *History) Active() []types.AlarmInstance {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]types.AlarmInstance, 0, len(h.open))
	for _, inst := range h.open {
		out = append(out, *inst)
	}
	return out
}

// Prune drops cleared instances older than retention from memory; the
// store-side sweep is GCAlarmHistory (retention.go).
func (h *History) Prune(retention time.Duration) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	cutoff := time.Now().Add(-retention)
	n := 0
	for id, inst := range h.all {
		if inst.State == types.InstanceCleared && inst.ClearedAt.Before(cutoff) {
			delete(h.all, id)
			n++
		}
	}
	return n
}

// post hands an op to the flush goroutine without ever blocking the
// evaluation tick; a full queue drops the op (bounded memory, §7).
func (h *History) post(op flushOp) {
	if h.st == nil {
		return
	}
	select {
	case h.flush <- op:
	default:
		h.log.Warning().Int64("rule", op.inst.RuleID).Log("alarm history flush queue full, dropping")
	}
}

// RunFlusher drains the flush queue into the store until ctx is cancelled.
// Each op is attempted at most flushAttempts times with linear backoff,
// then dropped with a logged error (§7 "Propagation policy").
func (h *History) RunFlusher(ctx context.Context) {
	rowIDs := make(map[int64]int64) // instance id -> store row id
	for {
		select {
		case <-ctx.Done():
			return
		case op := <-h.flush:
			h.flushOne(ctx, op, rowIDs)
		}
	}
}

func (h *History) flushOne(ctx context.Context, op flushOp, rowIDs map[int64]int64) {
	var lastErr error
	for attempt := 1; attempt <= flushAttempts; attempt++ {
		if op.update {
			rowID, ok := rowIDs[op.inst.ID]
			if !ok {
				// insert never landed; persist the final state as a fresh row
				id, err := h.st.RecordAlarmHistory(ctx, op.inst)
				if err == nil {
					rowIDs[op.inst.ID] = id
					return
				}
				lastErr = err
			} else if err := h.st.UpdateAlarmHistoryState(ctx, rowID, op.inst); err == nil {
				return
			} else {
				lastErr = err
			}
		} else {
			id, err := h.st.RecordAlarmHistory(ctx, op.inst)
			if err == nil {
				rowIDs[op.inst.ID] = id
				return
			}
			lastErr = err
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(attempt) * flushBackoff):
		}
	}
	h.log.Err().Err(lastErr).Int64("instance", op.inst.ID).Log("alarm history write dropped after retries")
}
