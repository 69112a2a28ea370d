// Package sensors implements C2 "Sensor Pipeline": deadline-scheduled
// acquisition, calibration, filtering, range gating, and publication into
// the shared sensor-value table (§4.2).
package sensors

import (
	"context"
	"time"

	"github.com/watertreat/rtu/hal"
	"github.com/watertreat/rtu/ratelimit"
	"github.com/watertreat/rtu/types"
)

// Bound is one sensor ready for acquisition: its config, its bound
// hardware handle (nil for a calculated sensor, handled separately by the
// caller), and the mutable filter/failure state the scheduler owns.
type Bound struct {
	Config types.SensorConfig
	Handle hal.Handle
	filter *emaFilter
	fails  int
}

// NewBound wires a config to its handle, initializing the optional EMA
// filter from the calibration/filter configuration.
func NewBound(cfg types.SensorConfig, h hal.Handle, alpha float64) *Bound {
	b := &Bound{Config: cfg, Handle: h}
	if alpha > 0 {
		b.filter = newEMAFilter(alpha)
	}
	return b
}

// scheduleItem is the deadline-ordered entry the scheduler loop tracks,
// directly generalizing the teacher's measureWorker collectItem: instead
// of a one-shot trigger/collect, each item re-arms itself for PollMS after
// every successful or failed read.
type scheduleItem struct {
	bound *Bound
	due   time.Time
}

// Scheduler runs the deadline-ordered acquisition loop (§4.2 "Scheduling").
// Reads must not block it for more than a small budget; callers with a
// slow interface (HTTP poll) run their own worker (HTTPPoller) and feed
// results through the same processAcquisition instead of registering with
// the scheduler.
type Scheduler struct {
	table  *Table
	gate   *ratelimit.Gate
	items  []*scheduleItem
	timer  *time.Timer
	onFail func(cfg types.SensorConfig, err error)
}

// NewScheduler builds a Scheduler publishing into table. onFail, if
// non-nil, is invoked on each failed read once a bound sensor's
// consecutive-failure count reaches maxConsecutiveFailures (§4.2 "Failure
// semantics").
func NewScheduler(table *Table, onFail func(cfg types.SensorConfig, err error)) *Scheduler {
	return &Scheduler{
		table:  table,
		gate:   ratelimit.NewGate(30 * time.Second),
		timer:  time.NewTimer(time.Hour),
		onFail: onFail,
	}
}

// Register adds a bound sensor to the schedule, due immediately.
func (s *Scheduler) Register(b *Bound) {
	s.items = append(s.items, &scheduleItem{bound: b, due: time.Now()})
}

// Run drives the schedule until ctx is cancelled, waking near each item's
// next deadline rather than polling on a fixed tick (§4.2 "Scheduling").
func (s *Scheduler) Run(ctx context.Context) {
	for {
		s.rearm()
		select {
		case <-ctx.Done():
			s.timer.Stop()
			return
		case <-s.timer.C:
			s.tick()
		}
	}
}

func (s *Scheduler) rearm() {
	if !s.timer.Stop() {
		drainTimer(s.timer)
	}
	next := s.minDue()
	if next.IsZero() {
		s.timer.Reset(time.Hour)
		return
	}
	d := time.Until(next)
	if d < 0 {
		d = 0
	}
	s.timer.Reset(d)
}

func (s *Scheduler) minDue() time.Time {
	var min time.Time
	for _, it := range s.items {
		if min.IsZero() || it.due.Before(min) {
			min = it.due
		}
	}
	return min
}

func (s *Scheduler) tick() {
	now := time.Now()
	for _, it := range s.items {
		if now.Before(it.due) {
			continue
		}
		s.acquireOne(it.bound)
		it.due = now.Add(time.Duration(it.bound.Config.PollMS) * time.Millisecond)
	}
}

func (s *Scheduler) acquireOne(b *Bound) {
	raw, status, err := b.Handle.Read()
	processAcquisition(b, raw, status, err, s.table, s.gate, s.onFail)
}

func drainTimer(t *time.Timer) {
	select {
	case <-t.C:
	default:
	}
}
