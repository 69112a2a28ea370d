package sensors

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/watertreat/rtu/types"
)

// fakeHandle is an hal.Handle stand-in returning a scripted sequence of
// readings, mirroring the teacher's style of hand-rolled fakes over mocks.
type fakeHandle struct {
	reads  []float64
	errs   []error
	idx    atomic.Int32
	closed atomic.Bool
}

func (f *fakeHandle) Read() (float64, types.Status, error) {
	i := int(f.idx.Add(1)) - 1
	if i >= len(f.reads) {
		i = len(f.reads) - 1
	}
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return f.reads[i], "", err
}

func (f *fakeHandle) Close() error {
	f.closed.Store(true)
	return nil
}

func TestSchedulerPublishesCalibratedValues(t *testing.T) {
	table := NewTable()
	handle := &fakeHandle{reads: []float64{2.00, 2.00, 2.00}}
	cfg := types.SensorConfig{
		ID:     1,
		Name:   "ph",
		PollMS: 10,
		Range:  types.Range{Min: 0, Max: 14},
		Cal:    types.CalibrationSpec{Kind: types.CalLinear, Scale: 3.5, Offset: 0},
	}
	sched := NewScheduler(table, nil)
	sched.Register(NewBound(cfg, handle, 0))

	sched.acquireOne(sched.items[0].bound)
	r, ok := table.Get(1)
	if !ok {
		t.Fatal("expected a reading")
	}
	if r.Value != 7.0 || r.Status != types.StatusOK {
		t.Fatalf("got %+v, want 7.0/ok", r)
	}
}

func TestSchedulerFailureRaisesAfterThreshold(t *testing.T) {
	table := NewTable()
	errs := make([]error, maxConsecutiveFailures)
	for i := range errs {
		errs[i] = errors.New("bus error")
	}
	handle := &fakeHandle{reads: make([]float64, maxConsecutiveFailures), errs: errs}
	cfg := types.SensorConfig{ID: 2, Name: "flow", PollMS: 10}

	var raised int
	sched := NewScheduler(table, func(_ types.SensorConfig, _ error) { raised++ })
	sched.Register(NewBound(cfg, handle, 0))

	for i := 0; i < maxConsecutiveFailures; i++ {
		sched.acquireOne(sched.items[0].bound)
	}
	if raised != 1 {
		t.Fatalf("onFail called %d times, want 1", raised)
	}
	r, ok := table.Get(2)
	if !ok || r.Status != types.StatusError {
		t.Fatalf("got %+v, want status=error", r)
	}
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	table := NewTable()
	handle := &fakeHandle{reads: []float64{1}}
	cfg := types.SensorConfig{ID: 3, Name: "static", PollMS: 10}
	sched := NewScheduler(table, nil)
	sched.Register(NewBound(cfg, handle, 0))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop on context cancellation")
	}
}
