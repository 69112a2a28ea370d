package alarms

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/watertreat/rtu/types"
)

type fakeStore struct {
	mu      sync.Mutex
	inserts []types.AlarmInstance
	updates map[int64]types.AlarmInstance
	nextRow int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{updates: make(map[int64]types.AlarmInstance)}
}

func (f *fakeStore) RecordAlarmHistory(ctx context.Context, inst types.AlarmInstance) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts = append(f.inserts, inst)
	f.nextRow++
	return f.nextRow, nil
}

func (f *fakeStore) UpdateAlarmHistoryState(ctx context.Context, id int64, inst types.AlarmInstance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[id] = inst
	return nil
}

func (f *fakeStore) snapshot() ([]types.AlarmInstance, map[int64]types.AlarmInstance) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ins := append([]types.AlarmInstance(nil), f.inserts...)
	ups := make(map[int64]types.AlarmInstance, len(f.updates))
	for k, v := range f.updates {
		ups[k] = v
	}
	return ins, ups
}

func TestFlusherInsertsThenUpdatesSameRow(t *testing.T) {
	st := newFakeStore()
	hist := NewHistory(testLogger(), st)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hist.RunFlusher(ctx)

	rule := types.AlarmRule{ID: 9, SensorID: 2, Severity: types.SeverityMedium}
	inst := hist.Raise(rule, types.StateLow, 0.4, "low")
	if err := hist.Acknowledge(inst.ID, "op"); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	hist.ClearRule(rule.ID)

	deadline := time.Now().Add(2 * time.Second)
	for {
		ins, ups := st.snapshot()
		if len(ins) == 1 && ups[1].State == types.InstanceCleared {
			if ins[0].State != types.InstanceActive {
				t.Fatalf("insert state = %q", ins[0].State)
			}
			if ups[1].AcknowledgedBy != "op" {
				t.Fatalf("final update = %+v", ups[1])
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("flush incomplete: inserts=%d updates=%+v", len(ins), ups)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPruneDropsOldClearedOnly(t *testing.T) {
	hist := NewHistory(testLogger(), nil)

	a := hist.Raise(types.AlarmRule{ID: 1, SensorID: 1, Severity: types.SeverityLow}, types.StateHigh, 1, "a")
	_ = hist.Clear(a.ID)
	b := hist.Raise(types.AlarmRule{ID: 2, SensorID: 1, Severity: types.SeverityLow}, types.StateHigh, 2, "b")

	// retention 0: everything cleared before now is eligible
	time.Sleep(5 * time.Millisecond)
	n := hist.Prune(0)
	if n != 1 {
		t.Fatalf("pruned %d, want 1", n)
	}
	if _, ok := hist.Open(2); !ok {
		t.Fatalf("active instance %d pruned", b.ID)
	}
}
