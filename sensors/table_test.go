package sensors

import (
	"testing"

	"github.com/watertreat/rtu/types"
)

func TestTablePublishGetMonotonic(t *testing.T) {
	table := NewTable()
	table.Register(1)

	table.Publish(types.Reading{SensorID: 1, Value: 1.0, Status: types.StatusOK, TsMs: 100})
	table.Publish(types.Reading{SensorID: 1, Value: 2.0, Status: types.StatusOK, TsMs: 200})

	r, ok := table.Get(1)
	if !ok {
		t.Fatal("expected a reading")
	}
	if r.Value != 2.0 || r.TsMs != 200 {
		t.Fatalf("got %+v, want latest publish", r)
	}
}

func TestTableMarkErrorKeepsLastValue(t *testing.T) {
	table := NewTable()
	table.Publish(types.Reading{SensorID: 5, Value: 7.5, Status: types.StatusOK, TsMs: 10})
	table.MarkError(5)

	r, ok := table.Get(5)
	if !ok {
		t.Fatal("expected a reading")
	}
	if r.Status != types.StatusError {
		t.Fatalf("status = %v, want error", r.Status)
	}
	if r.Value != 7.5 {
		t.Fatalf("value = %v, want unchanged 7.5", r.Value)
	}
}

func TestTableSnapshotIsPerSensorConsistent(t *testing.T) {
	table := NewTable()
	table.Publish(types.Reading{SensorID: 1, Value: 1, TsMs: 1})
	table.Publish(types.Reading{SensorID: 2, Value: 2, TsMs: 1})

	snap := table.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("got %d entries, want 2", len(snap))
	}
	if snap[1].Value != 1 || snap[2].Value != 2 {
		t.Fatalf("unexpected snapshot contents: %+v", snap)
	}
}
