package fieldbus

import (
	"encoding/binary"
	"io"
	"math"
	"testing"

	"github.com/joeycumines/logiface"
	"github.com/watertreat/rtu/alarms"
	"github.com/watertreat/rtu/logx"
	"github.com/watertreat/rtu/sensors"
	"github.com/watertreat/rtu/types"
)

func testLogger() *logx.Logger {
	return logx.New(io.Discard, logiface.LevelEmergency)
}

type fakeSafe struct{ calls []string }

func (f *fakeSafe) SafeStateAll(source string) { f.calls = append(f.calls, source) }

func drainQueue(t *testing.T, q *alarms.Queue) []alarms.Command {
	t.Helper()
	var out []alarms.Command
	for {
		cmd, ok := q.TryNext()
		if !ok {
			return out
		}
		out = append(out, cmd)
	}
}

func newTestAdapter(t *testing.T) (*Adapter, *sensors.Table, *alarms.Queue, *fakeSafe) {
	t.Helper()
	table := sensors.NewTable()
	q := alarms.NewQueue(testLogger())
	safe := &fakeSafe{}
	a := NewAdapter(testLogger(), table, q, safe, nil, IM0{OrderID: "RTU-WT8", Serial: "0001"})
	return a, table, q, safe
}

func runToRunning(t *testing.T, a *Adapter) {
	t.Helper()
	if err := a.HandleStartup(); err != nil {
		t.Fatalf("HandleStartup: %v", err)
	}
	if err := a.HandleExpectedSubmodule(1, 1, 0x100); err != nil {
		t.Fatalf("HandleExpectedSubmodule: %v", err)
	}
	if err := a.HandlePrmEnd(); err != nil {
		t.Fatalf("HandlePrmEnd: %v", err)
	}
	if err := a.HandleAppReady(); err != nil {
		t.Fatalf("HandleAppReady: %v", err)
	}
}

func TestConnectionLifecycle(t *testing.T) {
	a, _, _, _ := newTestAdapter(t)

	if a.State() != StateIdle {
		t.Fatalf("initial state %q", a.State())
	}
	runToRunning(t, a)
	if a.State() != StateRunning {
		t.Fatalf("state after app-ready: %q", a.State())
	}

	a.HandleAbort()
	if a.State() != StateIdle {
		t.Fatalf("state after abort: %q", a.State())
	}
}

func TestOutOfOrderEventsRejected(t *testing.T) {
	a, _, _, _ := newTestAdapter(t)

	if err := a.HandlePrmEnd(); err == nil {
		t.Fatal("PrmEnd in Idle must fail")
	}
	if err := a.HandleAppReady(); err == nil {
		t.Fatal("AppReady in Idle must fail")
	}
	if err := a.HandleStartup(); err != nil {
		t.Fatalf("HandleStartup: %v", err)
	}
	if err := a.HandleStartup(); err == nil {
		t.Fatal("second Startup must fail")
	}
}

// A published value of 25.5 encodes into slot 1 as 41 CC 00 00.
func TestSensorFloatEncoding(t *testing.T) {
	a, _, _, _ := newTestAdapter(t)
	a.MapSensor(1, 42)
	runToRunning(t, a)

	a.PublishInputs(map[int64]types.Reading{
		42: {SensorID: 42, Value: 25.5, Status: types.StatusOK, TsMs: 1000},
	})

	payload, iops := a.ProduceInput(1)
	want := [4]byte{0x41, 0xCC, 0x00, 0x00}
	if payload != want {
		t.Fatalf("payload = % 02X, want % 02X", payload, want)
	}
	if iops != IOPSGood {
		t.Fatalf("iops = %v, want good", iops)
	}

	got := math.Float32frombits(binary.BigEndian.Uint32(payload[:]))
	if got != 25.5 {
		t.Fatalf("round-trip = %v", got)
	}
}

func TestBadStatusPublishesValueWithBadIOPS(t *testing.T) {
	a, _, _, _ := newTestAdapter(t)
	a.MapSensor(2, 7)
	runToRunning(t, a)

	a.PublishInputs(map[int64]types.Reading{
		7: {SensorID: 7, Value: 99.5, Status: types.StatusOutOfRange, TsMs: 1000},
	})

	payload, iops := a.ProduceInput(2)
	if iops != IOPSBad {
		t.Fatalf("iops = %v, want bad", iops)
	}
	if types.DecodeSensorSlot(payload) != 99.5 {
		t.Fatalf("value = %v, want the tripping value published", types.DecodeSensorSlot(payload))
	}
}

// A controller write of 02 80 00 00 to slot 10 enqueues a PWM command at
// 50% duty.
func TestOutputDecodeToCommandQueue(t *testing.T) {
	a, _, q, _ := newTestAdapter(t)
	runToRunning(t, a)

	if err := a.ConsumeOutput(10, [4]byte{0x02, 0x80, 0x00, 0x00}); err != nil {
		t.Fatalf("ConsumeOutput: %v", err)
	}
	cmds := drainQueue(t, q)
	if len(cmds) != 1 {
		t.Fatalf("queued %d commands", len(cmds))
	}
	if cmds[0].Slot != 10 || cmds[0].Kind != types.CommandPWM || cmds[0].Duty != 0x80 {
		t.Fatalf("command = %+v", cmds[0])
	}

	// unchanged output is not re-dispatched
	if err := a.ConsumeOutput(10, [4]byte{0x02, 0x80, 0x00, 0x00}); err != nil {
		t.Fatalf("ConsumeOutput repeat: %v", err)
	}
	if cmds := drainQueue(t, q); len(cmds) != 0 {
		t.Fatalf("repeat write re-queued: %+v", cmds)
	}
}

func TestOutputRejectedOutsideRunning(t *testing.T) {
	a, _, q, _ := newTestAdapter(t)
	if err := a.ConsumeOutput(10, [4]byte{0x01, 0, 0, 0}); err == nil {
		t.Fatal("output in Idle must fail")
	}
	if cmds := drainQueue(t, q); len(cmds) != 0 {
		t.Fatalf("commands queued while idle: %+v", cmds)
	}
}

func TestAbortDrivesSafeStateAndKeepsPipeline(t *testing.T) {
	a, _, _, safe := newTestAdapter(t)
	a.MapSensor(1, 42)
	runToRunning(t, a)

	if err := a.ConsumeOutput(10, [4]byte{0x01, 0, 0, 0}); err != nil {
		t.Fatalf("ConsumeOutput: %v", err)
	}
	a.HandleAbort()

	if len(safe.calls) != 1 || safe.calls[0] != "fieldbus:abort" {
		t.Fatalf("safe sweeps = %v", safe.calls)
	}
	if payload, _ := a.outputs.get(10); payload != ([4]byte{}) {
		t.Fatalf("outputs not discarded: % 02X", payload)
	}

	// sensor publication still lands after the drop
	a.PublishInputs(map[int64]types.Reading{
		42: {SensorID: 42, Value: 1.25, Status: types.StatusOK, TsMs: 2000},
	})
	if v := types.DecodeSensorSlot(mustPayload(a.ProduceInput(1))); v != 1.25 {
		t.Fatalf("input after abort = %v", v)
	}
}

func mustPayload(p [4]byte, _ IOPS) [4]byte { return p }

func TestPrmEndSeedsLastKnownInputs(t *testing.T) {
	a, table, _, _ := newTestAdapter(t)
	a.MapSensor(3, 9)
	table.Publish(types.Reading{SensorID: 9, Value: 7.0, Status: types.StatusOK, TsMs: 500})

	if err := a.HandleStartup(); err != nil {
		t.Fatal(err)
	}
	if err := a.HandlePrmEnd(); err != nil {
		t.Fatal(err)
	}
	if v := types.DecodeSensorSlot(mustPayload(a.ProduceInput(3))); v != 7.0 {
		t.Fatalf("seeded input = %v, want 7", v)
	}
}

func TestReadRecordIM0(t *testing.T) {
	a, _, _, _ := newTestAdapter(t)

	rec := a.ReadRecord(0, 1, IM0Index)
	if len(rec) != IM0Size {
		t.Fatalf("I&M0 length = %d, want %d", len(rec), IM0Size)
	}
	if binary.BigEndian.Uint16(rec[0:2]) != VendorID {
		t.Fatalf("vendor id = %#04x", binary.BigEndian.Uint16(rec[0:2]))
	}
	if binary.BigEndian.Uint16(rec[38:40]) != HardwareRevision {
		t.Fatalf("hardware revision = %#04x", binary.BigEndian.Uint16(rec[38:40]))
	}
	if rec[40] != 'V' {
		t.Fatalf("software revision prefix = %q", rec[40])
	}

	for _, idx := range []uint16{0x8001, 0x8002, 0x8003, 0x8004, 0x1234} {
		if got := a.ReadRecord(0, 1, idx); len(got) != 0 {
			t.Fatalf("index %#x returned %d bytes, want 0", idx, len(got))
		}
	}
}

func TestWriteRecordPolicy(t *testing.T) {
	a, _, _, _ := newTestAdapter(t)

	if err := a.WriteRecord(1, 1, 0x0100, []byte{1, 2, 3}); err != nil {
		t.Fatalf("parameter write must be accepted: %v", err)
	}
	if err := a.WriteRecord(1, 1, IM0Index, []byte{1}); err == nil {
		t.Fatal("record-space write must be rejected")
	}
}

func TestSignalLEDAndControl(t *testing.T) {
	a, _, _, _ := newTestAdapter(t)

	var led []bool
	var sigs []ControlSignal
	a.LED = func(on bool) { led = append(led, on) }
	a.Signal = func(s ControlSignal) { sigs = append(sigs, s) }

	a.HandleSignalLED(true)
	a.HandleSignalLED(false)
	a.HandleControl(SignalReload)

	if len(led) != 2 || !led[0] || led[1] {
		t.Fatalf("led = %v", led)
	}
	if len(sigs) != 1 || sigs[0] != SignalReload {
		t.Fatalf("signals = %v", sigs)
	}
}
