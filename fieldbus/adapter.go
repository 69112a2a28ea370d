// Package fieldbus implements C4 "Fieldbus Adapter": the IO-Device side
// of the cyclic master/slave exchange. The vendor stack delivers protocol
// events as callbacks; this package owns the connection state machine,
// the per-slot IO-data buffers, and the I&M0 identity record (§4.4).
//
// Callbacks must return quickly (§5: "≤1 ms typical"); everything heavy —
// actuator writes, safe-state drives — is queued, never done inline.
package fieldbus

import (
	"sync"

	"github.com/watertreat/rtu/alarms"
	"github.com/watertreat/rtu/bus"
	"github.com/watertreat/rtu/errcode"
	"github.com/watertreat/rtu/logx"
	"github.com/watertreat/rtu/sensors"
	"github.com/watertreat/rtu/types"
	"github.com/watertreat/rtu/x/timex"
)

// State is the adapter's connection-lifecycle position (§4.4 table).
type State string

const (
	StateIdle           State = "idle"
	StateParameterising State = "parameterising"
	StateWaitAppReady   State = "wait_app_ready"
	StateRunning        State = "running"
)

// ControlSignal is the process-level request emitted for controller
// factory-reset / reload commands (§4.4 "Device identification"); the
// adapter does not manage the lifecycle itself.
type ControlSignal string

const (
	SignalReload  ControlSignal = "reload"
	SignalRestart ControlSignal = "restart"
)

// expectedPlug is one module/submodule announced by the controller during
// parameterisation.
type expectedPlug struct {
	Slot     int
	Subslot  int
	ModuleID uint32
}

// SafeStater drives every actuator to its safe state; satisfied by
// *alarms.Dispatcher.
type SafeStater interface {
	SafeStateAll(source string)
}

// Adapter is the IO-Device participant. One instance per process, built
// in cmd/rtu and handed its collaborators; the vendor stack invokes the
// Handle* / cyclic methods from its own thread.
type Adapter struct {
	log   *logx.Logger
	table *sensors.Table
	queue *alarms.Queue
	safe  SafeStater
	conn  *bus.Connection // optional; retained state publishes
	im0   IM0

	// LED toggles the identification output; Signal emits reload/restart.
	// Both are optional external collaborators.
	LED    func(on bool)
	Signal func(sig ControlSignal)

	mu      sync.Mutex
	state   State
	plugs   []expectedPlug
	sensors map[int]int64 // input slot -> sensor id

	inputs  ioBuffers
	outputs ioBuffers
}

// NewAdapter wires an Adapter. table supplies sensor values for cyclic
// input; queue receives decoded actuator commands; safe drives the
// safe-state sweep on abort. conn may be nil.
func NewAdapter(log *logx.Logger, table *sensors.Table, queue *alarms.Queue, safe SafeStater, conn *bus.Connection, im0 IM0) *Adapter {
	return &Adapter{
		log:     log,
		table:   table,
		queue:   queue,
		safe:    safe,
		conn:    conn,
		im0:     im0,
		state:   StateIdle,
		sensors: make(map[int]int64),
	}
}

// MapSensor binds an input slot to the sensor whose float it carries.
func (a *Adapter) MapSensor(slot int, sensorID int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if types.IsSensorSlot(slot) {
		a.sensors[slot] = sensorID
	}
}

// State reports the current connection state.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Adapter) setState(s State, status string) {
	a.state = s
	a.log.Info().Str("state", string(s)).Str("status", status).Log("fieldbus state")
	if a.conn != nil {
		a.conn.PublishState("fieldbus", types.ServiceState{
			Level:  string(s),
			Status: status,
			TSMs:   timex.NowMs(),
		})
	}
}

// HandleStartup is the stack's startup event: Idle -> Parameterising.
func (a *Adapter) HandleStartup() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateIdle {
		return &errcode.E{C: errcode.InvalidState, Op: "fieldbus.HandleStartup", Msg: string(a.state)}
	}
	a.plugs = a.plugs[:0]
	a.setState(StateParameterising, "startup")
	return nil
}

// HandleExpectedSubmodule records one entry of the controller's expected
// plug list; each valid entry is accepted (§4.4 Parameterising row).
func (a *Adapter) HandleExpectedSubmodule(slot, subslot int, moduleID uint32) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateParameterising {
		return &errcode.E{C: errcode.InvalidState, Op: "fieldbus.HandleExpectedSubmodule", Msg: string(a.state)}
	}
	if !types.IsSensorSlot(slot) && !types.IsActuatorSlot(slot) {
		return &errcode.E{C: errcode.InvalidParam, Op: "fieldbus.HandleExpectedSubmodule", Msg: "slot out of range"}
	}
	a.plugs = append(a.plugs, expectedPlug{Slot: slot, Subslot: subslot, ModuleID: moduleID})
	return nil
}

// HandlePrmEnd ends parameterisation: build per-slot buffers and seed the
// inputs with last-known sensor floats (§4.4 WaitAppReady row).
func (a *Adapter) HandlePrmEnd() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateParameterising {
		return &errcode.E{C: errcode.InvalidState, Op: "fieldbus.HandlePrmEnd", Msg: string(a.state)}
	}
	a.inputs.clear()
	a.outputs.clear()
	for slot, id := range a.sensors {
		if r, ok := a.table.Get(id); ok {
			a.inputs.set(slot, types.EncodeSensorSlot(float32(r.Value)), iopsFor(r.Status))
		}
	}
	a.setState(StateWaitAppReady, "prm_end")
	return nil
}

// HandleAppReady is the controller's application-ready: cyclic exchange
// begins.
func (a *Adapter) HandleAppReady() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateWaitAppReady {
		return &errcode.E{C: errcode.InvalidState, Op: "fieldbus.HandleAppReady", Msg: string(a.state)}
	}
	a.setState(StateRunning, "app_ready")
	return nil
}

// HandleAbort drops the connection: buffered outputs are discarded and
// every actuator is queued to its safe state; the internal pipeline keeps
// running (§4.4 "Connection faults", Scenario F).
func (a *Adapter) HandleAbort() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.outputs.clear()
	a.plugs = a.plugs[:0]
	if a.safe != nil {
		a.safe.SafeStateAll("fieldbus:abort")
	}
	a.setState(StateIdle, "abort")
}

// HandleRelease is the controller's orderly release; same path as abort.
func (a *Adapter) HandleRelease() {
	a.HandleAbort()
}

// iopsFor maps a sensor status onto the provider state: only an ok
// reading is good; error/out_of_range values are still published with
// IOPS bad (§4.4 Running row: the supervisor sees the tripping value).
func iopsFor(s types.Status) IOPS {
	if s == types.StatusOK {
		return IOPSGood
	}
	return IOPSBad
}

// PublishInputs writes the tick's sensor snapshot into the input buffers.
// It is called by the tick driver with the same snapshot C3 evaluated, so
// a tick never publishes half-updated IO data (§5 "Ordering guarantees").
func (a *Adapter) PublishInputs(snapshot map[int64]types.Reading) {
	a.mu.Lock()
	slots := make(map[int]int64, len(a.sensors))
	for slot, id := range a.sensors {
		slots[slot] = id
	}
	a.mu.Unlock()

	for slot, id := range slots {
		if r, ok := snapshot[id]; ok {
			a.inputs.set(slot, types.EncodeSensorSlot(float32(r.Value)), iopsFor(r.Status))
		}
	}
}

// ProduceInput is the cyclic input callback: the stack collects slot's
// current 4-byte payload and provider status. Constant time, no locks on
// the buffer itself.
func (a *Adapter) ProduceInput(slot int) ([types.SlotPayloadSize]byte, IOPS) {
	return a.inputs.get(slot)
}

// ConsumeOutput is the cyclic output callback: decode the actuator
// command and post it to C3's command queue (§4.4 Running row). It never
// blocks; a full queue drops the command.
func (a *Adapter) ConsumeOutput(slot int, payload [types.SlotPayloadSize]byte) error {
	a.mu.Lock()
	running := a.state == StateRunning
	a.mu.Unlock()
	if !running {
		return &errcode.E{C: errcode.InvalidState, Op: "fieldbus.ConsumeOutput"}
	}
	if !types.IsActuatorSlot(slot) {
		return &errcode.E{C: errcode.InvalidParam, Op: "fieldbus.ConsumeOutput", Msg: "not an actuator slot"}
	}

	prev, prevIOPS := a.outputs.get(slot)
	a.outputs.set(slot, payload, IOPSGood)
	if prevIOPS == IOPSGood && prev == payload {
		return nil // unchanged output; nothing to dispatch
	}

	kind, duty := types.DecodeActuatorSlot(payload)
	if kind > types.CommandPWM {
		return &errcode.E{C: errcode.InvalidParam, Op: "fieldbus.ConsumeOutput", Msg: "unknown command kind"}
	}
	a.queue.Post(alarms.Command{Slot: slot, Kind: kind, Duty: duty, Source: "fieldbus"})
	return nil
}

// ReadRecord serves acyclic record reads: index 0x8000 returns the I&M0
// buffer, 0x8001-0x8004 are not supported (length 0), anything else
// returns 0 bytes (§4.4 "Read handlers").
func (a *Adapter) ReadRecord(slot, subslot int, index uint16) []byte {
	if index == IM0Index {
		b := a.im0.Encode()
		return b[:]
	}
	return nil
}

// WriteRecord handles acyclic writes: a parameter write (index below
// 0x8000) is logged and accepted without mutating configuration (§4.4
// "Write handlers"); record-space writes are not supported.
func (a *Adapter) WriteRecord(slot, subslot int, index uint16, data []byte) error {
	if index >= IM0Index {
		return &errcode.E{C: errcode.NotSupported, Op: "fieldbus.WriteRecord"}
	}
	a.log.Debug().
		Int("slot", slot).
		Int("subslot", subslot).
		Int("index", int(index)).
		Int("len", len(data)).
		Log("parameter write accepted")
	return nil
}

// HandleSignalLED toggles the identification output for the controller's
// "signal LED" request.
func (a *Adapter) HandleSignalLED(on bool) {
	if a.LED != nil {
		a.LED(on)
	}
}

// HandleControl emits the process-level signal for a factory reset or
// configuration reload request.
func (a *Adapter) HandleControl(sig ControlSignal) {
	a.log.Info().Str("signal", string(sig)).Log("controller control request")
	if a.Signal != nil {
		a.Signal(sig)
	}
}
