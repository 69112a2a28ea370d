package alarms

import (
	"context"
	"sync"
	"time"

	"github.com/watertreat/rtu/hal"
	"github.com/watertreat/rtu/logx"
	"github.com/watertreat/rtu/ratelimit"
	"github.com/watertreat/rtu/types"
)

// Command is one queued actuator request, addressed by fieldbus slot. It
// is produced by the engine's interlock dispatch (§4.3) and by the
// fieldbus adapter's cyclic output decode (§4.4: "post it to C3's command
// queue"), and consumed by the Dispatcher.
type Command struct {
	Slot int
	Kind types.CommandKind
	Duty uint8
	// Safe requests the actuator's configured safe state instead of an
	// explicit kind/duty; used for interlock release and connection abort.
	Safe   bool
	Source string
}

const queueLen = 64

// Queue decouples command issue from bus application so a slow output
// operation never delays rule evaluation (§4.3 "queued, not applied
// inline").
type Queue struct {
	ch   chan Command
	gate *ratelimit.Gate
	log  *logx.Logger
}

// NewQueue builds a Queue; log receives a rate-limited warning when the
// queue overflows and a command is dropped.
func NewQueue(log *logx.Logger) *Queue {
	return &Queue{
		ch:   make(chan Command, queueLen),
		gate: ratelimit.NewGate(30 * time.Second),
		log:  log,
	}
}

// Post enqueues cmd without blocking; on overflow the command is dropped
// with a suppressed warning, since the dispatcher will re-converge on the
// next command for the slot.
func (q *Queue) Post(cmd Command) {
	select {
	case q.ch <- cmd:
	default:
		if _, ok := q.gate.Allow("alarms:queue_full"); ok {
			q.log.Warning().Int("slot", cmd.Slot).Str("source", cmd.Source).Log("actuator command queue full, dropping")
		}
	}
}

// TryNext pops the next queued command without blocking; ok is false when
// the queue is empty. The Dispatcher consumes via Run; TryNext serves
// diagnostics and tests.
func (q *Queue) TryNext() (Command, bool) {
	select {
	case cmd := <-q.ch:
		return cmd, true
	default:
		return Command{}, false
	}
}

// boundActuator pairs an actuator's configuration with its driver handle
// and tracked runtime state.
type boundActuator struct {
	cfg     types.ActuatorConfig
	handle  hal.ActuatorHandle
	runtime types.ActuatorRuntime
}

// Dispatcher applies queued commands to bound actuator handles, one at a
// time in issue order (§4.3 "Interlock commands are applied in issue
// order"). It is the single consumer of the Queue and the only writer of
// actuator runtime state.
type Dispatcher struct {
	log   *logx.Logger
	queue *Queue
	gate  *ratelimit.Gate

	mu    sync.Mutex
	slots map[int]*boundActuator
}

// NewDispatcher builds a Dispatcher consuming queue.
func NewDispatcher(log *logx.Logger, queue *Queue) *Dispatcher {
	return &Dispatcher{
		log:   log,
		queue: queue,
		gate:  ratelimit.NewGate(30 * time.Second),
		slots: make(map[int]*boundActuator),
	}
}

// BindSlot registers a bound actuator under its fieldbus slot.
func (d *Dispatcher) BindSlot(cfg types.ActuatorConfig, h hal.ActuatorHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.slots[cfg.Slot] = &boundActuator{cfg: cfg, handle: h}
}

// Runtime reports the tracked state for a slot, for diagnostics and the
// fieldbus input of actuator echo data.
func (d *Dispatcher) Runtime(slot int) (types.ActuatorRuntime, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ba, ok := d.slots[slot]
	if !ok {
		return types.ActuatorRuntime{}, false
	}
	return ba.runtime, true
}

// Run consumes the queue until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-d.queue.ch:
			d.apply(cmd)
		}
	}
}

// SafeStateAll drives every bound actuator to its configured safe state,
// used on fieldbus Abort (§4.4 "Connection faults", Scenario F). The
// commands go through the queue so they serialize with in-flight work.
func (d *Dispatcher) SafeStateAll(source string) {
	d.mu.Lock()
	slots := make([]int, 0, len(d.slots))
	for slot := range d.slots {
		slots = append(slots, slot)
	}
	d.mu.Unlock()
	for _, slot := range slots {
		d.queue.Post(Command{Slot: slot, Safe: true, Source: source})
	}
}

// apply resolves and executes one command against its slot's handle.
func (d *Dispatcher) apply(cmd Command) {
	d.mu.Lock()
	ba, ok := d.slots[cmd.Slot]
	d.mu.Unlock()
	if !ok {
		if _, allow := d.gate.Allow("alarms:unknown_slot"); allow {
			d.log.Warning().Int("slot", cmd.Slot).Str("source", cmd.Source).Log("command for unbound actuator slot")
		}
		return
	}
	if !ba.cfg.Enabled {
		return
	}

	kind, duty, ok := d.resolve(ba, cmd)
	if !ok {
		return // safe state "hold": keep the current output
	}
	if ba.cfg.Type == types.ActuatorPWM && ba.cfg.PWMMaxDuty > 0 && duty > ba.cfg.PWMMaxDuty {
		duty = ba.cfg.PWMMaxDuty
	}

	err := ba.handle.Apply(types.Command{
		ActuatorID: ba.cfg.ID,
		Kind:       kind,
		Duty:       duty,
		Source:     cmd.Source,
	})

	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		ba.runtime.Fault = true
		if _, allow := d.gate.Allow("alarms:apply:" + ba.cfg.Name); allow {
			d.log.Err().Err(err).Str("actuator", ba.cfg.Name).Log("actuator apply failed")
		}
		return
	}
	ba.runtime = types.ActuatorRuntime{Command: kind, Duty: duty, ChangedAt: time.Now()}
}

// resolve turns a Safe command into the slot's concrete safe output; the
// third result is false when safe state is "hold" (keep last output).
func (d *Dispatcher) resolve(ba *boundActuator, cmd Command) (types.CommandKind, uint8, bool) {
	if !cmd.Safe {
		return cmd.Kind, cmd.Duty, true
	}
	switch ba.cfg.SafeState {
	case types.SafeOn:
		return types.CommandOn, 0, true
	case types.SafeHold:
		return 0, 0, false
	default:
		return types.CommandOff, 0, true
	}
}
