// Package alarms implements C3 "Alarm & Interlock Engine": per-tick rule
// evaluation with hysteresis, raise/clear history, and queued interlock
// dispatch to actuators (§4.3).
package alarms

import (
	"fmt"
	"sort"
	"sync"

	"github.com/watertreat/rtu/types"
)

// ruleRuntime is the engine's mutable per-rule evaluation state.
type ruleRuntime struct {
	rule  types.AlarmRule
	state types.RuleState
	// previous sample, for rate_of_change rules
	prevValue float64
	prevTsMs  int64
	havePrev  bool
}

// Engine evaluates alarm rules against the latest sensor snapshot on every
// pipeline tick (§4.3). Rules are mutable without pausing the cycle;
// changes take effect on the next evaluation (§3 "Lifecycle").
type Engine struct {
	mu    sync.Mutex
	rules map[int64]*ruleRuntime
	spans map[int64]types.Range // sensor id -> reference range, for the hysteresis band
	hist  *History
	queue *Queue
}

// NewEngine builds an Engine raising into hist and dispatching interlock
// commands into queue.
func NewEngine(hist *History, queue *Queue) *Engine {
	return &Engine{
		rules: make(map[int64]*ruleRuntime),
		spans: make(map[int64]types.Range),
		hist:  hist,
		queue: queue,
	}
}

// SetRule installs or replaces a rule. Replacing a rule keeps its current
// armed/tripped state so an edit does not spuriously re-raise.
func (e *Engine) SetRule(rule types.AlarmRule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rt, ok := e.rules[rule.ID]; ok {
		rt.rule = rule
		return
	}
	e.rules[rule.ID] = &ruleRuntime{rule: rule, state: types.StateNormal}
}

// RemoveRule drops a rule from evaluation. Any non-cleared instance stays
// in history until cleared by an operator or retention.
func (e *Engine) RemoveRule(id int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.rules, id)
}

// SetSensorRange records a sensor's reference range; the hysteresis band
// is a percent of this span (§4.3 "percent of the rule's active span").
func (e *Engine) SetSensorRange(sensorID int64, r types.Range) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.spans[sensorID] = r
}

// RuleState reports a rule's current evaluation state, for diagnostics.
func (e *Engine) RuleState(id int64) (types.RuleState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rt, ok := e.rules[id]
	if !ok {
		return "", false
	}
	return rt.state, true
}

// pendingInterlock is an interlock raised during one Evaluate pass, held
// back until the whole tick is evaluated so same-tick conflicts can be
// resolved by severity then rule id (§4.3 "Ordering guarantee").
type pendingInterlock struct {
	ruleID   int64
	severity types.Severity
	cmd      Command
}

// Evaluate runs every enabled rule against snapshot, in stable rule-id
// order, raising/clearing instances and queueing interlock commands.
// snapshot is the consistent per-tick view the sensor table produced (§5).
func (e *Engine) Evaluate(snapshot map[int64]types.Reading) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]int64, 0, len(e.rules))
	for id := range e.rules {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var pending []pendingInterlock
	for _, id := range ids {
		rt := e.rules[id]
		if !rt.rule.Enabled {
			continue
		}
		r, ok := snapshot[rt.rule.SensorID]
		if !ok || r.Status == types.StatusError || r.Status == types.StatusTimeout {
			// no usable value this tick; hold state
			continue
		}
		pending = e.evaluateOne(rt, r, pending)
	}

	e.queueResolved(pending)
}

// evaluateOne advances one rule's state machine and records any raise,
// clear, or interlock side effect.
func (e *Engine) evaluateOne(rt *ruleRuntime, r types.Reading, pending []pendingInterlock) []pendingInterlock {
	v := r.Value
	if rt.rule.Condition == types.ConditionRateOfChange {
		rate, ok := e.rateOf(rt, r)
		if !ok {
			return pending
		}
		v = rate
	}

	prev := rt.state
	next := e.nextState(rt.rule, prev, v)
	rt.state = next

	if prev == types.StateNormal && next.Alarmed() {
		if e.hist != nil {
			e.hist.Raise(rt.rule, next, r.Value, raiseMessage(rt.rule, next, r.Value))
		}
		if il := rt.rule.Interlock; il != nil {
			pending = append(pending, pendingInterlock{
				ruleID:   rt.rule.ID,
				severity: rt.rule.Severity,
				cmd:      interlockCommand(*il, rt.rule.ID),
			})
		}
	}
	if prev.Alarmed() && next == types.StateNormal {
		if rt.rule.AutoClear && e.hist != nil {
			e.hist.ClearRule(rt.rule.ID)
		}
		if il := rt.rule.Interlock; il != nil && il.ReleaseOnClear {
			pending = append(pending, pendingInterlock{
				ruleID:   rt.rule.ID,
				severity: rt.rule.Severity,
				cmd: Command{
					Slot:   il.TargetSlot,
					Safe:   true,
					Source: fmt.Sprintf("interlock:rule=%d:release", rt.rule.ID),
				},
			})
		}
	}
	return pending
}

// rateOf computes the per-second rate of change against the previous
// sample, seeding on first sight.
func (e *Engine) rateOf(rt *ruleRuntime, r types.Reading) (float64, bool) {
	if !rt.havePrev || r.TsMs <= rt.prevTsMs {
		rt.prevValue, rt.prevTsMs, rt.havePrev = r.Value, r.TsMs, true
		return 0, false
	}
	dt := float64(r.TsMs-rt.prevTsMs) / 1000.0
	rate := (r.Value - rt.prevValue) / dt
	rt.prevValue, rt.prevTsMs = r.Value, r.TsMs
	return rate, true
}

// nextState is the §4.3 transition table, evaluated in order. The critical
// bounds (rows 1 and 2) are plain thresholds; hysteresis applies only on
// the high/low rows, materialised as an absolute band from the rule's
// active span.
func (e *Engine) nextState(rule types.AlarmRule, cur types.RuleState, v float64) types.RuleState {
	if rule.HasHighHigh && v >= rule.HighHigh {
		return types.StateHighHigh
	}
	if rule.HasLowLow && v <= rule.LowLow {
		return types.StateLowLow
	}

	band := e.hysteresisBand(rule)
	highBound := rule.Condition == types.ConditionAbove || rule.Condition == types.ConditionOutOfRange || rule.Condition == types.ConditionRateOfChange
	lowBound := rule.Condition == types.ConditionBelow || rule.Condition == types.ConditionOutOfRange

	if highBound {
		if cur == types.StateHigh || cur == types.StateHighHigh {
			if v >= rule.High-band {
				return types.StateHigh
			}
		} else if v >= rule.High {
			return types.StateHigh
		}
	}
	if lowBound {
		if cur == types.StateLow || cur == types.StateLowLow {
			if v <= rule.Low+band {
				return types.StateLow
			}
		} else if v <= rule.Low {
			return types.StateLow
		}
	}
	return types.StateNormal
}

// hysteresisBand materialises the rule's integer-percent hysteresis as an
// absolute band over its active span: the bound sensor's reference range
// when configured, otherwise the low..high threshold span.
func (e *Engine) hysteresisBand(rule types.AlarmRule) float64 {
	if rule.HysteresisPct <= 0 {
		return 0
	}
	span := 0.0
	if r, ok := e.spans[rule.SensorID]; ok && r.Enabled() {
		span = r.Max - r.Min
	} else if rule.High > rule.Low {
		span = rule.High - rule.Low
	}
	return span * float64(rule.HysteresisPct) / 100.0
}

// queueResolved applies the same-tick conflict policy: commands are sorted
// by severity (critical first), ties by lower rule id, and only the winner
// per target slot is queued; the winners are posted in issue (evaluation)
// order.
func (e *Engine) queueResolved(pending []pendingInterlock) {
	if len(pending) == 0 || e.queue == nil {
		return
	}
	ranked := append([]pendingInterlock(nil), pending...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].severity.Rank() != ranked[j].severity.Rank() {
			return ranked[i].severity.Rank() > ranked[j].severity.Rank()
		}
		return ranked[i].ruleID < ranked[j].ruleID
	})
	winner := make(map[int]int64, len(ranked))
	for _, p := range ranked {
		if _, taken := winner[p.cmd.Slot]; !taken {
			winner[p.cmd.Slot] = p.ruleID
		}
	}
	for _, p := range pending {
		if winner[p.cmd.Slot] == p.ruleID {
			e.queue.Post(p.cmd)
		}
	}
}

// interlockCommand maps an interlock action onto a queued Command.
func interlockCommand(il types.Interlock, ruleID int64) Command {
	cmd := Command{
		Slot:   il.TargetSlot,
		Source: fmt.Sprintf("interlock:rule=%d", ruleID),
	}
	switch il.Action {
	case types.ActionForceOn:
		cmd.Kind = types.CommandOn
	case types.ActionSetPWM:
		cmd.Kind = types.CommandPWM
		cmd.Duty = il.Duty
	default:
		cmd.Kind = types.CommandOff
	}
	return cmd
}

// raiseMessage formats the operator-facing message stored on the instance.
func raiseMessage(rule types.AlarmRule, state types.RuleState, v float64) string {
	switch state {
	case types.StateHighHigh:
		return fmt.Sprintf("%s: value %.4g reached critical high %.4g", rule.Name, v, rule.HighHigh)
	case types.StateLowLow:
		return fmt.Sprintf("%s: value %.4g reached critical low %.4g", rule.Name, v, rule.LowLow)
	case types.StateHigh:
		return fmt.Sprintf("%s: value %.4g above %.4g", rule.Name, v, rule.High)
	case types.StateLow:
		return fmt.Sprintf("%s: value %.4g below %.4g", rule.Name, v, rule.Low)
	default:
		return fmt.Sprintf("%s: value %.4g", rule.Name, v)
	}
}
