package sensors

import (
	"fmt"

	"github.com/watertreat/rtu/calc"
	"github.com/watertreat/rtu/types"
)

// CalculatedHandle evaluates a compiled formula over the live values of its
// named input sensors on each Read, satisfying module_type=calculated
// (§3, §9 "Formula evaluation"). It implements hal.Handle so a calculated
// sensor is scheduled exactly like any bus-backed one.
type CalculatedHandle struct {
	expr   *calc.Expr
	inputs []int64 // sensor ids, in calc.Expr.Vars() order
	table  *Table
}

// NewCalculatedHandle compiles cfg.Formula against cfg.FormulaArgs (named
// sensor refs, in bind order) and resolves each name to its sensor id via
// resolve. inputs must already be registered in table.
func NewCalculatedHandle(cfg types.SensorConfig, resolve func(name string) (int64, bool), table *Table) (*CalculatedHandle, error) {
	expr, err := calc.Compile(cfg.Formula, cfg.FormulaArgs)
	if err != nil {
		return nil, err
	}
	inputs := make([]int64, len(expr.Vars()))
	for i, name := range expr.Vars() {
		id, ok := resolve(name)
		if !ok {
			return nil, fmt.Errorf("sensors: calculated sensor input %q not found", name)
		}
		inputs[i] = id
	}
	return &CalculatedHandle{expr: expr, inputs: inputs, table: table}, nil
}

// Read implements hal.Handle: it gathers the current value of every input
// sensor (the last published reading, stale or not — C3/C4 only ever see
// the same kind of snapshot) and evaluates the formula.
func (h *CalculatedHandle) Read() (float64, types.Status, error) {
	args := make([]float64, len(h.inputs))
	status := types.StatusOK
	for i, id := range h.inputs {
		r, ok := h.table.Get(id)
		if !ok {
			status = types.StatusError
			continue
		}
		args[i] = r.Value
		if r.Status != types.StatusOK {
			status = types.StatusOutOfRange
		}
	}
	v, err := h.expr.Eval(args)
	if err != nil {
		return 0, types.StatusError, err
	}
	return v, status, nil
}

// Close is a no-op: a calculated sensor owns no hardware resource.
func (h *CalculatedHandle) Close() error { return nil }
