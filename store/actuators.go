package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/watertreat/rtu/errcode"
	"github.com/watertreat/rtu/types"
)

// CreateActuator inserts cfg, rejecting name, slot, and pin conflicts.
func (s *Store) CreateActuator(ctx context.Context, cfg types.ActuatorConfig) (int64, error) {
	if cfg.Slot < types.SlotActuatorMin || cfg.Slot > types.SlotActuatorMax {
		return 0, &errcode.E{C: errcode.InvalidParam, Op: "store.CreateActuator", Msg: "slot out of range 9-16"}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &errcode.E{C: errcode.IoError, Op: "store.CreateActuator", Err: err}
	}
	defer tx.Rollback()

	if err := s.checkNameUnique(ctx, tx, "actuators", cfg.Name, 0); err != nil {
		return 0, err
	}
	if err := s.checkSlotUnique(ctx, tx, "actuators", cfg.Slot, 0); err != nil {
		return 0, err
	}
	if err := s.checkPinUnique(ctx, tx, cfg.Chip, cfg.Pin, 0, 0); err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO actuators (name, slot, subslot, actuator_type, pin, chip, active_low, safe_state, enabled, pwm_freq_hz, pwm_max_duty)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.Name, cfg.Slot, 1, string(cfg.Type), cfg.Pin, cfg.Chip, boolToInt(cfg.ActiveLow), string(cfg.SafeState), boolToInt(cfg.Enabled), cfg.PWMFreqHz, cfg.PWMMaxDuty)
	if err != nil {
		return 0, &errcode.E{C: errcode.IoError, Op: "store.CreateActuator", Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, &errcode.E{C: errcode.IoError, Op: "store.CreateActuator", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return 0, &errcode.E{C: errcode.IoError, Op: "store.CreateActuator", Err: err}
	}
	return id, nil
}

// GetActuator loads one actuator by id.
func (s *Store) GetActuator(ctx context.Context, id int64) (types.ActuatorConfig, error) {
	var cfg types.ActuatorConfig
	var activeLow, enabled int
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, slot, subslot, actuator_type, pin, chip, active_low, safe_state, enabled, pwm_freq_hz, pwm_max_duty
		 FROM actuators WHERE id = ?`, id)
	if err := row.Scan(&cfg.ID, &cfg.Name, &cfg.Slot, &cfg.Subslot, &cfg.Type, &cfg.Pin, &cfg.Chip, &activeLow, &cfg.SafeState, &enabled, &cfg.PWMFreqHz, &cfg.PWMMaxDuty); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cfg, &errcode.E{C: errcode.NotFound, Op: "store.GetActuator"}
		}
		return cfg, &errcode.E{C: errcode.IoError, Op: "store.GetActuator", Err: err}
	}
	cfg.ActiveLow = activeLow != 0
	cfg.Enabled = enabled != 0
	return cfg, nil
}

// ListActuators returns every configured actuator in slot order.
func (s *Store) ListActuators(ctx context.Context) ([]types.ActuatorConfig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM actuators ORDER BY slot`)
	if err != nil {
		return nil, &errcode.E{C: errcode.IoError, Op: "store.ListActuators", Err: err}
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, &errcode.E{C: errcode.IoError, Op: "store.ListActuators", Err: err}
		}
		ids = append(ids, id)
	}

	out := make([]types.ActuatorConfig, 0, len(ids))
	for _, id := range ids {
		cfg, err := s.GetActuator(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

// DeleteActuator removes an actuator configuration.
func (s *Store) DeleteActuator(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM actuators WHERE id = ?`, id)
	if err != nil {
		return &errcode.E{C: errcode.IoError, Op: "store.DeleteActuator", Err: err}
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &errcode.E{C: errcode.NotFound, Op: "store.DeleteActuator"}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
