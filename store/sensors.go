package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/watertreat/rtu/errcode"
	"github.com/watertreat/rtu/types"
)

// CreateSensorModule inserts cfg and its physical/ADC binding row,
// rejecting name, slot, and pin conflicts (§3 invariants; §6 "conflict
// detection ... is enforced by the core").
func (s *Store) CreateSensorModule(ctx context.Context, cfg types.SensorConfig) (int64, error) {
	if cfg.Slot < types.SlotSensorMin || cfg.Slot > types.SlotSensorMax {
		return 0, &errcode.E{C: errcode.InvalidParam, Op: "store.CreateSensorModule", Msg: "slot out of range 1-8"}
	}
	if cfg.PollMS < 10 {
		return 0, &errcode.E{C: errcode.InvalidParam, Op: "store.CreateSensorModule", Msg: "poll_ms must be >= 10"}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &errcode.E{C: errcode.IoError, Op: "store.CreateSensorModule", Err: err}
	}
	defer tx.Rollback()

	if err := s.checkNameUnique(ctx, tx, "modules", cfg.Name, 0); err != nil {
		return 0, err
	}
	if err := s.checkSlotUnique(ctx, tx, "modules", cfg.Slot, 0); err != nil {
		return 0, err
	}
	if cfg.Hardware.Interface == types.InterfaceGPIO {
		if err := s.checkPinUnique(ctx, tx, cfg.Hardware.Address, cfg.Hardware.Channel, 0, 0); err != nil {
			return 0, err
		}
	}

	calJSON, err := json.Marshal(cfg.Cal)
	if err != nil {
		return 0, &errcode.E{C: errcode.InvalidParam, Op: "store.CreateSensorModule", Err: err}
	}
	argsJSON, err := json.Marshal(cfg.FormulaArgs)
	if err != nil {
		return 0, &errcode.E{C: errcode.InvalidParam, Op: "store.CreateSensorModule", Err: err}
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO modules (name, slot, subslot, module_type, poll_ms, unit, range_min, range_max, filter_alpha, calibration_json, formula, formula_args_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.Name, cfg.Slot, 1, string(cfg.Type), cfg.PollMS, cfg.Unit, cfg.Range.Min, cfg.Range.Max, cfg.FilterAlpha, string(calJSON), cfg.Formula, string(argsJSON))
	if err != nil {
		return 0, &errcode.E{C: errcode.IoError, Op: "store.CreateSensorModule", Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, &errcode.E{C: errcode.IoError, Op: "store.CreateSensorModule", Err: err}
	}

	switch cfg.Type {
	case types.ModuleADC:
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO adc_sensors (module_id, channel, gain, vref) VALUES (?, ?, ?, ?)`,
			id, cfg.Hardware.Channel, cfg.Hardware.ADCGain, cfg.Hardware.ADCVRef); err != nil {
			return 0, &errcode.E{C: errcode.IoError, Op: "store.CreateSensorModule", Err: err}
		}
	case types.ModulePhysical:
		chip, pin := "", -1
		if cfg.Hardware.Interface == types.InterfaceGPIO {
			chip, pin = cfg.Hardware.Address, cfg.Hardware.Channel
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO physical_sensors (module_id, interface, bus, address, chip, pin) VALUES (?, ?, ?, ?, ?, ?)`,
			id, string(cfg.Hardware.Interface), cfg.Hardware.Bus, cfg.Hardware.Address, chip, pin); err != nil {
			return 0, &errcode.E{C: errcode.IoError, Op: "store.CreateSensorModule", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, &errcode.E{C: errcode.IoError, Op: "store.CreateSensorModule", Err: err}
	}
	return id, nil
}

// GetSensorModule loads one sensor module by id, joining its
// physical/ADC binding row when present.
func (s *Store) GetSensorModule(ctx context.Context, id int64) (types.SensorConfig, error) {
	var cfg types.SensorConfig
	var calJSON, argsJSON string
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, slot, subslot, module_type, poll_ms, unit, range_min, range_max, filter_alpha, calibration_json, formula, formula_args_json
		 FROM modules WHERE id = ?`, id)
	if err := row.Scan(&cfg.ID, &cfg.Name, &cfg.Slot, &cfg.Subslot, &cfg.Type, &cfg.PollMS, &cfg.Unit, &cfg.Range.Min, &cfg.Range.Max, &cfg.FilterAlpha, &calJSON, &cfg.Formula, &argsJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cfg, &errcode.E{C: errcode.NotFound, Op: "store.GetSensorModule"}
		}
		return cfg, &errcode.E{C: errcode.IoError, Op: "store.GetSensorModule", Err: err}
	}
	if err := json.Unmarshal([]byte(calJSON), &cfg.Cal); err != nil {
		return cfg, &errcode.E{C: errcode.IoError, Op: "store.GetSensorModule", Err: err}
	}
	if err := json.Unmarshal([]byte(argsJSON), &cfg.FormulaArgs); err != nil {
		return cfg, &errcode.E{C: errcode.IoError, Op: "store.GetSensorModule", Err: err}
	}

	switch cfg.Type {
	case types.ModuleADC:
		_ = s.db.QueryRowContext(ctx, `SELECT channel, gain, vref FROM adc_sensors WHERE module_id = ?`, id).
			Scan(&cfg.Hardware.Channel, &cfg.Hardware.ADCGain, &cfg.Hardware.ADCVRef)
	case types.ModulePhysical:
		var iface string
		_ = s.db.QueryRowContext(ctx, `SELECT interface, bus, address, pin FROM physical_sensors WHERE module_id = ?`, id).
			Scan(&iface, &cfg.Hardware.Bus, &cfg.Hardware.Address, &cfg.Hardware.Channel)
		cfg.Hardware.Interface = types.Interface(iface)
	}
	return cfg, nil
}

// ListSensorModules returns every configured sensor in slot order.
func (s *Store) ListSensorModules(ctx context.Context) ([]types.SensorConfig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM modules ORDER BY slot`)
	if err != nil {
		return nil, &errcode.E{C: errcode.IoError, Op: "store.ListSensorModules", Err: err}
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, &errcode.E{C: errcode.IoError, Op: "store.ListSensorModules", Err: err}
		}
		ids = append(ids, id)
	}

	out := make([]types.SensorConfig, 0, len(ids))
	for _, id := range ids {
		cfg, err := s.GetSensorModule(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

// DeleteSensorModule removes a sensor module and its binding row (cascade).
func (s *Store) DeleteSensorModule(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM modules WHERE id = ?`, id)
	if err != nil {
		return &errcode.E{C: errcode.IoError, Op: "store.DeleteSensorModule", Err: err}
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &errcode.E{C: errcode.NotFound, Op: "store.DeleteSensorModule"}
	}
	return nil
}
