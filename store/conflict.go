package store

import (
	"context"
	"database/sql"

	"github.com/watertreat/rtu/errcode"
)

// checkNameUnique returns ErrAlreadyExists if name is already used by a
// sensor or an actuator other than excludeID (0 means "no exclusion",
// i.e. this is a create, not an update).
func (s *Store) checkNameUnique(ctx context.Context, tx *sql.Tx, table string, name string, excludeID int64) error {
	var count int
	err := tx.QueryRowContext(ctx,
		`SELECT count(*) FROM (
			SELECT id FROM modules WHERE name = ? AND id != ?
			UNION ALL
			SELECT id FROM actuators WHERE name = ? AND id != ?
		)`, name, excludeID, name, excludeID).Scan(&count)
	if err != nil {
		return &errcode.E{C: errcode.IoError, Op: "store.checkNameUnique", Err: err}
	}
	if count > 0 {
		return &errcode.E{C: errcode.AlreadyExists, Op: "store." + table, Msg: "name already in use: " + name}
	}
	return nil
}

// checkSlotUnique returns ErrAlreadyExists if slot is already occupied in
// table (modules or actuators), excluding excludeID.
func (s *Store) checkSlotUnique(ctx context.Context, tx *sql.Tx, table string, slot int, excludeID int64) error {
	var count int
	err := tx.QueryRowContext(ctx,
		`SELECT count(*) FROM `+table+` WHERE slot = ? AND id != ?`, slot, excludeID).Scan(&count)
	if err != nil {
		return &errcode.E{C: errcode.IoError, Op: "store.checkSlotUnique", Err: err}
	}
	if count > 0 {
		return &errcode.E{C: errcode.AlreadyExists, Op: "store." + table, Msg: "slot already in use"}
	}
	return nil
}

// checkPinUnique enforces "at most one sensor-or-actuator per (chip, pin)"
// (§3 Actuator invariants), excluding the given module/actuator id from
// whichever table owns it.
func (s *Store) checkPinUnique(ctx context.Context, tx *sql.Tx, chip string, pin int, excludeModuleID, excludeActuatorID int64) error {
	if pin < 0 {
		return nil // not a GPIO-backed binding
	}
	var count int
	err := tx.QueryRowContext(ctx,
		`SELECT count(*) FROM (
			SELECT module_id AS id FROM physical_sensors WHERE chip = ? AND pin = ? AND module_id != ?
			UNION ALL
			SELECT id FROM actuators WHERE chip = ? AND pin = ? AND id != ?
		)`, chip, pin, excludeModuleID, chip, pin, excludeActuatorID).Scan(&count)
	if err != nil {
		return &errcode.E{C: errcode.IoError, Op: "store.checkPinUnique", Err: err}
	}
	if count > 0 {
		return errcode.ErrPinInUse("store.checkPinUnique", chip)
	}
	return nil
}
