package store

// schemaStatements is the §6 table set. All numeric types are integers and
// doubles; timestamps are UNIX epoch seconds (INTEGER). Unique indexes
// back the conflict checks enforced in Go by conflict.go; they are a
// backstop, not the primary enforcement mechanism.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS modules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		slot INTEGER NOT NULL UNIQUE,
		subslot INTEGER NOT NULL DEFAULT 1,
		module_type TEXT NOT NULL,
		poll_ms INTEGER NOT NULL,
		unit TEXT NOT NULL DEFAULT '',
		range_min REAL NOT NULL DEFAULT 0,
		range_max REAL NOT NULL DEFAULT 0,
		filter_alpha REAL NOT NULL DEFAULT 0,
		calibration_json TEXT NOT NULL DEFAULT '{}',
		formula TEXT NOT NULL DEFAULT '',
		formula_args_json TEXT NOT NULL DEFAULT '[]'
	)`,

	`CREATE TABLE IF NOT EXISTS physical_sensors (
		module_id INTEGER PRIMARY KEY REFERENCES modules(id) ON DELETE CASCADE,
		interface TEXT NOT NULL,
		bus INTEGER NOT NULL DEFAULT 0,
		address TEXT NOT NULL DEFAULT '',
		chip TEXT NOT NULL DEFAULT '',
		pin INTEGER NOT NULL DEFAULT -1
	)`,

	`CREATE TABLE IF NOT EXISTS adc_sensors (
		module_id INTEGER PRIMARY KEY REFERENCES modules(id) ON DELETE CASCADE,
		channel INTEGER NOT NULL,
		gain REAL NOT NULL DEFAULT 1,
		vref REAL NOT NULL DEFAULT 3.3
	)`,

	`CREATE TABLE IF NOT EXISTS actuators (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		slot INTEGER NOT NULL UNIQUE,
		subslot INTEGER NOT NULL DEFAULT 1,
		actuator_type TEXT NOT NULL,
		pin INTEGER NOT NULL,
		chip TEXT NOT NULL,
		active_low INTEGER NOT NULL DEFAULT 0,
		safe_state TEXT NOT NULL DEFAULT 'off',
		enabled INTEGER NOT NULL DEFAULT 1,
		pwm_freq_hz INTEGER NOT NULL DEFAULT 0,
		pwm_max_duty INTEGER NOT NULL DEFAULT 255
	)`,

	`CREATE TABLE IF NOT EXISTS alarm_rules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		sensor_id INTEGER NOT NULL REFERENCES modules(id) ON DELETE CASCADE,
		condition TEXT NOT NULL,
		low REAL NOT NULL DEFAULT 0,
		high REAL NOT NULL DEFAULT 0,
		low_low REAL NOT NULL DEFAULT 0,
		high_high REAL NOT NULL DEFAULT 0,
		has_low_low INTEGER NOT NULL DEFAULT 0,
		has_high_high INTEGER NOT NULL DEFAULT 0,
		severity TEXT NOT NULL,
		hysteresis_pct INTEGER NOT NULL DEFAULT 0,
		auto_clear INTEGER NOT NULL DEFAULT 1,
		enabled INTEGER NOT NULL DEFAULT 1,
		interlock_json TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS alarm_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		rule_id INTEGER NOT NULL REFERENCES alarm_rules(id) ON DELETE CASCADE,
		sensor_id INTEGER NOT NULL,
		severity TEXT NOT NULL,
		state TEXT NOT NULL,
		raised_at INTEGER NOT NULL,
		acknowledged_at INTEGER NOT NULL DEFAULT 0,
		cleared_at INTEGER NOT NULL DEFAULT 0,
		acknowledged_by TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		trigger_value REAL NOT NULL DEFAULT 0
	)`,

	`CREATE INDEX IF NOT EXISTS idx_alarm_history_rule ON alarm_history(rule_id)`,
	`CREATE INDEX IF NOT EXISTS idx_alarm_history_raised_at ON alarm_history(raised_at)`,
}
