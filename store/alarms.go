package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/watertreat/rtu/errcode"
	"github.com/watertreat/rtu/types"
)

// CreateAlarmRule persists rule, bound to an existing sensor module.
func (s *Store) CreateAlarmRule(ctx context.Context, rule types.AlarmRule) (int64, error) {
	var interlockJSON string
	if rule.Interlock != nil {
		b, err := json.Marshal(rule.Interlock)
		if err != nil {
			return 0, &errcode.E{C: errcode.InvalidParam, Op: "store.CreateAlarmRule", Err: err}
		}
		interlockJSON = string(b)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO alarm_rules (name, sensor_id, condition, low, high, low_low, high_high, has_low_low, has_high_high, severity, hysteresis_pct, auto_clear, enabled, interlock_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.Name, rule.SensorID, string(rule.Condition), rule.Low, rule.High, rule.LowLow, rule.HighHigh,
		boolToInt(rule.HasLowLow), boolToInt(rule.HasHighHigh), string(rule.Severity), rule.HysteresisPct,
		boolToInt(rule.AutoClear), boolToInt(rule.Enabled), interlockJSON)
	if err != nil {
		return 0, &errcode.E{C: errcode.IoError, Op: "store.CreateAlarmRule", Err: err}
	}
	return res.LastInsertId()
}

// GetAlarmRule loads one alarm rule by id.
func (s *Store) GetAlarmRule(ctx context.Context, id int64) (types.AlarmRule, error) {
	var rule types.AlarmRule
	var hasLowLow, hasHighHigh, autoClear, enabled int
	var interlockJSON string
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, sensor_id, condition, low, high, low_low, high_high, has_low_low, has_high_high, severity, hysteresis_pct, auto_clear, enabled, interlock_json
		 FROM alarm_rules WHERE id = ?`, id)
	if err := row.Scan(&rule.ID, &rule.Name, &rule.SensorID, &rule.Condition, &rule.Low, &rule.High, &rule.LowLow, &rule.HighHigh,
		&hasLowLow, &hasHighHigh, &rule.Severity, &rule.HysteresisPct, &autoClear, &enabled, &interlockJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rule, &errcode.E{C: errcode.NotFound, Op: "store.GetAlarmRule"}
		}
		return rule, &errcode.E{C: errcode.IoError, Op: "store.GetAlarmRule", Err: err}
	}
	rule.HasLowLow = hasLowLow != 0
	rule.HasHighHigh = hasHighHigh != 0
	rule.AutoClear = autoClear != 0
	rule.Enabled = enabled != 0
	if interlockJSON != "" {
		rule.Interlock = &types.Interlock{}
		if err := json.Unmarshal([]byte(interlockJSON), rule.Interlock); err != nil {
			return rule, &errcode.E{C: errcode.IoError, Op: "store.GetAlarmRule", Err: err}
		}
	}
	return rule, nil
}

// ListAlarmRules returns every configured alarm rule.
func (s *Store) ListAlarmRules(ctx context.Context) ([]types.AlarmRule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM alarm_rules ORDER BY id`)
	if err != nil {
		return nil, &errcode.E{C: errcode.IoError, Op: "store.ListAlarmRules", Err: err}
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, &errcode.E{C: errcode.IoError, Op: "store.ListAlarmRules", Err: err}
		}
		ids = append(ids, id)
	}

	out := make([]types.AlarmRule, 0, len(ids))
	for _, id := range ids {
		rule, err := s.GetAlarmRule(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

// RecordAlarmHistory inserts a new history row for a raised/updated alarm
// instance (§3 "Alarm Instance").
func (s *Store) RecordAlarmHistory(ctx context.Context, inst types.AlarmInstance) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO alarm_history (rule_id, sensor_id, severity, state, raised_at, acknowledged_at, cleared_at, acknowledged_by, message, trigger_value)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.RuleID, inst.SensorID, string(inst.Severity), string(inst.State),
		timeToEpoch(inst.RaisedAt), timeToEpoch(inst.AcknowledgedAt), timeToEpoch(inst.ClearedAt),
		inst.AcknowledgedBy, inst.Message, inst.TriggerValue)
	if err != nil {
		return 0, &errcode.E{C: errcode.IoError, Op: "store.RecordAlarmHistory", Err: err}
	}
	return res.LastInsertId()
}

// UpdateAlarmHistoryState transitions an existing history row (§3: state
// transitions are monotonic active -> acknowledged? -> cleared).
func (s *Store) UpdateAlarmHistoryState(ctx context.Context, id int64, inst types.AlarmInstance) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alarm_history SET state = ?, acknowledged_at = ?, cleared_at = ?, acknowledged_by = ? WHERE id = ?`,
		string(inst.State), timeToEpoch(inst.AcknowledgedAt), timeToEpoch(inst.ClearedAt), inst.AcknowledgedBy, id)
	if err != nil {
		return &errcode.E{C: errcode.IoError, Op: "store.UpdateAlarmHistoryState", Err: err}
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &errcode.E{C: errcode.NotFound, Op: "store.UpdateAlarmHistoryState"}
	}
	return nil
}

// GCAlarmHistory deletes cleared alarm history rows older than retention,
// the background retention task named alongside the alarm rule evaluator.
func (s *Store) GCAlarmHistory(ctx context.Context, retention time.Duration) (int64, error) {
	threshold := time.Now().Add(-retention).Unix()
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM alarm_history WHERE state = 'cleared' AND cleared_at > 0 AND cleared_at < ?`, threshold)
	if err != nil {
		return 0, &errcode.E{C: errcode.IoError, Op: "store.GCAlarmHistory", Err: err}
	}
	return res.RowsAffected()
}

func timeToEpoch(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
