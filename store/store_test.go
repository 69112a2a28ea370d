package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/watertreat/rtu/errcode"
	"github.com/watertreat/rtu/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetSensorModule(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	cfg := types.SensorConfig{
		Name:   "tank_level",
		Slot:   1,
		Type:   types.ModulePhysical,
		PollMS: 500,
		Unit:   "m",
		Range:  types.Range{Min: 0, Max: 10},
		Cal:    types.CalibrationSpec{Kind: types.CalLinear, Scale: 1, Offset: 0},
		Hardware: types.HardwareBinding{
			Interface: types.InterfaceI2C,
			Bus:       1,
			Address:   "0x44",
		},
	}

	id, err := s.CreateSensorModule(ctx, cfg)
	if err != nil {
		t.Fatalf("CreateSensorModule error: %v", err)
	}

	got, err := s.GetSensorModule(ctx, id)
	if err != nil {
		t.Fatalf("GetSensorModule error: %v", err)
	}
	if got.Name != cfg.Name || got.Slot != cfg.Slot || got.Cal.Kind != types.CalLinear {
		t.Fatalf("GetSensorModule = %+v, want matching %+v", got, cfg)
	}
}

func TestCreateSensorModuleRejectsDuplicateSlot(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := types.SensorConfig{Name: "a", Slot: 2, Type: types.ModuleStatic, PollMS: 100}
	if _, err := s.CreateSensorModule(ctx, base); err != nil {
		t.Fatalf("CreateSensorModule error: %v", err)
	}

	dup := types.SensorConfig{Name: "b", Slot: 2, Type: types.ModuleStatic, PollMS: 100}
	_, err := s.CreateSensorModule(ctx, dup)
	if err == nil {
		t.Fatal("expected slot conflict error")
	}
	if errcode.Of(err) != errcode.AlreadyExists {
		t.Fatalf("errcode.Of(err) = %v, want %v", errcode.Of(err), errcode.AlreadyExists)
	}
}

func TestCreateSensorModuleRejectsDuplicateName(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateSensorModule(ctx, types.SensorConfig{Name: "dup", Slot: 1, Type: types.ModuleStatic, PollMS: 100}); err != nil {
		t.Fatalf("CreateSensorModule error: %v", err)
	}
	_, err := s.CreateSensorModule(ctx, types.SensorConfig{Name: "dup", Slot: 2, Type: types.ModuleStatic, PollMS: 100})
	if err == nil {
		t.Fatal("expected name conflict error")
	}
}

func TestCreateActuatorRejectsPinConflict(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a1 := types.ActuatorConfig{Name: "pump1", Slot: 9, Type: types.ActuatorPump, Pin: 17, Chip: "gpiochip0", SafeState: types.SafeOff}
	if _, err := s.CreateActuator(ctx, a1); err != nil {
		t.Fatalf("CreateActuator error: %v", err)
	}

	a2 := types.ActuatorConfig{Name: "pump2", Slot: 10, Type: types.ActuatorPump, Pin: 17, Chip: "gpiochip0", SafeState: types.SafeOff}
	_, err := s.CreateActuator(ctx, a2)
	if err == nil {
		t.Fatal("expected pin conflict error")
	}
	if errcode.Of(err) != errcode.PinInUse {
		t.Fatalf("errcode.Of(err) = %v, want %v", errcode.Of(err), errcode.PinInUse)
	}
}

func TestAlarmRuleAndHistoryLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sensorID, err := s.CreateSensorModule(ctx, types.SensorConfig{Name: "ph", Slot: 3, Type: types.ModuleStatic, PollMS: 100})
	if err != nil {
		t.Fatalf("CreateSensorModule error: %v", err)
	}

	ruleID, err := s.CreateAlarmRule(ctx, types.AlarmRule{
		Name:      "ph_high",
		SensorID:  sensorID,
		Condition: types.ConditionAbove,
		High:      8.5,
		Severity:  types.SeverityHigh,
		Enabled:   true,
		Interlock: &types.Interlock{TargetSlot: 9, Action: types.ActionForceOff, ReleaseOnClear: true},
	})
	if err != nil {
		t.Fatalf("CreateAlarmRule error: %v", err)
	}

	rule, err := s.GetAlarmRule(ctx, ruleID)
	if err != nil {
		t.Fatalf("GetAlarmRule error: %v", err)
	}
	if rule.Interlock == nil || rule.Interlock.Action != types.ActionForceOff {
		t.Fatalf("GetAlarmRule interlock = %+v, want ActionForceOff", rule.Interlock)
	}

	histID, err := s.RecordAlarmHistory(ctx, types.AlarmInstance{
		RuleID: ruleID, SensorID: sensorID, Severity: types.SeverityHigh,
		State: types.InstanceActive, RaisedAt: time.Now(), TriggerValue: 9.1,
	})
	if err != nil {
		t.Fatalf("RecordAlarmHistory error: %v", err)
	}

	if err := s.UpdateAlarmHistoryState(ctx, histID, types.AlarmInstance{
		State: types.InstanceCleared, ClearedAt: time.Now().Add(-48 * time.Hour),
	}); err != nil {
		t.Fatalf("UpdateAlarmHistoryState error: %v", err)
	}

	n, err := s.GCAlarmHistory(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("GCAlarmHistory error: %v", err)
	}
	if n != 1 {
		t.Fatalf("GCAlarmHistory removed %d rows, want 1", n)
	}
}
