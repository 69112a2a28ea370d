package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/watertreat/rtu/alarms"
	"github.com/watertreat/rtu/bus"
	"github.com/watertreat/rtu/config"
	"github.com/watertreat/rtu/drivers"
	"github.com/watertreat/rtu/errcode"
	"github.com/watertreat/rtu/fieldbus"
	"github.com/watertreat/rtu/hal"
	"github.com/watertreat/rtu/logx"
	"github.com/watertreat/rtu/sensors"
	"github.com/watertreat/rtu/services/heartbeat"
	"github.com/watertreat/rtu/services/opcmd"
	"github.com/watertreat/rtu/store"
	"github.com/watertreat/rtu/types"
	"github.com/watertreat/rtu/x/timex"
)

// tickPeriod drives alarm evaluation and fieldbus input publication; 20 Hz
// sits at the bottom of the §5 range and keeps the tick cheap relative to
// the fastest 10 ms sensor poll.
const tickPeriod = 50 * time.Millisecond

// alarmRetention is how long cleared alarm instances are kept (§3
// "Lifecycle": keep cleared alarms for N days).
const alarmRetention = 30 * 24 * time.Hour

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the RTU core until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCore(cmd)
		},
	}
}

func runCore(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := config.Resolve(ctx, flags.configPath, flags.configFlags(cmd))
	if err != nil {
		return failConfig(err)
	}
	log := logx.New(os.Stderr, logx.ParseLevel(res.LogLevel))
	log.Info().
		Str("station", res.StationID).Str("station_source", string(res.StationIDSource)).
		Int("http_port", res.HTTPPort).Str("http_port_source", string(res.HTTPPortSource)).
		Log("configuration resolved")

	st, err := store.Open(ctx, res.DBPath)
	if err != nil {
		return failStore(err)
	}
	defer st.Close()

	sensorCfgs, err := st.ListSensorModules(ctx)
	if err != nil {
		return failStore(err)
	}
	actuatorCfgs, err := st.ListActuators(ctx)
	if err != nil {
		return failStore(err)
	}
	rules, err := st.ListAlarmRules(ctx)
	if err != nil {
		return failStore(err)
	}

	board := hal.DetectBoard()
	log.Info().
		Str("board", string(board.Type)).Int("confidence", board.Confidence).Str("source", board.Source).
		Log("board detected")

	b := bus.NewBus(8)
	conn := b.NewConnection("rtu-core")
	defer conn.Disconnect()

	binder := hal.NewBinder(board)
	factory := drivers.NewFactory()
	defer factory.Close()

	table := sensors.NewTable()
	queue := alarms.NewQueue(log)
	hist := alarms.NewHistory(log, st)
	engine := alarms.NewEngine(hist, queue)
	disp := alarms.NewDispatcher(log, queue)

	adapter := fieldbus.NewAdapter(log, table, queue, disp, b.NewConnection("fieldbus"),
		fieldbus.IM0{OrderID: "RTU-WT8", Serial: res.StationID})
	adapter.Signal = func(sig fieldbus.ControlSignal) {
		log.Warning().Str("signal", string(sig)).Log("controller requested process signal")
		stop()
	}

	for _, cfg := range actuatorCfgs {
		h, err := binder.BindActuator(cfg, factory.Actuator)
		if err != nil {
			if errIs(err, errcode.AlreadyExists) {
				return failHardware(fmt.Errorf("actuator %s: %w", cfg.Name, err))
			}
			log.Warning().Err(err).Str("actuator", cfg.Name).Log("actuator bind failed, slot unbound")
			continue
		}
		disp.BindSlot(cfg, h)
	}

	onFail := func(cfg types.SensorConfig, err error) {
		log.Err().Err(err).Str("sensor", cfg.Name).Log("sensor unavailable")
	}
	sched := sensors.NewScheduler(table, onFail)
	poller := sensors.NewHTTPPoller(table, onFail)

	byName := make(map[string]int64, len(sensorCfgs))
	for _, cfg := range sensorCfgs {
		byName[cfg.Name] = cfg.ID
	}
	resolve := func(name string) (int64, bool) {
		id, ok := byName[name]
		return id, ok
	}

	for _, cfg := range sensorCfgs {
		table.Register(cfg.ID)
		engine.SetSensorRange(cfg.ID, cfg.Range)
		adapter.MapSensor(cfg.Slot, cfg.ID)

		switch cfg.Type {
		case types.ModuleWebPoll:
			poller.Register(ctx, sensors.NewBound(cfg, nil, cfg.FilterAlpha))
		case types.ModuleCalculated:
			h, err := sensors.NewCalculatedHandle(cfg, resolve, table)
			if err != nil {
				return failConfig(fmt.Errorf("sensor %s: %w", cfg.Name, err))
			}
			sched.Register(sensors.NewBound(cfg, h, cfg.FilterAlpha))
		default:
			h, err := binder.BindSensor(cfg, factory.Sensor)
			if err != nil {
				if errIs(err, errcode.AlreadyExists) {
					return failHardware(fmt.Errorf("sensor %s: %w", cfg.Name, err))
				}
				// hardware missing: configured but inactive (§4.1)
				log.Warning().Err(err).Str("sensor", cfg.Name).Log("sensor bind failed, marked inactive")
				continue
			}
			sched.Register(sensors.NewBound(cfg, h, cfg.FilterAlpha))
		}
	}

	for _, rule := range rules {
		engine.SetRule(rule)
	}

	go sched.Run(ctx)
	go poller.Run(ctx)
	go disp.Run(ctx)
	go hist.RunFlusher(ctx)
	go alarms.RunRetention(ctx, log, st, hist, alarmRetention)
	heartbeat.New(log).Start(ctx, b.NewConnection("heartbeat"))
	opcmd.New(log, hist).Start(ctx, b.NewConnection("opcmd"))

	log.Info().Int("sensors", len(sensorCfgs)).Int("actuators", len(actuatorCfgs)).Int("rules", len(rules)).
		Log("core running")
	publishCoreState(conn, "running", "up")

	// Central tick (§5): every cycle takes one consistent snapshot, feeds
	// it to rule evaluation, then publishes the same snapshot as cyclic
	// input so C3 and C4 never disagree within a tick.
	tick := time.NewTicker(tickPeriod)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Log("shutting down")
			publishCoreState(conn, "stopped", "signal")
			return nil
		case <-tick.C:
			snap := table.Snapshot()
			engine.Evaluate(snap)
			adapter.PublishInputs(snap)
		}
	}
}

// publishCoreState retains the process-level readiness record on the
// shared service-state topic shape.
func publishCoreState(conn *bus.Connection, level, status string) {
	conn.PublishState("core", types.ServiceState{
		Level:  level,
		Status: status,
		TSMs:   timex.NowMs(),
	})
}

// errIs reports whether err maps to the given canonical code.
func errIs(err error, code errcode.Code) bool {
	if err == nil {
		return false
	}
	var e *errcode.E
	if errors.As(err, &e) {
		return e.C == code
	}
	return errcode.Of(err) == code
}
