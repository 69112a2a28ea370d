package sensors

import (
	"time"

	"github.com/watertreat/rtu/errcode"
	"github.com/watertreat/rtu/ratelimit"
	"github.com/watertreat/rtu/types"
)

const maxConsecutiveFailures = 5

// processAcquisition is the shared raw-to-published pipeline of §4.2:
// calibrate, filter, range-gate, publish. It is driven by the deadline
// Scheduler for bus-backed sensors and by HTTPPoller for web_poll sensors,
// so both failure accounting (§4.2 "Failure semantics") and the log-flood
// gate (§9) live here once.
func processAcquisition(b *Bound, raw float64, status types.Status, readErr error, table *Table, gate *ratelimit.Gate, onFail func(cfg types.SensorConfig, err error)) {
	if readErr != nil {
		b.fails++
		code := errcode.MapDriverErr(readErr)
		gate.Allow("sensor:" + b.Config.Name + ":" + string(code))
		table.MarkError(b.Config.ID)
		if b.fails >= maxConsecutiveFailures && onFail != nil {
			onFail(b.Config, errcode.ErrSensorUnavailable("sensors.processAcquisition", b.Config.Name))
		}
		return
	}
	b.fails = 0

	eng, calErr := Calibrate(b.Config.Cal, raw)
	if calErr != nil {
		status = types.StatusOutOfRange
	}
	if b.filter != nil {
		eng = b.filter.apply(eng)
	}
	if b.Config.Range.Enabled() && (eng < b.Config.Range.Min || eng > b.Config.Range.Max) {
		status = types.StatusOutOfRange
	}
	if status == "" {
		status = types.StatusOK
	}

	table.Publish(types.Reading{
		SensorID: b.Config.ID,
		Value:    eng,
		Status:   status,
		TsMs:     time.Now().UnixMilli(),
	})
}
