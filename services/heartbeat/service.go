// Package heartbeat publishes a periodic liveness record on the internal
// bus so operator surfaces and the health endpoint can tell a live core
// from a wedged one. The beat is retained, so a late subscriber sees the
// most recent one immediately.
package heartbeat

import (
	"context"
	"time"

	"github.com/watertreat/rtu/bus"
	"github.com/watertreat/rtu/logx"
	"github.com/watertreat/rtu/types"
	"github.com/watertreat/rtu/x/timex"
)

var topicConfig = bus.Topic{"config", "heartbeat"}

const defaultPeriod = time.Second

// Service emits the beat until its context is cancelled.
type Service struct {
	log    *logx.Logger
	period time.Duration
}

// New builds a Service beating at the default period; a retained config
// message on config/heartbeat can change it at runtime.
func New(log *logx.Logger) *Service {
	return &Service{log: log, period: defaultPeriod}
}

// Start launches the beat loop.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) {
	go s.loop(ctx, conn)
}

func (s *Service) loop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfig)
	defer conn.Unsubscribe(cfgSub)

	tick := time.NewTicker(s.period)
	defer tick.Stop()

	beat := func(level string) {
		conn.PublishState("heartbeat", types.ServiceState{
			Level:  level,
			Status: "beat",
			TSMs:   timex.NowMs(),
		})
	}
	beat("running")

	for {
		select {
		case <-ctx.Done():
			beat("stopped")
			s.log.Debug().Log("heartbeat stopping")
			return
		case <-tick.C:
			beat("running")
		case msg := <-cfgSub.Channel():
			if m, ok := msg.Payload.(map[string]any); ok {
				if iv, ok := m["interval_ms"].(float64); ok && iv >= 100 {
					s.period = time.Duration(iv) * time.Millisecond
					tick.Reset(s.period)
					s.log.Info().Int("interval_ms", int(iv)).Log("heartbeat interval changed")
				}
			}
		}
	}
}
