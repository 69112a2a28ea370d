package alarms

import (
	"context"
	"time"

	"github.com/watertreat/rtu/logx"
)

// RetentionStore is the store surface the retention sweep needs.
type RetentionStore interface {
	GCAlarmHistory(ctx context.Context, retention time.Duration) (int64, error)
}

// sweepPeriod is how often the retention task wakes; the sweep itself is
// cheap (one DELETE), so hourly is plenty for a keep-N-days policy.
const sweepPeriod = time.Hour

// RunRetention deletes cleared alarm instances older than retention from
// the store and prunes the in-memory history, until ctx is cancelled
// (§4.3 "Acknowledgement & cleanup"; §3 "Lifecycle"). The database is
// touched only here and in the flusher, never on the evaluation tick.
func RunRetention(ctx context.Context, log *logx.Logger, st RetentionStore, hist *History, retention time.Duration) {
	tick := time.NewTicker(sweepPeriod)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			pruned := hist.Prune(retention)
			if st == nil {
				continue
			}
			deleted, err := st.GCAlarmHistory(ctx, retention)
			if err != nil {
				log.Err().Err(err).Log("alarm history retention sweep failed")
				continue
			}
			if deleted > 0 || pruned > 0 {
				log.Debug().Int64("deleted", deleted).Int("pruned", pruned).Log("alarm history retention sweep")
			}
		}
	}
}
