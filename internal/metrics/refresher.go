package metrics

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/whisper/pairchat/internal/store"
)

// StatsSource is anything that can report aggregate counts.
type StatsSource interface {
	Stats(ctx context.Context) (store.Stats, error)
}

// Observe copies st into the store gauges.
func Observe(st store.Stats) {
	Users.Set(float64(st.Users))
	ActiveChats.Set(float64(st.ActiveChats))
	MatchQueueSize.Set(float64(st.Queue))
	Reports.Set(float64(st.Reports))
}

// StartRefresher polls src every interval and updates the store gauges
// until ctx is cancelled.
func StartRefresher(ctx context.Context, src StatsSource, interval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("metrics refresher stopped")
			return
		case <-ticker.C:
			st, err := src.Stats(ctx)
			if err != nil {
				log.Warn("metrics refresh failed", zap.Error(err))
				continue
			}
			Observe(st)
		}
	}
}
