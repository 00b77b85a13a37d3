package ws

import (
	"time"

	"go.uber.org/zap"
)

// HeartbeatConfig holds heartbeat tuning parameters.
type HeartbeatConfig struct {
	Interval time.Duration // how often to ping
	Timeout  time.Duration // grace after a missed interval
}

// DefaultHeartbeatConfig pings every 30s and evicts after 40s of silence.
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		Interval: 30 * time.Second,
		Timeout:  10 * time.Second,
	}
}

// StartHeartbeat pings every connection each Interval and evicts those
// silent for longer than Interval+Timeout. Eviction counts as a disconnect,
// so the user's chat or queue slot is released.
func StartHeartbeat(server *Server, config HeartbeatConfig) {
	go func() {
		ticker := time.NewTicker(config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-server.done:
				return
			case now := <-ticker.C:
				checkConnections(server, config, now)
			}
		}
	}()
}

func checkConnections(server *Server, config HeartbeatConfig, now time.Time) int {
	deadline := config.Interval + config.Timeout
	evicted := 0

	for _, c := range server.Connections().All() {
		if silent := now.Sub(c.LastSeen()); silent > deadline {
			server.log.Info("heartbeat timeout",
				zap.Int64("user_id", c.UserID),
				zap.Duration("silent", silent.Round(time.Second)),
			)
			server.RemoveConnection(c)
			evicted++
			continue
		}
		if err := c.WritePing(); err != nil {
			server.log.Debug("heartbeat ping failed", zap.Int64("user_id", c.UserID), zap.Error(err))
			server.RemoveConnection(c)
			evicted++
		}
	}
	return evicted
}
