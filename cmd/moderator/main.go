// Command moderator follows the moderation feed published by pairchat and
// writes every report and block decision to a structured audit log.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/whisper/pairchat/internal/chat"
	"github.com/whisper/pairchat/internal/logger"
	"github.com/whisper/pairchat/internal/messaging"
)

func main() {
	_ = godotenv.Load()

	logCfg := logger.DefaultConfig()
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		logCfg.Level = v
	}
	if v := os.Getenv("LOG_ENCODING"); v != "" {
		logCfg.Encoding = v
	}
	log, err := logger.Build(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	logger.ReplaceGlobal(log)
	defer log.Sync()
	audit := log.Named("audit")

	natsConfig := messaging.DefaultNATSConfig()
	if v := os.Getenv("NATS_URL"); v != "" {
		natsConfig.URL = v
	}
	natsConfig.Name = "pairchat-moderator"

	nc, err := messaging.NewNATSClient(natsConfig, log)
	if err != nil {
		log.Fatal("failed to connect to NATS", zap.Error(err))
	}
	defer nc.Close()

	if err := nc.SubscribeReports(func(data []byte) {
		var ev chat.ReportEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			audit.Warn("bad report event", zap.Error(err))
			return
		}
		audit.Info("report",
			zap.String("report_id", ev.ReportID),
			zap.Int64("reporter_id", ev.ReporterID),
			zap.Int64("reported_id", ev.ReportedID),
			zap.String("reason", ev.Reason),
			zap.Int("messages", ev.Messages),
			zap.Int64("ts", ev.Ts),
		)
	}); err != nil {
		log.Fatal("failed to subscribe to reports", zap.Error(err))
	}

	if err := nc.SubscribeBlocks(func(action string, data []byte) {
		var ev chat.BlockEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			audit.Warn("bad block event", zap.String("action", action), zap.Error(err))
			return
		}
		audit.Info("block decision",
			zap.String("action", action),
			zap.Int64("user_id", ev.UserID),
			zap.Int64("ts", ev.Ts),
		)
	}); err != nil {
		log.Fatal("failed to subscribe to block decisions", zap.Error(err))
	}

	log.Info("moderator feed running", zap.String("nats_url", natsConfig.URL))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutting down", zap.String("signal", sig.String()))
}
