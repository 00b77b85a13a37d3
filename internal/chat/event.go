package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/whisper/pairchat/internal/messaging"
)

// ReportEvent is published for every stored report so moderator tooling
// can follow them without polling the store.
type ReportEvent struct {
	ReportID   string `json:"report_id"`
	ReporterID int64  `json:"reporter_id"`
	ReportedID int64  `json:"reported_id"`
	Reason     string `json:"reason"`
	Messages   int    `json:"messages"` // number of forwarded messages
	Ts         int64  `json:"ts"`
}

// BlockEvent is published when the moderator blocks or unblocks a user.
type BlockEvent struct {
	UserID  int64 `json:"user_id"`
	Blocked bool  `json:"blocked"`
	Ts      int64 `json:"ts"`
}

// EventSink receives moderation events after the command that produced
// them has finished. Failures are logged and do not affect the command.
type EventSink interface {
	PublishReport(ctx context.Context, ev ReportEvent) error
	PublishBlock(ctx context.Context, ev BlockEvent) error
}

// Publisher is the subset of messaging.NATSClient used by NATSSink.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes moderation events as JSON on the messaging subjects.
type NATSSink struct {
	pub Publisher
}

// NewNATSSink creates a NATSSink.
func NewNATSSink(pub Publisher) *NATSSink {
	return &NATSSink{pub: pub}
}

// PublishReport implements EventSink.
func (s *NATSSink) PublishReport(_ context.Context, ev ReportEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("chat: marshal report event: %w", err)
	}
	if err := s.pub.Publish(messaging.SubjectReport, data); err != nil {
		return fmt.Errorf("chat: publish report event: %w", err)
	}
	return nil
}

// PublishBlock implements EventSink.
func (s *NATSSink) PublishBlock(_ context.Context, ev BlockEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("chat: marshal block event: %w", err)
	}
	action := "unblocked"
	if ev.Blocked {
		action = "blocked"
	}
	if err := s.pub.Publish(messaging.SubjectBlock+"."+action, data); err != nil {
		return fmt.Errorf("chat: publish block event: %w", err)
	}
	return nil
}
