package chat

import (
	"context"

	"go.uber.org/zap"

	"github.com/whisper/pairchat/internal/metrics"
	"github.com/whisper/pairchat/internal/moderation"
	"github.com/whisper/pairchat/internal/session"
)

// delivery is one pending transport call.
type delivery struct {
	to      int64
	text    string
	forward *moderation.MessageRef
	// relayFrom is set for partner text; its sender hears about failures.
	relayFrom int64
	ref       moderation.MessageRef
}

// outbox collects what a command wants to tell users while the coordinator
// lock is held. It is flushed in order once the lock is released, so a slow
// transport never holds up other commands.
type outbox struct {
	actor      int64
	deliveries []delivery
	reports    []ReportEvent
	blocks     []BlockEvent
}

var _ moderation.Notifier = (*outbox)(nil)

func newOutbox(actor int64) *outbox {
	return &outbox{actor: actor}
}

// recipients lists everyone a flush may write to, including relay senders
// who hear about failed deliveries.
func (o *outbox) recipients() []int64 {
	ids := make([]int64, 0, len(o.deliveries))
	for _, d := range o.deliveries {
		ids = append(ids, d.to)
		if d.relayFrom != 0 {
			ids = append(ids, d.relayFrom)
		}
	}
	return ids
}

func (o *outbox) say(to int64, text string) {
	o.deliveries = append(o.deliveries, delivery{to: to, text: text})
}

func (o *outbox) forward(to int64, ref moderation.MessageRef) {
	o.deliveries = append(o.deliveries, delivery{to: to, forward: &ref})
}

func (o *outbox) relay(from, to int64, text string, ref moderation.MessageRef) {
	o.deliveries = append(o.deliveries, delivery{to: to, text: text, relayFrom: from, ref: ref})
}

func (o *outbox) SessionEnded(userID int64, reason session.EndReason) {
	switch reason {
	case session.EndNext:
		o.say(userID, TextPartnerLeft)
		o.say(o.actor, TextYouLeft)
	case session.EndStop:
		o.say(userID, TextPartnerStopped)
	case session.EndBlocked:
		o.say(userID, TextPartnerBlocked)
	default:
		o.say(userID, TextPartnerLeft)
	}
}

func (o *outbox) Paired(userID, _ int64) { o.say(userID, TextPartnerFound) }

func (o *outbox) Queued(userID int64) { o.say(userID, TextQueued) }

func (o *outbox) Blocked(userID int64) { o.say(userID, TextYouAreBlocked) }

func (o *outbox) Unblocked(userID int64) { o.say(userID, TextYouAreUnblocked) }

// flush waits for the turns in tickets, performs every delivery and
// publishes events. Failures are logged and counted; the returned error is
// the last failed relay, if any.
func (s *Service) flush(ctx context.Context, o *outbox, tickets map[int64]uint64) error {
	s.order.acquire(tickets)
	defer s.order.release(tickets)

	var relayErr error
	for _, d := range o.deliveries {
		var err error
		switch r, ok := s.transport.(Relayer); {
		case d.forward != nil:
			err = s.transport.ForwardMessage(ctx, d.to, *d.forward)
		case d.relayFrom != 0 && ok:
			err = r.RelayText(ctx, d.to, d.ref, d.text)
		default:
			err = s.transport.SendText(ctx, d.to, d.text)
		}

		if d.relayFrom != 0 {
			if err == nil {
				metrics.MessagesTotal.WithLabelValues("relayed").Inc()
				continue
			}
			metrics.MessagesTotal.WithLabelValues("failed").Inc()
			relayErr = err
		}
		if err == nil {
			continue
		}

		metrics.DeliveryFailures.Inc()
		s.log.Warn("delivery failed",
			zap.Int64("to", d.to),
			zap.Bool("forward", d.forward != nil),
			zap.Error(err),
		)
		if d.relayFrom != 0 {
			if err := s.transport.SendText(ctx, d.relayFrom, TextDeliveryFailed); err != nil {
				metrics.DeliveryFailures.Inc()
				s.log.Warn("delivery failure notice failed", zap.Int64("to", d.relayFrom), zap.Error(err))
			}
		}
	}

	if s.sink == nil {
		return relayErr
	}
	for _, ev := range o.reports {
		if err := s.sink.PublishReport(ctx, ev); err != nil {
			s.log.Warn("publish report event failed", zap.String("report_id", ev.ReportID), zap.Error(err))
		}
	}
	for _, ev := range o.blocks {
		if err := s.sink.PublishBlock(ctx, ev); err != nil {
			s.log.Warn("publish block event failed", zap.Int64("user_id", ev.UserID), zap.Error(err))
		}
	}
	return relayErr
}
