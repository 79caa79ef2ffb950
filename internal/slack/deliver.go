package slack

import (
	"context"
	"log"
	"strings"

	"github.com/youyo/slack-assistant/internal/bus"
)

// PostOutcome reports what the delivery stage did with a final reply.
type PostOutcome struct {
	Posted   bool
	TS       string // delivery timestamp when Posted
	ThreadTS string // thread the message was attached to, if any
	Reason   string // why nothing was posted, when !Posted
}

// Deliverer is the delivery stage: it makes at most one post attempt per
// pipeline run. A failed post is reported upward, never retried, so an
// ambiguous partial failure cannot turn into a duplicate message.
type Deliverer struct {
	client PostClient
}

func NewDeliverer(client PostClient) *Deliverer {
	return &Deliverer{client: client}
}

func (d *Deliverer) Close() {
	if d.client != nil {
		d.client.Close()
	}
}

// Deliver posts reply.ReplyText to the event's channel. Replies with
// ShouldReply=false are skipped silently; replies with empty text are skipped
// with a warning (a stage fallback produced them). The thread id is attached
// only for thread mode.
func (d *Deliverer) Deliver(ctx context.Context, ev bus.InboundEvent, reply bus.FinalReply) (PostOutcome, error) {
	if !reply.ShouldReply {
		return PostOutcome{Posted: false, Reason: reply.Reason}, nil
	}

	if strings.TrimSpace(reply.ReplyText) == "" {
		log.Printf("[slack] empty reply_text for channel=%s ts=%s, skipping post (reason: %s)",
			ev.ChannelID, ev.EventTS, reply.Reason)
		return PostOutcome{Posted: false, Reason: "empty reply_text"}, nil
	}

	threadTS := ""
	if reply.ReplyMode == bus.ReplyModeThread && ev.ThreadTS != "" {
		threadTS = ev.ThreadTS
	}

	ts, err := d.client.PostMessage(ctx, ev.ChannelID, reply.ReplyText, threadTS)
	if err != nil {
		return PostOutcome{Posted: false, Reason: err.Error()}, err
	}

	return PostOutcome{Posted: true, TS: ts, ThreadTS: threadTS}, nil
}
