package slack

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/youyo/slack-assistant/internal/bus"
)

// ErrSkip marks a valid payload that is not processable: wrong envelope type,
// non-message event, subtyped message (edits, deletes, joins), or the bot's
// own message. Callers acknowledge with success and do not start a pipeline.
var ErrSkip = errors.New("event skipped")

// ErrMalformed marks an unparsable payload. Callers answer with a structural
// error (HTTP 400); the sender is not expected to retry.
var ErrMalformed = errors.New("malformed payload")

type eventEnvelope struct {
	Type      string       `json:"type"`
	Challenge string       `json:"challenge"`
	TeamID    string       `json:"team_id"`
	Event     messageEvent `json:"event"`
}

type messageEvent struct {
	Type     string `json:"type"`
	Subtype  string `json:"subtype"`
	BotID    string `json:"bot_id"`
	User     string `json:"user"`
	Text     string `json:"text"`
	Channel  string `json:"channel"`
	Team     string `json:"team"`
	TS       string `json:"ts"`
	ThreadTS string `json:"thread_ts"`
}

// Challenge extracts the url_verification token from a payload.
// The second return is false when the payload is not a handshake.
func Challenge(payload []byte) (string, bool) {
	var env eventEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return "", false
	}
	if env.Type != "url_verification" {
		return "", false
	}
	return env.Challenge, true
}

// Normalize converts a raw Slack payload into the canonical InboundEvent.
// It returns ErrMalformed for unparsable JSON and ErrSkip for valid but
// irrelevant payloads (see the skip rules on each branch).
func Normalize(payload []byte, botUserID string) (bus.InboundEvent, error) {
	var env eventEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return bus.InboundEvent{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if env.Type != "event_callback" {
		return bus.InboundEvent{}, fmt.Errorf("%w: envelope type %q", ErrSkip, env.Type)
	}

	ev := env.Event
	if ev.Type != "message" {
		return bus.InboundEvent{}, fmt.Errorf("%w: event type %q", ErrSkip, ev.Type)
	}
	if ev.Subtype != "" {
		return bus.InboundEvent{}, fmt.Errorf("%w: subtype %q", ErrSkip, ev.Subtype)
	}
	// Both markers cover bot-generated traffic: bot_id for app messages,
	// user match for the bot's own user. Either one would loop back to us.
	if ev.BotID != "" {
		return bus.InboundEvent{}, fmt.Errorf("%w: bot message", ErrSkip)
	}
	if botUserID != "" && ev.User == botUserID {
		return bus.InboundEvent{}, fmt.Errorf("%w: own message", ErrSkip)
	}

	kind := channelKindOf(ev.Channel)
	threadTS := ev.ThreadTS
	if threadTS == "" {
		threadTS = ev.TS
	}

	teamID := env.TeamID
	if teamID == "" {
		teamID = ev.Team
	}

	return bus.InboundEvent{
		TeamID:      teamID,
		ChannelID:   ev.Channel,
		ChannelKind: kind,
		UserID:      ev.User,
		Text:        ev.Text,
		EventTS:     ev.TS,
		ThreadTS:    threadTS,
		IsMentioned: strings.Contains(ev.Text, mentionToken(botUserID)),
		IsDM:        kind == bus.KindDM,
		EventType:   "message",
	}, nil
}

// channelKindOf derives the conversation kind from Slack's id prefix
// convention: C public, G private (groups), D direct message.
func channelKindOf(channelID string) bus.ChannelKind {
	switch {
	case strings.HasPrefix(channelID, "C"):
		return bus.KindPublic
	case strings.HasPrefix(channelID, "G"):
		return bus.KindPrivate
	case strings.HasPrefix(channelID, "D"):
		return bus.KindDM
	default:
		return bus.KindUnknown
	}
}

func mentionToken(botUserID string) string {
	return "<@" + botUserID + ">"
}
