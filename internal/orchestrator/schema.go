package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/youyo/slack-assistant/internal/bus"
	"github.com/youyo/slack-assistant/internal/llm"
)

// Stage outputs are validated strictly: a response that does not match the
// schema is an invocation failure, never a partial success. The one lenient
// field is typing_style, which normalizes to "none" when unrecognized.

// DecodeRoutingDecision parses and validates a Router stage response.
func DecodeRoutingDecision(raw string) (bus.RoutingDecision, error) {
	var d bus.RoutingDecision
	if err := decodeStrict(raw, &d); err != nil {
		return bus.RoutingDecision{}, err
	}
	if err := validateDecision(&d); err != nil {
		return bus.RoutingDecision{}, err
	}
	return d, nil
}

// DecodeFinalReply parses and validates a Responder stage response.
func DecodeFinalReply(raw string) (bus.FinalReply, error) {
	var r bus.FinalReply
	if err := decodeStrict(raw, &r); err != nil {
		return bus.FinalReply{}, err
	}
	if err := validateDecision(&r.RoutingDecision); err != nil {
		return bus.FinalReply{}, err
	}
	if r.ShouldReply && strings.TrimSpace(r.ReplyText) == "" {
		return bus.FinalReply{}, fmt.Errorf("should_reply is true but reply_text is empty")
	}
	if !r.ShouldReply {
		r.ReplyText = ""
	}
	return r, nil
}

func decodeStrict(raw string, v any) error {
	cleaned := llm.StripJSONFences(raw)
	if strings.TrimSpace(cleaned) == "" {
		return fmt.Errorf("empty stage output")
	}
	dec := json.NewDecoder(strings.NewReader(cleaned))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("parse stage output: %w", err)
	}
	return nil
}

func validateDecision(d *bus.RoutingDecision) error {
	// should_reply=false always pins the route to ignore, whatever the
	// model said the route was.
	if !d.ShouldReply {
		d.Route = bus.RouteIgnore
	}

	if !d.Route.Valid() {
		return fmt.Errorf("invalid route %q", d.Route)
	}
	if d.ShouldReply && d.Route == bus.RouteIgnore {
		return fmt.Errorf("should_reply is true but route is ignore")
	}

	if d.ShouldReply {
		if !d.ReplyMode.Valid() {
			return fmt.Errorf("invalid reply_mode %q", d.ReplyMode)
		}
	} else if !d.ReplyMode.Valid() {
		d.ReplyMode = bus.ReplyModeThread
	}

	if !d.TypingStyle.Valid() {
		d.TypingStyle = bus.TypingNone
	}
	return nil
}
