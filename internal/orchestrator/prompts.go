package orchestrator

import (
	"fmt"
	"strings"

	"github.com/youyo/slack-assistant/internal/bus"
	"github.com/youyo/slack-assistant/internal/config"
)

const defaultRouterPrompt = `You are the routing stage of a Slack assistant. Given one incoming message and its context, decide whether the assistant should reply and how.

Routes:
- "ignore": do not reply (chatter between humans, noise, messages not meant for the assistant)
- "simple_reply": a short factual or social reply is enough
- "full_reply": the message needs a substantial answer (questions, requests, anything mentioning the assistant)

Always reply when the assistant is mentioned or in a DM unless the message is clearly noise.

Return strict JSON only:
{"should_reply":true,"route":"full_reply","reply_mode":"thread","typing_style":"short","reason":"..."}

reply_mode is "thread" or "channel" (prefer "thread" for messages inside threads and in busy channels). typing_style is "none", "short" or "long".`

const defaultResponderPrompt = `You are a helpful Slack assistant. Write the final reply for the message below, using the conversation memory when it is relevant.

Keep replies concise and Slack-friendly. Use plain text, not markdown headings.

Return strict JSON only, no prose around it:
{"should_reply":true,"route":"full_reply","reply_mode":"thread","typing_style":"short","reason":"...","reply_text":"..."}

Set should_reply to false (with empty reply_text) only when, on reflection, no reply is warranted after all.`

// RouterPrompt returns the router system prompt, honoring a configured override.
func RouterPrompt(cfg config.StageConfig) string {
	if p := strings.TrimSpace(cfg.SystemPrompt); p != "" {
		return p
	}
	return defaultRouterPrompt
}

// ResponderPrompt returns the responder system prompt, honoring a configured override.
func ResponderPrompt(cfg config.StageConfig) string {
	if p := strings.TrimSpace(cfg.SystemPrompt); p != "" {
		return p
	}
	return defaultResponderPrompt
}

// contextBlock renders the structured context fields every stage request
// carries alongside the instruction text.
func contextBlock(ev bus.InboundEvent) string {
	var sb strings.Builder
	sb.WriteString("[Context]\n")
	fmt.Fprintf(&sb, "channel_kind: %s\n", ev.ChannelKind)
	fmt.Fprintf(&sb, "is_mentioned: %t\n", ev.IsMentioned)
	fmt.Fprintf(&sb, "is_dm: %t\n", ev.IsDM)
	fmt.Fprintf(&sb, "is_in_thread: %t\n", ev.IsInThread())
	return sb.String()
}

// stagePrompt assembles the user-turn prompt for a stage call: context
// fields, optional memory block, then the message itself.
func stagePrompt(ev bus.InboundEvent, memoryContext string) string {
	var sb strings.Builder
	sb.WriteString(contextBlock(ev))
	if strings.TrimSpace(memoryContext) != "" {
		sb.WriteString("\n")
		sb.WriteString(memoryContext)
		sb.WriteString("\n")
	}
	sb.WriteString("\n[Message]\n")
	sb.WriteString(ev.Text)
	return sb.String()
}
