package bus

// ChannelKind classifies a Slack conversation by its channel-id prefix.
type ChannelKind string

const (
	KindPublic  ChannelKind = "public"
	KindPrivate ChannelKind = "private"
	KindDM      ChannelKind = "dm"
	KindUnknown ChannelKind = "unknown"
)

// Route is the router stage's high-level decision.
type Route string

const (
	RouteIgnore      Route = "ignore"
	RouteSimpleReply Route = "simple_reply"
	RouteFullReply   Route = "full_reply"
)

func (r Route) Valid() bool {
	switch r {
	case RouteIgnore, RouteSimpleReply, RouteFullReply:
		return true
	}
	return false
}

// ReplyMode selects the reply destination: the source thread or the channel.
type ReplyMode string

const (
	ReplyModeThread  ReplyMode = "thread"
	ReplyModeChannel ReplyMode = "channel"
)

func (m ReplyMode) Valid() bool {
	return m == ReplyModeThread || m == ReplyModeChannel
}

// TypingStyle is advisory pacing metadata carried through to delivery.
type TypingStyle string

const (
	TypingNone  TypingStyle = "none"
	TypingShort TypingStyle = "short"
	TypingLong  TypingStyle = "long"
)

func (t TypingStyle) Valid() bool {
	switch t {
	case TypingNone, TypingShort, TypingLong:
		return true
	}
	return false
}

// InboundEvent is the canonical normalized form of a Slack message event.
// It is built once per accepted webhook delivery and never mutated afterwards.
type InboundEvent struct {
	TeamID      string
	ChannelID   string
	ChannelKind ChannelKind
	UserID      string
	Text        string
	EventTS     string
	ThreadTS    string // equals EventTS when the message is not in a thread
	IsMentioned bool
	IsDM        bool
	EventType   string // always "message"
}

// IsInThread reports whether the event arrived inside an existing thread.
func (e InboundEvent) IsInThread() bool {
	return e.ThreadTS != "" && e.ThreadTS != e.EventTS
}

// RoutingDecision is the router stage's structured output.
// Invariant: ShouldReply=false implies Route=ignore.
type RoutingDecision struct {
	ShouldReply bool        `json:"should_reply"`
	Route       Route       `json:"route"`
	ReplyMode   ReplyMode   `json:"reply_mode"`
	TypingStyle TypingStyle `json:"typing_style"`
	Reason      string      `json:"reason"`
}

// FinalReply is the orchestrator's terminal output, consumed by delivery.
// ReplyText may be empty only when ShouldReply is false or a stage fell back.
type FinalReply struct {
	RoutingDecision
	ReplyText string `json:"reply_text"`
}

// IgnoreReply builds a well-formed "do not reply" record with the given reason.
func IgnoreReply(reason string) FinalReply {
	return FinalReply{
		RoutingDecision: RoutingDecision{
			ShouldReply: false,
			Route:       RouteIgnore,
			ReplyMode:   ReplyModeThread,
			TypingStyle: TypingNone,
			Reason:      reason,
		},
	}
}

// OutboundReply pairs a final decision with the event that produced it.
type OutboundReply struct {
	Channel string // delivery channel name, e.g. "slack"
	RunID   string
	Event   InboundEvent
	Reply   FinalReply
}
