package memory

import "strings"

// Key identifies one conversational memory partition.
//
// Partitioning is channel-scoped: the actor is the Slack channel (long-term
// scope) and the session is the thread (short-term scope). Both components
// are sanitized before use because the store's token syntax only allows
// alphanumerics, dash and underscore; Slack timestamps contain a dot.
type Key struct {
	ActorID   string
	SessionID string
}

// NewKey derives the partition key for an event: actor = channel id,
// session = thread timestamp.
func NewKey(channelID, threadTS string) Key {
	return Key{
		ActorID:   SanitizeToken(channelID),
		SessionID: SanitizeToken(threadTS),
	}
}

func (k Key) String() string {
	return k.ActorID + "/" + k.SessionID
}

// SessionKey flattens the key into a single token that itself satisfies the
// restricted character set, for systems that take one session identifier.
func (k Key) SessionKey() string {
	return k.ActorID + "_" + k.SessionID
}

// SanitizeToken substitutes every character outside [A-Za-z0-9_-] with an
// underscore ("1724.000200" becomes "1724_000200"). The mapping is
// deterministic and documented here; it is not reversible and nothing
// attempts to reverse it.
func SanitizeToken(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "default"
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
