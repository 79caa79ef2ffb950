package memory

// Namespaces partition records inside an actor's memory. Preferences and
// facts are actor-scoped (long-term); summaries are additionally scoped to
// one session (short-term).
const (
	NamespacePreferences = "preferences"
	NamespaceFacts       = "facts"
	NamespaceSummaries   = "summaries"
)

// Record is one stored memory entry.
type Record struct {
	ID           int64
	ActorID      string
	SessionID    string // empty for actor-scoped namespaces
	Namespace    string
	Content      string
	Importance   float64
	Source       string
	CreatedAt    string
	LastAccessed string
	AccessCount  int
	IsArchived   bool
}

// ScopedQuery is a namespaced retrieval request. Text drives relevance
// scoring; records scoring below MinScore are dropped, and at most Limit
// records are returned.
type ScopedQuery struct {
	ActorID   string
	SessionID string // required only for session-scoped namespaces
	Namespace string
	Text      string
	Limit     int
	MinScore  float64
}

// RetrievalSpec is the per-namespace retrieval configuration bound to a
// partition key for one pipeline run.
type RetrievalSpec struct {
	Namespace string
	Limit     int
	MinScore  float64
}

// DefaultRetrievalSpecs mirrors the memory strategy layout: channel
// preferences (few, high confidence), channel facts (more, permissive),
// thread summaries (few, middling).
func DefaultRetrievalSpecs() []RetrievalSpec {
	return []RetrievalSpec{
		{Namespace: NamespacePreferences, Limit: 5, MinScore: 0.7},
		{Namespace: NamespaceFacts, Limit: 10, MinScore: 0.3},
		{Namespace: NamespaceSummaries, Limit: 3, MinScore: 0.5},
	}
}

// Turn is a buffered conversation message awaiting extraction.
type Turn struct {
	ID         int64
	ActorID    string
	SessionID  string
	Role       string // "user" or "assistant"
	Content    string
	TokenCount int
	CreatedAt  string
}

// FactEntry is a normalized fact produced by extraction or compression.
type FactEntry struct {
	Content    string  `json:"content"`
	Namespace  string  `json:"namespace"`
	Importance float64 `json:"importance"`
}

// ExtractionResult is the LLM extraction output.
type ExtractionResult struct {
	Facts   []FactEntry `json:"facts"`
	Summary string      `json:"summary"`
}

// CompressionResult is the LLM compression output.
type CompressionResult struct {
	Facts []FactEntry `json:"facts"`
}

// Stats is a compact snapshot used by status reporting.
type Stats struct {
	Actors        int
	ActiveRecords int
	Archived      int
	BufferedTurns int
}
