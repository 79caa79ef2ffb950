package memory

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/youyo/slack-assistant/internal/config"
)

// ExtractionService buffers conversation turns and distills them into
// memory records. A flush runs after a quiet gap with no new turns, when the
// buffer exceeds its token cap, and once more on shutdown.
type ExtractionService struct {
	store    *Store
	llm      LLMClient
	quietGap time.Duration
	tokenCap int

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func NewExtractionService(store *Store, llm LLMClient, cfg config.ExtractionConfig) *ExtractionService {
	quietGap := 3 * time.Minute
	if d, err := time.ParseDuration(strings.TrimSpace(cfg.QuietGap)); err == nil && d > 0 {
		quietGap = d
	}
	budget := cfg.TokenBudget
	if budget <= 0 {
		budget = config.DefaultMemoryTokenBudget
	}
	tokenCap := int(10000 * budget)
	if tokenCap < 1000 {
		tokenCap = 1000
	}

	return &ExtractionService{
		store:    store,
		llm:      llm,
		quietGap: quietGap,
		tokenCap: tokenCap,
	}
}

// Capture buffers one conversation turn for the partition.
func (s *ExtractionService) Capture(key Key, role, content string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}
	if err := s.store.BufferTurn(key, role, content); err != nil {
		log.Printf("[memory] buffer turn error: %v", err)
		return
	}

	s.resetQuietTimer()

	tokens, err := s.store.BufferTokenCount()
	if err != nil {
		log.Printf("[memory] buffer token count error: %v", err)
		return
	}
	if tokens >= s.tokenCap {
		go s.Flush()
	}
}

func (s *ExtractionService) Stop() {
	s.mu.Lock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()

	s.Flush()
}

func (s *ExtractionService) resetQuietTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.quietGap, func() {
		s.Flush()
	})
}

// Flush drains the buffer and extracts memories, one model call per
// partition so facts and summaries land under the right key.
func (s *ExtractionService) Flush() {
	turns, err := s.store.DrainBuffer(500)
	if err != nil {
		log.Printf("[memory] drain buffer error: %v", err)
		return
	}
	if len(turns) == 0 {
		return
	}

	for _, group := range groupTurns(turns) {
		if err := s.extractGroup(group); err != nil {
			log.Printf("[memory] extraction error for %s/%s: %v", group[0].ActorID, group[0].SessionID, err)
			for _, t := range group {
				_ = s.store.requeueTurn(t)
			}
		}
	}
}

func (s *ExtractionService) extractGroup(turns []Turn) error {
	extracted, err := s.llm.Extract(formatConversation(turns))
	if err != nil {
		return err
	}

	actorID := turns[0].ActorID
	sessionID := turns[0].SessionID

	for _, fact := range extracted.Facts {
		namespace := fact.Namespace
		if namespace != NamespacePreferences {
			namespace = NamespaceFacts
		}
		rec := Record{
			ActorID:    actorID,
			Namespace:  namespace,
			Content:    fact.Content,
			Importance: fact.Importance,
			Source:     "extraction",
		}
		if err := s.store.Append(rec); err != nil {
			return fmt.Errorf("append fact: %w", err)
		}
	}

	if summary := strings.TrimSpace(extracted.Summary); summary != "" {
		rec := Record{
			ActorID:    actorID,
			SessionID:  sessionID,
			Namespace:  NamespaceSummaries,
			Content:    summary,
			Importance: 0.5,
			Source:     "extraction",
		}
		if err := s.store.Append(rec); err != nil {
			return fmt.Errorf("append summary: %w", err)
		}
	}
	return nil
}

// groupTurns partitions drained turns by key, preserving drain order inside
// each group.
func groupTurns(turns []Turn) [][]Turn {
	var order []string
	groups := map[string][]Turn{}
	for _, t := range turns {
		k := t.ActorID + "/" + t.SessionID
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], t)
	}

	out := make([][]Turn, 0, len(order))
	for _, k := range order {
		out = append(out, groups[k])
	}
	return out
}

func formatConversation(turns []Turn) string {
	var sb strings.Builder
	for _, t := range turns {
		sb.WriteString(fmt.Sprintf("[%s]: %s\n", t.Role, t.Content))
	}
	return strings.TrimSpace(sb.String())
}
