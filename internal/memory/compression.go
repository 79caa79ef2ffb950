package memory

import (
	"fmt"
	"log"
	"strings"
)

// minPartitionSize is how many active facts an actor must accumulate before
// compression will touch that partition.
const minPartitionSize = 10

// Compress merges each actor's fact namespace when it grows large: the old
// records are archived and replaced by the model's deduplicated set. Runs
// from the maintenance scheduler.
func (s *Store) Compress(llm LLMClient) error {
	rows, err := s.db.Query(`
		SELECT DISTINCT actor_id FROM records
		WHERE namespace = ? AND is_archived = 0
	`, NamespaceFacts)
	if err != nil {
		return fmt.Errorf("compress query actors: %w", err)
	}
	defer rows.Close()

	var actors []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return fmt.Errorf("scan actor: %w", err)
		}
		actors = append(actors, a)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate actors: %w", err)
	}

	for _, actor := range actors {
		if err := s.compressActor(llm, actor); err != nil {
			log.Printf("[memory] compress actor %s error: %v", actor, err)
		}
	}
	return nil
}

func (s *Store) compressActor(llm LLMClient, actorID string) error {
	rows, err := s.db.Query(`
		SELECT id, actor_id, session_id, namespace, content, importance, source,
		       created_at, last_accessed, access_count, is_archived
		FROM records
		WHERE actor_id = ? AND namespace = ? AND is_archived = 0
		ORDER BY created_at ASC
		LIMIT 500
	`, actorID, NamespaceFacts)
	if err != nil {
		return fmt.Errorf("query actor facts: %w", err)
	}
	defer rows.Close()

	entries, err := scanRecords(rows)
	if err != nil {
		return err
	}
	if len(entries) < minPartitionSize {
		return nil
	}

	merged, err := llm.Compress(formatEntries(entries))
	if err != nil {
		return fmt.Errorf("compress llm: %w", err)
	}
	if len(merged.Facts) == 0 {
		return nil
	}

	for _, old := range entries {
		if err := s.archive(old.ID); err != nil {
			return err
		}
	}
	for _, fact := range merged.Facts {
		namespace := fact.Namespace
		if namespace != NamespacePreferences {
			namespace = NamespaceFacts
		}
		rec := Record{
			ActorID:    actorID,
			Namespace:  namespace,
			Content:    fact.Content,
			Importance: fact.Importance,
			Source:     "compression",
		}
		if err := s.Append(rec); err != nil {
			return err
		}
	}
	return nil
}

func formatEntries(records []Record) string {
	var sb strings.Builder
	for _, r := range records {
		sb.WriteString("- ")
		sb.WriteString(r.Content)
		sb.WriteString(fmt.Sprintf(" (importance=%.2f)\n", r.Importance))
	}
	return strings.TrimSpace(sb.String())
}
