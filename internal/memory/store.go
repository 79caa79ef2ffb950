package memory

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// Store is the sqlite-backed conversational memory store. Writes are
// append-only (callers never update records in place); concurrent pipeline
// runs for the same partition are safe because appends are independent rows.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			actor_id TEXT NOT NULL,
			session_id TEXT NOT NULL DEFAULT '',
			namespace TEXT NOT NULL,
			content TEXT NOT NULL,
			importance REAL NOT NULL DEFAULT 0.5,
			source TEXT NOT NULL DEFAULT 'extraction',
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			last_accessed TEXT NOT NULL DEFAULT (datetime('now')),
			access_count INTEGER NOT NULL DEFAULT 0,
			is_archived INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_partition ON records(actor_id, namespace, is_archived)`,
		`CREATE INDEX IF NOT EXISTS idx_records_session ON records(actor_id, session_id, namespace)`,
		`CREATE TABLE IF NOT EXISTS extraction_buffer (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			actor_id TEXT NOT NULL,
			session_id TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			token_count INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_buffer_created ON extraction_buffer(created_at)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) IsEmpty() (bool, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&count); err != nil {
		return false, fmt.Errorf("count records: %w", err)
	}
	return count == 0, nil
}

// Append stores one record. Opaque write: the store does not interpret
// content beyond scoring it at retrieval time.
func (s *Store) Append(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	namespace := strings.TrimSpace(rec.Namespace)
	if namespace == "" {
		namespace = NamespaceFacts
	}
	importance := rec.Importance
	if importance <= 0 {
		importance = 0.5
	}
	if importance > 1 {
		importance = 1
	}
	source := strings.TrimSpace(rec.Source)
	if source == "" {
		source = "extraction"
	}

	_, err := s.db.Exec(`
		INSERT INTO records (actor_id, session_id, namespace, content, importance, source)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.ActorID, rec.SessionID, namespace, strings.TrimSpace(rec.Content), importance, source)
	if err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

// Retrieve returns the records of one namespace scored against q.Text,
// filtered by q.MinScore and capped at q.Limit. Matches are touched so
// frequently used memories surface in stats.
func (s *Store) Retrieve(q ScopedQuery) ([]Record, error) {
	if q.Limit <= 0 {
		q.Limit = 10
	}

	query := `
		SELECT id, actor_id, session_id, namespace, content, importance, source,
		       created_at, last_accessed, access_count, is_archived
		FROM records
		WHERE actor_id = ? AND namespace = ? AND is_archived = 0
	`
	args := []any{q.ActorID, q.Namespace}
	if q.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, q.SessionID)
	}
	query += ` ORDER BY created_at DESC LIMIT 200`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	candidates, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}

	scored := scoreRecords(q.Text, candidates)
	var out []Record
	for _, m := range scored {
		if m.Score < q.MinScore {
			continue
		}
		out = append(out, m.Record)
		if len(out) >= q.Limit {
			break
		}
	}

	for _, rec := range out {
		if err := s.touch(rec.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) touch(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		UPDATE records
		SET last_accessed = datetime('now'), access_count = access_count + 1
		WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("touch record: %w", err)
	}
	return nil
}

func (s *Store) archive(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE records SET is_archived = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("archive record: %w", err)
	}
	return nil
}

// BufferTurn persists one conversation turn for later extraction.
func (s *Store) BufferTurn(key Key, role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO extraction_buffer (actor_id, session_id, role, content, token_count)
		VALUES (?, ?, ?, ?, ?)
	`, key.ActorID, key.SessionID, role, content, estimateTokens(content))
	if err != nil {
		return fmt.Errorf("buffer turn: %w", err)
	}
	return nil
}

func (s *Store) BufferTokenCount() (int, error) {
	var total sql.NullInt64
	if err := s.db.QueryRow(`SELECT SUM(token_count) FROM extraction_buffer`).Scan(&total); err != nil {
		return 0, fmt.Errorf("buffer token count: %w", err)
	}
	return int(total.Int64), nil
}

// DrainBuffer removes and returns up to limit buffered turns, oldest first.
func (s *Store) DrainBuffer(limit int) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 500
	}

	rows, err := s.db.Query(`
		SELECT id, actor_id, session_id, role, content, token_count, created_at
		FROM extraction_buffer
		ORDER BY id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("drain buffer query: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	var ids []any
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.ActorID, &t.SessionID, &t.Role, &t.Content, &t.TokenCount, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan buffer turn: %w", err)
		}
		turns = append(turns, t)
		ids = append(ids, t.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate buffer: %w", err)
	}

	if len(ids) > 0 {
		placeholders := strings.TrimRight(strings.Repeat("?,", len(ids)), ",")
		if _, err := s.db.Exec(`DELETE FROM extraction_buffer WHERE id IN (`+placeholders+`)`, ids...); err != nil {
			return nil, fmt.Errorf("delete drained turns: %w", err)
		}
	}

	return turns, nil
}

// requeueTurn puts a drained turn back after a failed extraction so no
// conversation data is lost.
func (s *Store) requeueTurn(t Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO extraction_buffer (actor_id, session_id, role, content, token_count)
		VALUES (?, ?, ?, ?, ?)
	`, t.ActorID, t.SessionID, t.Role, t.Content, t.TokenCount)
	if err != nil {
		return fmt.Errorf("requeue turn: %w", err)
	}
	return nil
}

func (s *Store) Stats() (Stats, error) {
	var st Stats
	if err := s.db.QueryRow(`SELECT COUNT(DISTINCT actor_id) FROM records`).Scan(&st.Actors); err != nil {
		return st, fmt.Errorf("stats actors: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM records WHERE is_archived = 0`).Scan(&st.ActiveRecords); err != nil {
		return st, fmt.Errorf("stats active: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM records WHERE is_archived = 1`).Scan(&st.Archived); err != nil {
		return st, fmt.Errorf("stats archived: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM extraction_buffer`).Scan(&st.BufferedTurns); err != nil {
		return st, fmt.Errorf("stats buffer: %w", err)
	}
	return st, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var r Record
		var archived int
		if err := rows.Scan(&r.ID, &r.ActorID, &r.SessionID, &r.Namespace, &r.Content, &r.Importance,
			&r.Source, &r.CreatedAt, &r.LastAccessed, &r.AccessCount, &archived); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.IsArchived = archived != 0
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}
