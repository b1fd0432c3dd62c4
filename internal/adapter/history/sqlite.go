package history

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"taxrag/internal/adapter/history/migrations"
	"taxrag/internal/domain"
	"taxrag/internal/port"
)

// SQLiteStore keeps sessions and feedback in a SQLite file so they survive
// restarts.
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ port.HistoryStore  = (*SQLiteStore)(nil)
	_ port.FeedbackStore = (*SQLiteStore)(nil)
)

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	const op = "history.open"

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, domain.E(domain.KindStorage, op, fmt.Errorf("creating data directory: %w", err))
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, domain.E(domain.KindStorage, op, fmt.Errorf("opening database: %w", err))
	}

	// single writer; busy_timeout covers other processes
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, domain.E(domain.KindStorage, op, fmt.Errorf("running migrations: %w", err))
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, sessionID string) ([]domain.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT question, standalone, answer, created_at FROM chat_turns WHERE session_id = ? ORDER BY seq`,
		sessionID)
	if err != nil {
		return nil, domain.E(domain.KindStorage, "history.load", err)
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var t domain.Turn
		if err := rows.Scan(&t.Question, &t.Standalone, &t.Answer, &t.At); err != nil {
			return nil, domain.E(domain.KindStorage, "history.load", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.E(domain.KindStorage, "history.load", err)
	}
	return turns, nil
}

// Append assigns the next sequence number inside the insert so concurrent
// appends to one session stay ordered.
func (s *SQLiteStore) Append(ctx context.Context, sessionID string, turn domain.Turn) error {
	if sessionID == "" {
		return domain.Errorf(domain.KindInvalidInput, "history.append", "empty session id")
	}
	at := turn.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_turns (session_id, seq, question, standalone, answer, created_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM chat_turns WHERE session_id = ?), ?, ?, ?, ?)`,
		sessionID, sessionID, turn.Question, turn.Standalone, turn.Answer, at.UTC())
	if err != nil {
		return domain.E(domain.KindStorage, "history.append", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_turns WHERE session_id = ?`, sessionID); err != nil {
		return domain.E(domain.KindStorage, "history.delete", err)
	}
	return nil
}

func (s *SQLiteStore) SaveFeedback(ctx context.Context, fb domain.Feedback) error {
	at := fb.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (id, session_id, option, message, answer, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		fb.ID, fb.SessionID, fb.Option, fb.Message, fb.Answer, at.UTC())
	if err != nil {
		return domain.E(domain.KindStorage, "history.save_feedback", err)
	}
	return nil
}

func (s *SQLiteStore) ListFeedback(ctx context.Context) ([]domain.Feedback, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, option, message, answer, created_at FROM feedback ORDER BY created_at, id`)
	if err != nil {
		return nil, domain.E(domain.KindStorage, "history.list_feedback", err)
	}
	defer rows.Close()

	var out []domain.Feedback
	for rows.Next() {
		var fb domain.Feedback
		if err := rows.Scan(&fb.ID, &fb.SessionID, &fb.Option, &fb.Message, &fb.Answer, &fb.CreatedAt); err != nil {
			return nil, domain.E(domain.KindStorage, "history.list_feedback", err)
		}
		out = append(out, fb)
	}
	return out, rows.Err()
}
