// Package persistence provides SQLite-backed session storage. The interview
// core never depends on it; the surrounding runtime records transcripts and
// question snapshots here.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go sqlite driver

	"biographer/pkg/interview"
	"biographer/pkg/logx"
)

// Store wraps the session database.
type Store struct {
	db     *sql.DB
	logger *logx.Logger
}

// Open opens (creating if needed) the session database at dbPath with WAL
// mode, foreign keys, and a busy timeout.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db, logger: logx.NewLogger("persistence")}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	store.logger.Info("database initialized: %s", dbPath)
	return store, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSession upserts the session row and replaces its messages and question
// snapshots in one transaction.
func (s *Store) SaveSession(ctx context.Context, state *interview.InterviewState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, elder_id, finished, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET finished = excluded.finished, updated_at = excluded.updated_at`,
		state.SessionID, state.ElderID, boolToInt(state.Finished), now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert session %s: %w", state.SessionID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, state.SessionID); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	for i, msg := range state.Messages {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, session_id, seq, role, content, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			msg.ID, state.SessionID, i, string(msg.Role), msg.Content, msg.Timestamp.Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("failed to insert message %s: %w", msg.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM question_snapshots WHERE session_id = ?`, state.SessionID); err != nil {
		return fmt.Errorf("failed to clear question snapshots: %w", err)
	}
	for _, record := range state.Questions {
		answers, err := json.Marshal(record.Answers)
		if err != nil {
			return fmt.Errorf("failed to encode answers for question %d: %w", record.ID, err)
		}
		var lastAsked sql.NullString
		if record.LastAsked != nil {
			lastAsked = sql.NullString{String: record.LastAsked.Format(time.RFC3339), Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO question_snapshots
				(session_id, question_id, text, priority, status, answers, analysis, follow_up_count, last_asked)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			state.SessionID, record.ID, record.Text, record.Priority, string(record.Status),
			string(answers), record.Analysis, record.FollowUpCount, lastAsked)
		if err != nil {
			return fmt.Errorf("failed to insert snapshot for question %d: %w", record.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session save: %w", err)
	}
	return nil
}

// SessionRow is a stored session summary.
type SessionRow struct {
	ID        string
	ElderID   string
	Finished  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionsByElder returns the sessions recorded for an elder, newest first.
func (s *Store) SessionsByElder(ctx context.Context, elderID string) ([]SessionRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, elder_id, finished, created_at, updated_at
		FROM sessions WHERE elder_id = ? ORDER BY updated_at DESC`, elderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions for elder %s: %w", elderID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []SessionRow
	for rows.Next() {
		var row SessionRow
		var finished int
		var created, updated string
		if err := rows.Scan(&row.ID, &row.ElderID, &finished, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		row.Finished = finished != 0
		row.CreatedAt, _ = time.Parse(time.RFC3339, created)
		row.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
		out = append(out, row)
	}
	return out, rows.Err()
}

// MessageRow is one stored transcript entry.
type MessageRow struct {
	ID        string
	Role      string
	Content   string
	CreatedAt time.Time
}

// Messages returns a session's transcript in order.
func (s *Store) Messages(ctx context.Context, sessionID string) ([]MessageRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, created_at
		FROM messages WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages for session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []MessageRow
	for rows.Next() {
		var row MessageRow
		var created string
		if err := rows.Scan(&row.ID, &row.Role, &row.Content, &created); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		row.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, row)
	}
	return out, rows.Err()
}

// QuestionRow is one stored question snapshot.
type QuestionRow struct {
	QuestionID    int
	Text          string
	Priority      int
	Status        string
	Answers       []string
	Analysis      string
	FollowUpCount int
	LastAsked     *time.Time
}

// Questions returns a session's question snapshots ordered by id.
func (s *Store) Questions(ctx context.Context, sessionID string) ([]QuestionRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT question_id, text, priority, status, answers, analysis, follow_up_count, last_asked
		FROM question_snapshots WHERE session_id = ? ORDER BY question_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query question snapshots for session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []QuestionRow
	for rows.Next() {
		var row QuestionRow
		var answers string
		var lastAsked sql.NullString
		if err := rows.Scan(&row.QuestionID, &row.Text, &row.Priority, &row.Status,
			&answers, &row.Analysis, &row.FollowUpCount, &lastAsked); err != nil {
			return nil, fmt.Errorf("failed to scan question row: %w", err)
		}
		if answers != "" {
			if err := json.Unmarshal([]byte(answers), &row.Answers); err != nil {
				return nil, fmt.Errorf("failed to decode answers for question %d: %w", row.QuestionID, err)
			}
		}
		if lastAsked.Valid {
			if ts, err := time.Parse(time.RFC3339, lastAsked.String); err == nil {
				row.LastAsked = &ts
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
