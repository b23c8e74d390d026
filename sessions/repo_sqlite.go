package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const sessionsSchema = `
CREATE TABLE IF NOT EXISTS auth_sessions (
	id TEXT PRIMARY KEY,
	state TEXT NOT NULL UNIQUE,
	status TEXT NOT NULL,
	tokens_json TEXT,
	error_message TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
`

var _ Repo = (*SQLiteRepo)(nil)

// SQLiteRepo stores sessions in a single SQLite file. Suitable for
// single-node deployments that need sessions to survive restarts.
type SQLiteRepo struct {
	db *sql.DB
}

// NewSQLiteRepo opens (creating if needed) the session database at path
// and ensures the schema exists.
func NewSQLiteRepo(path string) (*SQLiteRepo, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("[SQLiteRepo New] open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("[SQLiteRepo New] ping sqlite db: %w", err)
	}

	if _, err := db.Exec(sessionsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("[SQLiteRepo New] create schema: %w", err)
	}

	return &SQLiteRepo{db: db}, nil
}

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

// Create stores a new pending session.
func (r *SQLiteRepo) Create(ctx context.Context, session *Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if session.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	if session.State == "" {
		return errors.New("session state cannot be empty")
	}

	tokensJSON, err := marshalTokens(session.Tokens)
	if err != nil {
		return fmt.Errorf("[SQLiteRepo Create] marshal tokens: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO auth_sessions (id, state, status, tokens_json, error_message, created_at, expires_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		session.ID,
		session.State,
		string(session.Status),
		tokensJSON,
		session.ErrorMessage,
		toMillis(session.CreatedAt),
		toMillis(session.ExpiresAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("[SQLiteRepo Create] insert session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID.
func (r *SQLiteRepo) Get(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, errors.New("session ID cannot be empty")
	}
	return r.getWhere(ctx, "id = ?", sessionID)
}

// GetByState resolves a session by its state token.
func (r *SQLiteRepo) GetByState(ctx context.Context, state string) (*Session, error) {
	if state == "" {
		return nil, errors.New("state cannot be empty")
	}
	return r.getWhere(ctx, "state = ?", state)
}

func (r *SQLiteRepo) getWhere(ctx context.Context, where string, arg string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, state, status, tokens_json, error_message, created_at, expires_at
FROM auth_sessions
WHERE `+where, arg)

	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("[SQLiteRepo getWhere] scan session: %w", err)
	}
	if session.Expired(time.Now().UTC()) {
		return nil, ErrNotFound
	}
	return session, nil
}

func scanSession(row *sql.Row) (*Session, error) {
	var session Session
	var status string
	var tokensJSON sql.NullString
	var createdAt, expiresAt int64
	if err := row.Scan(
		&session.ID,
		&session.State,
		&status,
		&tokensJSON,
		&session.ErrorMessage,
		&createdAt,
		&expiresAt,
	); err != nil {
		return nil, err
	}

	session.Status = Status(status)
	session.CreatedAt = fromMillis(createdAt)
	session.ExpiresAt = fromMillis(expiresAt)
	if tokensJSON.Valid && tokensJSON.String != "" {
		var tokens TokenBundle
		if err := json.Unmarshal([]byte(tokensJSON.String), &tokens); err != nil {
			return nil, fmt.Errorf("unmarshal tokens: %w", err)
		}
		session.Tokens = &tokens
	}
	return &session, nil
}

func marshalTokens(tokens *TokenBundle) (sql.NullString, error) {
	if tokens == nil {
		return sql.NullString{}, nil
	}
	payload, err := json.Marshal(tokens)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(payload), Valid: true}, nil
}

// MarkCompleted transitions a pending session to completed.
func (r *SQLiteRepo) MarkCompleted(ctx context.Context, sessionID string, tokens *TokenBundle) error {
	if tokens == nil {
		return errors.New("tokens cannot be nil")
	}

	tokensJSON, err := marshalTokens(tokens)
	if err != nil {
		return fmt.Errorf("[SQLiteRepo MarkCompleted] marshal tokens: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE auth_sessions
SET status = ?, tokens_json = ?
WHERE id = ? AND status = ? AND expires_at > ?
`, string(StatusCompleted), tokensJSON, sessionID, string(StatusPending), toMillis(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("[SQLiteRepo MarkCompleted] update session: %w", err)
	}
	return r.checkTransition(ctx, sessionID, res)
}

// MarkFailed transitions a pending session to failed.
func (r *SQLiteRepo) MarkFailed(ctx context.Context, sessionID string, message string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE auth_sessions
SET status = ?, error_message = ?
WHERE id = ? AND status = ? AND expires_at > ?
`, string(StatusFailed), message, sessionID, string(StatusPending), toMillis(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("[SQLiteRepo MarkFailed] update session: %w", err)
	}
	return r.checkTransition(ctx, sessionID, res)
}

// checkTransition disambiguates a guarded update that touched no rows:
// a missing or expired session reports ErrNotFound, an already terminal
// one reports ErrNotPending.
func (r *SQLiteRepo) checkTransition(ctx context.Context, sessionID string, res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("[SQLiteRepo checkTransition] rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	if _, err := r.Get(ctx, sessionID); err != nil {
		return err
	}
	return ErrNotPending
}

// DeleteExpired removes sessions whose deadline is at or before now.
func (r *SQLiteRepo) DeleteExpired(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE expires_at <= ?`, toMillis(now))
	if err != nil {
		return fmt.Errorf("[SQLiteRepo DeleteExpired] delete sessions: %w", err)
	}
	return nil
}

// Ping reports whether the database file is reachable.
func (r *SQLiteRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close releases the underlying database.
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}
