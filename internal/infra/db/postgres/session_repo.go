// File: internal/infra/db/postgres/session_repo.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"ai-chat-session-manager/internal/domain"
	"ai-chat-session-manager/internal/domain/model"
	"ai-chat-session-manager/internal/domain/ports/repository"
	"ai-chat-session-manager/internal/infra/metrics"
	"ai-chat-session-manager/internal/infra/redis"
	"ai-chat-session-manager/internal/infra/security"
)

// SessionRepo is the Postgres conversation store. SaveMessages overwrites the
// whole transcript in one transaction, matching the synchronizer's snapshot
// semantics. Content encryption-at-rest is optional; when it is on, the
// shared cache is bypassed so plaintext never leaves the process.
var _ repository.SessionRepository = (*SessionRepo)(nil)

type SessionRepo struct {
	pool       *pgxpool.Pool
	cache      *redis.SessionCache
	enc        *security.EncryptionService
	encryptAll bool
}

func NewSessionRepo(pool *pgxpool.Pool, cache *redis.SessionCache, enc *security.EncryptionService, encryptAll bool) *SessionRepo {
	return &SessionRepo{pool: pool, cache: cache, enc: enc, encryptAll: encryptAll}
}

// EnsureSchema creates the tables on first boot. The service owns its schema;
// there is no external migration step to run.
func (r *SessionRepo) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
    id         UUID PRIMARY KEY,
    title      TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`,
		`CREATE TABLE IF NOT EXISTS messages (
    session_id UUID NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    seq        INT NOT NULL,
    content    TEXT NOT NULL,
    is_user    BOOLEAN NOT NULL,
    stamp      TEXT NOT NULL,
    encrypted  BOOLEAN NOT NULL DEFAULT FALSE,
    PRIMARY KEY (session_id, seq)
);`,
		`CREATE INDEX IF NOT EXISTS sessions_updated_at_idx ON sessions (updated_at);`,
	}
	for _, q := range stmts {
		if _, err := r.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (r *SessionRepo) CreateSession(ctx context.Context) (string, error) {
	id := uuid.NewString()
	const q = `INSERT INTO sessions (id, title) VALUES ($1, $2);`
	if _, err := r.pool.Exec(ctx, q, id, model.DefaultTitle); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

func (r *SessionRepo) GetSession(ctx context.Context, id string) (*model.SessionInfo, error) {
	const q = `SELECT id, title, updated_at FROM sessions WHERE id = $1;`
	var info model.SessionInfo
	if err := r.pool.QueryRow(ctx, q, id).Scan(&info.ID, &info.Title, &info.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &info, nil
}

func (r *SessionRepo) ListSessions(ctx context.Context) ([]model.SessionInfo, error) {
	const q = `SELECT id, title, updated_at FROM sessions ORDER BY updated_at DESC;`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()
	var out []model.SessionInfo
	for rows.Next() {
		var info model.SessionInfo
		if err := rows.Scan(&info.ID, &info.Title, &info.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

func (r *SessionRepo) LoadMessages(ctx context.Context, id string) ([]model.Message, error) {
	if r.cacheUsable() {
		if msgs, err := r.cache.GetMessages(ctx, id); err == nil {
			metrics.IncCacheRequest("session", "hit")
			return msgs, nil
		}
		metrics.IncCacheRequest("session", "miss")
	}

	const q = `SELECT content, is_user, stamp, encrypted FROM messages WHERE session_id = $1 ORDER BY seq ASC;`
	rows, err := r.pool.Query(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()
	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		var encrypted bool
		if err := rows.Scan(&m.Content, &m.IsUser, &m.Timestamp, &encrypted); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if encrypted {
			plain, err := r.enc.Decrypt(m.Content)
			if err != nil {
				return nil, fmt.Errorf("decrypt message: %w", err)
			}
			m.Content = plain
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}

	if r.cacheUsable() {
		_ = r.cache.StoreMessages(ctx, id, msgs)
	}
	return msgs, nil
}

func (r *SessionRepo) SaveMessages(ctx context.Context, id string, msgs []model.Message) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const touch = `UPDATE sessions SET updated_at = NOW() WHERE id = $1;`
	tag, err := tx.Exec(ctx, touch, id)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	const clear = `DELETE FROM messages WHERE session_id = $1;`
	if _, err := tx.Exec(ctx, clear, id); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}

	const ins = `INSERT INTO messages (session_id, seq, content, is_user, stamp, encrypted) VALUES ($1,$2,$3,$4,$5,$6);`
	for i, m := range msgs {
		content := m.Content
		encFlag := false
		if r.encryptAll {
			content, err = r.enc.Encrypt(m.Content)
			if err != nil {
				return fmt.Errorf("encrypt message: %w", err)
			}
			encFlag = true
		}
		if _, err := tx.Exec(ctx, ins, id, i, content, m.IsUser, m.Timestamp, encFlag); err != nil {
			return fmt.Errorf("insert message %d: %w", i, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	if r.cacheUsable() {
		_ = r.cache.StoreMessages(ctx, id, msgs)
	}
	return nil
}

func (r *SessionRepo) UpdateTitle(ctx context.Context, id string, title string) error {
	const q = `UPDATE sessions SET title = $2, updated_at = NOW() WHERE id = $1;`
	tag, err := r.pool.Exec(ctx, q, id, title)
	if err != nil {
		return fmt.Errorf("update title: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *SessionRepo) DeleteSession(ctx context.Context, id string) error {
	const q = `DELETE FROM sessions WHERE id = $1;`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	if r.cache != nil {
		_ = r.cache.Invalidate(ctx, id)
	}
	return nil
}

func (r *SessionRepo) PruneStale(ctx context.Context, olderThan time.Time) (int64, error) {
	// Stale cache entries expire on their own TTL; only the rows go now.
	const q = `DELETE FROM sessions WHERE updated_at < $1;`
	tag, err := r.pool.Exec(ctx, q, olderThan)
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *SessionRepo) cacheUsable() bool {
	return r.cache != nil && !r.encryptAll
}
