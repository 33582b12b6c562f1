package repository

import (
	"context"
	"time"

	"ai-chat-session-manager/internal/domain/model"
)

// -----------------------------
// Conversation store
// -----------------------------

// SessionRepository persists conversation snapshots. SaveMessages overwrites
// the stored transcript with the one passed in; the store mirrors the live
// session and may lag it, but never holds state the session does not.
type SessionRepository interface {
	// CreateSession allocates an empty session and returns its id.
	CreateSession(ctx context.Context) (string, error)
	GetSession(ctx context.Context, id string) (*model.SessionInfo, error)
	ListSessions(ctx context.Context) ([]model.SessionInfo, error)
	LoadMessages(ctx context.Context, id string) ([]model.Message, error)
	SaveMessages(ctx context.Context, id string, msgs []model.Message) error
	UpdateTitle(ctx context.Context, id string, title string) error
	DeleteSession(ctx context.Context, id string) error
	// PruneStale deletes sessions not updated since the cutoff and returns
	// how many were removed.
	PruneStale(ctx context.Context, olderThan time.Time) (int64, error)
}
