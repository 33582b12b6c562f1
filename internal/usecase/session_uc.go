// File: internal/usecase/session_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-chat-session-manager/internal/domain"
	"ai-chat-session-manager/internal/domain/model"
	"ai-chat-session-manager/internal/domain/ports/adapter"
	"ai-chat-session-manager/internal/domain/ports/repository"
)

// Compile-time check
var _ SessionUseCase = (*sessionUC)(nil)

// FaultKind classifies background failures that did not fail their operation.
type FaultKind string

const (
	FaultPersistence FaultKind = "persistence"
	FaultReplay      FaultKind = "replay"
)

// Fault is reported through the fault handler when a save, title update, or
// replay turn fails. The triggering operation still succeeds; the fault tells
// the caller the stored copy or the AI context may be degraded.
type Fault struct {
	Kind      FaultKind
	SessionID string
	Err       error
}

// Snapshot is the read-only view of the working session.
type Snapshot struct {
	SessionID string          `json:"sessionId"`
	Title     string          `json:"title"`
	Messages  []model.Message `json:"messages"`
	Pending   bool            `json:"pending"`
}

type SessionUseCase interface {
	// Submit appends one user turn, asks the completion service for the
	// assistant turn, and persists the result. Rejected with ErrBusy while
	// another mutating operation is in flight.
	Submit(ctx context.Context, text string) error
	// NewSession discards the working session for a blank one. Never fails
	// and does not wait for an in-flight operation.
	NewSession(ctx context.Context)
	// SelectSession swaps the working session for a stored one, rebuilding
	// the completion service's context by replaying the stored user turns.
	SelectSession(ctx context.Context, id string) error
	RenameSession(ctx context.Context, id, title string) error
	DeleteSession(ctx context.Context, id string) error
	Sessions(ctx context.Context) ([]model.SessionInfo, error)
	Snapshot() Snapshot
}

// sessionUC keeps three copies of a conversation consistent: the in-memory
// transcript (source of truth for display), the completion service's hidden
// turn history, and the stored snapshot. One mutating operation runs at a
// time; pending is the cooperative guard and the mutex only protects field
// access, it is never held across store or AI calls.
type sessionUC struct {
	store   repository.SessionRepository
	ai      adapter.CompletionService
	log     *zerolog.Logger
	now     func() time.Time
	onFault func(Fault)

	mu        sync.Mutex
	messages  []model.Message
	sessionID string
	title     string
	pending   bool
	// gen counts resets. An operation captures gen when it starts and any
	// continuation after a suspension point re-checks it, so a NewSession
	// issued mid-flight orphans the old operation instead of racing it.
	gen uint64
}

// NewSessionUseCase wires the synchronizer. onFault may be nil; faults are
// always logged either way.
func NewSessionUseCase(store repository.SessionRepository, ai adapter.CompletionService, logger *zerolog.Logger, onFault func(Fault)) *sessionUC {
	return &sessionUC{
		store:   store,
		ai:      ai,
		log:     logger,
		now:     time.Now,
		onFault: onFault,
		title:   model.DefaultTitle,
	}
}

func (uc *sessionUC) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ErrEmptyMessage
	}

	gen, err := uc.acquire()
	if err != nil {
		return err
	}
	defer uc.release(gen)

	uc.mu.Lock()
	id := uc.sessionID
	uc.mu.Unlock()

	// Lazy creation: the session becomes durable on its first send.
	if id == "" {
		newID, err := uc.store.CreateSession(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrCreateSession, err)
		}
		uc.mu.Lock()
		if uc.gen != gen {
			uc.mu.Unlock()
			return domain.ErrSuperseded
		}
		uc.sessionID = newID
		uc.mu.Unlock()
		id = newID
	}

	// The user turn is appended, titled, and persisted before the completion
	// call starts, so observers see it while the reply is still in flight.
	userMsg := model.NewUserMessage(text, uc.now())
	uc.mu.Lock()
	if uc.gen != gen {
		uc.mu.Unlock()
		return domain.ErrSuperseded
	}
	uc.messages = append(uc.messages, userMsg)
	uc.mu.Unlock()

	uc.syncTitle(ctx, gen, id, text)
	uc.persist(ctx, gen, id)

	reply, err := uc.ai.Send(ctx, text)
	if err != nil {
		// The user turn stays; the transcript is one-sided until a retry.
		return fmt.Errorf("%w: %v", domain.ErrCompletion, err)
	}

	assistantMsg := model.NewAssistantMessage(reply, uc.now())
	uc.mu.Lock()
	if uc.gen != gen {
		uc.mu.Unlock()
		return domain.ErrSuperseded
	}
	uc.messages = append(uc.messages, assistantMsg)
	uc.mu.Unlock()

	uc.persist(ctx, gen, id)
	return nil
}

func (uc *sessionUC) NewSession(ctx context.Context) {
	uc.mu.Lock()
	uc.gen++
	uc.messages = nil
	uc.sessionID = ""
	uc.title = model.DefaultTitle
	uc.pending = false
	uc.mu.Unlock()

	if err := uc.ai.ResetContext(ctx); err != nil {
		uc.log.Warn().Err(err).Msg("Context reset failed; continuing with blank session")
	}
}

func (uc *sessionUC) SelectSession(ctx context.Context, id string) error {
	gen, err := uc.acquire()
	if err != nil {
		return err
	}
	defer uc.release(gen)

	// Load everything first: a failed load aborts with the current session
	// untouched.
	info, err := uc.store.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrLoadSession, err)
	}
	msgs, err := uc.store.LoadMessages(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLoadSession, err)
	}

	// Rebuild the completion context: reset, then replay the user turns in
	// conversation order, discarding replies (the stored assistant text is
	// authoritative for display). Serial on purpose; the context is order
	// sensitive. Failed turns degrade the context but not the switch.
	failed := 0
	var firstErr error
	if err := uc.ai.ResetContext(ctx); err != nil {
		failed++
		firstErr = fmt.Errorf("reset context: %w", err)
	}
	for _, m := range msgs {
		if !m.IsUser {
			continue
		}
		if _, err := uc.ai.Send(ctx, m.Content); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if failed > 0 {
		uc.fault(FaultReplay, id, fmt.Errorf("%d replay calls failed, first: %v", failed, firstErr))
	}

	uc.mu.Lock()
	if uc.gen != gen {
		uc.mu.Unlock()
		return domain.ErrSuperseded
	}
	uc.messages = msgs
	uc.title = info.Title
	uc.sessionID = id
	uc.mu.Unlock()
	return nil
}

// RenameSession is the explicit title edit. An empty id targets the working
// session, which may still be unsaved; a non-default title also stops the
// auto-title from ever overwriting it.
func (uc *sessionUC) RenameSession(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.ErrEmptyTitle
	}

	uc.mu.Lock()
	active := id == "" || id == uc.sessionID
	if active {
		if uc.pending {
			uc.mu.Unlock()
			return domain.ErrBusy
		}
		uc.title = title
		id = uc.sessionID
	}
	uc.mu.Unlock()

	if id == "" {
		// Unsaved working session: the title travels with the first save.
		return nil
	}
	if err := uc.store.UpdateTitle(ctx, id, title); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		uc.fault(FaultPersistence, id, fmt.Errorf("update title: %w", err))
	}
	return nil
}

func (uc *sessionUC) DeleteSession(ctx context.Context, id string) error {
	uc.mu.Lock()
	active := id != "" && id == uc.sessionID
	uc.mu.Unlock()

	if !active {
		// Background delete from the picker; store order is preserved by the
		// write path, no session state is involved.
		return uc.store.DeleteSession(ctx, id)
	}

	gen, err := uc.acquire()
	if err != nil {
		return err
	}
	if err := uc.store.DeleteSession(ctx, id); err != nil {
		uc.release(gen)
		return err
	}
	// Deleting the conversation on screen leaves the user on a blank one.
	// NewSession hands the guard to the fresh generation.
	uc.NewSession(ctx)
	return nil
}

func (uc *sessionUC) Sessions(ctx context.Context) ([]model.SessionInfo, error) {
	return uc.store.ListSessions(ctx)
}

func (uc *sessionUC) Snapshot() Snapshot {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return Snapshot{
		SessionID: uc.sessionID,
		Title:     uc.title,
		Messages:  model.CloneMessages(uc.messages),
		Pending:   uc.pending,
	}
}

// acquire claims the pending guard or reports ErrBusy. It returns the
// generation the caller must re-check after every suspension point.
func (uc *sessionUC) acquire() (uint64, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if uc.pending {
		return 0, domain.ErrBusy
	}
	uc.pending = true
	return uc.gen, nil
}

// release clears the guard unless a reset already replaced the session, in
// which case the guard belongs to the new generation.
func (uc *sessionUC) release(gen uint64) {
	uc.mu.Lock()
	if uc.gen == gen {
		uc.pending = false
	}
	uc.mu.Unlock()
}

// syncTitle runs after the first user append only. It derives a title from
// the message when nothing has renamed the session yet, and pushes whichever
// title the session carries to the store. Later appends never re-derive.
func (uc *sessionUC) syncTitle(ctx context.Context, gen uint64, id, text string) {
	uc.mu.Lock()
	if uc.gen != gen || len(uc.messages) != 1 {
		uc.mu.Unlock()
		return
	}
	if uc.title == model.DefaultTitle {
		uc.title = model.DeriveTitle(text)
	}
	title := uc.title
	uc.mu.Unlock()

	if err := uc.store.UpdateTitle(ctx, id, title); err != nil {
		uc.fault(FaultPersistence, id, fmt.Errorf("update title: %w", err))
	}
}

// persist overwrites the stored transcript with the current one. Store
// failures degrade durability, not the working session, so they surface as
// faults instead of errors.
func (uc *sessionUC) persist(ctx context.Context, gen uint64, id string) {
	uc.mu.Lock()
	if uc.gen != gen || id == "" {
		uc.mu.Unlock()
		return
	}
	snap := model.CloneMessages(uc.messages)
	uc.mu.Unlock()

	if err := uc.store.SaveMessages(ctx, id, snap); err != nil {
		uc.fault(FaultPersistence, id, fmt.Errorf("save messages: %w", err))
	}
}

func (uc *sessionUC) fault(kind FaultKind, id string, err error) {
	uc.log.Warn().Str("kind", string(kind)).Str("session_id", id).Err(err).Msg("Background operation failed")
	if uc.onFault != nil {
		uc.onFault(Fault{Kind: kind, SessionID: id, Err: err})
	}
}
