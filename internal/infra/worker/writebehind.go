// File: internal/infra/worker/writebehind.go
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-chat-session-manager/internal/domain/model"
	"ai-chat-session-manager/internal/domain/ports/repository"
	"ai-chat-session-manager/internal/infra/metrics"
)

// WriteBehindStore decorates a SessionRepository so transcript saves and
// title updates return immediately and execute on a single background
// goroutine in submission order. The store can only ever lag the session,
// never reorder behind it. Reads and deletes first drain the queue, so a
// switch never observes a stale transcript; session creation stays
// synchronous because the caller needs the id.
type WriteBehindStore struct {
	inner repository.SessionRepository
	log   *zerolog.Logger
	onErr func(op, sessionID string, err error)

	jobs chan job
	quit chan struct{}
	wg   sync.WaitGroup
}

type job struct {
	op  string
	id  string
	run func(ctx context.Context) error
}

var _ repository.SessionRepository = (*WriteBehindStore)(nil)

// NewWriteBehindStore wires the decorator. onErr receives failures of
// deferred writes; it may be nil.
func NewWriteBehindStore(inner repository.SessionRepository, queueSize int, logger *zerolog.Logger, onErr func(op, sessionID string, err error)) *WriteBehindStore {
	if queueSize <= 0 {
		queueSize = 64
	}
	l := logger.With().Str("component", "write_behind").Logger()
	return &WriteBehindStore{
		inner: inner,
		log:   &l,
		onErr: onErr,
		jobs:  make(chan job, queueSize),
		quit:  make(chan struct{}),
	}
}

// Start launches the single writer goroutine. Writes enqueued before Start
// wait in the queue.
func (s *WriteBehindStore) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.quit:
				s.drain(ctx)
				return
			case j := <-s.jobs:
				metrics.SetWriteQueueDepth(len(s.jobs))
				s.exec(ctx, j)
			}
		}
	}()
}

// Stop drains outstanding writes and blocks until the worker exits.
func (s *WriteBehindStore) Stop() {
	close(s.quit)
	s.wg.Wait()
	// Catch anything enqueued during shutdown.
	s.drain(context.Background())
}

func (s *WriteBehindStore) drain(ctx context.Context) {
	for {
		select {
		case j := <-s.jobs:
			s.exec(ctx, j)
		default:
			return
		}
	}
}

func (s *WriteBehindStore) exec(ctx context.Context, j job) {
	if j.run == nil {
		return
	}
	start := time.Now()
	err := j.run(ctx)
	if err != nil {
		metrics.IncStoreWrite(j.op, "error")
		s.log.Warn().Str("op", j.op).Str("session_id", j.id).Dur("took", time.Since(start)).Err(err).Msg("Deferred write failed")
		if s.onErr != nil {
			s.onErr(j.op, j.id, err)
		}
		return
	}
	metrics.IncStoreWrite(j.op, "ok")
}

// enqueue hands a write to the worker, falling back to synchronous execution
// once the store is stopped. Blocks while the queue is full; back-pressure
// beats losing a transcript.
func (s *WriteBehindStore) enqueue(ctx context.Context, j job) {
	select {
	case s.jobs <- j:
		metrics.SetWriteQueueDepth(len(s.jobs))
	case <-s.quit:
		s.exec(ctx, j)
	}
}

// flush blocks until every write enqueued before it has executed.
func (s *WriteBehindStore) flush(ctx context.Context) error {
	done := make(chan struct{})
	barrier := job{op: "flush", run: func(context.Context) error { close(done); return nil }}
	select {
	case s.jobs <- barrier:
	case <-s.quit:
		// Stopped stores execute synchronously; nothing can be in flight.
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *WriteBehindStore) CreateSession(ctx context.Context) (string, error) {
	return s.inner.CreateSession(ctx)
}

func (s *WriteBehindStore) GetSession(ctx context.Context, id string) (*model.SessionInfo, error) {
	if err := s.flush(ctx); err != nil {
		return nil, err
	}
	return s.inner.GetSession(ctx, id)
}

func (s *WriteBehindStore) ListSessions(ctx context.Context) ([]model.SessionInfo, error) {
	if err := s.flush(ctx); err != nil {
		return nil, err
	}
	return s.inner.ListSessions(ctx)
}

func (s *WriteBehindStore) LoadMessages(ctx context.Context, id string) ([]model.Message, error) {
	if err := s.flush(ctx); err != nil {
		return nil, err
	}
	return s.inner.LoadMessages(ctx, id)
}

func (s *WriteBehindStore) SaveMessages(ctx context.Context, id string, msgs []model.Message) error {
	snapshot := model.CloneMessages(msgs)
	s.enqueue(ctx, job{op: "save", id: id, run: func(jctx context.Context) error {
		return s.inner.SaveMessages(jctx, id, snapshot)
	}})
	return nil
}

func (s *WriteBehindStore) UpdateTitle(ctx context.Context, id string, title string) error {
	s.enqueue(ctx, job{op: "title", id: id, run: func(jctx context.Context) error {
		return s.inner.UpdateTitle(jctx, id, title)
	}})
	return nil
}

func (s *WriteBehindStore) DeleteSession(ctx context.Context, id string) error {
	// Deletes report not-found to the caller, so they wait for the queue.
	if err := s.flush(ctx); err != nil {
		return err
	}
	return s.inner.DeleteSession(ctx, id)
}

func (s *WriteBehindStore) PruneStale(ctx context.Context, olderThan time.Time) (int64, error) {
	// Settle pending saves first so a just-touched session is not judged by
	// its stored timestamp alone.
	if err := s.flush(ctx); err != nil {
		return 0, err
	}
	return s.inner.PruneStale(ctx, olderThan)
}
