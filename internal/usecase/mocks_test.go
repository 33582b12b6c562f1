// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-chat-session-manager/internal/domain"
	"ai-chat-session-manager/internal/domain/model"
	"ai-chat-session-manager/internal/domain/ports/adapter"
	"ai-chat-session-manager/internal/domain/ports/repository"
)

// memSessionRepo is a small in-memory store used by unit tests.
type memSessionRepo struct {
	mu    sync.RWMutex
	store map[string]*storedSession
	seq   int

	createErr error // used by tests to simulate failures
	getErr    error
	loadErr   error
	saveErr   error
	titleErr  error
	deleteErr error

	saveCalls  int
	titleCalls int
}

type storedSession struct {
	info model.SessionInfo
	msgs []model.Message
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{store: make(map[string]*storedSession)}
}

// seed installs a stored session directly, bypassing the counters.
func (m *memSessionRepo) seed(id, title string, msgs []model.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[id] = &storedSession{
		info: model.SessionInfo{ID: id, Title: title, UpdatedAt: time.Now()},
		msgs: model.CloneMessages(msgs),
	}
}

func (m *memSessionRepo) CreateSession(ctx context.Context) (string, error) {
	if m.createErr != nil {
		return "", m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := fmt.Sprintf("s-%d", m.seq)
	m.store[id] = &storedSession{
		info: model.SessionInfo{ID: id, Title: model.DefaultTitle, UpdatedAt: time.Now()},
	}
	return id, nil
}

func (m *memSessionRepo) GetSession(ctx context.Context, id string) (*model.SessionInfo, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := s.info
	return &cp, nil
}

func (m *memSessionRepo) ListSessions(ctx context.Context) ([]model.SessionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.SessionInfo, 0, len(m.store))
	for _, s := range m.store {
		out = append(out, s.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memSessionRepo) LoadMessages(ctx context.Context, id string) ([]model.Message, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return model.CloneMessages(s.msgs), nil
}

func (m *memSessionRepo) SaveMessages(ctx context.Context, id string, msgs []model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	if m.saveErr != nil {
		return m.saveErr
	}
	s, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.msgs = model.CloneMessages(msgs)
	s.info.UpdatedAt = time.Now()
	return nil
}

func (m *memSessionRepo) UpdateTitle(ctx context.Context, id string, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.titleCalls++
	if m.titleErr != nil {
		return m.titleErr
	}
	s, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.info.Title = title
	return nil
}

func (m *memSessionRepo) DeleteSession(ctx context.Context, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.store, id)
	return nil
}

func (m *memSessionRepo) PruneStale(ctx context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.store {
		if s.info.UpdatedAt.Before(olderThan) {
			delete(m.store, id)
			n++
		}
	}
	return n, nil
}

func (m *memSessionRepo) titleOf(id string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.store[id]; ok {
		return s.info.Title
	}
	return ""
}

func (m *memSessionRepo) messagesOf(id string) []model.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.store[id]; ok {
		return model.CloneMessages(s.msgs)
	}
	return nil
}

func (m *memSessionRepo) count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.store)
}

// Ensure memSessionRepo implements repository.SessionRepository at compile-time
var _ repository.SessionRepository = (*memSessionRepo)(nil)

// scriptAI records every call in order so tests can assert the exact
// conversation the backend saw. Send blocks on gate when one is installed,
// which lets tests hold a turn in flight.
type scriptAI struct {
	mu       sync.Mutex
	calls    []string
	reply    func(text string) (string, error)
	resetErr error
	gate     chan struct{}
	entered  chan struct{}
}

func newScriptAI() *scriptAI {
	return &scriptAI{entered: make(chan struct{}, 16)}
}

func (a *scriptAI) Send(ctx context.Context, text string) (string, error) {
	a.mu.Lock()
	a.calls = append(a.calls, "send:"+text)
	reply := a.reply
	gate := a.gate
	a.mu.Unlock()

	select {
	case a.entered <- struct{}{}:
	default:
	}
	if gate != nil {
		<-gate
	}
	if reply != nil {
		return reply(text)
	}
	return "ok", nil
}

func (a *scriptAI) ResetContext(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, "reset")
	return a.resetErr
}

func (a *scriptAI) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.calls))
	copy(out, a.calls)
	return out
}

var _ adapter.CompletionService = (*scriptAI)(nil)

// faultRecorder collects faults delivered through the handler.
type faultRecorder struct {
	mu     sync.Mutex
	faults []Fault
}

func (f *faultRecorder) record(ft Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = append(f.faults, ft)
}

func (f *faultRecorder) all() []Fault {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Fault, len(f.faults))
	copy(out, f.faults)
	return out
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
// It writes to io.Discard to prevent logs from cluttering test output.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}
