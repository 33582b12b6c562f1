//go:build !integration

// File: internal/infra/api/server_test.go
package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"ai-chat-session-manager/internal/domain"
	"ai-chat-session-manager/internal/domain/model"
	"ai-chat-session-manager/internal/infra/api"
	"ai-chat-session-manager/internal/usecase"
)

//
// ---------------- in-memory infra mocks (store/AI) ----------------
//

type memRepo struct {
	mu    sync.RWMutex
	seq   int
	infos map[string]*model.SessionInfo
	msgs  map[string][]model.Message
}

func newMemRepo() *memRepo {
	return &memRepo{infos: map[string]*model.SessionInfo{}, msgs: map[string][]model.Message{}}
}

func (m *memRepo) seed(id, title string, msgs []model.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos[id] = &model.SessionInfo{ID: id, Title: title, UpdatedAt: time.Now()}
	m.msgs[id] = model.CloneMessages(msgs)
}

func (m *memRepo) titleOf(id string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if info, ok := m.infos[id]; ok {
		return info.Title
	}
	return ""
}

func (m *memRepo) CreateSession(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := fmt.Sprintf("s-%d", m.seq)
	m.infos[id] = &model.SessionInfo{ID: id, Title: model.DefaultTitle, UpdatedAt: time.Now()}
	return id, nil
}

func (m *memRepo) GetSession(ctx context.Context, id string) (*model.SessionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.infos[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *info
	return &cp, nil
}

func (m *memRepo) ListSessions(ctx context.Context) ([]model.SessionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.SessionInfo, 0, len(m.infos))
	for _, info := range m.infos {
		out = append(out, *info)
	}
	return out, nil
}

func (m *memRepo) LoadMessages(ctx context.Context, id string) ([]model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.infos[id]; !ok {
		return nil, domain.ErrNotFound
	}
	return model.CloneMessages(m.msgs[id]), nil
}

func (m *memRepo) SaveMessages(ctx context.Context, id string, msgs []model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.infos[id]; !ok {
		return domain.ErrNotFound
	}
	m.msgs[id] = model.CloneMessages(msgs)
	m.infos[id].UpdatedAt = time.Now()
	return nil
}

func (m *memRepo) UpdateTitle(ctx context.Context, id, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.infos[id]
	if !ok {
		return domain.ErrNotFound
	}
	info.Title = title
	return nil
}

func (m *memRepo) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.infos[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.infos, id)
	delete(m.msgs, id)
	return nil
}

func (m *memRepo) PruneStale(ctx context.Context, olderThan time.Time) (int64, error) {
	return 0, nil
}

type fakeAI struct {
	mu      sync.Mutex
	calls   []string
	gate    chan struct{} // when set, Send blocks until closed
	entered chan struct{}
	sendErr error
}

func newFakeAI() *fakeAI {
	return &fakeAI{entered: make(chan struct{}, 16)}
}

func (a *fakeAI) Send(ctx context.Context, text string) (string, error) {
	select {
	case a.entered <- struct{}{}:
	default:
	}
	if a.gate != nil {
		<-a.gate
	}
	a.mu.Lock()
	a.calls = append(a.calls, "send:"+text)
	a.mu.Unlock()
	if a.sendErr != nil {
		return "", a.sendErr
	}
	return "echo: " + text, nil
}

func (a *fakeAI) ResetContext(ctx context.Context) error {
	a.mu.Lock()
	a.calls = append(a.calls, "reset")
	a.mu.Unlock()
	return nil
}

//
// -------------------- test helpers --------------------
//

func newLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

func newTestServer(repo *memRepo, ai *fakeAI) *chi.Mux {
	uc := usecase.NewSessionUseCase(repo, ai, newLogger(), nil)
	return api.NewServer(uc, newLogger()).Routes()
}

type snapshotBody struct {
	SessionID string          `json:"sessionId"`
	Title     string          `json:"title"`
	Messages  []model.Message `json:"messages"`
	Pending   bool            `json:"pending"`
}

func doJSON(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeSnapshot(t *testing.T, rec *httptest.ResponseRecorder) snapshotBody {
	t.Helper()
	var snap snapshotBody
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return snap
}

//
// -------------------- tests --------------------
//

func TestState_FreshBoot(t *testing.T) {
	r := newTestServer(newMemRepo(), newFakeAI())

	rec := doJSON(t, r, http.MethodGet, "/api/v1/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d, body=%s", rec.Code, rec.Body.String())
	}
	snap := decodeSnapshot(t, rec)
	if snap.SessionID != "" || snap.Title != model.DefaultTitle || len(snap.Messages) != 0 || snap.Pending {
		t.Fatalf("fresh state mismatch: %+v", snap)
	}
}

func TestSubmit_RoundTrip(t *testing.T) {
	repo := newMemRepo()
	r := newTestServer(repo, newFakeAI())

	rec := doJSON(t, r, http.MethodPost, "/api/v1/messages", `{"text":"Hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d, body=%s", rec.Code, rec.Body.String())
	}
	snap := decodeSnapshot(t, rec)
	if snap.SessionID != "s-1" || snap.Title != "Hello" {
		t.Fatalf("snapshot mismatch: %+v", snap)
	}
	if len(snap.Messages) != 2 || snap.Messages[1].Content != "echo: Hello" {
		t.Fatalf("messages mismatch: %+v", snap.Messages)
	}
	if repo.titleOf("s-1") != "Hello" {
		t.Fatalf("stored title = %q, want Hello", repo.titleOf("s-1"))
	}

	rec = doJSON(t, r, http.MethodGet, "/api/v1/sessions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: want 200, got %d", rec.Code)
	}
	var list struct {
		Data []model.SessionInfo `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Data) != 1 || list.Data[0].ID != "s-1" {
		t.Fatalf("list mismatch: %+v", list.Data)
	}
}

func TestSubmit_BadRequests(t *testing.T) {
	r := newTestServer(newMemRepo(), newFakeAI())

	t.Run("blank text returns 400", func(t *testing.T) {
		rec := doJSON(t, r, http.MethodPost, "/api/v1/messages", `{"text":"   "}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("want 400, got %d", rec.Code)
		}
	})

	t.Run("malformed body returns 400", func(t *testing.T) {
		rec := doJSON(t, r, http.MethodPost, "/api/v1/messages", `{"text":`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("want 400, got %d", rec.Code)
		}
	})
}

func TestSubmit_BusyMapsToConflict(t *testing.T) {
	repo := newMemRepo()
	ai := newFakeAI()
	ai.gate = make(chan struct{})
	r := newTestServer(repo, ai)

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		first <- doJSON(t, r, http.MethodPost, "/api/v1/messages", `{"text":"slow one"}`)
	}()
	select {
	case <-ai.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first submit never reached the AI")
	}

	rec := doJSON(t, r, http.MethodPost, "/api/v1/messages", `{"text":"eager"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("want 409 while busy, got %d, body=%s", rec.Code, rec.Body.String())
	}

	close(ai.gate)
	select {
	case rec := <-first:
		if rec.Code != http.StatusOK {
			t.Fatalf("first submit: want 200, got %d", rec.Code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first submit never finished")
	}
}

func TestSubmit_CompletionFailureMapsToBadGateway(t *testing.T) {
	repo := newMemRepo()
	ai := newFakeAI()
	ai.sendErr = fmt.Errorf("model overloaded")
	r := newTestServer(repo, ai)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/messages", `{"text":"Hello"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("want 502, got %d, body=%s", rec.Code, rec.Body.String())
	}

	// The user's side of the turn survives the failure.
	rec = doJSON(t, r, http.MethodGet, "/api/v1/state", "")
	snap := decodeSnapshot(t, rec)
	if len(snap.Messages) != 1 || !snap.Messages[0].IsUser {
		t.Fatalf("state after failure: %+v", snap.Messages)
	}
}

func TestSelectSession_RoundTrip(t *testing.T) {
	repo := newMemRepo()
	repo.seed("s-9", "Old chat", []model.Message{
		{Content: "hi", IsUser: true, Timestamp: "1:00PM"},
		{Content: "hello there", IsUser: false, Timestamp: "1:00PM"},
	})
	ai := newFakeAI()
	r := newTestServer(repo, ai)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/sessions/s-9/select", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d, body=%s", rec.Code, rec.Body.String())
	}
	snap := decodeSnapshot(t, rec)
	if snap.SessionID != "s-9" || snap.Title != "Old chat" || len(snap.Messages) != 2 {
		t.Fatalf("snapshot mismatch: %+v", snap)
	}

	ai.mu.Lock()
	calls := append([]string(nil), ai.calls...)
	ai.mu.Unlock()
	want := []string{"reset", "send:hi"}
	if len(calls) != len(want) || calls[0] != want[0] || calls[1] != want[1] {
		t.Fatalf("AI calls = %v, want %v", calls, want)
	}
}

func TestSelectSession_NotFound(t *testing.T) {
	r := newTestServer(newMemRepo(), newFakeAI())

	rec := doJSON(t, r, http.MethodPost, "/api/v1/sessions/nope/select", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", rec.Code)
	}
}

func TestNewSession_ClearsState(t *testing.T) {
	r := newTestServer(newMemRepo(), newFakeAI())

	if rec := doJSON(t, r, http.MethodPost, "/api/v1/messages", `{"text":"Hello"}`); rec.Code != http.StatusOK {
		t.Fatalf("submit: got %d", rec.Code)
	}
	rec := doJSON(t, r, http.MethodPost, "/api/v1/sessions/new", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	snap := decodeSnapshot(t, rec)
	if snap.SessionID != "" || len(snap.Messages) != 0 || snap.Title != model.DefaultTitle {
		t.Fatalf("state not cleared: %+v", snap)
	}
}

func TestRenameSession_AllPaths(t *testing.T) {
	repo := newMemRepo()
	repo.seed("s-7", "Old", nil)
	r := newTestServer(repo, newFakeAI())

	t.Run("204 on stored session", func(t *testing.T) {
		rec := doJSON(t, r, http.MethodPatch, "/api/v1/sessions/s-7", `{"title":"Renamed"}`)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("want 204, got %d, body=%s", rec.Code, rec.Body.String())
		}
		if repo.titleOf("s-7") != "Renamed" {
			t.Fatalf("stored title = %q", repo.titleOf("s-7"))
		}
	})

	t.Run("400 on blank title", func(t *testing.T) {
		rec := doJSON(t, r, http.MethodPatch, "/api/v1/sessions/s-7", `{"title":"  "}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("want 400, got %d", rec.Code)
		}
	})

	t.Run("404 on unknown id", func(t *testing.T) {
		rec := doJSON(t, r, http.MethodPatch, "/api/v1/sessions/ghost", `{"title":"X"}`)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("want 404, got %d", rec.Code)
		}
	})
}

func TestDeleteSession_AllPaths(t *testing.T) {
	repo := newMemRepo()
	repo.seed("s-3", "Doomed", nil)
	r := newTestServer(repo, newFakeAI())

	rec := doJSON(t, r, http.MethodDelete, "/api/v1/sessions/s-3", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("want 204, got %d", rec.Code)
	}
	rec = doJSON(t, r, http.MethodDelete, "/api/v1/sessions/s-3", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: want 404, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	r := newTestServer(newMemRepo(), newFakeAI())

	rec := doJSON(t, r, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("health: %d %q", rec.Code, rec.Body.String())
	}
}
