// File: cmd/demo/main.go
package main

import (
	"context"
	"log"
	"time"

	"ai-chat-session-manager/internal/config"
	aiclient "ai-chat-session-manager/internal/infra/ai"
	pg "ai-chat-session-manager/internal/infra/db/postgres"
	"ai-chat-session-manager/internal/infra/logging"
	"ai-chat-session-manager/internal/usecase"
)

// Walks the whole session lifecycle against a real database with canned AI
// replies. Useful as a smoke test for a fresh deployment.
func main() {
	// 1. Load config
	cfg, err := config.LoadFromFlags()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.New(cfg.Log, true)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 2. Connect to Postgres and migrate
	pool, err := pg.Connect(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("db connect error: %v", err)
	}
	defer pool.Close()

	repo := pg.NewSessionRepo(pool, nil, nil, false)
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatalf("schema error: %v", err)
	}

	// 3. Wire the synchronizer with canned replies
	uc := usecase.NewSessionUseCase(repo, aiclient.NewNoopClient(logger), logger, nil)

	// 4. First conversation: two turns, auto-title from the opener
	if err := uc.Submit(ctx, "Hello from the demo"); err != nil {
		log.Fatalf("first submit error: %v", err)
	}
	if err := uc.Submit(ctx, "And a follow-up question"); err != nil {
		log.Fatalf("second submit error: %v", err)
	}
	first := uc.Snapshot()
	log.Printf("First session %s titled %q with %d messages", first.SessionID, first.Title, len(first.Messages))

	// 5. Fresh session, one turn
	uc.NewSession(ctx)
	if err := uc.Submit(ctx, "A different topic entirely"); err != nil {
		log.Fatalf("third submit error: %v", err)
	}
	second := uc.Snapshot()
	log.Printf("Second session %s titled %q", second.SessionID, second.Title)

	// 6. Switch back and verify the transcript survived the round trip
	if err := uc.SelectSession(ctx, first.SessionID); err != nil {
		log.Fatalf("select error: %v", err)
	}
	back := uc.Snapshot()
	log.Printf("Switched back to %s: %d messages restored", back.SessionID, len(back.Messages))
	for _, m := range back.Messages {
		who := "assistant"
		if m.IsUser {
			who = "user"
		}
		log.Printf("  [%s] %s: %s", m.Timestamp, who, m.Content)
	}

	// 7. List everything the store knows about
	sessions, err := uc.Sessions(ctx)
	if err != nil {
		log.Fatalf("list error: %v", err)
	}
	for _, s := range sessions {
		log.Printf("Stored session %s %q (updated %s)", s.ID, s.Title, s.UpdatedAt.Format(time.RFC3339))
	}
}
