// File: internal/infra/ai/noop.go
package ai

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-chat-session-manager/internal/domain/ports/adapter"
)

var _ adapter.CompletionService = (*NoopClient)(nil)

// NoopClient implements adapter.CompletionService for local/dev runs. It
// keeps a turn counter as its whole hidden context, so replies reveal how
// much history the backend currently remembers.
type NoopClient struct {
	log *zerolog.Logger

	mu    sync.Mutex
	turns int
}

func NewNoopClient(logger *zerolog.Logger) *NoopClient {
	l := logger.With().Str("component", "noop_ai").Logger()
	return &NoopClient{log: &l}
}

func (n *NoopClient) Send(ctx context.Context, text string) (string, error) {
	// Simulate slight processing time and respect ctx.
	select {
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	n.mu.Lock()
	n.turns++
	turn := n.turns
	n.mu.Unlock()

	n.log.Debug().Int("turn", turn).Int("chars", len(text)).Msg("Noop completion")
	return fmt.Sprintf("Noop reply #%d to: %s", turn, text), nil
}

func (n *NoopClient) ResetContext(ctx context.Context) error {
	n.mu.Lock()
	n.turns = 0
	n.mu.Unlock()
	n.log.Debug().Msg("Noop context reset")
	return nil
}
