// File: internal/infra/ai/gemini.go
package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"ai-chat-session-manager/internal/domain/ports/adapter"
	"ai-chat-session-manager/internal/infra/metrics"
)

// Compile-time check
var _ adapter.CompletionService = (*GeminiClient)(nil)

// GeminiClient implements adapter.CompletionService on the genai chat API,
// which is genuinely stateful: the SDK chat object accumulates turns on its
// side. ResetContext drops the chat; the next Send starts a fresh one. An
// in-flight Send keeps its own chat pointer, so a concurrent reset cannot
// leak the orphaned turn into the new context.
type GeminiClient struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
	log    *zerolog.Logger

	mu   sync.Mutex
	chat *genai.Chat
}

func NewGeminiClient(ctx context.Context, apiKey, baseURL, model string, maxOutputTokens int, systemPrompt string, logger *zerolog.Logger) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key empty")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	cfg := &genai.GenerateContentConfig{}
	if maxOutputTokens > 0 {
		cfg.MaxOutputTokens = int32(maxOutputTokens)
	}
	if systemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}}
	}
	l := logger.With().Str("component", "gemini_ai").Logger()
	return &GeminiClient{client: client, model: model, config: cfg, log: &l}, nil
}

func (g *GeminiClient) Send(ctx context.Context, text string) (string, error) {
	g.mu.Lock()
	chat := g.chat
	g.mu.Unlock()
	if chat == nil {
		fresh, err := g.client.Chats.Create(ctx, g.model, g.config, nil)
		if err != nil {
			return "", fmt.Errorf("create chat: %w", err)
		}
		g.mu.Lock()
		if g.chat == nil {
			g.chat = fresh
		}
		chat = g.chat
		g.mu.Unlock()
	}

	start := time.Now()
	resp, err := chat.SendMessage(ctx, genai.Part{Text: text})
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		metrics.ObserveSendUsage("gemini", g.model, 0, 0, 0, latency, false)
		return "", err
	}
	reply := firstText(resp)
	if reply == "" {
		metrics.ObserveSendUsage("gemini", g.model, 0, 0, 0, latency, false)
		return "", errors.New("empty candidate content")
	}
	in, out, total := usageCounts(resp)
	metrics.ObserveSendUsage("gemini", g.model, in, out, total, latency, true)
	g.log.Debug().Int("tokens_total", total).Int("latency_ms", latency).Msg("Completion round trip")
	return reply, nil
}

func (g *GeminiClient) ResetContext(ctx context.Context) error {
	g.mu.Lock()
	g.chat = nil
	g.mu.Unlock()
	return nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.Text != "" {
				return part.Text
			}
		}
	}
	return ""
}

func usageCounts(resp *genai.GenerateContentResponse) (in, out, total int) {
	u := resp.UsageMetadata
	if u == nil {
		return 0, 0, 0
	}
	return int(u.PromptTokenCount), int(u.CandidatesTokenCount), int(u.TotalTokenCount)
}
