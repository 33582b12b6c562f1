// File: internal/infra/ai/openai.go
package ai

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/rs/zerolog"

	"ai-chat-session-manager/internal/domain/ports/adapter"
	"ai-chat-session-manager/internal/infra/metrics"
)

// Compile-time check
var _ adapter.CompletionService = (*OpenAIClient)(nil)

// OpenAIClient implements adapter.CompletionService over the stateless Chat
// Completions API. The hidden context lives client-side: the full message
// list is kept here and resent on every call, so Send/ResetContext behave
// exactly like a stateful backend.
type OpenAIClient struct {
	client openai.Client
	model  string
	maxOut int
	system string
	tokens *TokenCounter
	log    *zerolog.Logger

	mu      sync.Mutex
	epoch   uint64
	history []openai.ChatCompletionMessageParamUnion
}

func NewOpenAIClient(apiKey, baseURL, model string, maxOutputTokens int, systemPrompt string, logger *zerolog.Logger) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	l := logger.With().Str("component", "openai_ai").Logger()
	c := &OpenAIClient{
		client: openai.NewClient(opts...),
		model:  model,
		maxOut: maxOutputTokens,
		system: systemPrompt,
		tokens: NewTokenCounter(),
		log:    &l,
	}
	c.history = c.seedHistory()
	return c, nil
}

func (o *OpenAIClient) seedHistory() []openai.ChatCompletionMessageParamUnion {
	if o.system == "" {
		return nil
	}
	return []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(o.system)}
}

func (o *OpenAIClient) Send(ctx context.Context, text string) (string, error) {
	o.mu.Lock()
	epoch := o.epoch
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(o.history)+1)
	msgs = append(msgs, o.history...)
	msgs = append(msgs, openai.UserMessage(text))
	o.mu.Unlock()

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: msgs,
	}
	if o.maxOut > 0 {
		params.MaxCompletionTokens = openai.Int(int64(o.maxOut))
	}

	start := time.Now()
	completion, err := o.client.Chat.Completions.New(ctx, params)
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		metrics.ObserveSendUsage("openai", o.model, 0, 0, 0, latency, false)
		return "", err
	}
	reply := ""
	for _, choice := range completion.Choices {
		if choice.Message.Content != "" {
			reply = choice.Message.Content
			break
		}
	}
	if reply == "" {
		metrics.ObserveSendUsage("openai", o.model, 0, 0, 0, latency, false)
		return "", errors.New("no choice content")
	}

	in := int(completion.Usage.PromptTokens)
	out := int(completion.Usage.CompletionTokens)
	total := int(completion.Usage.TotalTokens)
	if total == 0 {
		// Gateways sometimes strip usage; estimate so the counters stay alive.
		in = o.tokens.Count(text)
		out = o.tokens.Count(reply)
		total = in + out
	}
	metrics.ObserveSendUsage("openai", o.model, in, out, total, latency, true)
	o.log.Debug().Int("tokens_total", total).Int("latency_ms", latency).Msg("Completion round trip")

	// A reset that landed while the request was in flight owns the history
	// now; the orphaned turn must not leak into the fresh context.
	o.mu.Lock()
	if o.epoch == epoch {
		o.history = append(msgs, openai.AssistantMessage(reply))
	}
	o.mu.Unlock()
	return reply, nil
}

func (o *OpenAIClient) ResetContext(ctx context.Context) error {
	o.mu.Lock()
	o.epoch++
	o.history = o.seedHistory()
	o.mu.Unlock()
	return nil
}
