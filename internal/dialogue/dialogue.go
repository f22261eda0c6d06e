// Package dialogue implements the conversational English coach.
//
// A [Coach] is created per session. It keeps a short rolling history, enriches
// the system prompt with long-term facts recalled for each user turn, and
// after replying asks the model whether the turn contained a fact worth
// storing. Memory problems never fail a reply.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/talkbuddy/internal/observe"
	"github.com/MrWong99/talkbuddy/pkg/memory"
	"github.com/MrWong99/talkbuddy/pkg/provider/llm"
	"github.com/MrWong99/talkbuddy/pkg/types"
)

const (
	defaultHistoryMessages   = 6
	defaultRetrieveK         = 5
	defaultMaxInjectionChars = 600
)

// Option configures a [Coach].
type Option func(*Coach)

// WithMemory enables fact recall and extraction against m. Failures of m are
// logged and otherwise ignored.
func WithMemory(m memory.LongTerm) Option {
	return func(c *Coach) {
		if m != nil {
			c.memory = memory.NewGuard(m)
		}
	}
}

// WithSystemPrompt replaces [DefaultSystemPrompt].
func WithSystemPrompt(p string) Option { return func(c *Coach) { c.systemPrompt = p } }

// WithExtractionPrompt replaces [DefaultExtractionPrompt].
func WithExtractionPrompt(p string) Option { return func(c *Coach) { c.extractionPrompt = p } }

// WithHistoryMessages caps the number of history messages sent with each
// request. Defaults to 6 (three exchanges).
func WithHistoryMessages(n int) Option { return func(c *Coach) { c.historyLimit = n } }

// WithRetrieveK sets how many facts are recalled per turn. Defaults to 5.
func WithRetrieveK(k int) Option { return func(c *Coach) { c.retrieveK = k } }

// WithMaxInjectionChars bounds the facts block in the system prompt.
// Defaults to 600.
func WithMaxInjectionChars(n int) Option { return func(c *Coach) { c.maxInjection = n } }

// WithMemoryExtraction toggles the post-reply extraction call. Defaults to
// true when memory is configured.
func WithMemoryExtraction(on bool) Option { return func(c *Coach) { c.extract = on } }

// WithMetrics records embedding-backed recall latency.
func WithMetrics(m *observe.Metrics) Option { return func(c *Coach) { c.metrics = m } }

// Coach generates replies for one session. Reply calls are serialised so the
// history stays coherent.
type Coach struct {
	llm              llm.Provider
	memory           *memory.Guard
	metrics          *observe.Metrics
	systemPrompt     string
	extractionPrompt string
	historyLimit     int
	retrieveK        int
	maxInjection     int
	extract          bool

	mu      sync.Mutex
	history []types.Message
}

// New creates a Coach backed by p.
func New(p llm.Provider, opts ...Option) (*Coach, error) {
	if p == nil {
		return nil, errors.New("dialogue: llm provider must not be nil")
	}
	c := &Coach{
		llm:              p,
		systemPrompt:     DefaultSystemPrompt,
		extractionPrompt: DefaultExtractionPrompt,
		historyLimit:     defaultHistoryMessages,
		retrieveK:        defaultRetrieveK,
		maxInjection:     defaultMaxInjectionChars,
		extract:          true,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Reply produces the coach's answer to userText.
//
// The steps are:
//  1. Recall facts related to userText from long-term memory.
//  2. Build the system prompt with the facts appended.
//  3. Send system prompt, history and the new user turn to the LLM.
//  4. Record the exchange in the history, keeping only the newest messages.
//  5. Ask the LLM whether userText holds a fact and store it if so.
//
// An error is returned only when the reply itself cannot be generated.
func (c *Coach) Reply(ctx context.Context, userText string) (string, error) {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return "", errors.New("dialogue: empty user text")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// 1. Recall.
	var facts []string
	if c.memory != nil && c.retrieveK > 0 {
		start := time.Now()
		facts, _ = c.memory.Recall(ctx, userText, c.retrieveK)
		if c.metrics != nil {
			observe.ObserveDuration(ctx, c.metrics.EmbeddingDuration, start)
		}
	}

	// 2-3. Generate.
	msgs := make([]types.Message, 0, len(c.history)+1)
	msgs = append(msgs, c.history...)
	msgs = append(msgs, types.UserMessage(userText))

	resp, err := c.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: FormatSystemPrompt(c.systemPrompt, facts, c.maxInjection),
		Messages:     msgs,
	})
	if err != nil {
		return "", fmt.Errorf("dialogue: complete: %w", err)
	}
	reply := strings.TrimSpace(resp.Content)

	// 4. History.
	c.history = append(c.history, types.UserMessage(userText), types.AssistantMessage(reply))
	if over := len(c.history) - c.historyLimit; over > 0 {
		c.history = append(c.history[:0:0], c.history[over:]...)
	}

	// 5. Extraction.
	if c.memory != nil && c.extract {
		c.extractMemory(ctx, userText)
	}
	return reply, nil
}

func (c *Coach) extractMemory(ctx context.Context, userText string) {
	resp, err := c.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: c.extractionPrompt,
		Messages:     []types.Message{types.UserMessage(userText)},
	})
	if err != nil {
		slog.Warn("dialogue: memory extraction failed", "err", err)
		return
	}
	fact, ok := ParseExtraction(resp.Content)
	if !ok {
		return
	}
	stored, _ := c.memory.Store(ctx, fact)
	if stored {
		slog.Debug("dialogue: stored memory", "fact", fact)
	}
}

// History returns a copy of the retained conversation.
func (c *Coach) History() []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Message, len(c.history))
	copy(out, c.history)
	return out
}

// Reset forgets the conversation history. Long-term memory is untouched.
func (c *Coach) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
}
