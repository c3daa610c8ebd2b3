package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"trip-agent/internal/utils"
	"trip-agent/pkg/events"
	"trip-agent/pkg/prompts"
)

// Summarizer is the oracle surface the compactor needs.
type Summarizer interface {
	GenerateText(ctx context.Context, label, prompt string) (string, error)
}

// Compactor bounds the conversation log. Tool turns are never dropped.
type Compactor struct {
	summarizer    Summarizer
	counter       *TokenCounter
	logger        utils.ExtendedLogger
	emitter       events.Emitter
	maxTurnTokens int
}

type CompactorOption func(*Compactor)

func WithTokenCounter(c *TokenCounter) CompactorOption {
	return func(cp *Compactor) { cp.counter = c }
}

func WithCompactorEmitter(e events.Emitter) CompactorOption {
	return func(cp *Compactor) { cp.emitter = e }
}

// WithMaxTurnTokens caps how much of each turn goes into the summary prompt.
func WithMaxTurnTokens(n int) CompactorOption {
	return func(cp *Compactor) { cp.maxTurnTokens = n }
}

func NewCompactor(summarizer Summarizer, logger utils.ExtendedLogger, opts ...CompactorOption) *Compactor {
	c := &Compactor{
		summarizer:    summarizer,
		counter:       &TokenCounter{},
		logger:        logger,
		maxTurnTokens: 500,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compact returns messages unchanged while they fit in maxKept turns (or
// while the non-tool turns alone fit). Otherwise the oldest non-tool turns
// are summarized into one turn and the result is
// [summary] + all tool turns + the most recent max(5, maxKept/2) non-tool
// turns. If summarization fails the result is all tool turns plus the last
// maxKept non-tool turns. Compact never fails.
func (c *Compactor) Compact(ctx context.Context, messages []Message, maxKept int) []Message {
	if maxKept <= 0 || len(messages) <= maxKept {
		return messages
	}

	var toolTurns, others []Message
	for _, m := range messages {
		if m.IsTool() {
			toolTurns = append(toolTurns, m)
		} else {
			others = append(others, m)
		}
	}
	if len(others) <= maxKept {
		return messages
	}

	keepRecent := maxKept / 2
	if keepRecent < 5 {
		keepRecent = 5
	}
	if keepRecent >= len(others) {
		return messages
	}
	older := others[:len(others)-keepRecent]
	recent := others[len(others)-keepRecent:]

	before := c.counter.CountMessages(messages)
	summary, ok := c.summarize(ctx, older)
	if !ok {
		tail := others[len(others)-maxKept:]
		out := make([]Message, 0, len(toolTurns)+len(tail))
		out = append(out, toolTurns...)
		out = append(out, tail...)
		if c.logger != nil {
			c.logger.Warnf("⚠️ History summarization failed, truncated %d turns to %d", len(messages), len(out))
		}
		return out
	}

	out := make([]Message, 0, 1+len(toolTurns)+len(recent))
	out = append(out, summary)
	out = append(out, toolTurns...)
	out = append(out, recent...)

	after := c.counter.CountMessages(out)
	if c.logger != nil {
		c.logger.Infof("🗜️ Compacted history: %d → %d turns, ~%d → ~%d tokens (exact=%v)", len(messages), len(out), before, after, c.counter.Exact())
	}
	events.Emit(ctx, c.emitter, events.New(events.HistoryCompacted, "history compacted").
		With("before_turns", len(messages)).With("after_turns", len(out)).
		With("before_tokens", before).With("after_tokens", after))
	return out
}

func (c *Compactor) summarize(ctx context.Context, older []Message) (Message, bool) {
	if c.summarizer == nil {
		return Message{}, false
	}
	var sb strings.Builder
	for _, m := range older {
		fmt.Fprintf(&sb, "%s: %s\n", m.Role, c.counter.Truncate(m.Content, c.maxTurnTokens))
	}
	text, err := c.summarizer.GenerateText(ctx, "compact-history", prompts.Summarize(sb.String()))
	if err != nil || strings.TrimSpace(text) == "" {
		return Message{}, false
	}
	return Message{
		Role:      RoleSystem,
		Content:   prompts.SummaryTurnPrefix + "\n" + strings.TrimSpace(text),
		Timestamp: time.Now(),
	}, true
}
