// Package oracle wraps every call to the reasoning model with bounded retry,
// null-response detection and rate-limit driven model fallback.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"trip-agent/internal/llmtypes"
	"trip-agent/internal/utils"
	"trip-agent/pkg/events"
	"trip-agent/pkg/metrics"
)

// Client binds a model to a retry policy and observability hooks.
type Client struct {
	model       llmtypes.Model
	policy      RetryPolicy
	temperature float64
	maxTokens   int
	logger      utils.ExtendedLogger
	emitter     events.Emitter
	metrics     *metrics.Metrics
}

// ClientOption configures a Client.
type ClientOption func(*Client)

func WithPolicy(p RetryPolicy) ClientOption {
	return func(c *Client) { c.policy = p }
}

func WithTemperature(t float64) ClientOption {
	return func(c *Client) { c.temperature = t }
}

func WithMaxTokens(n int) ClientOption {
	return func(c *Client) { c.maxTokens = n }
}

func WithEmitter(e events.Emitter) ClientOption {
	return func(c *Client) { c.emitter = e }
}

func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a client using DefaultRetryPolicy unless overridden.
func NewClient(model llmtypes.Model, logger utils.ExtendedLogger, opts ...ClientOption) *Client {
	c := &Client{
		model:       model,
		policy:      DefaultRetryPolicy(),
		temperature: 0.2,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the retry policy in effect.
func (c *Client) Policy() RetryPolicy {
	return c.policy
}

func (c *Client) instrumentation(label string) Instrumentation {
	return Instrumentation{Logger: c.logger, Emitter: c.emitter, Metrics: c.metrics, Label: label}
}

func (c *Client) callOptions(model string, extra []llmtypes.CallOption) []llmtypes.CallOption {
	opts := []llmtypes.CallOption{llmtypes.WithTemperature(c.temperature)}
	if c.maxTokens > 0 {
		opts = append(opts, llmtypes.WithMaxTokens(c.maxTokens))
	}
	if model != "" {
		opts = append(opts, llmtypes.WithModel(model))
	}
	return append(opts, extra...)
}

// Generate sends messages and returns the first choice. A response without
// choices counts as "no answer" and is retried.
func (c *Client) Generate(ctx context.Context, label string, messages []llmtypes.MessageContent, opts ...llmtypes.CallOption) (*llmtypes.ContentChoice, error) {
	return Invoke(ctx, c.instrumentation(label), c.policy, func(ctx context.Context, model string) (*llmtypes.ContentChoice, error) {
		resp, err := c.model.GenerateContent(ctx, messages, c.callOptions(model, opts)...)
		if err != nil {
			return nil, err
		}
		if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
			return nil, nil
		}
		return resp.Choices[0], nil
	})
}

// GenerateText sends a single human prompt and returns the reply content.
func (c *Client) GenerateText(ctx context.Context, label, prompt string) (string, error) {
	choice, err := c.Generate(ctx, label, []llmtypes.MessageContent{
		llmtypes.TextPart(llmtypes.ChatMessageTypeHuman, prompt),
	})
	if err != nil {
		return "", err
	}
	return choice.Content, nil
}

// GenerateStructured asks for JSON matching target's schema and decodes the
// reply into target, which must be a non-nil pointer. Output that does not
// decode is a failed attempt and is retried.
func (c *Client) GenerateStructured(ctx context.Context, label string, messages []llmtypes.MessageContent, target any) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("oracle: structured target must be a non-nil pointer, got %T", target)
	}
	elemType := rv.Elem().Type()

	prepared := make([]llmtypes.MessageContent, 0, len(messages)+2)
	if len(messages) == 0 || messages[0].Role != llmtypes.ChatMessageTypeSystem {
		prepared = append(prepared, llmtypes.TextPart(llmtypes.ChatMessageTypeSystem, structuredSystemPrompt))
	}
	prepared = append(prepared, messages...)
	prepared = append(prepared, llmtypes.TextPart(llmtypes.ChatMessageTypeHuman,
		WithSchema("Answer the request above.", SchemaFor(target))))

	decoded, err := Invoke(ctx, c.instrumentation(label), c.policy, func(ctx context.Context, model string) (*reflect.Value, error) {
		resp, err := c.model.GenerateContent(ctx, prepared, c.callOptions(model, []llmtypes.CallOption{llmtypes.WithJSONMode()})...)
		if err != nil {
			return nil, err
		}
		if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
			return nil, nil
		}
		content := resp.Choices[0].Content
		fresh := reflect.New(elemType)
		if err := DecodeJSON(content, fresh.Interface()); err != nil {
			shown := ExtractJSON(content)
			if shown == "" {
				shown = content
			}
			return nil, &MalformedOutputError{Content: utils.Truncate(shown, 200), Err: err}
		}
		return &fresh, nil
	})
	if err != nil {
		return err
	}
	rv.Elem().Set(decoded.Elem())
	return nil
}

// GenerateStructuredPrompt is GenerateStructured for a single human prompt.
func (c *Client) GenerateStructuredPrompt(ctx context.Context, label, prompt string, target any) error {
	return c.GenerateStructured(ctx, label, []llmtypes.MessageContent{
		llmtypes.TextPart(llmtypes.ChatMessageTypeHuman, prompt),
	}, target)
}

// IsMalformed reports whether err stems from undecodable structured output.
func IsMalformed(err error) bool {
	var me *MalformedOutputError
	return errors.As(err, &me)
}
