// Package llm is the LLM capability used by the candidate generator:
// a narrow Client interface plus an Anthropic-backed implementation
// generalized directly from internal/compact/haiku.go's call pattern
// (single-message request, retry on 429/5xx, OTel metrics/tracing around
// the call). Where haiku.go hand-rolled its backoff loop, this package
// uses github.com/cenkalti/backoff/v4 instead.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/JKR8/querytorque-v8-sub011/internal/telemetry"
	"github.com/JKR8/querytorque-v8-sub011/internal/types"
)

// Options configures a single Ask call.
type Options struct {
	Model     string
	MaxTokens int64
}

// Response is what an LLM call returns.
type Response struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// Client is the capability the candidate generator depends on. Ask sends a single system/user
// turn and returns the model's text response.
type Client interface {
	Ask(ctx context.Context, system, user string, opts Options) (Response, error)
}

const (
	defaultModel     = "claude-haiku-4-5"
	defaultMaxTokens = 4096
)

// anthropicClient is the default Client, backed by the Anthropic API.
type anthropicClient struct {
	client anthropic.Client
	model  string
}

// NewAnthropicClient builds a Client from apiKey. An empty apiKey is
// rejected; callers resolve the key from config/env before calling this.
func NewAnthropicClient(apiKey string) (Client, error) {
	if apiKey == "" {
		return nil, types.NewError(types.ErrLLMTransport, "llm.NewAnthropicClient", errors.New("API key required"))
	}
	metricsOnce.Do(initMetrics)
	return &anthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  defaultModel,
	}, nil
}

var metrics struct {
	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
	duration     metric.Float64Histogram
}

var metricsOnce sync.Once

func initMetrics() {
	m := telemetry.Meter("github.com/JKR8/querytorque-v8-sub011/llm")
	metrics.inputTokens, _ = m.Int64Counter("querytorque.llm.input_tokens",
		metric.WithDescription("LLM input tokens consumed"), metric.WithUnit("{token}"))
	metrics.outputTokens, _ = m.Int64Counter("querytorque.llm.output_tokens",
		metric.WithDescription("LLM output tokens generated"), metric.WithUnit("{token}"))
	metrics.duration, _ = m.Float64Histogram("querytorque.llm.request.duration",
		metric.WithDescription("LLM request duration in milliseconds"), metric.WithUnit("ms"))
}

// Ask sends one system/user turn, retrying transient failures (429, 5xx,
// network timeouts) with exponential backoff, and wrapping a persistent
// failure as ErrorKind.LLMTransport.
func (c *anthropicClient) Ask(ctx context.Context, system, user string, opts Options) (Response, error) {
	tracer := telemetry.Tracer("github.com/JKR8/querytorque-v8-sub011/llm")
	ctx, span := tracer.Start(ctx, "llm.Ask")
	defer span.End()

	model := opts.Model
	if model == "" {
		model = c.model
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	span.SetAttributes(attribute.String("querytorque.llm.model", model))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	}

	var resp Response
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)

	attempt := 0
	operation := func() error {
		attempt++
		t0 := time.Now()
		message, err := c.client.Messages.New(ctx, params)
		ms := float64(time.Since(t0).Milliseconds())

		if err == nil {
			modelAttr := attribute.String("querytorque.llm.model", model)
			if metrics.inputTokens != nil {
				metrics.inputTokens.Add(ctx, message.Usage.InputTokens, metric.WithAttributes(modelAttr))
				metrics.outputTokens.Add(ctx, message.Usage.OutputTokens, metric.WithAttributes(modelAttr))
				metrics.duration.Record(ctx, ms, metric.WithAttributes(modelAttr))
			}
			span.SetAttributes(
				attribute.Int64("querytorque.llm.input_tokens", message.Usage.InputTokens),
				attribute.Int64("querytorque.llm.output_tokens", message.Usage.OutputTokens),
				attribute.Int("querytorque.llm.attempts", attempt),
			)

			if len(message.Content) == 0 {
				return backoff.Permanent(fmt.Errorf("empty response content"))
			}
			block := message.Content[0]
			if block.Type != "text" {
				return backoff.Permanent(fmt.Errorf("unexpected response block type %q", block.Type))
			}
			resp = Response{
				Text:         block.Text,
				InputTokens:  message.Usage.InputTokens,
				OutputTokens: message.Usage.OutputTokens,
			}
			return nil
		}

		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(operation, bo)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Response{}, types.NewError(types.ErrLLMTransport, "llm.Ask", err)
	}
	return resp, nil
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
