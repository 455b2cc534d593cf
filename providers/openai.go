// Package providers implements the outbound dispatcher for OpenAI-compatible
// chat-completion endpoints. Every call, single or batched, passes through a
// process-wide permit semaphore so worker count never amplifies outbound
// concurrency.
package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/tidwall/gjson"
	"github.com/valyala/fasthttp"
	"golang.org/x/sync/semaphore"

	"github.com/paperbridge/paperbridge/config"
	"github.com/paperbridge/paperbridge/schemas"
)

const (
	singleCallTimeout = 60 * time.Second
	batchCallTimeout  = 120 * time.Second
	singleMaxTokens   = 1200
	batchMaxTokens    = 1600

	// Outbound connection-pool caps.
	maxTotalConns     = 20
	idleConnKeepAlive = 60 * time.Second

	errorBodyTruncateN = 512
)

const singleSystemPrompt = "You are a Research-Paper Analyzer. Output valid JSON."

const batchSystemPrompt = "You are a concise Research Paper Analyzer. You will be given multiple inputs.\n" +
	"Produce a single JSON array where each element is an object with keys: id, summary, key_points (array), recommendation." +
	"Return only the JSON array, nothing else. The order must match the inputs."

// UpstreamError is any failure of the outbound LLM call: transport errors,
// non-success statuses, and malformed completion envelopes.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream_error: status %d: %s", e.StatusCode, e.Message)
	}
	return "upstream_error: " + e.Message
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

// OpenAIProvider dispatches chat-completion requests. It never retries;
// classifying failures as transient is the caller's decision.
type OpenAIProvider struct {
	apiURL  string
	model   string
	apiKey  string
	client  *fasthttp.Client
	permits *semaphore.Weighted
	logger  schemas.Logger
}

// NewOpenAIProvider creates a dispatcher with a permit semaphore of depth
// maxInflight guarding every outbound call.
func NewOpenAIProvider(cfg config.LLMConfig, maxInflight int64, logger schemas.Logger) *OpenAIProvider {
	client := &fasthttp.Client{
		ReadTimeout:         batchCallTimeout,
		WriteTimeout:        batchCallTimeout,
		MaxConnsPerHost:     maxTotalConns,
		MaxIdleConnDuration: idleConnKeepAlive,
		MaxConnWaitTimeout:  batchCallTimeout,
	}

	return &OpenAIProvider{
		apiURL:  cfg.APIURL,
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		client:  client,
		permits: semaphore.NewWeighted(maxInflight),
		logger:  logger,
	}
}

// Single sends one prompt and returns the model's content string.
func (p *OpenAIProvider) Single(ctx context.Context, prompt string) (string, error) {
	if err := p.permits.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer p.permits.Release(1)

	messages := []chatMessage{
		{Role: "system", Content: singleSystemPrompt},
		{Role: "user", Content: prompt},
	}
	return p.complete(ctx, messages, singleMaxTokens, singleCallTimeout)
}

// Batch sends all prompts inside one chat completion, one user message per
// item prefixed with "ID:<id>\n" to anchor identity. The raw content string
// is returned unparsed; demultiplexing is the caller's responsibility.
func (p *OpenAIProvider) Batch(ctx context.Context, prompts []string, ids []string) (string, error) {
	if len(prompts) == 0 {
		return "", fmt.Errorf("batch must contain at least one prompt")
	}
	if len(prompts) != len(ids) {
		return "", fmt.Errorf("prompt/id count mismatch: %d != %d", len(prompts), len(ids))
	}

	if err := p.permits.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer p.permits.Release(1)

	messages := make([]chatMessage, 0, len(prompts)+1)
	messages = append(messages, chatMessage{Role: "system", Content: batchSystemPrompt})
	for i, text := range prompts {
		messages = append(messages, chatMessage{
			Role:    "user",
			Content: fmt.Sprintf("ID:%s\n%s", ids[i], text),
		})
	}
	return p.complete(ctx, messages, batchMaxTokens, batchCallTimeout)
}

func (p *OpenAIProvider) complete(ctx context.Context, messages []chatMessage, maxTokens int, timeout time.Duration) (string, error) {
	body, err := sonic.Marshal(chatRequest{
		Model:       p.model,
		Messages:    messages,
		Temperature: 0.0,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", &UpstreamError{Message: "marshal request: " + err.Error()}
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()

	req.SetRequestURI(p.apiURL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.SetBody(body)

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- p.client.DoDeadline(req, resp, deadline)
	}()

	select {
	case err := <-errCh:
		defer fasthttp.ReleaseRequest(req)
		defer fasthttp.ReleaseResponse(resp)
		if err != nil {
			return "", &UpstreamError{Message: err.Error()}
		}
		return parseEnvelope(resp)
	case <-ctx.Done():
		// The outcome no longer matters; return the buffers once fasthttp
		// is done writing them.
		go func() {
			<-errCh
			fasthttp.ReleaseRequest(req)
			fasthttp.ReleaseResponse(resp)
		}()
		return "", ctx.Err()
	}
}

func parseEnvelope(resp *fasthttp.Response) (string, error) {
	if resp.StatusCode() != fasthttp.StatusOK {
		return "", &UpstreamError{
			StatusCode: resp.StatusCode(),
			Message:    truncate(string(resp.Body()), errorBodyTruncateN),
		}
	}

	content := gjson.GetBytes(resp.Body(), "choices.0.message.content")
	if !content.Exists() {
		return "", &UpstreamError{Message: "malformed completion envelope: missing choices[0].message.content"}
	}
	return content.String(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
