// Package genai is the text-generation gateway: a primary hosted backend
// with an OpenAI-compatible fallback, bounded timeouts and usage accounting.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/contextiq/contextiq/internal/domain"
)

const (
	// DefaultTimeout bounds a single generation call.
	DefaultTimeout = 10 * time.Second
	// DefaultMaxTokens bounds completion length when the request does not say.
	DefaultMaxTokens = 1024
)

// Request describes one structured generation call.
type Request struct {
	System      string
	Prompt      string
	Schema      string // name of the expected output schema, used in traces
	MaxTokens   int
	Temperature float32
}

// Response is the gateway's answer to a Request.
type Response struct {
	Content          string
	Model            string
	Backend          string
	PromptTokens     int
	CompletionTokens int
}

// Backend is a single text-generation service.
type Backend interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
}

// OpenAIBackend adapts the go-openai chat completion API to the Backend
// interface. With a custom base URL it also fronts any OpenAI-compatible
// local server, which is how the fallback backend is built.
type OpenAIBackend struct {
	client *openai.Client
	model  string
	name   string
}

// NewOpenAIBackend creates the hosted primary backend.
func NewOpenAIBackend(apiKey, model string) *OpenAIBackend {
	return &OpenAIBackend{
		client: openai.NewClient(apiKey),
		model:  model,
		name:   "primary",
	}
}

// NewCompatibleBackend creates a backend against an OpenAI-compatible
// endpoint, typically a local model server.
func NewCompatibleBackend(baseURL, apiKey, model string) *OpenAIBackend {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &OpenAIBackend{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		name:   "fallback",
	}
}

// Name returns the backend label used in traces and usage accounting.
func (b *OpenAIBackend) Name() string {
	return b.name
}

// Complete performs a single chat completion call.
func (b *OpenAIBackend) Complete(ctx context.Context, req Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	messages := []openai.ChatCompletionMessage{}
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       b.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, errors.New("no completion choices returned")
	}

	return &Response{
		Content:          resp.Choices[0].Message.Content,
		Model:            resp.Model,
		Backend:          b.name,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// Usage accumulates gateway-level accounting across calls.
type Usage struct {
	Calls            int
	Fallbacks        int
	Failures         int
	PromptTokens     int
	CompletionTokens int
}

// Gateway routes generation requests to the primary backend and falls back
// to the secondary on timeout, transport failure or empty output. Both
// failing is reported as domain.ErrGenerationExhausted.
type Gateway struct {
	primary  Backend
	fallback Backend
	timeout  time.Duration

	mu    sync.Mutex
	usage Usage
}

// NewGateway creates a Gateway. fallback may be nil. A non-positive timeout
// falls back to DefaultTimeout.
func NewGateway(primary, fallback Backend, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gateway{
		primary:  primary,
		fallback: fallback,
		timeout:  timeout,
	}
}

// Generate runs the request against the primary backend, then the fallback.
// Each attempt gets its own timeout derived from ctx so a slow backend can
// never block the pipeline.
func (g *Gateway) Generate(ctx context.Context, req Request) (*Response, error) {
	if g.primary == nil && g.fallback == nil {
		return nil, domain.ErrGenerationExhausted
	}

	var firstErr error
	for _, backend := range []Backend{g.primary, g.fallback} {
		if backend == nil {
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		resp, err := backend.Complete(callCtx, req)
		cancel()

		g.mu.Lock()
		g.usage.Calls++
		if err == nil {
			g.usage.PromptTokens += resp.PromptTokens
			g.usage.CompletionTokens += resp.CompletionTokens
		}
		g.mu.Unlock()

		if err == nil && resp.Content != "" {
			return resp, nil
		}

		if err == nil {
			err = errors.New("empty completion content")
		}
		if firstErr == nil {
			firstErr = err
		}

		g.mu.Lock()
		if backend == g.primary && g.fallback != nil {
			g.usage.Fallbacks++
		} else {
			g.usage.Failures++
		}
		g.mu.Unlock()

		log.Printf("genai: backend %s failed for schema %s: %v", backend.Name(), req.Schema, err)

		// A cancelled parent means the whole run is done, not just this call.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, domain.NewDomainErrorWithCause(domain.ErrCodeGeneration,
		fmt.Sprintf("all generation backends failed for schema %s", req.Schema), firstErr)
}

// Usage returns a snapshot of the accumulated accounting.
func (g *Gateway) Usage() Usage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.usage
}
