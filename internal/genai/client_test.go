package genai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextiq/contextiq/internal/domain"
)

// stubBackend is a scriptable Backend for gateway tests.
type stubBackend struct {
	name     string
	response *Response
	err      error
	delay    time.Duration
	calls    int
}

func (b *stubBackend) Name() string { return b.name }

func (b *stubBackend) Complete(ctx context.Context, req Request) (*Response, error) {
	b.calls++
	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if b.err != nil {
		return nil, b.err
	}
	return b.response, nil
}

func TestGateway_Generate_PrimarySucceeds(t *testing.T) {
	primary := &stubBackend{name: "primary", response: &Response{Content: `{"ok":true}`, Backend: "primary", PromptTokens: 10, CompletionTokens: 5}}
	fallback := &stubBackend{name: "fallback", response: &Response{Content: "unused", Backend: "fallback"}}
	g := NewGateway(primary, fallback, time.Second)

	resp, err := g.Generate(context.Background(), Request{Prompt: "hi", Schema: "test"})
	require.NoError(t, err)

	assert.Equal(t, "primary", resp.Backend)
	assert.Equal(t, 0, fallback.calls)

	usage := g.Usage()
	assert.Equal(t, 1, usage.Calls)
	assert.Equal(t, 0, usage.Fallbacks)
	assert.Equal(t, 10, usage.PromptTokens)
	assert.Equal(t, 5, usage.CompletionTokens)
}

func TestGateway_Generate_FallsBackOnError(t *testing.T) {
	primary := &stubBackend{name: "primary", err: errors.New("service unavailable")}
	fallback := &stubBackend{name: "fallback", response: &Response{Content: "ok", Backend: "fallback"}}
	g := NewGateway(primary, fallback, time.Second)

	resp, err := g.Generate(context.Background(), Request{Prompt: "hi", Schema: "test"})
	require.NoError(t, err)

	assert.Equal(t, "fallback", resp.Backend)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
	assert.Equal(t, 1, g.Usage().Fallbacks)
}

func TestGateway_Generate_FallsBackOnTimeout(t *testing.T) {
	primary := &stubBackend{name: "primary", delay: 500 * time.Millisecond, response: &Response{Content: "late"}}
	fallback := &stubBackend{name: "fallback", response: &Response{Content: "ok", Backend: "fallback"}}
	g := NewGateway(primary, fallback, 20*time.Millisecond)

	resp, err := g.Generate(context.Background(), Request{Prompt: "hi", Schema: "test"})
	require.NoError(t, err)

	assert.Equal(t, "fallback", resp.Backend)
}

func TestGateway_Generate_BothFail(t *testing.T) {
	primary := &stubBackend{name: "primary", err: errors.New("down")}
	fallback := &stubBackend{name: "fallback", err: errors.New("also down")}
	g := NewGateway(primary, fallback, time.Second)

	_, err := g.Generate(context.Background(), Request{Prompt: "hi", Schema: "test"})
	require.Error(t, err)

	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeGeneration, domainErr.Code)
}

func TestGateway_Generate_EmptyContentTriggersFallback(t *testing.T) {
	primary := &stubBackend{name: "primary", response: &Response{Content: ""}}
	fallback := &stubBackend{name: "fallback", response: &Response{Content: "ok", Backend: "fallback"}}
	g := NewGateway(primary, fallback, time.Second)

	resp, err := g.Generate(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "fallback", resp.Backend)
}

func TestGateway_Generate_NoBackends(t *testing.T) {
	g := NewGateway(nil, nil, time.Second)

	_, err := g.Generate(context.Background(), Request{Prompt: "hi"})
	assert.ErrorIs(t, err, domain.ErrGenerationExhausted)
}

func TestGateway_Generate_ParentCancellation(t *testing.T) {
	primary := &stubBackend{name: "primary", delay: time.Second, response: &Response{Content: "late"}}
	fallback := &stubBackend{name: "fallback", response: &Response{Content: "ok"}}
	g := NewGateway(primary, fallback, 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := g.Generate(ctx, Request{Prompt: "hi"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, fallback.calls, "fallback must not run once the pipeline deadline passed")
}
