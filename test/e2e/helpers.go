//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contextiq/contextiq/internal/agents"
	"github.com/contextiq/contextiq/internal/api/handlers"
	"github.com/contextiq/contextiq/internal/genai"
	"github.com/contextiq/contextiq/internal/graph"
	"github.com/contextiq/contextiq/internal/pipeline"
	"github.com/contextiq/contextiq/internal/relevance"
	"github.com/contextiq/contextiq/internal/repository"
	"github.com/contextiq/contextiq/internal/server"
	"github.com/contextiq/contextiq/internal/testutil"
)

// TestEnv holds all resources needed for end-to-end tests. The server is a
// full router over real repositories; generation runs in degraded template
// mode so no external backend is required.
type TestEnv struct {
	T         *testing.T
	Ctx       context.Context
	Pool      *pgxpool.Pool
	Store     *graph.Store
	Repos     *Repos
	ServerURL string
	Client    *http.Client

	cleanup []func()
}

// Repos bundles the repositories tests use for seeding and verification.
type Repos struct {
	Entities      *repository.EntityRepository
	Relationships *repository.RelationshipRepository
	ContextItems  *repository.ContextItemRepository
	Tasks         *repository.TaskRepository
	Profiles      *repository.ProfileRepository
}

// SetupTestEnv starts a Postgres container, migrates it, and serves the
// full HTTP API against it.
func SetupTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	repos := &Repos{
		Entities:      repository.NewEntityRepository(pool),
		Relationships: repository.NewRelationshipRepository(pool),
		ContextItems:  repository.NewContextItemRepository(pool),
		Tasks:         repository.NewTaskRepository(pool),
		Profiles:      repository.NewProfileRepository(pool),
	}

	store := graph.NewStore(repos.Entities, repos.Relationships)

	// No backends: every agent takes its deterministic template path.
	gen := genai.NewGateway(nil, nil, 5*time.Second)

	orch := pipeline.New(pipeline.Deps{
		ProfileRepo:    repos.Profiles,
		ContextRepo:    repos.ContextItems,
		TaskRepo:       repos.Tasks,
		CommentRepo:    repository.NewCommentRepository(pool),
		EnrichmentRepo: repository.NewEnrichmentRepository(pool),
		Graph:          store,
		Extractor:      agents.NewExtractionAgent(gen),
		Synthesizer:    agents.NewSynthesisAgent(gen),
		Gen:            gen,
		Filter:         relevance.NewFilter(50),
		Timeout:        time.Minute,
	})

	router := server.NewRouter(server.RouterConfig{
		IngestHandler: handlers.NewIngestHandler(orch, repos.Tasks),
		GraphHandler:  handlers.NewGraphHandler(store),
	})

	srv := httptest.NewServer(router)

	env := &TestEnv{
		T:         t,
		Ctx:       ctx,
		Pool:      pool,
		Store:     store,
		Repos:     repos,
		ServerURL: srv.URL,
		Client:    srv.Client(),
	}
	env.cleanup = append(env.cleanup, srv.Close, pool.Close, func() { pgC.Terminate(ctx) })
	return env
}

// Teardown releases everything SetupTestEnv created.
func (e *TestEnv) Teardown() {
	for _, fn := range e.cleanup {
		fn()
	}
}

// Response is a decoded API envelope plus the HTTP status.
type Response struct {
	Status int
	Data   json.RawMessage
	Error  string
}

type apiEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

// GET performs a GET against the test server.
func (e *TestEnv) GET(path string) *Response {
	e.T.Helper()
	resp, err := e.Client.Get(e.ServerURL + path)
	if err != nil {
		e.T.Fatalf("GET %s: %v", path, err)
	}
	return e.decode(resp)
}

// POST performs a POST with a JSON body against the test server.
func (e *TestEnv) POST(path string, body any) *Response {
	e.T.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			e.T.Fatalf("marshal body for POST %s: %v", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	resp, err := e.Client.Post(e.ServerURL+path, "application/json", reader)
	if err != nil {
		e.T.Fatalf("POST %s: %v", path, err)
	}
	return e.decode(resp)
}

func (e *TestEnv) decode(resp *http.Response) *Response {
	e.T.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		e.T.Fatalf("read response body: %v", err)
	}

	var env apiEnvelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			e.T.Fatalf("decode response %q: %v", string(raw), err)
		}
	}

	return &Response{Status: resp.StatusCode, Data: env.Data, Error: env.Error}
}

// MustData unmarshals the data payload into out and fails the test on error.
func (r *Response) MustData(t *testing.T, out any) {
	t.Helper()
	if err := json.Unmarshal(r.Data, out); err != nil {
		t.Fatalf("decode data %q: %v", string(r.Data), err)
	}
}

// requireStatus fails the test unless the response carries the status.
func requireStatus(t *testing.T, resp *Response, want int) {
	t.Helper()
	if resp.Status != want {
		t.Fatalf("expected status %d, got %d (error: %s)", want, resp.Status, resp.Error)
	}
}
