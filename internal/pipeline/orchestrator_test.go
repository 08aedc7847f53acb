package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/contextiq/contextiq/internal/agents"
	"github.com/contextiq/contextiq/internal/analyzer"
	"github.com/contextiq/contextiq/internal/domain"
	"github.com/contextiq/contextiq/internal/graph"
	"github.com/contextiq/contextiq/internal/relevance"
)

// MockProfileRepository is a mock implementation of ProfileRepositoryInterface
type MockProfileRepository struct {
	mock.Mock
}

func (m *MockProfileRepository) GetByUserID(ctx context.Context, userID string) (*domain.UserProfile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserProfile), args.Error(1)
}

// MockContextRepository is a mock implementation of ContextItemRepositoryInterface
type MockContextRepository struct {
	mock.Mock
}

func (m *MockContextRepository) Create(ctx context.Context, item *domain.ContextItem) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

// MockTaskRepository is a mock implementation of TaskRepositoryInterface
type MockTaskRepository struct {
	mock.Mock
}

func (m *MockTaskRepository) Create(ctx context.Context, t *domain.Task) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockTaskRepository) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Task), args.Error(1)
}

func (m *MockTaskRepository) ListRecentByUser(ctx context.Context, userID string, limit int) ([]*domain.Task, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Task), args.Error(1)
}

func (m *MockTaskRepository) Update(ctx context.Context, t *domain.Task) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

// MockCommentRepository is a mock implementation of CommentRepositoryInterface
type MockCommentRepository struct {
	mock.Mock
}

func (m *MockCommentRepository) Create(ctx context.Context, c *domain.Comment) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

// MockEnrichmentLedger is a mock implementation of EnrichmentLedgerInterface
type MockEnrichmentLedger struct {
	mock.Mock
}

func (m *MockEnrichmentLedger) Exists(ctx context.Context, taskID, contextKey string) (bool, error) {
	args := m.Called(ctx, taskID, contextKey)
	return args.Bool(0), args.Error(1)
}

func (m *MockEnrichmentLedger) Record(ctx context.Context, taskID, contextKey string, op *domain.EnrichmentOperation) error {
	args := m.Called(ctx, taskID, contextKey, op)
	return args.Error(0)
}

// fakeGraph is an in-memory GraphInterface for end-to-end style tests.
type fakeGraph struct {
	entities []*domain.Entity
	rels     []*domain.Relationship
	nextID   int
}

func (g *fakeGraph) ObserveEntity(_ context.Context, name string, t domain.EntityType, seenAt time.Time) (*domain.Entity, bool, error) {
	for _, e := range g.entities {
		if e.Type == t && e.HasAlias(name) {
			e.RecordMention(name, seenAt)
			return e, false, nil
		}
	}
	g.nextID++
	e := domain.NewEntity(fmt.Sprintf("ent-%d", g.nextID), t, name, seenAt)
	g.entities = append(g.entities, e)
	return e, true, nil
}

func (g *fakeGraph) ObserveRelationship(_ context.Context, subjectID string, predicate domain.Predicate, objectID string, seenAt time.Time) (*domain.Relationship, bool, error) {
	for _, r := range g.rels {
		if r.SubjectID == subjectID && r.Predicate == predicate && r.ObjectID == objectID {
			r.Reinforce(seenAt)
			return r, false, nil
		}
	}
	g.nextID++
	r := domain.NewRelationship(fmt.Sprintf("rel-%d", g.nextID), subjectID, predicate, objectID, seenAt)
	g.rels = append(g.rels, r)
	return r, true, nil
}

func (g *fakeGraph) ListEntities(context.Context, string) ([]*domain.Entity, error) {
	return g.entities, nil
}

func (g *fakeGraph) EntityRelationships(_ context.Context, entityID string) ([]graph.RelationshipView, error) {
	var views []graph.RelationshipView
	for _, r := range g.rels {
		if r.SubjectID == entityID || r.ObjectID == entityID {
			views = append(views, graph.RelationshipView{Relationship: r, CurrentStrength: r.Strength})
		}
	}
	return views, nil
}

// stubExtractor and stubSynthesizer replay canned agent results.
type stubExtractor struct {
	result *agents.ExtractionResult
	calls  int
}

func (s *stubExtractor) ExtractEntities(context.Context, string, analyzer.Assessment) (*agents.ExtractionResult, error) {
	s.calls++
	if s.result == nil {
		return &agents.ExtractionResult{Quality: 1}, nil
	}
	return s.result, nil
}

type stubSynthesizer struct {
	result *agents.SynthesisResult
}

func (s *stubSynthesizer) SynthesizeRelationships(context.Context, string, []agents.ExtractedEntity) (*agents.SynthesisResult, error) {
	if s.result == nil {
		return &agents.SynthesisResult{}, nil
	}
	return s.result, nil
}

type fixture struct {
	profileRepo *MockProfileRepository
	contextRepo *MockContextRepository
	taskRepo    *MockTaskRepository
	commentRepo *MockCommentRepository
	ledger      *MockEnrichmentLedger
	graph       *fakeGraph
	extractor   *stubExtractor
	synth       *stubSynthesizer
	orch        *Orchestrator
}

func newFixture(t *testing.T, extraction *agents.ExtractionResult) *fixture {
	t.Helper()

	f := &fixture{
		profileRepo: new(MockProfileRepository),
		contextRepo: new(MockContextRepository),
		taskRepo:    new(MockTaskRepository),
		commentRepo: new(MockCommentRepository),
		ledger:      new(MockEnrichmentLedger),
		graph:       &fakeGraph{},
		extractor:   &stubExtractor{result: extraction},
		synth:       &stubSynthesizer{},
	}
	f.orch = New(Deps{
		ProfileRepo:    f.profileRepo,
		ContextRepo:    f.contextRepo,
		TaskRepo:       f.taskRepo,
		CommentRepo:    f.commentRepo,
		EnrichmentRepo: f.ledger,
		Graph:          f.graph,
		Extractor:      f.extractor,
		Synthesizer:    f.synth,
		Filter:         relevance.NewFilter(50),
	})
	f.orch.uuidGen = NewMockUUIDGenerator("item-1", "task-1", "comment-1")
	return f
}

// MockUUIDGenerator replays fixed IDs.
type MockUUIDGenerator struct {
	callCount int
	uuids     []string
}

func NewMockUUIDGenerator(uuids ...string) *MockUUIDGenerator {
	return &MockUUIDGenerator{uuids: uuids}
}

func (m *MockUUIDGenerator) NewString() string {
	if m.callCount < len(m.uuids) {
		id := m.uuids[m.callCount]
		m.callCount++
		return id
	}
	return "default-uuid"
}

func mikeProfile() *domain.UserProfile {
	return &domain.UserProfile{
		UserID:  "user-1",
		Name:    "Mike Janssens",
		Aliases: []string{"Mike"},
		Role:    "engineer",
	}
}

func TestOrchestrator_Run_BudgetReviewScenario(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, &agents.ExtractionResult{
		Entities: []agents.ExtractedEntity{
			{Name: "Sarah", Type: "PERSON"},
			{Name: "Mike", Type: "PERSON"},
		},
		Quality:  0.9,
		Attempts: 1,
	})
	f.profileRepo.On("GetByUserID", mock.Anything, "user-1").Return(mikeProfile(), nil)
	f.taskRepo.On("ListRecentByUser", mock.Anything, "user-1", 20).Return([]*domain.Task{}, nil)
	f.taskRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Task")).Return(nil)
	f.contextRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.ContextItem")).Return(nil)

	result, err := f.orch.Run(ctx, IngestInput{
		UserID:     "user-1",
		SourceType: domain.SourceTypeChat,
		Text:       "Sarah asked Mike to review the budget by Friday",
	})
	require.NoError(t, err)

	require.Len(t, result.Proposals, 1)
	proposal := result.Proposals[0]
	assert.GreaterOrEqual(t, proposal.RelevanceScore, 80)
	assert.NotNil(t, proposal.Deadline)
	assert.Contains(t, []Band{BandAutoApply, BandAskApproval}, result.Action)
	assert.NotEmpty(t, result.Trace)
	assert.Len(t, f.graph.entities, 2)
}

func TestOrchestrator_Run_AutoApplyCreatesTask(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, &agents.ExtractionResult{
		Entities: []agents.ExtractedEntity{{Name: "Mike", Type: "PERSON"}},
		Quality:  1.0,
		Attempts: 1,
	})
	f.profileRepo.On("GetByUserID", mock.Anything, "user-1").Return(mikeProfile(), nil)
	f.taskRepo.On("ListRecentByUser", mock.Anything, "user-1", 20).Return([]*domain.Task{}, nil)
	f.contextRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.ContextItem")).Return(nil)
	f.taskRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Task")).Return(nil)

	result, err := f.orch.Run(ctx, IngestInput{
		UserID:     "user-1",
		SourceType: domain.SourceTypeChat,
		Text:       "Mike must send the signed contract to legal",
	})
	require.NoError(t, err)

	assert.Equal(t, BandAutoApply, result.Action)
	require.Len(t, result.CreatedTaskIDs, 1)
	assert.Equal(t, "task-1", result.CreatedTaskIDs[0])
	f.taskRepo.AssertExpectations(t)
}

func TestOrchestrator_Run_QuestionBranch(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, nil)
	f.graph.entities = []*domain.Entity{
		domain.NewEntity("ent-mike", domain.EntityTypePerson, "Mike", time.Now().UTC()),
	}
	f.profileRepo.On("GetByUserID", mock.Anything, "user-1").Return(mikeProfile(), nil)
	f.taskRepo.On("ListRecentByUser", mock.Anything, "user-1", 20).Return([]*domain.Task{}, nil)
	f.contextRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.ContextItem")).Return(nil)

	result, err := f.orch.Run(ctx, IngestInput{
		UserID:     "user-1",
		SourceType: domain.SourceTypeChat,
		Text:       "What is Mike working on?",
	})
	require.NoError(t, err)

	assert.Equal(t, BandAnswer, result.Action)
	assert.Contains(t, result.Answer, "Mike")
	assert.Empty(t, result.Proposals)
	assert.Zero(t, f.extractor.calls, "questions skip extraction")
	f.contextRepo.AssertExpectations(t)
}

func TestOrchestrator_Run_ThirdPartyTaskStoresOnly(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, &agents.ExtractionResult{
		Entities: []agents.ExtractedEntity{{Name: "Sarah", Type: "PERSON"}},
		Quality:  0.9,
		Attempts: 1,
	})
	f.profileRepo.On("GetByUserID", mock.Anything, "user-1").Return(mikeProfile(), nil)
	f.taskRepo.On("ListRecentByUser", mock.Anything, "user-1", 20).Return([]*domain.Task{}, nil)
	f.contextRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.ContextItem")).Return(nil)

	result, err := f.orch.Run(ctx, IngestInput{
		UserID:     "user-1",
		SourceType: domain.SourceTypeChat,
		Text:       "Sarah will send the invoice to the vendor",
	})
	require.NoError(t, err)

	assert.Equal(t, BandStoreOnly, result.Action)
	assert.Empty(t, result.Proposals)
	assert.Empty(t, result.CreatedTaskIDs)
	f.taskRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestOrchestrator_Run_LowConfidenceClarifies(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, &agents.ExtractionResult{
		Quality:  0.2,
		Attempts: 3,
		Degraded: true,
	})
	f.profileRepo.On("GetByUserID", mock.Anything, "user-1").Return(mikeProfile(), nil)
	f.taskRepo.On("ListRecentByUser", mock.Anything, "user-1", 20).Return([]*domain.Task{}, nil)
	f.contextRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.ContextItem")).Return(nil)

	result, err := f.orch.Run(ctx, IngestInput{
		UserID:     "user-1",
		SourceType: domain.SourceTypeChat,
		Text:       "Could someone help with the rollout planning",
	})
	require.NoError(t, err)

	assert.Equal(t, BandClarify, result.Action)
	assert.NotEmpty(t, result.Questions)
	assert.Empty(t, result.CreatedTaskIDs)
}

func TestOrchestrator_Run_EnrichmentAppliedOncePerContext(t *testing.T) {
	ctx := context.Background()
	existing := &domain.Task{ID: "task-9", UserID: "user-1", Title: "Review the Apollo budget", Status: domain.TaskStatusOpen}

	f := newFixture(t, &agents.ExtractionResult{
		Entities: []agents.ExtractedEntity{
			{Name: "Mike", Type: "PERSON"},
			{Name: "Apollo", Type: "PROJECT"},
		},
		Quality:  1.0,
		Attempts: 1,
	})
	f.profileRepo.On("GetByUserID", mock.Anything, "user-1").Return(mikeProfile(), nil)
	f.taskRepo.On("ListRecentByUser", mock.Anything, "user-1", 20).Return([]*domain.Task{existing}, nil)
	f.ledger.On("Exists", mock.Anything, "task-9", "note-42").Return(true, nil)
	f.contextRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.ContextItem")).Return(nil)
	f.taskRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Task")).Return(nil)

	result, err := f.orch.Run(ctx, IngestInput{
		UserID:     "user-1",
		SourceType: domain.SourceTypeChat,
		SourceID:   "note-42",
		Text:       "Mike says the Apollo budget review is done",
	})
	require.NoError(t, err)

	assert.Empty(t, result.Enrichments, "already-enriched pair is skipped")
	assert.Empty(t, result.UpdatedTaskIDs)
	f.ledger.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOrchestrator_Run_LedgerFailureTracedAndTaskSkipped(t *testing.T) {
	ctx := context.Background()
	existing := &domain.Task{ID: "task-9", UserID: "user-1", Title: "Review the Apollo budget", Status: domain.TaskStatusOpen}

	f := newFixture(t, &agents.ExtractionResult{
		Entities: []agents.ExtractedEntity{
			{Name: "Mike", Type: "PERSON"},
			{Name: "Apollo", Type: "PROJECT"},
		},
		Quality:  1.0,
		Attempts: 1,
	})
	f.profileRepo.On("GetByUserID", mock.Anything, "user-1").Return(mikeProfile(), nil)
	f.taskRepo.On("ListRecentByUser", mock.Anything, "user-1", 20).Return([]*domain.Task{existing}, nil)
	f.ledger.On("Exists", mock.Anything, "task-9", mock.AnythingOfType("string")).Return(false, errors.New("ledger down"))
	f.contextRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.ContextItem")).Return(nil)
	f.taskRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Task")).Return(nil)

	result, err := f.orch.Run(ctx, IngestInput{
		UserID:     "user-1",
		SourceType: domain.SourceTypeChat,
		Text:       "Mike says the Apollo budget review is done",
	})
	require.NoError(t, err)

	assert.Empty(t, result.Enrichments, "unverifiable pair must not be enriched")
	assert.Empty(t, result.UpdatedTaskIDs)
	f.ledger.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Contains(t, strings.Join(result.Trace, "\n"),
		"enrichment ledger lookup failed for task task-9")
}

func TestOrchestrator_Run_AutoApplyEnrichesMatchingTask(t *testing.T) {
	ctx := context.Background()
	existing := &domain.Task{ID: "task-9", UserID: "user-1", Title: "Review the Apollo budget", Status: domain.TaskStatusOpen}

	f := newFixture(t, &agents.ExtractionResult{
		Entities: []agents.ExtractedEntity{
			{Name: "Mike", Type: "PERSON"},
			{Name: "Apollo", Type: "PROJECT"},
		},
		Quality:  1.0,
		Attempts: 1,
	})
	f.profileRepo.On("GetByUserID", mock.Anything, "user-1").Return(mikeProfile(), nil)
	f.taskRepo.On("ListRecentByUser", mock.Anything, "user-1", 20).Return([]*domain.Task{existing}, nil)
	f.ledger.On("Exists", mock.Anything, "task-9", mock.AnythingOfType("string")).Return(false, nil)
	f.contextRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.ContextItem")).Return(nil)
	f.taskRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Task")).Return(nil)
	f.taskRepo.On("GetByID", mock.Anything, "task-9").Return(existing, nil)
	f.taskRepo.On("Update", mock.Anything, existing).Return(nil)
	f.ledger.On("Record", mock.Anything, "task-9", mock.AnythingOfType("string"), mock.AnythingOfType("*domain.EnrichmentOperation")).Return(nil)

	result, err := f.orch.Run(ctx, IngestInput{
		UserID:     "user-1",
		SourceType: domain.SourceTypeChat,
		Text:       "Mike says the Apollo budget review is done",
	})
	require.NoError(t, err)

	assert.Equal(t, BandAutoApply, result.Action)
	require.Len(t, result.Enrichments, 1)
	require.Len(t, result.UpdatedTaskIDs, 1)
	assert.Equal(t, domain.TaskStatusDone, existing.Status)
	f.ledger.AssertExpectations(t)
}

func TestOrchestrator_Run_ProfileCacheHitsOnce(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, &agents.ExtractionResult{Quality: 0.9, Attempts: 1})
	f.profileRepo.On("GetByUserID", mock.Anything, "user-1").Return(mikeProfile(), nil).Once()
	f.taskRepo.On("ListRecentByUser", mock.Anything, "user-1", 20).Return([]*domain.Task{}, nil)
	f.contextRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.ContextItem")).Return(nil)

	for i := 0; i < 2; i++ {
		_, err := f.orch.Run(ctx, IngestInput{
			UserID:     "user-1",
			SourceType: domain.SourceTypeManual,
			Text:       "remember to send the weekly notes",
		})
		require.NoError(t, err)
	}

	f.profileRepo.AssertExpectations(t)
	f.profileRepo.AssertNumberOfCalls(t, "GetByUserID", 1)
}

func TestOrchestrator_Run_ValidatesInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.orch.Run(ctx, IngestInput{UserID: "user-1", SourceType: domain.SourceTypeChat, Text: "   "})
	assert.ErrorIs(t, err, domain.ErrMissingRequiredField)

	_, err = f.orch.Run(ctx, IngestInput{UserID: "user-1", SourceType: domain.SourceType("carrier-pigeon"), Text: "hello"})
	assert.ErrorIs(t, err, domain.ErrInvalidSourceType)
}

func TestOrchestrator_Run_MissingProfileStillRuns(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, &agents.ExtractionResult{Quality: 0.8, Attempts: 1})
	f.profileRepo.On("GetByUserID", mock.Anything, "ghost").Return(nil, domain.ErrProfileNotFound)
	f.taskRepo.On("ListRecentByUser", mock.Anything, "ghost", 20).Return([]*domain.Task{}, nil)
	f.contextRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.ContextItem")).Return(nil)

	result, err := f.orch.Run(ctx, IngestInput{
		UserID:     "ghost",
		SourceType: domain.SourceTypeManual,
		Text:       "remember to renew the certificates",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Trace)
}

func TestOrchestrator_Run_ContextStoreFailureSurfaces(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, &agents.ExtractionResult{Quality: 0.8, Attempts: 1})
	f.profileRepo.On("GetByUserID", mock.Anything, "user-1").Return(mikeProfile(), nil)
	f.taskRepo.On("ListRecentByUser", mock.Anything, "user-1", 20).Return([]*domain.Task{}, nil)
	f.contextRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.ContextItem")).Return(errors.New("db down"))

	_, err := f.orch.Run(ctx, IngestInput{
		UserID:     "user-1",
		SourceType: domain.SourceTypeManual,
		Text:       "remember to renew the certificates",
	})
	assert.Error(t, err)
}

func TestTitleFromText(t *testing.T) {
	assert.Equal(t, "Send the invoice", titleFromText("Send the invoice. Also ping Sarah."))
	assert.Equal(t, "Send the invoice", titleFromText("  Send the invoice  "))
	long := titleFromText("This title is going to be far longer than anyone would reasonably want a task title to ever be in a task list")
	assert.LessOrEqual(t, len([]rune(long)), 80)
	assert.Equal(t, "", titleFromText("   "))
}

func TestClassifyHeuristic(t *testing.T) {
	assert.Equal(t, KindQuestion, classifyHeuristic("What is Mike working on?"))
	assert.Equal(t, KindQuestion, classifyHeuristic("who owns the Apollo rollout"))
	assert.Equal(t, KindStatement, classifyHeuristic("Mike owns the Apollo rollout."))
}
