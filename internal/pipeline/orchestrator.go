package pipeline

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/contextiq/contextiq/internal/agents"
	"github.com/contextiq/contextiq/internal/analyzer"
	"github.com/contextiq/contextiq/internal/domain"
	"github.com/contextiq/contextiq/internal/enrich"
	"github.com/contextiq/contextiq/internal/graph"
	"github.com/contextiq/contextiq/internal/relevance"
	"github.com/contextiq/contextiq/internal/telemetry"
)

// Defaults for orchestrator tuning knobs.
const (
	DefaultPipelineTimeout  = 2 * time.Minute
	DefaultRecentTaskWindow = 20
	DefaultProfileTTL       = 5 * time.Minute
)

// ProfileRepositoryInterface defines the repository interface for user profiles
type ProfileRepositoryInterface interface {
	GetByUserID(ctx context.Context, userID string) (*domain.UserProfile, error)
}

// ContextItemRepositoryInterface defines the repository interface for context item persistence
type ContextItemRepositoryInterface interface {
	Create(ctx context.Context, item *domain.ContextItem) error
}

// TaskRepositoryInterface defines the repository interface for task persistence
type TaskRepositoryInterface interface {
	Create(ctx context.Context, t *domain.Task) error
	GetByID(ctx context.Context, id string) (*domain.Task, error)
	ListRecentByUser(ctx context.Context, userID string, limit int) ([]*domain.Task, error)
	Update(ctx context.Context, t *domain.Task) error
}

// CommentRepositoryInterface defines the repository interface for task comments
type CommentRepositoryInterface interface {
	Create(ctx context.Context, c *domain.Comment) error
}

// EnrichmentLedgerInterface records which (task, context) pairs have been
// enriched, enforcing the at-most-once rule across runs.
type EnrichmentLedgerInterface interface {
	Exists(ctx context.Context, taskID, contextKey string) (bool, error)
	Record(ctx context.Context, taskID, contextKey string, op *domain.EnrichmentOperation) error
}

// GraphInterface is the slice of the knowledge-graph store the pipeline
// touches.
type GraphInterface interface {
	ObserveEntity(ctx context.Context, name string, entityType domain.EntityType, seenAt time.Time) (*domain.Entity, bool, error)
	ObserveRelationship(ctx context.Context, subjectID string, predicate domain.Predicate, objectID string, seenAt time.Time) (*domain.Relationship, bool, error)
	ListEntities(ctx context.Context, entityType string) ([]*domain.Entity, error)
	EntityRelationships(ctx context.Context, entityID string) ([]graph.RelationshipView, error)
}

// Extractor runs typed entity extraction.
type Extractor interface {
	ExtractEntities(ctx context.Context, text string, assessment analyzer.Assessment) (*agents.ExtractionResult, error)
}

// Synthesizer infers edges between extracted entities.
type Synthesizer interface {
	SynthesizeRelationships(ctx context.Context, text string, entities []agents.ExtractedEntity) (*agents.SynthesisResult, error)
}

// Archiver persists the raw ingested payload outside the database.
type Archiver interface {
	Archive(ctx context.Context, item *domain.ContextItem) error
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// Deps wires an Orchestrator. Archiver and Gen are optional; everything
// else is required.
type Deps struct {
	ProfileRepo     ProfileRepositoryInterface
	ContextRepo     ContextItemRepositoryInterface
	TaskRepo        TaskRepositoryInterface
	CommentRepo     CommentRepositoryInterface
	EnrichmentRepo  EnrichmentLedgerInterface
	Graph           GraphInterface
	Extractor       Extractor
	Synthesizer     Synthesizer
	Gen             agents.Generator
	Filter          *relevance.Filter
	Enricher        *enrich.Engine
	Archiver        Archiver
	Timeout         time.Duration
	RecentTaskLimit int
	ProfileTTL      time.Duration
	DefaultUserID   string
	// MaxExtractionRetries caps the analyzer's retry budget; zero keeps
	// the strategy-derived budget.
	MaxExtractionRetries int
}

// Orchestrator runs the ingestion state machine. One Run call is fully
// sequential over its own state; only the graph store is shared.
type Orchestrator struct {
	deps    Deps
	uuidGen UUIDGenerator

	mu           sync.Mutex
	profileCache map[string]cachedProfile
}

type cachedProfile struct {
	profile  *domain.UserProfile
	cachedAt time.Time
}

// New creates a new Orchestrator instance.
func New(deps Deps) *Orchestrator {
	if deps.Timeout <= 0 {
		deps.Timeout = DefaultPipelineTimeout
	}
	if deps.RecentTaskLimit <= 0 {
		deps.RecentTaskLimit = DefaultRecentTaskWindow
	}
	if deps.ProfileTTL <= 0 {
		deps.ProfileTTL = DefaultProfileTTL
	}
	if deps.DefaultUserID == "" {
		deps.DefaultUserID = "default"
	}
	if deps.Filter == nil {
		deps.Filter = relevance.NewFilter(0)
	}
	if deps.Enricher == nil {
		deps.Enricher = enrich.NewEngine()
	}
	return &Orchestrator{
		deps:         deps,
		uuidGen:      &DefaultUUIDGenerator{},
		profileCache: map[string]cachedProfile{},
	}
}

// IngestInput is one ingestion request.
type IngestInput struct {
	UserID     string
	SourceType domain.SourceType
	SourceID   string
	Text       string
	// KnownTasks lets the caller supply the recent-task window directly;
	// when nil the orchestrator fetches it.
	KnownTasks []*domain.Task
}

// Run executes the full state machine for one context item. Durable side
// effects happen only in EXECUTE; every earlier stage accumulates state
// and trace lines. The deadline set here propagates into every external
// call.
func (o *Orchestrator) Run(ctx context.Context, input IngestInput) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, o.deps.Timeout)
	defer cancel()

	userID := input.UserID
	if userID == "" {
		userID = o.deps.DefaultUserID
	}

	ctx, span := telemetry.StartSpan(ctx, "Orchestrator.Run", telemetry.SpanAttributes{
		UserID:    userID,
		Operation: "ingest",
	})
	defer span.End()

	if strings.TrimSpace(input.Text) == "" {
		return nil, domain.ErrMissingRequiredField
	}
	if !domain.IsValidSourceType(input.SourceType) {
		return nil, domain.ErrInvalidSourceType
	}

	now := time.Now().UTC()
	st := &State{
		Item: &domain.ContextItem{
			ID:         o.uuidGen.NewString(),
			UserID:     userID,
			SourceType: input.SourceType,
			SourceID:   input.SourceID,
			RawText:    input.Text,
			CreatedAt:  now,
		},
	}

	// LOAD_PROFILE: the profile and the recent-task window touch disjoint
	// data, so both loads run concurrently and join before CLASSIFY.
	st.Advance(StageLoadProfile)
	profile, tasks, err := o.preload(ctx, userID, input.KnownTasks)
	if err != nil {
		return nil, err
	}
	st.Profile = profile
	if profile == nil {
		st.Tracef("no profile for user %s, relevance runs unpersonalized", userID)
	} else {
		st.Tracef("profile loaded for %s", profile.Name)
	}

	// CLASSIFY
	st.Advance(StageClassify)
	st.Classification = o.classify(ctx, st.Item.RawText)
	st.Tracef("classified as %s", st.Classification)

	if st.Classification == KindQuestion {
		st.Advance(StageAnswerQuestion)
		o.answerQuestion(ctx, st)
		st.Decision = GateDecision{Band: BandAnswer, Confidence: 1}
		return o.execute(ctx, st)
	}

	// RUN_EXTRACTION
	st.Advance(StageRunExtraction)
	if err := o.runExtraction(ctx, st); err != nil {
		return nil, err
	}

	// FIND_EXISTING_TASKS
	st.Advance(StageFindExistingTasks)
	st.ExistingTasks = tasks
	st.Tracef("%d recent tasks in the matching window", len(tasks))

	// CHECK_ENRICHMENTS
	st.Advance(StageCheckEnrichments)
	eligible := o.eligibleTasks(ctx, st)

	// ENRICH_PROPOSALS
	st.Advance(StageEnrichProposals)
	st.Enrichments = o.deps.Enricher.Propose(st.Item, extractedNames(st), eligible)
	st.Tracef("%d enrichment operations proposed", len(st.Enrichments))

	// FILTER_RELEVANCE
	st.Advance(StageFilterRelevance)
	kept, dropped := o.deps.Filter.Apply(st.Proposals, st.Profile, st.Item.RawText, st.People)
	for _, v := range dropped {
		st.Tracef("proposal dropped below keep-threshold %d: %s (score %d)", o.deps.Filter.Threshold(), v.Reason, v.Score)
	}
	st.Proposals = kept
	st.Tracef("%d proposals kept", len(kept))

	// CALCULATE_CONFIDENCE
	st.Advance(StageCalculateConfidence)
	st.Decision = Gate(o.gateInput(st))
	st.Tracef("%s", st.Decision.Describe())

	// GENERATE_QUESTIONS
	if st.Decision.Band == BandClarify {
		st.Advance(StageGenerateQuestions)
		st.Questions = o.clarifyingQuestions(ctx, st)
		st.Tracef("%d clarifying questions generated", len(st.Questions))
	}

	return o.execute(ctx, st)
}

// preload fetches the user profile and the recent-task window in parallel.
func (o *Orchestrator) preload(ctx context.Context, userID string, known []*domain.Task) (*domain.UserProfile, []*domain.Task, error) {
	var (
		wg         sync.WaitGroup
		profile    *domain.UserProfile
		profileErr error
		tasks      []*domain.Task
		tasksErr   error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		profile, profileErr = o.loadProfile(ctx, userID)
	}()

	if known != nil {
		tasks = known
	} else {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tasks, tasksErr = o.deps.TaskRepo.ListRecentByUser(ctx, userID, o.deps.RecentTaskLimit)
		}()
	}
	wg.Wait()

	if profileErr != nil {
		if errors.Is(profileErr, domain.ErrProfileNotFound) {
			profile = nil
		} else {
			return nil, nil, profileErr
		}
	}
	if tasksErr != nil {
		return nil, nil, tasksErr
	}
	return profile, tasks, nil
}

// loadProfile reads through a short-TTL cache; profiles change rarely and
// every ingest needs one.
func (o *Orchestrator) loadProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	o.mu.Lock()
	if c, ok := o.profileCache[userID]; ok && time.Since(c.cachedAt) < o.deps.ProfileTTL {
		o.mu.Unlock()
		return c.profile, nil
	}
	o.mu.Unlock()

	profile, err := o.deps.ProfileRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.profileCache[userID] = cachedProfile{profile: profile, cachedAt: time.Now()}
	o.mu.Unlock()
	return profile, nil
}

// runExtraction drives analysis, both agents, and the graph merge, and
// derives the run's initial task proposal.
func (o *Orchestrator) runExtraction(ctx context.Context, st *State) error {
	st.Assessment = analyzer.Analyze(st.Item.RawText, st.Item.SourceType)
	if o.deps.MaxExtractionRetries > 0 && st.Assessment.RetryBudget > o.deps.MaxExtractionRetries {
		st.Assessment.RetryBudget = o.deps.MaxExtractionRetries
	}
	st.Item.Complexity = st.Assessment.Complexity
	st.Tracef("complexity %.2f -> %s strategy (retry budget %d)", st.Assessment.Complexity, st.Assessment.Strategy, st.Assessment.RetryBudget)

	extraction, err := o.deps.Extractor.ExtractEntities(ctx, st.Item.RawText, st.Assessment)
	if err != nil {
		return err
	}
	st.Extraction = extraction
	st.Tracef("%d entities extracted (quality %.2f, attempts %d)", len(extraction.Entities), extraction.Quality, extraction.Attempts)
	if extraction.Degraded {
		st.Tracef("extraction degraded, best effort accepted")
	}
	for _, reason := range extraction.Dropped {
		st.Tracef("entity dropped: %s", reason)
	}

	synthesis, err := o.deps.Synthesizer.SynthesizeRelationships(ctx, st.Item.RawText, extraction.Entities)
	if err != nil {
		return err
	}
	st.Relationships = synthesis
	st.Tracef("%d relationships inferred", len(synthesis.Relationships))
	for _, reason := range synthesis.Dropped {
		st.Tracef("relationship dropped: %s", reason)
	}

	o.mergeIntoGraph(ctx, st)

	if proposal := o.deriveProposal(st); proposal != nil {
		st.Proposals = append(st.Proposals, proposal)
		st.Tracef("task proposal derived: %q", proposal.Title)
	}
	return nil
}

// mergeIntoGraph observes every entity and validated edge. Graph failures
// degrade with a trace line; one bad item never fails the run.
func (o *Orchestrator) mergeIntoGraph(ctx context.Context, st *State) {
	st.EntityIDs = map[string]string{}

	for _, e := range st.Extraction.Entities {
		entity, created, err := o.deps.Graph.ObserveEntity(ctx, e.Name, domain.EntityType(e.Type), st.Item.CreatedAt)
		if err != nil {
			log.Printf("pipeline: graph merge failed for entity %q: %v", e.Name, err)
			st.Tracef("graph merge failed for %q: %v", e.Name, err)
			continue
		}
		st.EntityIDs[strings.ToLower(e.Name)] = entity.ID
		if e.Type == string(domain.EntityTypePerson) {
			st.People = append(st.People, e.Name)
		}
		if created {
			st.Tracef("new %s node %q", entity.Type, entity.CanonicalName)
		} else {
			st.Tracef("%q merged into %q (mentions %d)", e.Name, entity.CanonicalName, entity.MentionCount)
		}
	}

	if st.Relationships == nil {
		return
	}
	for _, r := range st.Relationships.Relationships {
		subjectID, okS := st.EntityIDs[strings.ToLower(r.Subject)]
		objectID, okO := st.EntityIDs[strings.ToLower(r.Object)]
		if !okS || !okO {
			st.Tracef("edge %s-%s-%s skipped, endpoint missing from graph", r.Subject, r.Predicate, r.Object)
			continue
		}
		rel, created, err := o.deps.Graph.ObserveRelationship(ctx, subjectID, domain.Predicate(r.Predicate), objectID, st.Item.CreatedAt)
		if err != nil {
			log.Printf("pipeline: graph merge failed for edge %s-%s-%s: %v", r.Subject, r.Predicate, r.Object, err)
			st.Tracef("edge %s-%s-%s failed: %v", r.Subject, r.Predicate, r.Object, err)
			continue
		}
		if created {
			st.Tracef("new edge %s %s %s (strength %.2f)", r.Subject, r.Predicate, r.Object, rel.Strength)
		} else {
			st.Tracef("edge %s %s %s reinforced (strength %.2f)", r.Subject, r.Predicate, r.Object, rel.Strength)
		}
	}
}

// deriveProposal turns the context into one candidate create-task
// proposal. The confidence gate decides whether it survives.
func (o *Orchestrator) deriveProposal(st *State) *domain.TaskProposal {
	title := titleFromText(st.Item.RawText)
	if title == "" {
		return nil
	}

	proposal := &domain.TaskProposal{
		Operation:   domain.TaskOperationCreate,
		Title:       title,
		Description: st.Item.RawText,
		Factors:     map[string]float64{FactorExtraction: st.Extraction.Quality},
		Reasoning:   "derived from ingested context",
	}
	if deadline, phrase := detectDeadline(st); deadline != nil {
		proposal.Deadline = deadline
		proposal.Reasoning += ", deadline from " + strings.Trim(phrase, " \"")
	}
	return proposal
}

func detectDeadline(st *State) (*time.Time, string) {
	return enrich.DetectDeadline(st.Item.RawText, st.Item.CreatedAt)
}

// titleFromText takes the first sentence, bounded to a title length.
func titleFromText(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.IndexAny(text, ".!?\n"); idx > 0 {
		text = text[:idx]
	}
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return ""
	}
	if len(runes) > 80 {
		return string(runes[:77]) + "..."
	}
	return string(runes)
}

func extractedNames(st *State) []string {
	if st.Extraction == nil {
		return nil
	}
	names := make([]string, 0, len(st.Extraction.Entities))
	for _, e := range st.Extraction.Entities {
		names = append(names, e.Name)
	}
	return names
}

// eligibleTasks removes tasks already enriched by this context, keeping
// the at-most-once pair rule across retried ingests.
func (o *Orchestrator) eligibleTasks(ctx context.Context, st *State) []*domain.Task {
	key := st.contextKey()
	eligible := make([]*domain.Task, 0, len(st.ExistingTasks))
	for _, t := range st.ExistingTasks {
		applied, err := o.deps.EnrichmentRepo.Exists(ctx, t.ID, key)
		if err != nil {
			st.Tracef("enrichment ledger lookup failed for task %s, task skipped: %v", t.ID, err)
			log.Printf("pipeline: enrichment ledger lookup failed for task %s: %v", t.ID, err)
			continue
		}
		if applied {
			st.Tracef("task %s already enriched by this context, skipped", t.ID)
			continue
		}
		eligible = append(eligible, t)
	}
	return eligible
}

// contextKey identifies the triggering context across retries: the source
// id when the caller supplies one, the item id otherwise.
func (s *State) contextKey() string {
	if s.Item.SourceID != "" {
		return s.Item.SourceID
	}
	return s.Item.ID
}

// gateInput assembles the factor map for the confidence gate.
func (o *Orchestrator) gateInput(st *State) GateInput {
	factors := map[string]float64{}
	if st.Extraction != nil {
		factors[FactorExtraction] = st.Extraction.Quality
	}
	if best := bestRelevance(st.Proposals); best >= 0 {
		factors[FactorRelevance] = float64(best) / 100
	}
	if best := bestEnrichment(st.Enrichments); best >= 0 {
		factors[FactorEnrichment] = best
	}
	return GateInput{
		Factors:    factors,
		Actionable: len(st.Proposals) > 0 || len(st.Enrichments) > 0,
	}
}

func bestRelevance(proposals []*domain.TaskProposal) int {
	best := -1
	for _, p := range proposals {
		if p.RelevanceScore > best {
			best = p.RelevanceScore
		}
	}
	return best
}

func bestEnrichment(ops []*domain.EnrichmentOperation) float64 {
	best := -1.0
	for _, op := range ops {
		if op.Confidence > best {
			best = op.Confidence
		}
	}
	return best
}

// execute is the only stage with durable side effects: the context item is
// persisted (and archived), and AUTO_APPLY materializes proposals and
// enrichments.
func (o *Orchestrator) execute(ctx context.Context, st *State) (*Result, error) {
	st.Advance(StageExecute)

	if err := o.deps.ContextRepo.Create(ctx, st.Item); err != nil {
		return nil, err
	}
	st.Tracef("context item %s stored", st.Item.ID)

	if o.deps.Archiver != nil {
		if err := o.deps.Archiver.Archive(ctx, st.Item); err != nil {
			log.Printf("pipeline: archive failed for %s: %v", st.Item.ID, err)
			st.Tracef("raw payload archive failed: %v", err)
		} else {
			st.Tracef("raw payload archived")
		}
	}

	if st.Decision.Band == BandAutoApply {
		if err := o.applyProposals(ctx, st); err != nil {
			return nil, err
		}
		if err := o.applyEnrichments(ctx, st); err != nil {
			return nil, err
		}
	}

	st.Advance(StageDone)
	return st.result(time.Now().UTC()), nil
}

func (o *Orchestrator) applyProposals(ctx context.Context, st *State) error {
	now := time.Now().UTC()
	for _, p := range st.Proposals {
		if p.Operation != domain.TaskOperationCreate {
			continue
		}
		task := &domain.Task{
			ID:          o.uuidGen.NewString(),
			UserID:      st.Item.UserID,
			Title:       p.Title,
			Description: p.Description,
			Status:      domain.TaskStatusOpen,
			Deadline:    p.Deadline,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := o.deps.TaskRepo.Create(ctx, task); err != nil {
			return err
		}
		st.CreatedTaskIDs = append(st.CreatedTaskIDs, task.ID)
		st.Tracef("task %s created: %q", task.ID, task.Title)
	}
	return nil
}

func (o *Orchestrator) applyEnrichments(ctx context.Context, st *State) error {
	now := time.Now().UTC()
	key := st.contextKey()

	for _, op := range st.Enrichments {
		task, err := o.deps.TaskRepo.GetByID(ctx, op.TargetTaskID)
		if err != nil {
			st.Tracef("enrichment skipped, task %s unavailable: %v", op.TargetTaskID, err)
			continue
		}

		changed := false
		for _, diff := range op.Diffs {
			switch diff.Field {
			case "deadline":
				if deadline, err := time.Parse("2006-01-02", diff.NewValue); err == nil {
					task.Deadline = &deadline
					changed = true
				}
			case "status":
				status := domain.TaskStatus(diff.NewValue)
				if domain.IsValidTaskStatus(status) {
					task.Status = status
					changed = true
				}
			case "note":
				comment := &domain.Comment{
					ID:            o.uuidGen.NewString(),
					TaskID:        task.ID,
					ContextItemID: st.Item.ID,
					Body:          diff.NewValue,
					CreatedAt:     now,
				}
				if err := o.deps.CommentRepo.Create(ctx, comment); err != nil {
					return err
				}
				st.CommentIDs = append(st.CommentIDs, comment.ID)
			}
		}

		if changed {
			task.UpdatedAt = now
			if err := o.deps.TaskRepo.Update(ctx, task); err != nil {
				return err
			}
		}

		if err := o.deps.EnrichmentRepo.Record(ctx, task.ID, key, op); err != nil {
			return err
		}
		st.UpdatedTaskIDs = append(st.UpdatedTaskIDs, task.ID)
		st.Tracef("task %s enriched (%d diffs)", task.ID, len(op.Diffs))
	}
	return nil
}
