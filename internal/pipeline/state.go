package pipeline

import (
	"fmt"
	"time"

	"github.com/contextiq/contextiq/internal/agents"
	"github.com/contextiq/contextiq/internal/analyzer"
	"github.com/contextiq/contextiq/internal/domain"
)

// Stage names the orchestrator's states, in execution order.
type Stage string

const (
	StageLoadProfile         Stage = "LOAD_PROFILE"
	StageClassify            Stage = "CLASSIFY"
	StageAnswerQuestion      Stage = "ANSWER_QUESTION"
	StageRunExtraction       Stage = "RUN_EXTRACTION"
	StageFindExistingTasks   Stage = "FIND_EXISTING_TASKS"
	StageCheckEnrichments    Stage = "CHECK_ENRICHMENTS"
	StageEnrichProposals     Stage = "ENRICH_PROPOSALS"
	StageFilterRelevance     Stage = "FILTER_RELEVANCE"
	StageCalculateConfidence Stage = "CALCULATE_CONFIDENCE"
	StageGenerateQuestions   Stage = "GENERATE_QUESTIONS"
	StageExecute             Stage = "EXECUTE"
	StageDone                Stage = "DONE"
)

// Kind is the classification of an incoming context item.
type Kind string

const (
	KindQuestion  Kind = "question"
	KindStatement Kind = "statement"
)

// State is the accumulating record one pipeline run carries between
// stages. Every field is written by exactly one stage; nothing durable
// happens until EXECUTE.
type State struct {
	Stage Stage

	Item    *domain.ContextItem
	Profile *domain.UserProfile

	Assessment     analyzer.Assessment
	Classification Kind

	Extraction    *agents.ExtractionResult
	Relationships *agents.SynthesisResult
	// EntityIDs maps extracted names to their canonical graph node IDs.
	EntityIDs map[string]string
	People    []string

	ExistingTasks []*domain.Task
	Proposals     []*domain.TaskProposal
	Enrichments   []*domain.EnrichmentOperation

	Decision  GateDecision
	Questions []string
	Answer    string

	CreatedTaskIDs []string
	UpdatedTaskIDs []string
	CommentIDs     []string

	Trace []string
}

// Advance moves the state machine to the next stage and records it.
func (s *State) Advance(stage Stage) {
	s.Stage = stage
	s.Tracef("-> %s", stage)
}

// Tracef appends one formatted reasoning-trace line.
func (s *State) Tracef(format string, args ...any) {
	s.Trace = append(s.Trace, fmt.Sprintf(format, args...))
}

// Result is the record handed back to the caller after one run.
type Result struct {
	ContextItemID  string                        `json:"context_item_id"`
	Action         Band                          `json:"action"`
	Confidence     float64                       `json:"confidence"`
	Proposals      []*domain.TaskProposal        `json:"proposals,omitempty"`
	Enrichments    []*domain.EnrichmentOperation `json:"enrichments,omitempty"`
	CreatedTaskIDs []string                      `json:"created_task_ids,omitempty"`
	UpdatedTaskIDs []string                      `json:"updated_task_ids,omitempty"`
	Questions      []string                      `json:"questions,omitempty"`
	Answer         string                        `json:"answer,omitempty"`
	Trace          []string                      `json:"trace"`
	CompletedAt    time.Time                     `json:"completed_at"`
}

func (s *State) result(now time.Time) *Result {
	return &Result{
		ContextItemID:  s.Item.ID,
		Action:         s.Decision.Band,
		Confidence:     s.Decision.Confidence,
		Proposals:      s.Proposals,
		Enrichments:    s.Enrichments,
		CreatedTaskIDs: s.CreatedTaskIDs,
		UpdatedTaskIDs: s.UpdatedTaskIDs,
		Questions:      s.Questions,
		Answer:         s.Answer,
		Trace:          s.Trace,
		CompletedAt:    now,
	}
}
