package agents

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/contextiq/contextiq/internal/domain"
	"github.com/contextiq/contextiq/internal/genai"
)

// ExtractedRelationship is one directed edge as returned by the generation
// backend, expressed over entity names from the extraction step.
type ExtractedRelationship struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}

// synthesisPayload is the expected structured output schema.
type synthesisPayload struct {
	Relationships []ExtractedRelationship `json:"relationships"`
}

// SynthesisResult carries the validated edges plus everything that was
// dropped, with reasons, for the trace.
type SynthesisResult struct {
	Relationships []ExtractedRelationship
	Dropped       []string
	Degraded      bool
}

// SynthesisAgent infers typed edges between already-extracted entities.
// Invalid edges are dropped, never retried.
type SynthesisAgent struct {
	gen Generator
}

// NewSynthesisAgent creates a new SynthesisAgent instance.
func NewSynthesisAgent(gen Generator) *SynthesisAgent {
	return &SynthesisAgent{gen: gen}
}

// SynthesizeRelationships runs one generation call and validates the
// result: both endpoints must name extracted entities and the predicate
// must be in the closed set. Generation failure degrades to an empty
// result; the pipeline run continues.
func (a *SynthesisAgent) SynthesizeRelationships(ctx context.Context, text string, entities []ExtractedEntity) (*SynthesisResult, error) {
	if len(entities) < 2 {
		return &SynthesisResult{}, nil
	}

	resp, err := a.gen.Generate(ctx, genai.Request{
		System: synthesisSystemPrompt,
		Prompt: synthesisPrompt(text, entities),
		Schema: "relationship_synthesis",
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Printf("agents: relationship synthesis failed, continuing without edges: %v", err)
		return &SynthesisResult{Degraded: true}, nil
	}

	var payload synthesisPayload
	if err := genai.DecodeStrict(resp.Content, &payload); err != nil {
		log.Printf("agents: relationship output rejected: %v", err)
		return &SynthesisResult{Degraded: true}, nil
	}

	known := map[string]struct{}{}
	for _, e := range entities {
		known[strings.ToLower(e.Name)] = struct{}{}
	}

	result := &SynthesisResult{}
	seen := map[string]struct{}{}
	for _, r := range payload.Relationships {
		subject := strings.TrimSpace(r.Subject)
		object := strings.TrimSpace(r.Object)

		if _, ok := known[strings.ToLower(subject)]; !ok {
			result.Dropped = append(result.Dropped, fmt.Sprintf("edge references unknown subject %q", subject))
			continue
		}
		if _, ok := known[strings.ToLower(object)]; !ok {
			result.Dropped = append(result.Dropped, fmt.Sprintf("edge references unknown object %q", object))
			continue
		}
		if !domain.IsValidPredicate(domain.Predicate(r.Predicate)) {
			result.Dropped = append(result.Dropped, fmt.Sprintf("edge %s->%s has invalid predicate %q", subject, object, r.Predicate))
			continue
		}
		if strings.EqualFold(subject, object) {
			result.Dropped = append(result.Dropped, fmt.Sprintf("self-edge on %q", subject))
			continue
		}

		key := strings.ToLower(subject) + "|" + r.Predicate + "|" + strings.ToLower(object)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		result.Relationships = append(result.Relationships, ExtractedRelationship{
			Subject:   subject,
			Predicate: r.Predicate,
			Object:    object,
		})
	}

	return result, nil
}
