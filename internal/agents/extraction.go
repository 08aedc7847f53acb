// Package agents holds the generation-backed pipeline agents: typed entity
// extraction with a bounded self-evaluation loop, and relationship synthesis.
package agents

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode"

	"github.com/contextiq/contextiq/internal/analyzer"
	"github.com/contextiq/contextiq/internal/domain"
	"github.com/contextiq/contextiq/internal/genai"
)

// HighQualityThreshold is the self-evaluation score below which the
// extraction agent retries (budget permitting).
const HighQualityThreshold = 0.7

// Generator is the slice of the gateway the agents need.
type Generator interface {
	Generate(ctx context.Context, req genai.Request) (*genai.Response, error)
}

// ExtractedEntity is one entity as returned by the generation backend.
type ExtractedEntity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// extractionPayload is the expected structured output schema.
type extractionPayload struct {
	Entities []ExtractedEntity `json:"entities"`
}

// ExtractionResult is what the agent always returns: its best attempt,
// annotated with how it went. The agent never surfaces quality problems
// as errors.
type ExtractionResult struct {
	Entities []ExtractedEntity
	Dropped  []string
	Quality  float64
	Attempts int
	Degraded bool
	Backend  string
}

// ExtractionAgent extracts typed entities with self-evaluation and a
// bounded retry loop.
type ExtractionAgent struct {
	gen Generator
}

// NewExtractionAgent creates a new ExtractionAgent instance.
func NewExtractionAgent(gen Generator) *ExtractionAgent {
	return &ExtractionAgent{gen: gen}
}

// ExtractEntities runs the extraction loop: generate, self-evaluate, and
// re-prompt with the failure reason while quality is below threshold and
// budget remains. Terminates in at most (retry budget + 1) attempts. The
// only error it returns is context cancellation; generation failure
// degrades to template extraction instead.
func (a *ExtractionAgent) ExtractEntities(ctx context.Context, text string, assessment analyzer.Assessment) (*ExtractionResult, error) {
	maxAttempts := assessment.RetryBudget + 1

	var best *ExtractionResult
	failureReason := ""

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := a.gen.Generate(ctx, genai.Request{
			System: extractionSystemPrompt,
			Prompt: extractionPrompt(text, assessment.Strategy, failureReason),
			Schema: "entity_extraction",
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("agents: extraction generation failed (attempt %d/%d): %v", attempt, maxAttempts, err)
			failureReason = "previous attempt produced no usable output"
			continue
		}

		var payload extractionPayload
		if err := genai.DecodeStrict(resp.Content, &payload); err != nil {
			log.Printf("agents: extraction output rejected (attempt %d/%d): %v", attempt, maxAttempts, err)
			failureReason = "previous output was not valid JSON for the entity schema"
			continue
		}

		result := evaluateExtraction(text, payload.Entities)
		result.Attempts = attempt
		result.Backend = resp.Backend

		if best == nil || result.Quality > best.Quality {
			best = result
		}

		if result.Quality >= HighQualityThreshold {
			return best, nil
		}

		failureReason = fmt.Sprintf(
			"previous attempt scored %.2f: missed proper nouns or returned invalid types (%s)",
			result.Quality, strings.Join(result.Dropped, "; "))
	}

	if best != nil {
		best.Degraded = true
		log.Printf("agents: extraction accepted below threshold (quality %.2f after %d attempts)", best.Quality, best.Attempts)
		return best, nil
	}

	// Both backends kept failing: degrade to template extraction rather
	// than failing the pipeline run.
	result := templateExtract(text)
	result.Attempts = maxAttempts
	log.Printf("agents: extraction degraded to template heuristics (%d entities)", len(result.Entities))
	return result, nil
}

// evaluateExtraction drops invalid entities and self-scores the remainder:
// 60% coverage of capitalized proper nouns, 40% schema validity.
func evaluateExtraction(text string, raw []ExtractedEntity) *ExtractionResult {
	result := &ExtractionResult{}

	valid := make([]ExtractedEntity, 0, len(raw))
	for _, e := range raw {
		name := strings.TrimSpace(e.Name)
		switch {
		case name == "":
			result.Dropped = append(result.Dropped, "entity with empty name")
		case !domain.IsValidEntityType(domain.EntityType(e.Type)):
			result.Dropped = append(result.Dropped, fmt.Sprintf("%q has invalid type %q", name, e.Type))
		default:
			e.Name = name
			valid = append(valid, e)
		}
	}
	result.Entities = dedupeEntities(valid)

	validity := 1.0
	if len(raw) > 0 {
		validity = float64(len(valid)) / float64(len(raw))
	} else {
		validity = 0
	}

	coverage := properNounCoverage(text, result.Entities)

	result.Quality = 0.6*coverage + 0.4*validity
	return result
}

// properNounCoverage measures how many capitalized proper-noun candidates
// in the text are covered by at least one extracted entity name.
func properNounCoverage(text string, entities []ExtractedEntity) float64 {
	candidates := properNounCandidates(text)
	if len(candidates) == 0 {
		// Nothing to find. Extracting nothing is correct; extracting
		// something is a bonus, not a penalty.
		return 1.0
	}

	names := make([]string, 0, len(entities))
	for _, e := range entities {
		names = append(names, strings.ToLower(e.Name))
	}

	covered := 0
	for _, c := range candidates {
		lc := strings.ToLower(c)
		for _, n := range names {
			if strings.Contains(n, lc) || strings.Contains(lc, n) {
				covered++
				break
			}
		}
	}

	return float64(covered) / float64(len(candidates))
}

// properNounCandidates returns capitalized tokens that are not sentence
// openers, deduplicated and cleaned of punctuation.
func properNounCandidates(text string) []string {
	seen := map[string]struct{}{}
	var out []string

	sentenceStart := true
	for _, f := range strings.Fields(text) {
		clean := strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		startOfNext := strings.ContainsAny(f, ".!?")
		if clean == "" {
			sentenceStart = startOfNext
			continue
		}

		first := []rune(clean)[0]
		if unicode.IsUpper(first) && !sentenceStart {
			key := strings.ToLower(clean)
			if _, ok := seen[key]; !ok {
				seen[key] = struct{}{}
				out = append(out, clean)
			}
		}
		sentenceStart = startOfNext
	}

	return out
}

// templateExtract is the last-resort path when every generation attempt
// failed: capitalized tokens become TOPIC entities so downstream stages
// still have something to work with.
func templateExtract(text string) *ExtractionResult {
	var entities []ExtractedEntity
	for _, c := range properNounCandidates(text) {
		entities = append(entities, ExtractedEntity{Name: c, Type: string(domain.EntityTypeTopic)})
	}
	return &ExtractionResult{
		Entities: entities,
		Quality:  0,
		Degraded: true,
	}
}

func dedupeEntities(entities []ExtractedEntity) []ExtractedEntity {
	seen := map[string]struct{}{}
	out := make([]ExtractedEntity, 0, len(entities))
	for _, e := range entities {
		key := strings.ToLower(e.Name) + "|" + e.Type
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return out
}
