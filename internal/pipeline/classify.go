package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/contextiq/contextiq/internal/genai"
)

const classifySystemPrompt = `You classify one piece of workplace context.
Respond with JSON only, matching this schema exactly:
{"kind":"question"} or {"kind":"statement"}
"question" means the user is asking something and expects an answer.
"statement" means the text reports or requests work.`

type classificationPayload struct {
	Kind string `json:"kind"`
}

// classify decides whether the input asks a question or reports work. The
// generation call is advisory; a keyword heuristic covers every failure.
func (o *Orchestrator) classify(ctx context.Context, text string) Kind {
	if o.deps.Gen != nil {
		resp, err := o.deps.Gen.Generate(ctx, genai.Request{
			System: classifySystemPrompt,
			Prompt: "Text:\n" + text,
			Schema: "classification",
		})
		if err == nil {
			var payload classificationPayload
			if decodeErr := genai.DecodeStrict(resp.Content, &payload); decodeErr == nil {
				switch Kind(payload.Kind) {
				case KindQuestion, KindStatement:
					return Kind(payload.Kind)
				}
			}
		} else {
			log.Printf("pipeline: classification generation failed, using heuristic: %v", err)
		}
	}
	return classifyHeuristic(text)
}

var interrogatives = []string{"who ", "what ", "when ", "where ", "why ", "how ", "which ", "is there", "are there", "do we", "does ", "can someone", "anyone know"}

// classifyHeuristic is the deterministic fallback classifier.
func classifyHeuristic(text string) Kind {
	trimmed := strings.ToLower(strings.TrimSpace(text))
	if strings.HasSuffix(trimmed, "?") {
		return KindQuestion
	}
	for _, prefix := range interrogatives {
		if strings.HasPrefix(trimmed, prefix) {
			return KindQuestion
		}
	}
	return KindStatement
}

const answerSystemPrompt = `You answer a question using only the supplied knowledge-graph facts.
If the facts do not cover the question, say you do not know. Answer in plain prose, two sentences at most.`

// answerQuestion resolves a question against the knowledge graph: entities
// named in the question are looked up and their edges become the fact
// sheet for a single generation call.
func (o *Orchestrator) answerQuestion(ctx context.Context, st *State) {
	facts := o.collectFacts(ctx, st.Item.RawText)
	if len(facts) == 0 {
		st.Answer = "I don't have any recorded context about that yet."
		st.Tracef("answer: no matching entities in the graph")
		return
	}
	st.Tracef("answer: %d graph facts collected", len(facts))

	if o.deps.Gen != nil {
		resp, err := o.deps.Gen.Generate(ctx, genai.Request{
			System: answerSystemPrompt,
			Prompt: fmt.Sprintf("Facts:\n%s\n\nQuestion:\n%s", strings.Join(facts, "\n"), st.Item.RawText),
		})
		if err == nil && strings.TrimSpace(resp.Content) != "" {
			st.Answer = strings.TrimSpace(resp.Content)
			return
		}
		log.Printf("pipeline: answer generation failed, returning facts directly: %v", err)
	}

	st.Answer = "Here is what I have recorded: " + strings.Join(facts, "; ")
}

// collectFacts matches question words against canonical entities and
// renders their relationships as fact lines.
func (o *Orchestrator) collectFacts(ctx context.Context, question string) []string {
	entities, err := o.deps.Graph.ListEntities(ctx, "")
	if err != nil {
		log.Printf("pipeline: failed to list entities for answering: %v", err)
		return nil
	}

	lower := strings.ToLower(question)
	var facts []string
	for _, e := range entities {
		if !mentionsEntity(lower, e.CanonicalName, e.Aliases) {
			continue
		}
		facts = append(facts, fmt.Sprintf("%s (%s, mentioned %d times)", e.CanonicalName, e.Type, e.MentionCount))

		views, err := o.deps.Graph.EntityRelationships(ctx, e.ID)
		if err != nil {
			continue
		}
		for _, v := range views {
			facts = append(facts, fmt.Sprintf("%s %s %s (strength %.2f)", v.SubjectID, v.Predicate, v.ObjectID, v.CurrentStrength))
		}
	}
	return facts
}

func mentionsEntity(lowerText, name string, aliases []string) bool {
	if strings.Contains(lowerText, strings.ToLower(name)) {
		return true
	}
	for _, a := range aliases {
		if strings.Contains(lowerText, strings.ToLower(a)) {
			return true
		}
	}
	return false
}

const questionSystemPrompt = `You write at most three short clarifying questions that would make a vague work request actionable.
Respond with JSON only, matching this schema exactly:
{"questions":["..."]}`

type questionsPayload struct {
	Questions []string `json:"questions"`
}

// clarifyingQuestions produces the questions attached to a CLARIFY
// decision. Template questions cover generation failure.
func (o *Orchestrator) clarifyingQuestions(ctx context.Context, st *State) []string {
	if o.deps.Gen != nil {
		resp, err := o.deps.Gen.Generate(ctx, genai.Request{
			System: questionSystemPrompt,
			Prompt: "Text:\n" + st.Item.RawText,
			Schema: "clarifying_questions",
		})
		if err == nil {
			var payload questionsPayload
			if decodeErr := genai.DecodeStrict(resp.Content, &payload); decodeErr == nil && len(payload.Questions) > 0 {
				if len(payload.Questions) > 3 {
					payload.Questions = payload.Questions[:3]
				}
				return payload.Questions
			}
		} else {
			log.Printf("pipeline: question generation failed, using templates: %v", err)
		}
	}
	return templateQuestions(st)
}

// templateQuestions derives questions from what the run could not find.
func templateQuestions(st *State) []string {
	var questions []string
	if len(st.People) == 0 {
		questions = append(questions, "Who should own this?")
	}
	if deadline, _ := detectDeadline(st); deadline == nil {
		questions = append(questions, "Is there a deadline for this?")
	}
	questions = append(questions, "Can you add more detail about what needs to happen?")
	return questions
}
