package agents

import (
	"fmt"
	"strings"

	"github.com/contextiq/contextiq/internal/analyzer"
	"github.com/contextiq/contextiq/internal/domain"
)

const extractionSystemPrompt = `You extract named entities from workplace context.
Respond with JSON only, matching this schema exactly:
{"entities":[{"name":"...","type":"..."}]}
Valid types: PERSON, PROJECT, TEAM, DATE, TOPIC.
Do not add fields. Do not add commentary.`

const synthesisSystemPrompt = `You infer relationships between known entities mentioned in workplace context.
Respond with JSON only, matching this schema exactly:
{"relationships":[{"subject":"...","predicate":"...","object":"..."}]}
Valid predicates: WORKS_ON, COMMUNICATES_WITH, HAS_DEADLINE, MEMBER_OF, RELATES_TO.
Subject and object must be names from the provided entity list. Do not invent entities.`

// extractionPrompt builds the user prompt for one extraction attempt.
// Depth scales with the strategy; a failure reason from the previous
// attempt is appended so the model can correct itself.
func extractionPrompt(text string, strategy analyzer.Strategy, failureReason string) string {
	var b strings.Builder

	switch strategy {
	case analyzer.StrategyDetailed:
		b.WriteString("Extract every person, project, team, date, and topic from the text below. ")
		b.WriteString("Read the whole conversation carefully: include entities mentioned only once, ")
		b.WriteString("resolve partial names to their fullest form in the text, and prefer specific types over TOPIC.\n\n")
	case analyzer.StrategyModerate:
		b.WriteString("Extract the people, projects, teams, dates, and topics from the text below. ")
		b.WriteString("Prefer specific types over TOPIC.\n\n")
	default:
		b.WriteString("Extract the named entities from the short note below.\n\n")
	}

	b.WriteString("Text:\n")
	b.WriteString(text)

	if failureReason != "" {
		b.WriteString("\n\nYour previous answer was rejected: ")
		b.WriteString(failureReason)
		b.WriteString("\nFix these problems and answer again.")
	}

	return b.String()
}

// synthesisPrompt builds the single-shot relationship prompt over the
// extracted entity list.
func synthesisPrompt(text string, entities []ExtractedEntity) string {
	var b strings.Builder

	b.WriteString("Known entities:\n")
	for _, e := range entities {
		fmt.Fprintf(&b, "- %s (%s)\n", e.Name, e.Type)
	}

	b.WriteString("\nInfer the relationships the text supports between these entities. ")
	b.WriteString("Use " + string(domain.PredicateRelatesTo) + " only when no stronger predicate applies.\n\n")
	b.WriteString("Text:\n")
	b.WriteString(text)

	return b.String()
}
