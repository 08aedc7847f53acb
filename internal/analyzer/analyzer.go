// Package analyzer scores incoming context complexity and selects the
// extraction strategy. Everything here is pure: no I/O, no failures.
package analyzer

import (
	"strings"
	"unicode"

	"github.com/contextiq/contextiq/internal/domain"
)

// Strategy controls extraction prompt depth and the retry budget.
type Strategy string

const (
	StrategySimple   Strategy = "SIMPLE"
	StrategyModerate Strategy = "MODERATE"
	StrategyDetailed Strategy = "DETAILED"
)

// Assessment is the analyzer's verdict on one piece of context.
type Assessment struct {
	Complexity    float64
	Strategy      Strategy
	SentenceCount int
	SpeakerTurns  int
	RetryBudget   int
}

// Band boundaries on the 0..1 complexity score.
const (
	moderateThreshold = 0.35
	detailedThreshold = 0.65
)

// Signal weights. Length dominates; multi-speaker transcripts push toward
// DETAILED even when short.
const (
	lengthWeight   = 0.35
	sentenceWeight = 0.25
	densityWeight  = 0.20
	speakerWeight  = 0.20
)

// Analyze computes a complexity score from weighted signals and maps it to
// a strategy band.
func Analyze(text string, sourceType domain.SourceType) Assessment {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Assessment{Strategy: StrategySimple, RetryBudget: retryBudget(StrategySimple)}
	}

	sentences := countSentences(trimmed)
	turns := countSpeakerTurns(trimmed)

	lengthScore := clamp01(float64(len([]rune(trimmed))) / 800)
	sentenceScore := clamp01(float64(sentences) / 8)
	densityScore := clamp01(properNounDensity(trimmed) * 5)
	speakerScore := clamp01(float64(turns) / 4)

	// Transcripts are conversational by construction.
	if sourceType == domain.SourceTypeTranscript && speakerScore < 0.5 {
		speakerScore = 0.5
	}

	complexity := lengthWeight*lengthScore +
		sentenceWeight*sentenceScore +
		densityWeight*densityScore +
		speakerWeight*speakerScore

	strategy := StrategySimple
	switch {
	case complexity >= detailedThreshold:
		strategy = StrategyDetailed
	case complexity >= moderateThreshold:
		strategy = StrategyModerate
	}

	return Assessment{
		Complexity:    complexity,
		Strategy:      strategy,
		SentenceCount: sentences,
		SpeakerTurns:  turns,
		RetryBudget:   retryBudget(strategy),
	}
}

// retryBudget maps a strategy to the extraction agent's retry allowance.
func retryBudget(s Strategy) int {
	switch s {
	case StrategyDetailed:
		return 2
	case StrategyModerate:
		return 1
	default:
		return 0
	}
}

func countSentences(text string) int {
	count := 0
	for _, r := range text {
		switch r {
		case '.', '!', '?':
			count++
		}
	}
	if count == 0 {
		count = 1
	}
	return count
}

// countSpeakerTurns counts "Name:" style line openings, the shape chat logs
// and transcripts use for turns.
func countSpeakerTurns(text string) int {
	turns := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		idx := strings.Index(line, ":")
		if idx <= 0 || idx > 30 {
			continue
		}
		speaker := line[:idx]
		if speaker == "" || strings.ContainsAny(speaker, " \t") && len(strings.Fields(speaker)) > 3 {
			continue
		}
		if unicode.IsUpper([]rune(speaker)[0]) {
			turns++
		}
	}
	return turns
}

// properNounDensity estimates named-entity density as the share of tokens
// that are capitalized mid-sentence.
func properNounDensity(text string) float64 {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0
	}

	capitalized := 0
	sentenceStart := true
	for _, f := range fields {
		clean := strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if clean == "" {
			continue
		}
		first := []rune(clean)[0]
		if unicode.IsUpper(first) && !sentenceStart {
			capitalized++
		}
		sentenceStart = strings.ContainsAny(f, ".!?")
	}

	return float64(capitalized) / float64(len(fields))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
