// Package relevance scores task proposals against a user profile. Scoring
// is a deterministic rule ladder, never a model call, so identical inputs
// always produce identical scores.
package relevance

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/contextiq/contextiq/internal/domain"
)

// DefaultKeepThreshold is the keep-threshold when not configured. It is a
// tunable knob, not a constant of nature: raising it toward 70 trades
// recall for precision and starts dropping collaborative tasks.
const DefaultKeepThreshold = 50

// Score bands for the rule ladder.
const (
	scoreDirectName    = 100
	scoreProjectMarket = 85
	scoreTeamContext   = 65
	scoreCollaborative = 55
	scoreThirdParty    = 15
	scoreNoSignal      = 40
)

// Input is everything one scoring decision may consider.
type Input struct {
	Proposal    *domain.TaskProposal
	Profile     *domain.UserProfile
	ContextText string
	// People are the PERSON entities extracted from the context, used to
	// spot tasks addressed to somebody else entirely.
	People []string
}

// Verdict is one scored proposal with the rule that fired.
type Verdict struct {
	Score  int
	Reason string
}

var teamMarkers = []string{"team", "everyone", "all hands", "the group", "our side"}

var collaborativeMarkers = []string{"help", "together", "with you", "loop in", "sync", "your input", "can you"}

// ScoreProposal walks the rule ladder top down and returns the first band
// that fires.
func ScoreProposal(in Input) Verdict {
	text := strings.ToLower(in.Proposal.Title + " " + in.Proposal.Description + " " + in.ContextText)

	if in.Profile != nil {
		for _, name := range in.Profile.Names() {
			if containsWord(text, name) {
				return Verdict{Score: scoreDirectName, Reason: fmt.Sprintf("directly names the user as %q", name)}
			}
		}
		for _, project := range in.Profile.Projects {
			if containsWord(text, project) {
				return Verdict{Score: scoreProjectMarket, Reason: fmt.Sprintf("mentions tracked project %q", project)}
			}
		}
		for _, market := range in.Profile.Markets {
			if containsWord(text, market) {
				return Verdict{Score: scoreProjectMarket, Reason: fmt.Sprintf("mentions tracked market %q", market)}
			}
		}
	}

	for _, marker := range teamMarkers {
		if strings.Contains(text, marker) {
			return Verdict{Score: scoreTeamContext, Reason: "team-level context"}
		}
	}

	if addressedToThirdParty(in) {
		return Verdict{Score: scoreThirdParty, Reason: "addressed to a third party"}
	}

	for _, marker := range collaborativeMarkers {
		if strings.Contains(text, marker) {
			return Verdict{Score: scoreCollaborative, Reason: "collaborative language referencing the user indirectly"}
		}
	}

	return Verdict{Score: scoreNoSignal, Reason: "no relevance signal"}
}

// addressedToThirdParty holds when people are named and none of them is
// the user.
func addressedToThirdParty(in Input) bool {
	if len(in.People) == 0 || in.Profile == nil {
		return false
	}
	for _, person := range in.People {
		if in.Profile.MatchesName(person) {
			return false
		}
	}
	return true
}

// Filter applies the keep-threshold to scored proposals.
type Filter struct {
	threshold int
}

// NewFilter creates a Filter with the given keep-threshold. Non-positive
// values fall back to the default.
func NewFilter(threshold int) *Filter {
	if threshold <= 0 {
		threshold = DefaultKeepThreshold
	}
	return &Filter{threshold: threshold}
}

// Threshold returns the active keep-threshold.
func (f *Filter) Threshold() int {
	return f.threshold
}

// Apply scores every proposal and keeps those at or above the threshold.
// The relevance score is written onto each proposal; no other field is
// touched. Dropped proposals come back with their verdicts for the trace.
func (f *Filter) Apply(proposals []*domain.TaskProposal, profile *domain.UserProfile, contextText string, people []string) (kept []*domain.TaskProposal, dropped []Verdict) {
	for _, p := range proposals {
		verdict := ScoreProposal(Input{
			Proposal:    p,
			Profile:     profile,
			ContextText: contextText,
			People:      people,
		})
		p.RelevanceScore = verdict.Score

		if verdict.Score >= f.threshold {
			kept = append(kept, p)
		} else {
			dropped = append(dropped, verdict)
		}
	}
	return kept, dropped
}

// containsWord reports whether needle occurs in haystack on word
// boundaries. Both sides are compared lowercased; needle may span several
// words.
func containsWord(haystack, needle string) bool {
	needle = strings.ToLower(strings.TrimSpace(needle))
	if needle == "" {
		return false
	}

	for start := 0; ; {
		idx := strings.Index(haystack[start:], needle)
		if idx < 0 {
			return false
		}
		idx += start

		end := idx + len(needle)
		before, _ := utf8.DecodeLastRuneInString(haystack[:idx])
		after, _ := utf8.DecodeRuneInString(haystack[end:])
		beforeOK := idx == 0 || !isWordRune(before)
		afterOK := end >= len(haystack) || !isWordRune(after)
		if beforeOK && afterOK {
			return true
		}
		start = idx + 1
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r)
}
