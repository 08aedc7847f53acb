// Package enrich matches new context against existing tasks and proposes
// field-level updates. Matching is entity and keyword overlap, not full-text
// search, and emits at most one operation per (task, context) pair.
package enrich

import (
	"fmt"
	"strings"
	"time"

	"github.com/contextiq/contextiq/internal/domain"
)

// DefaultMatchThreshold is the overlap score a task must reach before an
// enrichment is proposed for it.
const DefaultMatchThreshold = 0.5

// Engine proposes enrichment operations for existing tasks.
type Engine struct {
	matchThreshold float64
}

// NewEngine creates a new Engine instance with the default match threshold.
func NewEngine() *Engine {
	return NewEngineWithThreshold(DefaultMatchThreshold)
}

// NewEngineWithThreshold creates a new Engine instance with a custom match
// threshold.
func NewEngineWithThreshold(threshold float64) *Engine {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultMatchThreshold
	}
	return &Engine{matchThreshold: threshold}
}

// Propose inspects a bounded window of recent tasks and returns enrichment
// operations for those the context plausibly refers to. Each operation
// carries field diffs (deadline, status, or an added note), a confidence
// equal to the overlap score, and a reasoning line.
func (e *Engine) Propose(item *domain.ContextItem, entityNames []string, tasks []*domain.Task) []*domain.EnrichmentOperation {
	if item == nil || len(tasks) == 0 {
		return nil
	}

	var ops []*domain.EnrichmentOperation
	seen := map[string]struct{}{}

	for _, task := range tasks {
		if task == nil {
			continue
		}
		if _, done := seen[task.ID]; done {
			continue
		}
		seen[task.ID] = struct{}{}

		score, overlaps := overlapScore(task, item.RawText, entityNames)
		if score < e.matchThreshold {
			continue
		}

		diffs := e.buildDiffs(task, item)
		if len(diffs) == 0 {
			continue
		}

		ops = append(ops, &domain.EnrichmentOperation{
			TargetTaskID:  task.ID,
			ContextItemID: item.ID,
			Diffs:         diffs,
			Confidence:    score,
			Reasoning: fmt.Sprintf("context overlaps task %q on %s (score %.2f)",
				task.Title, strings.Join(overlaps, ", "), score),
		})
	}

	return ops
}

// overlapScore measures how strongly the context refers to the task: the
// share of the task title's significant words found in the context text or
// the extracted entity names.
func overlapScore(task *domain.Task, text string, entityNames []string) (float64, []string) {
	tokens := significantWords(task.Title)
	if len(tokens) == 0 {
		return 0, nil
	}

	haystack := strings.ToLower(text)
	for _, n := range entityNames {
		haystack += " " + strings.ToLower(n)
	}

	var overlaps []string
	for _, tok := range tokens {
		if strings.Contains(haystack, tok) {
			overlaps = append(overlaps, tok)
		}
	}

	return float64(len(overlaps)) / float64(len(tokens)), overlaps
}

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "to": {}, "for": {}, "of": {}, "and": {},
	"in": {}, "on": {}, "with": {}, "by": {}, "at": {}, "is": {}, "be": {},
}

func significantWords(s string) []string {
	var out []string
	for _, f := range strings.Fields(strings.ToLower(s)) {
		f = strings.Trim(f, ".,!?:;\"'()")
		if len(f) < 3 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}

// buildDiffs derives the concrete field changes the context supports. When
// the text carries no deadline or status signal, the context still lands on
// the task as a note.
func (e *Engine) buildDiffs(task *domain.Task, item *domain.ContextItem) []domain.FieldDiff {
	var diffs []domain.FieldDiff

	if deadline, _ := DetectDeadline(item.RawText, item.CreatedAt); deadline != nil {
		old := ""
		if task.Deadline != nil {
			old = task.Deadline.Format("2006-01-02")
		}
		newValue := deadline.Format("2006-01-02")
		if old != newValue {
			diffs = append(diffs, domain.FieldDiff{
				Field:    "deadline",
				OldValue: old,
				NewValue: newValue,
			})
		}
	}

	if status := DetectStatus(item.RawText); status != "" && status != task.Status {
		diffs = append(diffs, domain.FieldDiff{
			Field:    "status",
			OldValue: string(task.Status),
			NewValue: string(status),
		})
	}

	if len(diffs) == 0 {
		diffs = append(diffs, domain.FieldDiff{
			Field:    "note",
			NewValue: snippet(item.RawText, 200),
		})
	}

	return diffs
}

var weekdays = []struct {
	name string
	day  time.Weekday
}{
	{"monday", time.Monday},
	{"tuesday", time.Tuesday},
	{"wednesday", time.Wednesday},
	{"thursday", time.Thursday},
	{"friday", time.Friday},
	{"saturday", time.Saturday},
	{"sunday", time.Sunday},
}

// DetectDeadline finds a deadline phrase in the text and resolves it to a
// date relative to the reference time. Returns nil when the text carries no
// deadline signal.
func DetectDeadline(text string, ref time.Time) (*time.Time, string) {
	lower := strings.ToLower(text)

	if strings.Contains(lower, "tomorrow") {
		d := ref.AddDate(0, 0, 1)
		return &d, "tomorrow"
	}
	if strings.Contains(lower, "next week") {
		d := ref.AddDate(0, 0, 7)
		return &d, "next week"
	}
	if strings.Contains(lower, "end of the week") || strings.Contains(lower, "end of week") {
		d := nextWeekday(ref, time.Friday)
		return &d, "end of the week"
	}

	// First weekday mentioned in the text wins.
	bestIdx := -1
	var bestDay time.Weekday
	bestName := ""
	for _, w := range weekdays {
		if idx := strings.Index(lower, w.name); idx >= 0 && (bestIdx < 0 || idx < bestIdx) {
			bestIdx, bestDay, bestName = idx, w.day, w.name
		}
	}
	if bestIdx >= 0 {
		d := nextWeekday(ref, bestDay)
		return &d, bestName
	}

	return nil, ""
}

// nextWeekday returns the next occurrence of the weekday strictly after or
// on the reference day.
func nextWeekday(ref time.Time, day time.Weekday) time.Time {
	offset := (int(day) - int(ref.Weekday()) + 7) % 7
	if offset == 0 {
		offset = 7
	}
	return ref.AddDate(0, 0, offset)
}

var doneMarkers = []string{"is done", "was completed", "completed", "finished", "shipped", "wrapped up"}

var blockedMarkers = []string{"blocked", "waiting on", "on hold", "stuck"}

// DetectStatus maps completion or blockage language to a task status.
// Returns the empty string when the text carries no status signal.
func DetectStatus(text string) domain.TaskStatus {
	lower := strings.ToLower(text)
	for _, m := range blockedMarkers {
		if strings.Contains(lower, m) {
			return domain.TaskStatusBlocked
		}
	}
	for _, m := range doneMarkers {
		if strings.Contains(lower, m) {
			return domain.TaskStatusDone
		}
	}
	return ""
}

func snippet(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
