package domain

import (
	"fmt"
	"math"
	"time"
)

// Predicate is the closed set of relationship kinds between entities.
type Predicate string

const (
	PredicateWorksOn          Predicate = "WORKS_ON"
	PredicateCommunicatesWith Predicate = "COMMUNICATES_WITH"
	PredicateHasDeadline      Predicate = "HAS_DEADLINE"
	PredicateMemberOf         Predicate = "MEMBER_OF"
	PredicateRelatesTo        Predicate = "RELATES_TO"
)

const (
	// InitialStrength is the strength assigned to a newly observed edge.
	InitialStrength = 0.5
	// ReinforceStep is added to an edge's strength on each re-observation.
	ReinforceStep = 0.1
	// DefaultHalfLifeDays is the decay half-life when not configured.
	DefaultHalfLifeDays = 90.0
	// DefaultStaleThreshold is the strength below which an edge is stale.
	DefaultStaleThreshold = 0.1
)

// Relationship is a directed, typed edge between two canonical entities.
// Strength only moves up through reinforcement and down through decay,
// and never goes negative.
type Relationship struct {
	ID           string
	SubjectID    string
	Predicate    Predicate
	ObjectID     string
	Strength     float64
	MentionCount int
	FirstSeen    time.Time
	LastSeen     time.Time
	Stale        bool
}

// NewRelationship creates an edge from its first observation.
func NewRelationship(id, subjectID string, predicate Predicate, objectID string, seenAt time.Time) *Relationship {
	return &Relationship{
		ID:           id,
		SubjectID:    subjectID,
		Predicate:    predicate,
		ObjectID:     objectID,
		Strength:     InitialStrength,
		MentionCount: 1,
		FirstSeen:    seenAt,
		LastSeen:     seenAt,
	}
}

// Reinforce registers a re-observation of the edge: strength moves up by
// ReinforceStep (capped at 1), mention count and last-seen advance.
func (r *Relationship) Reinforce(seenAt time.Time) {
	r.Strength = math.Min(1.0, r.Strength+ReinforceStep)
	r.MentionCount++
	r.Stale = false
	if seenAt.After(r.LastSeen) {
		r.LastSeen = seenAt
	}
}

// DecayedStrength returns the edge strength after exponential decay as of
// the given instant: strength * 0.5^(days_since_last_seen / halfLifeDays).
// The computation is a pure function of last-seen, so applying it repeatedly
// at the same instant is idempotent.
func (r *Relationship) DecayedStrength(now time.Time, halfLifeDays float64) float64 {
	if halfLifeDays <= 0 {
		halfLifeDays = DefaultHalfLifeDays
	}
	days := now.Sub(r.LastSeen).Hours() / 24
	if days <= 0 {
		return r.Strength
	}
	return r.Strength * math.Pow(0.5, days/halfLifeDays)
}

// ValidateRelationship validates a Relationship instance.
func ValidateRelationship(r *Relationship) error {
	if r == nil {
		return fmt.Errorf("relationship cannot be nil")
	}

	if r.ID == "" {
		return fmt.Errorf("relationship ID is required")
	}

	if r.SubjectID == "" || r.ObjectID == "" {
		return fmt.Errorf("relationship SubjectID and ObjectID are required")
	}

	if !IsValidPredicate(r.Predicate) {
		return fmt.Errorf("relationship Predicate is invalid: %s", r.Predicate)
	}

	if r.Strength < 0 || r.Strength > 1 {
		return fmt.Errorf("relationship Strength must be within [0,1]: %f", r.Strength)
	}

	return nil
}

// IsValidPredicate checks if a Predicate belongs to the closed set.
func IsValidPredicate(p Predicate) bool {
	switch p {
	case PredicateWorksOn, PredicateCommunicatesWith, PredicateHasDeadline,
		PredicateMemberOf, PredicateRelatesTo:
		return true
	}
	return false
}
