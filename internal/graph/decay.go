package graph

import (
	"context"
	"time"

	"github.com/contextiq/contextiq/internal/telemetry"
)

// DecayReport summarizes one decay pass over the graph.
type DecayReport struct {
	Examined    int       `json:"examined"`
	MarkedStale int       `json:"marked_stale"`
	TotalStale  int       `json:"total_stale"`
	RanAt       time.Time `json:"ran_at"`
}

// TriggerDecay sweeps every relationship, computes its decayed strength as
// of now, and persists the stale flag for edges that fell below the stale
// threshold. Stored strength is untouched; decay is a pure function of
// last-seen, which makes the sweep idempotent at a fixed instant.
func (s *Store) TriggerDecay(ctx context.Context, now time.Time) (*DecayReport, error) {
	ctx, span := telemetry.StartSpan(ctx, "GraphStore.TriggerDecay", telemetry.SpanAttributes{
		Operation: "decay",
	})
	defer span.End()

	rels, err := s.relationshipRepo.List(ctx)
	if err != nil {
		return nil, err
	}

	report := &DecayReport{Examined: len(rels), RanAt: now}
	for _, r := range rels {
		stale := r.DecayedStrength(now, s.opts.HalfLifeDays) < s.opts.StaleThreshold
		if stale {
			report.TotalStale++
		}
		if stale == r.Stale {
			continue
		}
		r.Stale = stale
		if err := s.relationshipRepo.Update(ctx, r); err != nil {
			return nil, err
		}
		if stale {
			report.MarkedStale++
		}
	}

	return report, nil
}

// ListStale returns the edges currently flagged stale, with decayed
// strengths, so a reviewer can inspect before pruning.
func (s *Store) ListStale(ctx context.Context) ([]RelationshipView, error) {
	rels, err := s.relationshipRepo.ListStale(ctx)
	if err != nil {
		return nil, err
	}
	return s.views(rels, time.Now().UTC()), nil
}

// PruneStale deletes every edge flagged stale and returns how many were
// removed. Entities are never pruned; only edges carry decay.
func (s *Store) PruneStale(ctx context.Context) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "GraphStore.PruneStale", telemetry.SpanAttributes{
		Operation: "prune",
	})
	defer span.End()

	return s.relationshipRepo.DeleteStale(ctx)
}
