package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/contextiq/contextiq/internal/graph"
)

// DefaultDecayInterval is how often edge decay is evaluated. Decay is a
// pure function of last-seen, so running it more often changes nothing.
const DefaultDecayInterval = 1 * time.Hour

// GraphDecayer is the slice of the graph store the decay job needs.
type GraphDecayer interface {
	TriggerDecay(ctx context.Context, now time.Time) (*graph.DecayReport, error)
	PruneStale(ctx context.Context) (int64, error)
}

// DecayProcessor re-evaluates relationship decay on each run and
// optionally prunes edges that have gone stale.
type DecayProcessor struct {
	store GraphDecayer
	prune bool
}

// NewDecayProcessor creates a new DecayProcessor instance
func NewDecayProcessor(store GraphDecayer, prune bool) *DecayProcessor {
	return &DecayProcessor{store: store, prune: prune}
}

func (p *DecayProcessor) Process(ctx context.Context) error {
	report, err := p.store.TriggerDecay(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to run decay pass: %w", err)
	}
	log.Printf("decay pass: %d edges examined, %d newly stale, %d stale total",
		report.Examined, report.MarkedStale, report.TotalStale)

	if p.prune && report.TotalStale > 0 {
		pruned, err := p.store.PruneStale(ctx)
		if err != nil {
			return fmt.Errorf("failed to prune stale edges: %w", err)
		}
		log.Printf("decay pass: %d stale edges pruned", pruned)
	}
	return nil
}
