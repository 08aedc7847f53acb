package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/contextiq/contextiq/internal/config"
	"github.com/contextiq/contextiq/internal/database"
	"github.com/contextiq/contextiq/internal/graph"
	"github.com/contextiq/contextiq/internal/repository"
)

// DecayCmd returns the decay command
func DecayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decay",
		Short: "Run one decay sweep over the knowledge graph",
		Long:  "Recomputes decayed strengths for every relationship and marks edges below the stale threshold",
		RunE:  runDecay,
	}
}

// PruneCmd returns the prune command
func PruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete stale relationships",
		Long:  "Permanently removes relationships previously marked stale by a decay sweep",
		RunE:  runPrune,
	}
}

func openStore(ctx context.Context, cfg *config.Config) (*graph.Store, *pgxpool.Pool, error) {
	pool, err := database.NewPool(ctx, database.Config{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DatabaseMaxConns,
		MinConns: cfg.DatabaseMinConns,
	})
	if err != nil {
		return nil, nil, err
	}

	store := graph.NewStoreWithEmbedder(
		repository.NewEntityRepository(pool),
		repository.NewRelationshipRepository(pool),
		nil, nil,
		graph.Options{
			DedupThreshold: cfg.DedupThreshold,
			HalfLifeDays:   cfg.DecayHalfLife,
			StaleThreshold: cfg.StaleThreshold,
		},
	)
	return store, pool, nil
}

func runDecay(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, pool, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	report, err := store.TriggerDecay(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("decay sweep failed: %w", err)
	}

	fmt.Printf("examined %d relationships, marked %d stale (%d stale total)\n",
		report.Examined, report.MarkedStale, report.TotalStale)
	return nil
}

func runPrune(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, pool, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	pruned, err := store.PruneStale(ctx)
	if err != nil {
		return fmt.Errorf("prune failed: %w", err)
	}

	fmt.Printf("pruned %d stale relationships\n", pruned)
	return nil
}
