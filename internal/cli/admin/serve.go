package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/contextiq/contextiq/internal/agents"
	"github.com/contextiq/contextiq/internal/api/handlers"
	"github.com/contextiq/contextiq/internal/config"
	"github.com/contextiq/contextiq/internal/database"
	"github.com/contextiq/contextiq/internal/genai"
	"github.com/contextiq/contextiq/internal/graph"
	"github.com/contextiq/contextiq/internal/jobs"
	"github.com/contextiq/contextiq/internal/pipeline"
	"github.com/contextiq/contextiq/internal/relevance"
	"github.com/contextiq/contextiq/internal/repository"
	"github.com/contextiq/contextiq/internal/server"
	"github.com/contextiq/contextiq/internal/storage"
	"github.com/contextiq/contextiq/internal/telemetry"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the contextiq API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().Bool("no-decay", false, "Skip the background decay sweep")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.SentryDSN != "" {
		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if cfg.Environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			TracesSampleRate: sampleRate,
			Debug:            cfg.Debug,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := database.NewPool(ctx, database.Config{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DatabaseMaxConns,
		MinConns: cfg.DatabaseMinConns,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Println("connected to database")

	// Run migrations unless --no-migrate flag is set
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	entityRepo := repository.NewEntityRepository(pool)
	relationshipRepo := repository.NewRelationshipRepository(pool)
	contextRepo := repository.NewContextItemRepository(pool)
	taskRepo := repository.NewTaskRepository(pool)
	commentRepo := repository.NewCommentRepository(pool)
	profileRepo := repository.NewProfileRepository(pool)
	enrichmentRepo := repository.NewEnrichmentRepository(pool)
	embeddingCacheRepo := repository.NewEmbeddingCacheRepository(pool)

	gen, err := buildGateway(cfg)
	if err != nil {
		return err
	}

	var embedder graph.Embedder
	if cfg.HasOpenAI() {
		embedder = genai.NewEmbeddingClient(cfg.OpenAIAPIKey)
	}

	store := graph.NewStoreWithEmbedder(entityRepo, relationshipRepo, embedder, embeddingCacheRepo, graph.Options{
		DedupThreshold: cfg.DedupThreshold,
		HalfLifeDays:   cfg.DecayHalfLife,
		StaleThreshold: cfg.StaleThreshold,
	})

	deps := pipeline.Deps{
		ProfileRepo:    profileRepo,
		ContextRepo:    contextRepo,
		TaskRepo:       taskRepo,
		CommentRepo:    commentRepo,
		EnrichmentRepo: enrichmentRepo,
		Graph:          store,
		Extractor:      agents.NewExtractionAgent(gen),
		Synthesizer:    agents.NewSynthesisAgent(gen),
		Gen:            gen,
		Filter:         relevance.NewFilter(cfg.RelevanceThreshold),
		Timeout:        cfg.PipelineTimeout,
		DefaultUserID:  cfg.DefaultUserID,

		MaxExtractionRetries: cfg.ExtractionRetries,
	}

	if cfg.HasArchive() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("archive bucket '%s' ready", cfg.S3Bucket)
		deps.Archiver = storage.NewContextArchiver(s3Client)
	}

	orchestrator := pipeline.New(deps)

	var decayWorker *jobs.Worker
	noDecay, _ := cmd.Flags().GetBool("no-decay")
	if !noDecay {
		processor := jobs.NewDecayProcessor(store, true)
		decayWorker = jobs.NewWorker("decay", processor, cfg.DecayInterval)
		go decayWorker.Start(ctx)
		log.Println("decay worker started")
	}

	routerCfg := server.RouterConfig{
		IngestHandler: handlers.NewIngestHandler(orchestrator, taskRepo),
		GraphHandler:  handlers.NewGraphHandler(store),
	}

	router := server.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	if decayWorker != nil {
		decayWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

// buildGateway assembles the generation gateway from whichever backends
// are configured. With neither configured the gateway still works: every
// agent degrades to its template path.
func buildGateway(cfg *config.Config) (*genai.Gateway, error) {
	var primary, fallback genai.Backend
	if cfg.HasOpenAI() {
		primary = genai.NewOpenAIBackend(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	}
	if cfg.HasFallback() {
		fallback = genai.NewCompatibleBackend(cfg.FallbackBaseURL, cfg.FallbackAPIKey, cfg.FallbackModel)
	}
	if primary == nil && fallback != nil {
		primary, fallback = fallback, nil
	}
	if primary == nil {
		log.Println("no generation backend configured; agents run in degraded template mode")
	}
	return genai.NewGateway(primary, fallback, cfg.GenerationTimeout), nil
}

func runMigrations(databaseURL string) error {
	// Create a sql.DB connection for golang-migrate
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	// Create postgres driver instance
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	// Create migrate instance with file source
	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	// Run migrations
	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Get migration version and status
	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
