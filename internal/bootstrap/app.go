// Package bootstrap builds the application dependency graph: database,
// object store, LLM client, services, handlers, and the HTTP router.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"docquality-backend/internal/llm"
	openai "docquality-backend/internal/llm/openai"
	"docquality-backend/internal/scans"
	"docquality-backend/internal/scoring"
	"docquality-backend/internal/shared/config"
	"docquality-backend/internal/shared/server"
	"docquality-backend/internal/shared/storage/db"
	"docquality-backend/internal/shared/storage/object"
	localstore "docquality-backend/internal/shared/storage/object/local"
	s3store "docquality-backend/internal/shared/storage/object/s3"
)

// App holds shared dependencies.
type App struct {
	Config      config.Config
	Router      *gin.Engine
	DB          *sql.DB
	Store       object.ObjectStore
	ScansRepo   scans.Repo
	ScanService *scans.Service
	ScanHandler *scans.Handler
}

// Build prepares shared dependencies and wires the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
	}
	if err := buildServices(app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:      app.Config,
		ScanHandler: app.ScanHandler,
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.AWSRegion) == "" || strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires AWS_REGION and S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildServices(app *App) error {
	var repo scans.Repo
	if app.DB != nil {
		repo = &scans.PGRepo{DB: app.DB}
	} else {
		repo = scans.NewMemoryRepo()
	}

	llmClient := llm.Client(llm.PlaceholderClient{})
	var embedder llm.Embedder
	var models llm.ModelLister
	apiKey := os.Getenv("OPENAI_API_KEY")
	if app.Config.LLMProvider == "openai" && apiKey != "" {
		client, err := openai.NewClient(apiKey, app.Config.LLMModel, app.Config.EmbeddingModel)
		if err != nil {
			return err
		}
		llmClient = client
		embedder = client
		models = client
	} else if app.Config.LLMProvider == "openai" {
		log.Printf("bootstrap: OPENAI_API_KEY empty; using placeholder LLM client")
	}

	scorer := scoring.New(scoring.Options{
		TimelinessHorizon:  app.Config.TimelinessHorizon,
		KeepBoundary:       app.Config.KeepBoundary,
		ReviewBoundary:     app.Config.ReviewBoundary,
		QuarantineBoundary: app.Config.QuarantineBoundary,
	})

	scanSvc := &scans.Service{
		Repo:               repo,
		Store:              app.Store,
		LLM:                llmClient,
		Embedder:           embedder,
		Scorer:             scorer,
		Provider:           app.Config.LLMProvider,
		Model:              app.Config.LLMModel,
		Bucket:             app.Config.S3Bucket,
		Concurrency:        app.Config.AnalysisConcurrency,
		Retries:            app.Config.AnalysisRetries,
		RetryBaseDelay:     app.Config.RetryBaseDelay,
		GateThreshold:      app.Config.GateThreshold,
		DuplicateThreshold: app.Config.DuplicateThreshold,
	}

	app.ScansRepo = repo
	app.ScanService = scanSvc
	app.ScanHandler = scans.NewHandler(scanSvc, app.Store, models)
	return nil
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
