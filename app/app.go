// Package app wires the case service from configuration for the server and
// the operator commands.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"voicelegal-backend/classifier"
	"voicelegal-backend/clients"
	"voicelegal-backend/config"
	"voicelegal-backend/document"
	"voicelegal-backend/logging"
	"voicelegal-backend/notify"
	"voicelegal-backend/repository"
	"voicelegal-backend/service"
	"voicelegal-backend/storage"

	"github.com/google/generative-ai-go/genai"
	"github.com/jackc/pgx/v5/pgxpool"
)

// App holds the long-lived dependencies of a process
type App struct {
	Config   config.Config
	DB       *pgxpool.Pool
	Storage  storage.Storage
	Registry *classifier.Registry
	Cases    *service.CaseService
	Runner   *service.DocumentRunner

	gemini *genai.Client
	logger *slog.Logger
}

// New connects to the database, loads the case-type registry and builds the
// case service. Background document runs use ctx.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{Config: cfg, logger: logging.New("app")}

	db, err := initPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Postgres: %w", err)
	}
	a.DB = db

	a.Storage, err = storage.NewStorage(cfg.Storage)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.logger.Info("storage initialized", slog.String("type", string(cfg.Storage.Type)))

	caseRepo := repository.NewCaseRepository(db)
	caseTypeRepo := repository.NewCaseTypeRepository(db)
	logRepo := repository.NewProcessingLogRepository(db)
	docRepo := repository.NewDocumentRepository(db)
	userRepo := repository.NewUserRepository(db)

	a.Registry = classifier.NewRegistry(caseTypeRepo)
	if snap, err := a.Registry.Refresh(ctx); err != nil {
		a.logger.Warn("case type registry not loaded, detection will abstain", slog.Any("error", err))
	} else {
		a.logger.Info("case type registry loaded", slog.Int("case_types", snap.Len()))
	}

	detectorOpts := []classifier.DetectorOption{
		classifier.WithNormalizationLanguage(cfg.NormalizationLanguage),
		classifier.WithSupportedLanguages(cfg.SupportedLanguages),
		classifier.WithCollaboratorTimeout(cfg.CollaboratorTimeout),
	}
	if cfg.GeminiAPIKey != "" {
		a.gemini, err = clients.NewGeminiClient(ctx, cfg.GeminiAPIKey)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize Gemini: %w", err)
		}
		gen := clients.NewGeminiGenerator(a.gemini, cfg.GeminiModel)
		detectorOpts = append(detectorOpts,
			classifier.WithTranslator(clients.NewTranslator(gen)),
			classifier.WithExternalClassifier(clients.NewClassifier(gen)),
		)
		a.logger.Info("Gemini client initialized", slog.String("model", cfg.GeminiModel))
	} else {
		a.logger.Warn("GEMINI_API_KEY not set, running keyword and similarity detection only")
	}

	var sender notify.Sender
	if cfg.NotificationGatewayURL != "" {
		sender = notify.NewHTTPSender(cfg.NotificationGatewayURL, cfg.NotificationAPIKey)
	}
	notifier := notify.NewService(userRepo,
		notify.WithSender(sender),
		notify.WithFromAddress(cfg.NotificationFromEmail),
		notify.WithTimeout(cfg.CollaboratorTimeout),
	)

	a.Cases = service.NewCaseService(
		service.WithCaseStore(caseRepo),
		service.WithLogStore(logRepo),
		service.WithDocumentStore(docRepo),
		service.WithDetector(classifier.NewDetector(a.Registry, detectorOpts...)),
		service.WithNotifier(notifier),
		service.WithGenerator(document.NewGenerator(a.Storage, document.WithRecorder(docRepo))),
		service.WithBlobStorage(a.Storage),
		service.WithStaleTimeout(cfg.StaleCaseTimeout),
		service.WithRetention(cfg.RetentionPeriod),
		service.WithCollaboratorTimeout(cfg.CollaboratorTimeout),
	)
	a.Runner = service.NewDocumentRunner(ctx, a.Cases,
		service.WithRetryPolicy(service.RetryPolicy{
			MaxAttempts:    cfg.DocumentMaxAttempts,
			InitialBackoff: cfg.DocumentInitialBackoff,
		}))
	a.Cases.SetDocumentScheduler(a.Runner)

	return a, nil
}

// Close waits for queued document runs and releases connections
func (a *App) Close() {
	if a.Runner != nil {
		a.Runner.Wait()
	}
	if a.gemini != nil {
		if err := a.gemini.Close(); err != nil {
			a.logger.Warn("failed to close Gemini client", slog.Any("error", err))
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

func initPostgres(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
