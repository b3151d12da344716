package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	googleauth "esign-backend/internal/auth"
	"esign-backend/internal/documents"
	"esign-backend/internal/notify"
	"esign-backend/internal/queue"
	"esign-backend/internal/services/health"
	"esign-backend/internal/shared/config"
	"esign-backend/internal/shared/server"
	"esign-backend/internal/shared/storage/db"
	"esign-backend/internal/shared/storage/object"
	localstore "esign-backend/internal/shared/storage/object/local"
	s3store "esign-backend/internal/shared/storage/object/s3"
	"esign-backend/internal/shared/telemetry"
	"esign-backend/internal/usage"
	"esign-backend/internal/users"
	"esign-backend/internal/workflow"
)

const defaultRegion = "us-east-1"

// App holds shared dependencies and the wired router.
type App struct {
	Config           config.Config
	Router           *gin.Engine
	DB               *sql.DB
	Store            object.ObjectStore
	Notifier         notify.Notifier
	DocumentsRepo    documents.Repo
	UsersRepo        users.Repo
	DocumentsService *documents.Service
	WorkflowService  *workflow.Service
	UsageService     *usage.Service
	UsersService     *users.Service
}

// Build prepares every dependency and mounts the HTTP routes.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.AWSRegion) == "" {
		cfg.AWSRegion = defaultRegion
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store, err := BuildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	notifier, err := buildNotifier(ctx, cfg, store)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, DB: sqlDB, Store: store, Notifier: notifier}
	buildServices(app)

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          cfg,
		DocumentHandler: documents.NewHandler(app.DocumentsService),
		WorkflowHandler: workflow.NewHandler(app.WorkflowService),
		UsageHandler:    usage.NewHandler(app.UsageService, cfg.BillingWebhookSecret),
		UserHandler:     users.NewHandler(app.UsersService),
		GoogleAuth: googleauth.NewGoogleService(
			cfg.GoogleClientID,
			cfg.GoogleClientSecret,
			cfg.GoogleRedirectURL,
			cfg.UIRedirectURL,
			app.UsersService,
		),
		Health: health.NewService(sqlDB),
	})
	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_repositories", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	if db.IsLambdaRuntime() {
		sqlDB, err = db.GetSingleton(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultLambdaOptions()))
	} else {
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
	}
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_repositories", map[string]any{"reason": "database connect failed", "error": err})
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

// BuildStore returns the configured object store.
func BuildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

// buildNotifier picks how the API hands off notifications: logged, sent
// directly through SES or queued for the worker.
func buildNotifier(ctx context.Context, cfg config.Config, store object.ObjectStore) (notify.Notifier, error) {
	switch cfg.NotifyMode {
	case "ses":
		return notify.NewSESNotifier(ctx, cfg.AWSRegion, cfg.SESFromAddress, store)
	case "queue":
		client, err := queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.NotifyQueueURL)
		if err != nil {
			return nil, err
		}
		return &notify.QueueNotifier{Client: client}, nil
	default:
		return notify.LogNotifier{}, nil
	}
}

// BuildDeliveryNotifier returns the notifier the worker delivers with. Without
// a sender address it falls back to logging.
func BuildDeliveryNotifier(ctx context.Context, cfg config.Config, store object.ObjectStore) (notify.Notifier, error) {
	if strings.TrimSpace(cfg.SESFromAddress) == "" {
		telemetry.Warn("bootstrap.delivery_logged", map[string]any{"reason": "SES_FROM_ADDRESS empty"})
		return notify.LogNotifier{}, nil
	}
	region := cfg.AWSRegion
	if strings.TrimSpace(region) == "" {
		region = defaultRegion
	}
	return notify.NewSESNotifier(ctx, region, cfg.SESFromAddress, store)
}

func buildServices(app *App) {
	var (
		docRepo    documents.Repo
		userRepo   users.Repo
		usageStore usage.Store
	)
	if app.DB != nil {
		docRepo = &documents.PGRepo{DB: app.DB}
		userRepo = &users.PGRepo{DB: app.DB}
		usageStore = usage.NewPGStore(app.DB, app.Config.FreeSignatures)
	} else {
		docRepo = documents.NewMemoryRepo()
		userRepo = users.NewMemoryRepo()
		usageStore = usage.NewMemoryStore(app.Config.FreeSignatures)
	}

	userSvc := users.NewService(userRepo)
	usageSvc := usage.NewService(usageStore, nil)

	app.DocumentsRepo = docRepo
	app.UsersRepo = userRepo
	app.UsersService = userSvc
	app.UsageService = usageSvc
	app.DocumentsService = &documents.Service{
		Store:          app.Store,
		Repo:           docRepo,
		MaxUploadBytes: app.Config.MaxUploadBytes,
	}
	app.WorkflowService = workflow.New(docRepo, app.Store, usageSvc, app.Notifier, userSvc, app.Config.PublicBaseURL)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
