package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/YadneshTeli/TaskForge-sub000/config"
	"github.com/YadneshTeli/TaskForge-sub000/handlers"
	"github.com/YadneshTeli/TaskForge-sub000/interfaces"
	"github.com/YadneshTeli/TaskForge-sub000/logging"
	"github.com/YadneshTeli/TaskForge-sub000/middleware"
	"github.com/YadneshTeli/TaskForge-sub000/repositories"
	"github.com/YadneshTeli/TaskForge-sub000/repositories/memstore"
	"github.com/YadneshTeli/TaskForge-sub000/services"
	"github.com/YadneshTeli/TaskForge-sub000/utils"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type analyticsBackend interface {
	interfaces.AnalyticsStore
	interfaces.UserDirectory
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	logging.InitLogger(logging.Options{
		SystemName: "taskforge",
		File:       cfg.Log.File,
		Level:      cfg.Log.Level,
		Stdout:     cfg.Log.Stdout,
		Timezone:   cfg.Log.Timezone,
	})
	logging.Logger.Info("Event ID: SERVICE_START, Description: Starting TaskForge...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		ops       interfaces.OperationalStore
		analytics analyticsBackend
	)
	switch cfg.StoreDriver {
	case config.DriverMemory:
		logging.Logger.Warn("Event ID: MEMORY_STORE, Description: Using in-memory stores; data is lost on exit")
		ops = memstore.NewOperational()
		analytics = memstore.NewAnalytics()
	default:
		client, err := connectMongo(ctx, cfg.Mongo)
		if err != nil {
			logging.Logger.Fatalf("Event ID: DB_CONNECTION_FAILED, Description: %v", err)
		}
		defer func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(dctx)
		}()
		store := repositories.NewMongoStore(client, cfg.Mongo.Database, cfg.Mongo.UseTransactions)
		if err := store.EnsureIndexes(ctx); err != nil {
			logging.Logger.Fatalf("Event ID: DB_INDEX_FAILED, Description: %v", err)
		}
		ops = store

		db, err := repositories.OpenPostgres(cfg.Postgres)
		if err != nil {
			logging.Logger.Fatalf("Event ID: DB_CONNECTION_FAILED, Description: %v", err)
		}
		repo := repositories.NewAnalyticsRepository(db)
		if cfg.Postgres.AutoMigrate {
			if err := repo.Migrate(); err != nil {
				logging.Logger.Fatalf("Event ID: DB_MIGRATION_FAILED, Description: %v", err)
			}
		}
		analytics = repo
	}

	var notificationStore interfaces.NotificationStore = memstore.NewNotifications()
	if cfg.Cassandra.Enabled {
		repo, err := repositories.NewNotificationRepo(cfg.Cassandra)
		if err != nil {
			logging.Logger.Fatalf("Event ID: CASSANDRA_CONNECTION_FAILED, Description: %v", err)
		}
		defer repo.CloseSession()
		if err := repo.CreateTable(); err != nil {
			logging.Logger.Fatalf("Event ID: CASSANDRA_TABLE_FAILED, Description: %v", err)
		}
		notificationStore = repo
	}

	analyticsService := services.NewAnalyticsService(ops, analytics, cfg.Analytics.MaxStaleness)
	notificationService := services.NewNotificationService(notificationStore)
	worker := services.NewSyncWorker(ops, analyticsService, notificationService,
		utils.NewBreaker("analytics-store", cfg.Breaker), cfg.Sync)
	reconciler := services.NewReconciler(ops, analytics, analyticsService, cfg.Analytics.ReconcileInterval)

	taskService := services.NewTaskService(ops, analytics, analyticsService, worker)
	projectService := services.NewProjectService(ops, analytics, analytics, analyticsService, worker)
	commentService := services.NewCommentService(ops, worker)
	dashboardService := services.NewDashboardService(projectService, taskService, ops)
	authz := services.NewAuthorizer(ops)

	router := handlers.NewRouter(handlers.Handlers{
		Projects:      handlers.NewProjectHandler(projectService, authz),
		Tasks:         handlers.NewTaskHandler(taskService, authz),
		Comments:      handlers.NewCommentHandler(commentService, authz),
		Notifications: handlers.NewNotificationHandler(notificationService),
		Dashboard:     handlers.NewDashboardHandler(dashboardService, authz),
		Admin:         handlers.NewAdminHandler(worker, reconciler),
	}, []byte(cfg.JWT.Secret))

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      middleware.CORS(cfg.Server.CORSOrigin)(router),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		reconciler.Run(ctx)
	}()

	go func() {
		logging.Logger.Infof("Event ID: SERVER_START_INFO, Description: Server running on http://localhost%s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Logger.Fatalf("Event ID: SERVER_FATAL_ERROR, Description: Server failed to start: %v", err)
		}
	}()

	<-ctx.Done()
	logging.Logger.Info("Event ID: SERVICE_STOP, Description: Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Logger.Errorf("Event ID: SERVER_SHUTDOWN_ERROR, Description: %v", err)
	}
	wg.Wait()
}

func connectMongo(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
	cctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	client, err := mongo.Connect(cctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(cctx, nil); err != nil {
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}
	logging.Logger.Infof("Event ID: DB_CONNECTED, Description: Successfully connected to MongoDB database %s", cfg.Database)
	return client, nil
}
