package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"expertvakil/server/internal/chat"
	"expertvakil/server/internal/config"
	"expertvakil/server/internal/database"
	"expertvakil/server/internal/directory"
	"expertvakil/server/internal/events"
	"expertvakil/server/internal/handlers"
	"expertvakil/server/internal/logger"
	"expertvakil/server/internal/metrics"
	"expertvakil/server/internal/middleware"
	"expertvakil/server/internal/realtime"
	"expertvakil/server/internal/routes"
	"expertvakil/server/internal/store"
	"expertvakil/server/internal/telemetry"
	"expertvakil/server/internal/upload"
	"expertvakil/server/internal/utils"
	"expertvakil/server/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const serviceName = "expertvakil-chat"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logr, err := logger.New(cfg.Development(), cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logr.Sync()

	if err := run(cfg, logr); err != nil {
		logr.Fatalw("server stopped", "error", err)
	}
}

func run(cfg *config.Config, logr *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	shutdownTracing, err := telemetry.Init(ctx, serviceName, cfg.OTELEndpoint)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	var pool *pgxpool.Pool
	if cfg.Store.Driver == config.DriverPostgres {
		pool, err = database.Connect(ctx, cfg.Store.DatabaseURL, logr)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			return err
		}
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		logr.Infow("redis connected", "addr", cfg.Redis.Addr)
	}

	var st store.Store = store.NewMemory()
	var dir directory.Directory = directory.NewMemory()
	if pool != nil {
		st = store.NewPostgres(pool)
		dir = directory.NewPostgres(pool)
	}
	if rdb != nil {
		dir = directory.NewCached(dir, rdb, cfg.DirectoryCacheTTL)
	}

	var broker realtime.Broker = realtime.NewLocalBroker()
	if cfg.Broker.Driver == config.DriverRedis {
		broker = realtime.NewRedisBroker(rdb, "expertvakil")
	}
	defer broker.Close()

	var publisher events.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		logr.Infow("publishing chat events", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}
	defer publisher.Close()

	var (
		blobs     upload.BlobStore
		uploadDir string
		memBlobs  *upload.MemoryStore
	)
	switch cfg.Blob.Driver {
	case config.DriverS3:
		blobs, err = upload.NewS3Store(ctx, cfg.Blob.Region, cfg.Blob.Bucket, cfg.Blob.Endpoint)
		if err != nil {
			return err
		}
	case config.DriverMemory:
		memBlobs = upload.NewMemoryStore(cfg.Server.BaseURL + "/uploads")
		blobs = memBlobs
	default:
		disk := upload.NewDiskStore(cfg.Blob.UploadDir, cfg.Server.BaseURL)
		blobs = disk
		uploadDir = disk.Root()
	}

	core := chat.NewCore(st, broker, logr.Named("chat"), chat.WithEvents(publisher))

	hub := websocket.NewHub(logr.Named("ws"))
	go hub.Run(ctx)

	h := handlers.New(handlers.Deps{
		Messages:     chat.NewMessageStore(core),
		Inbox:        chat.NewInboxStore(core),
		Uploader:     upload.NewUploader(blobs, logr.Named("upload")),
		Directory:    dir,
		Hub:          hub,
		UploadDir:    uploadDir,
		MemoryBlobs:  memBlobs,
		RefreshDelay: cfg.RefreshDelay,
		Log:          logr.Named("http"),
	})

	app := fiber.New(fiber.Config{
		AppName:   "ExpertVakil Chat API v1.0",
		BodyLimit: handlers.MaxVideoSize + 1024*1024,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.CORSOrigins,
		AllowCredentials: true,
	}))

	limits := middleware.NewLimiters(nil)
	if rdb != nil {
		limits = middleware.NewLimiters(middleware.NewRedisStorage(rdb, "expertvakil"))
	}
	routes.SetupRoutes(app, h, utils.NewJWT(cfg.JWTSecret), limits)

	errCh := make(chan error, 1)
	go func() {
		logr.Infow("server starting", "port", cfg.Server.Port, "store", cfg.Store.Driver, "broker", cfg.Broker.Driver, "blobs", cfg.Blob.Driver)
		errCh <- app.Listen(":" + cfg.Server.Port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	if err := app.ShutdownWithTimeout(15 * time.Second); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
