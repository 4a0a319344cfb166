package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/quakealert/internal/config"
	"github.com/quocanhngo/quakealert/internal/feed"
	"github.com/quocanhngo/quakealert/internal/handler"
	"github.com/quocanhngo/quakealert/internal/ledger"
	"github.com/quocanhngo/quakealert/internal/metrics"
	"github.com/quocanhngo/quakealert/internal/model"
	"github.com/quocanhngo/quakealert/internal/registry"
	"github.com/quocanhngo/quakealert/internal/repository"
	"github.com/quocanhngo/quakealert/internal/service"
	"github.com/quocanhngo/quakealert/internal/ws"
	"github.com/quocanhngo/quakealert/migrations"
	"github.com/quocanhngo/quakealert/pkg/auth"
	"github.com/quocanhngo/quakealert/pkg/notification"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// @title           QuakeAlert API
// @version         1.0
// @description     Earthquake feed poller with per-device filters and FCM push alerts.

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	// ==================== Load Config ====================
	cfg := config.Load()
	log.Printf("🚀 Starting QuakeAlert [env=%s]", cfg.App.Env)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// ==================== Database (PostgreSQL, optional) ====================
	var store registry.Store
	if cfg.DB.Enabled {
		store = openStore(cfg)
	} else {
		log.Println("⚠️  DB_ENABLED=false, registry is kept in memory only")
	}

	reg := registry.New(store)
	if err := reg.Load(ctx); err != nil {
		log.Fatalf("❌ Failed to load registry: %v", err)
	}

	// ==================== Redis (optional) ====================
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       0,
		})
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			log.Fatalf("❌ Failed to connect to Redis: %v", err)
		}
		log.Println("✅ Connected to Redis")
	}

	// ==================== Push Transport (FCM) ====================
	var sender notification.Sender = notification.Disabled{}
	fcm, err := notification.NewFCMSender(ctx, cfg.Firebase.CredentialsFile)
	if err != nil {
		log.Fatalf("❌ Failed to initialize Firebase: %v", err)
	}
	if fcm != nil {
		sender = fcm
		log.Println("✅ Firebase Cloud Messaging ready")
	}

	// ==================== Initialize Layers ====================
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiry)
	m := metrics.New()

	// Audit stream hub (with Redis Pub/Sub across instances)
	hub := ws.NewHub(rdb)
	go hub.Run(ctx)

	src := feed.NewClient(cfg.Feed.URL, cfg.Feed.Window, cfg.Feed.Timeout)
	engine := service.NewEngine(reg, ledger.New(), src, sender, hub, m, service.RetryPolicy{
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
	})
	poller := service.NewPoller(engine, service.PollerConfig{
		Interval:     cfg.Poll.Interval,
		StartupCheck: cfg.Poll.StartupCheck,
		Warmups:      cfg.Poll.Warmups,
		Maintenance:  cfg.Poll.Maintenance,
	})

	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		poller.Run(ctx)
	}()

	// ==================== Gin Router ====================
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := handler.NewRouter(handler.Deps{
		Engine:      engine,
		Poller:      poller,
		Hub:         hub,
		Metrics:     m,
		JWT:         jwtManager,
		Redis:       rdb,
		CORSOrigins: cfg.CORS.Origins,
	})

	// ==================== Start Server ====================
	srv := &http.Server{
		Addr:    ":" + cfg.App.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server failed: %v", err)
		}
	}()

	log.Printf("🌐 QuakeAlert API running on http://0.0.0.0:%s", cfg.App.Port)
	log.Printf("📋 API docs: http://0.0.0.0:%s/swagger/index.html", cfg.App.Port)
	log.Printf("📈 Metrics: http://0.0.0.0:%s/metrics", cfg.App.Port)
	log.Printf("🔌 Audit stream: ws://0.0.0.0:%s/ws?token=<jwt>", cfg.App.Port)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("🛑 Shutting down server...")

	// Give ongoing requests 5 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("❌ Server forced to shutdown: %v", err)
	}

	stop()
	select {
	case <-pollerDone:
	case <-shutdownCtx.Done():
		log.Println("⚠️  Poll pass still running at shutdown")
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	log.Println("✅ Server exited gracefully")
}

// openStore connects to PostgreSQL, applies migrations and returns the device repository
func openStore(cfg *config.Config) registry.Store {
	gormLogger := logger.Default.LogMode(logger.Info)
	if cfg.App.Env == "production" {
		gormLogger = logger.Default.LogMode(logger.Warn)
	}

	db, err := gorm.Open(postgres.Open(cfg.DB.DSN()), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	log.Println("✅ Connected to PostgreSQL")

	// ==================== Run Migrations ====================
	if err := migrations.Run(cfg.DB.URL()); err != nil {
		log.Printf("⚠️  Migration warning: %v", err)
		log.Println("📦 Falling back to GORM AutoMigrate...")
		if err := db.AutoMigrate(&model.DeviceRecord{}, &model.EndpointRecord{}); err != nil {
			log.Fatalf("❌ Failed to migrate database: %v", err)
		}
	}
	log.Println("✅ Database migrated successfully")

	return repository.NewDeviceRepository(db)
}
