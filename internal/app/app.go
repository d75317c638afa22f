package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mx-space/confetti-bridge/internal/config"
	"github.com/mx-space/confetti-bridge/internal/middleware"
	"github.com/mx-space/confetti-bridge/internal/modules/confetti/registry"
	"github.com/mx-space/confetti-bridge/internal/modules/gateway/gateway"
	"github.com/mx-space/confetti-bridge/internal/modules/preset"
	pkgcron "github.com/mx-space/confetti-bridge/internal/pkg/cron"
	jwtpkg "github.com/mx-space/confetti-bridge/internal/pkg/jwt"
	pkgredis "github.com/mx-space/confetti-bridge/internal/pkg/redis"
	"github.com/mx-space/confetti-bridge/internal/pkg/snapshotstore"
	"go.uber.org/zap"
)

// App holds all application dependencies.
type App struct {
	cfg      *config.AppConfig
	router   *gin.Engine
	rc       *pkgredis.Client
	hub      *gateway.Hub
	registry *registry.Service
	presets  *preset.Catalog
	watcher  *preset.FileWatcher
	sched    *pkgcron.Scheduler
	logger   *zap.Logger
	cancel   context.CancelFunc
	started  time.Time
}

// New initializes the application: Redis → presets → gateway → registry → routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	applyRuntimeSettings(cfg, logger)

	rc, err := pkgredis.Connect(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	catalog, err := preset.Load(cfg.PresetsPath(), logger.Named("Presets"))
	if err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("presets: %w", err)
	}

	store := snapshotstore.New(rc, cfg.Gateway.SnapshotTTL)
	hub := gateway.NewHub(gateway.Options{
		Redis:      rc,
		Store:      store,
		Logger:     logger.Named("Gateway"),
		AckTimeout: cfg.Gateway.AckTimeout,
		Validate:   validateMountToken,
	})

	mountTTL := cfg.Gateway.MountTokenTTL
	svc := registry.NewService(registry.Options{
		Host:      hub,
		Channel:   hub,
		Presets:   catalog,
		Store:     store,
		Unmounter: hub,
		Issue: func(controlID string) (string, error) {
			return jwtpkg.Sign(controlID, mountTTL)
		},
		Logger: logger.Named("Registry"),
	})
	hub.OnMountChange(svc.SetMounted)

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(cors.New(corsConfig(cfg)))

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	watcher := preset.NewFileWatcher(catalog, cfg.Controls.PresetPoll, logger.Named("Presets"))
	watcher.Start()

	sched := pkgcron.New()
	if err := registerCronJobs(sched, svc, cfg, logger); err != nil {
		cancel()
		watcher.Stop()
		_ = rc.Close()
		return nil, fmt.Errorf("cron: %w", err)
	}
	sched.Start(ctx)

	app := &App{
		cfg:      cfg,
		router:   router,
		rc:       rc,
		hub:      hub,
		registry: svc,
		presets:  catalog,
		watcher:  watcher,
		sched:    sched,
		logger:   logger,
		cancel:   cancel,
		started:  time.Now(),
	}
	app.registerRoutes()

	return app, nil
}

func validateMountToken(token string) (string, error) {
	claims, err := jwtpkg.Parse(token)
	if err != nil {
		return "", err
	}
	return claims.ControlID, nil
}

func corsConfig(cfg *config.AppConfig) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "x-idempotence"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}
	if len(cfg.AllowedOrigins) > 0 && !cfg.IsDev() {
		c.AllowOriginFunc = newWidgetOrigins(cfg.AllowedOrigins).allow
	} else {
		c.AllowOriginFunc = func(origin string) bool { return true }
	}
	return c
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown stops background goroutines and closes Redis.
func (a *App) Shutdown() {
	a.cancel()
	a.watcher.Stop()
	if err := a.rc.Close(); err != nil {
		a.logger.Warn("redis close failed", zap.Error(err))
	}
}
