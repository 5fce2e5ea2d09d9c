package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Skufu/diagportal/internal/session"
	"github.com/Skufu/diagportal/internal/upstream"
	"github.com/Skufu/diagportal/internal/web"
)

type HealthChecker interface {
	Ping(ctx context.Context) error
}

const (
	backendMemory   = "memory"
	backendRedis    = "redis"
	backendPostgres = "postgres"
)

type Config struct {
	Port            string
	UpstreamURL     string
	UpstreamTimeout time.Duration
	UploadVariant   upstream.Variant
	SessionBackend  string
	SessionTTL      time.Duration
	RedisURL        string
	DatabaseURL     string
	EnableDB        bool
	MaxUploadBytes  int64
	LogLevel        string
	SecureCookie    bool
}

func main() {
	gin.SetMode(getEnv("GIN_MODE", "release"))

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal("session store unavailable", zap.String("backend", cfg.SessionBackend), zap.Error(err))
	}
	defer store.Close()

	client := upstream.New(cfg.UpstreamURL, cfg.UpstreamTimeout, cfg.UploadVariant, logger.Named("upstream"))
	ui, err := web.New(web.Options{
		Backend:      client,
		Store:        store,
		Logger:       logger.Named("web"),
		ChatStale:    cfg.UpstreamTimeout + 15*time.Second,
		SessionTTL:   cfg.SessionTTL,
		SecureCookie: cfg.SecureCookie,
	})
	if err != nil {
		logger.Fatal("load templates", zap.Error(err))
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go sweepSessions(sweepCtx, store, logger, time.Minute)

	staticRoot := detectStaticRoot()
	router := setupRouter(store, ui, logger, cfg.MaxUploadBytes, staticRoot)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.UpstreamTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	logger.Info("server listening",
		zap.String("port", cfg.Port),
		zap.String("upstream", cfg.UpstreamURL),
		zap.String("upload_variant", string(cfg.UploadVariant)),
		zap.String("sessions", cfg.SessionBackend))
	waitForShutdown(server, logger)
}

func loadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		UpstreamURL:  getEnv("UPSTREAM_URL", "http://localhost:5000"),
		RedisURL:     os.Getenv("REDIS_URL"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		EnableDB:     strings.EqualFold(getEnv("ENABLE_DB", "false"), "true"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		SecureCookie: strings.EqualFold(getEnv("COOKIE_SECURE", "false"), "true"),
	}

	if cfg.EnableDB && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when ENABLE_DB=true")
	}

	var err error
	if cfg.UpstreamTimeout, err = getDuration("UPSTREAM_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = getDuration("SESSION_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.UploadVariant, err = upstream.ParseVariant(getEnv("UPLOAD_VARIANT", string(upstream.VariantAnalyze))); err != nil {
		return nil, err
	}
	cfg.MaxUploadBytes, err = strconv.ParseInt(getEnv("MAX_UPLOAD_BYTES", strconv.Itoa(16<<20)), 10, 64)
	if err != nil || cfg.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_BYTES must be a positive byte count")
	}

	defaultBackend := backendMemory
	if cfg.EnableDB {
		defaultBackend = backendPostgres
	}
	cfg.SessionBackend = strings.ToLower(getEnv("SESSION_BACKEND", defaultBackend))
	switch cfg.SessionBackend {
	case backendMemory:
	case backendRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required when SESSION_BACKEND=redis")
		}
	case backendPostgres:
		if !cfg.EnableDB {
			return nil, fmt.Errorf("SESSION_BACKEND=postgres requires ENABLE_DB=true")
		}
	default:
		return nil, fmt.Errorf("unknown SESSION_BACKEND %q", cfg.SessionBackend)
	}

	return cfg, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse LOG_LEVEL: %w", err)
	}
	zc := zap.NewProductionConfig()
	if gin.Mode() == gin.DebugMode {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = lvl
	return zc.Build()
}

func openStore(ctx context.Context, cfg *Config) (session.Store, error) {
	switch cfg.SessionBackend {
	case backendRedis:
		client, err := connectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return session.NewRedisStore(client, cfg.SessionTTL), nil
	case backendPostgres:
		pool, err := connectDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		store, err := session.NewPostgresStore(ctx, pool, cfg.SessionTTL)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return store, nil
	default:
		return session.NewMemoryStore(cfg.SessionTTL), nil
	}
}

func connectDB(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return pool, nil
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func setupRouter(sessions HealthChecker, ui *web.Handler, logger *zap.Logger, maxBody int64, staticRoot string) *gin.Engine {
	router := gin.New()
	router.Use(
		web.RequestLogger(logger),
		gin.Recovery(),
		limitBodySize(maxBody),
		cors.New(cors.Config{
			AllowOrigins:  []string{"*"},
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "HX-Request", "HX-Current-URL", "HX-Target", "HX-Trigger"},
			ExposeHeaders: []string{"HX-Redirect", "HX-Retarget", "HX-Reswap", "HX-Trigger"},
			MaxAge:        12 * time.Hour,
		}),
	)

	router.Static("/static", filepath.Join(staticRoot, "static"))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/readyz", func(c *gin.Context) {
		if sessions == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": "disabled"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := sessions.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "degraded",
				"sessions": fmt.Sprintf("unhealthy: %v", err),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"sessions": "ok",
		})
	})

	if ui != nil {
		ui.Register(router)
	}

	return router
}

// sweepSessions drops expired sessions for stores that do not expire keys
// on their own.
func sweepSessions(ctx context.Context, store session.Store, logger *zap.Logger, every time.Duration) {
	sw, ok := store.(session.Sweeper)
	if !ok {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sw.Sweep(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("sweep sessions", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Debug("swept sessions", zap.Int("count", n))
			}
		}
	}
}

func waitForShutdown(server *http.Server, logger *zap.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration such as 60s", key)
	}
	return d, nil
}

func limitBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// detectStaticRoot finds the directory holding static/ when the binary is
// started from the repo root or from cmd/server.
func detectStaticRoot() string {
	startDir, err := os.Getwd()
	if err != nil {
		return "."
	}

	candidates := []string{
		startDir,
		filepath.Dir(startDir),
		filepath.Dir(filepath.Dir(startDir)),
	}

	for _, dir := range candidates {
		if fileExists(filepath.Join(dir, "static", "app.js")) {
			return dir
		}
	}

	return startDir
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
