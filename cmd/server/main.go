// Command server starts the Coursecast media gateway.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	redis "github.com/redis/go-redis/v9"

	"coursecast/internal/api"
	"coursecast/internal/identity"
	"coursecast/internal/media"
	"coursecast/internal/observability/logging"
	"coursecast/internal/observability/metrics"
	"coursecast/internal/server"
	"coursecast/internal/storage"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	mode := flag.String("mode", "", "server runtime mode (development or production)")
	storageRoot := flag.String("storage-root", "", "directory holding uploaded course videos")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresMaxConnIdle := flag.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	postgresHealthInterval := flag.Duration("postgres-health-interval", 0, "interval between Postgres health checks")
	postgresAcquireTimeout := flag.Duration("postgres-acquire-timeout", 0, "timeout when acquiring a Postgres connection from the pool")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")
	identityURL := flag.String("identity-url", "", "base URL of the identity service used for admin verification")
	allowedOrigins := flag.String("allowed-origins", "", "comma separated origins allowed to call the API cross-origin")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log output format (json or text)")
	globalRPS := flag.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := flag.Int("rate-global-burst", 0, "global rate limit burst allowance")
	adminLimit := flag.Int("rate-admin-limit", 0, "maximum mutating admin requests per window for a single IP")
	adminWindow := flag.Duration("rate-admin-window", 0, "window for counting mutating admin requests")
	redisAddr := flag.String("rate-redis-addr", "", "Redis address for distributed admin throttling")
	redisUsername := flag.String("rate-redis-username", "", "Redis username for distributed admin throttling")
	redisPassword := flag.String("rate-redis-password", "", "Redis password for distributed admin throttling")
	redisTimeout := flag.Duration("rate-redis-timeout", 0, "timeout for Redis operations")
	probeTimeout := flag.Duration("probe-timeout", 0, "timeout for a single ffprobe invocation")
	segmentTimeout := flag.Duration("segment-timeout", 0, "timeout for a single ffmpeg segmentation run")
	segmentSeconds := flag.Int("segment-seconds", 0, "HLS segment length in seconds")
	transcodeJobs := flag.Int("transcode-jobs", 0, "maximum concurrent segmentation jobs")
	maxUploadBytes := flag.Int64("max-upload-bytes", 0, "maximum accepted upload size in bytes")
	shutdownTimeout := flag.Duration("shutdown-timeout", 0, "graceful shutdown deadline")
	flag.Parse()

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("COURSECAST_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("COURSECAST_LOG_FORMAT")),
	})
	auditLogger := logging.WithComponent(logger, "audit")
	recorder := metrics.Default()

	serverMode := modeValue(*mode, os.Getenv("COURSECAST_MODE"))
	listenAddr := resolveListenAddr(*addr, serverMode, os.Getenv("COURSECAST_ADDR"))

	root := firstNonEmpty(*storageRoot, os.Getenv("COURSECAST_STORAGE_ROOT"), "./videos")
	layout, err := media.NewLayout(root)
	if err != nil {
		logger.Error("failed to prepare storage root", "root", root, "error", err)
		os.Exit(1)
	}

	dsn := firstNonEmpty(*postgresDSN, os.Getenv("COURSECAST_POSTGRES_DSN"), os.Getenv("DATABASE_URL"))
	if dsn == "" {
		logger.Error("no datastore configured: set --postgres-dsn, COURSECAST_POSTGRES_DSN, or DATABASE_URL")
		os.Exit(1)
	}

	var pgOptions []storage.Option
	maxConns := resolveInt(*postgresMaxConns, "COURSECAST_POSTGRES_MAX_CONNS")
	minConns := resolveInt(*postgresMinConns, "COURSECAST_POSTGRES_MIN_CONNS")
	if maxConns > 0 || minConns > 0 {
		pgOptions = append(pgOptions, storage.WithPostgresPoolLimits(int32(maxConns), int32(minConns)))
	}
	maxLifetime := resolveDuration(*postgresMaxConnLifetime, "COURSECAST_POSTGRES_MAX_CONN_LIFETIME", 0)
	maxIdle := resolveDuration(*postgresMaxConnIdle, "COURSECAST_POSTGRES_MAX_CONN_IDLE", 0)
	healthInterval := resolveDuration(*postgresHealthInterval, "COURSECAST_POSTGRES_HEALTH_INTERVAL", 0)
	if maxLifetime > 0 || maxIdle > 0 || healthInterval > 0 {
		pgOptions = append(pgOptions, storage.WithPostgresPoolDurations(maxLifetime, maxIdle, healthInterval))
	}
	if acquireTimeout := resolveDuration(*postgresAcquireTimeout, "COURSECAST_POSTGRES_ACQUIRE_TIMEOUT", 0); acquireTimeout > 0 {
		pgOptions = append(pgOptions, storage.WithPostgresAcquireTimeout(acquireTimeout))
	}
	if appName := firstNonEmpty(*postgresAppName, os.Getenv("COURSECAST_POSTGRES_APP_NAME")); appName != "" {
		pgOptions = append(pgOptions, storage.WithPostgresApplicationName(appName))
	}

	connectCtx, connectCancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := storage.NewPostgresRepository(connectCtx, dsn, pgOptions...)
	connectCancel()
	if err != nil {
		logger.Error("failed to open datastore", "error", err)
		os.Exit(1)
	}

	identityBase := firstNonEmpty(*identityURL, os.Getenv("COURSECAST_IDENTITY_URL"))
	if identityBase == "" {
		logger.Error("no identity service configured: set --identity-url or COURSECAST_IDENTITY_URL")
		os.Exit(1)
	}
	verifier, err := identity.NewHTTPVerifier(identityBase, nil)
	if err != nil {
		logger.Error("invalid identity service URL", "error", err)
		os.Exit(1)
	}

	prober := media.NewProber()
	if timeout := resolveDuration(*probeTimeout, "COURSECAST_PROBE_TIMEOUT", 0); timeout > 0 {
		prober.Timeout = timeout
	}
	transcoder := media.NewTranscoder()
	if timeout := resolveDuration(*segmentTimeout, "COURSECAST_SEGMENT_TIMEOUT", 0); timeout > 0 {
		transcoder.Timeout = timeout
	}
	if seconds := resolveInt(*segmentSeconds, "COURSECAST_SEGMENT_SECONDS"); seconds > 0 {
		transcoder.SegmentSeconds = seconds
	}

	pipeline := media.NewPipeline(media.PipelineConfig{
		Layout:            layout,
		Prober:            prober,
		Transcoder:        transcoder,
		Catalog:           store,
		Logger:            logging.WithComponent(logger, "pipeline"),
		Metrics:           recorder,
		MaxConcurrentJobs: int64(resolveInt(*transcodeJobs, "COURSECAST_TRANSCODE_JOBS")),
	})

	handler := api.NewHandler(store, layout, pipeline, logger)
	handler.Metrics = recorder
	if limit := resolveInt64(*maxUploadBytes, "COURSECAST_MAX_UPLOAD_BYTES"); limit > 0 {
		handler.MaxUploadBytes = limit
	}

	rateCfg := server.RateLimitConfig{
		GlobalRPS:     resolveFloat(*globalRPS, "COURSECAST_RATE_GLOBAL_RPS"),
		GlobalBurst:   resolveInt(*globalBurst, "COURSECAST_RATE_GLOBAL_BURST"),
		AdminLimit:    resolveInt(*adminLimit, "COURSECAST_RATE_ADMIN_LIMIT"),
		AdminWindow:   resolveDuration(*adminWindow, "COURSECAST_RATE_ADMIN_WINDOW", time.Minute),
		RedisAddr:     firstNonEmpty(*redisAddr, os.Getenv("COURSECAST_RATE_REDIS_ADDR")),
		RedisUsername: firstNonEmpty(*redisUsername, os.Getenv("COURSECAST_RATE_REDIS_USERNAME")),
		RedisPassword: firstNonEmpty(*redisPassword, os.Getenv("COURSECAST_RATE_REDIS_PASSWORD")),
		RedisTimeout:  resolveDuration(*redisTimeout, "COURSECAST_RATE_REDIS_TIMEOUT", 2*time.Second),
	}

	handler.HealthChecks = []api.HealthCheck{{Name: "postgres", Check: store.Ping}}
	var redisHealth redis.UniversalClient
	if rateCfg.RedisAddr != "" {
		redisHealth = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:       []string{rateCfg.RedisAddr},
			Username:    rateCfg.RedisUsername,
			Password:    rateCfg.RedisPassword,
			DialTimeout: rateCfg.RedisTimeout,
			ReadTimeout: rateCfg.RedisTimeout,
		})
		handler.HealthChecks = append(handler.HealthChecks, api.HealthCheck{
			Name: "redis",
			Check: func(ctx context.Context) error {
				return redisHealth.Ping(ctx).Err()
			},
		})
	}

	srv, err := server.New(handler, server.Config{
		Addr: listenAddr,
		TLS: server.TLSConfig{
			CertFile: firstNonEmpty(*tlsCert, os.Getenv("COURSECAST_TLS_CERT")),
			KeyFile:  firstNonEmpty(*tlsKey, os.Getenv("COURSECAST_TLS_KEY")),
		},
		RateLimit:   rateCfg,
		CORS:        server.CORSConfig{AllowedOrigins: splitAndTrim(firstNonEmpty(*allowedOrigins, os.Getenv("COURSECAST_ALLOWED_ORIGINS")))},
		Verifier:    verifier,
		Logger:      logger,
		AuditLogger: auditLogger,
		Metrics:     recorder,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("coursecast media gateway listening", "addr", listenAddr, "mode", serverMode, "storage_root", layout.Root())
	logger.Info("metrics endpoint available", "path", "/metrics")

	runErr := srv.Run(ctx)
	stop()

	closeTimeout := resolveDuration(*shutdownTimeout, "COURSECAST_SHUTDOWN_TIMEOUT", 10*time.Second)
	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if redisHealth != nil {
		if err := redisHealth.Close(); err != nil {
			logger.Warn("failed to close redis client", "error", err)
		}
	}
	if err := store.Close(closeCtx); err != nil {
		logger.Warn("failed to close datastore", "error", err)
	}
	if runErr != nil {
		logger.Error("server error", "error", runErr)
		os.Exit(1)
	}
}

func resolveListenAddr(flagValue, mode, envAddr string) string {
	listenAddr := strings.TrimSpace(flagValue)
	if listenAddr == "" {
		listenAddr = strings.TrimSpace(envAddr)
	}
	if listenAddr == "" {
		listenAddr = defaultListenForMode(mode)
	}
	return listenAddr
}

func modeValue(flagMode, envMode string) string {
	mode := strings.ToLower(strings.TrimSpace(flagMode))
	if mode == "" {
		mode = strings.ToLower(strings.TrimSpace(envMode))
	}
	if mode == "" {
		mode = "development"
	}
	return mode
}

func defaultListenForMode(mode string) string {
	if mode == "production" {
		return ":80"
	}
	return ":8080"
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitAndTrim(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func resolveFloat(flagValue float64, envKey string) float64 {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.ParseFloat(strings.TrimSpace(env), 64); err == nil {
			return value
		}
	}
	return 0
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveInt64(flagValue int64, envKey string) int64 {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.ParseInt(strings.TrimSpace(env), 10, 64); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(env); err == nil {
			return value
		}
	}
	if fallback > 0 {
		return fallback
	}
	return 0
}
