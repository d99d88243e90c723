// Package main is the entry point for the tiergate access plane.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/clearancehq/tiergate/internal/access"
	"github.com/clearancehq/tiergate/internal/admin"
	"github.com/clearancehq/tiergate/internal/audit"
	"github.com/clearancehq/tiergate/internal/config"
	"github.com/clearancehq/tiergate/internal/content"
	"github.com/clearancehq/tiergate/internal/credential"
	"github.com/clearancehq/tiergate/internal/observability"
	"github.com/clearancehq/tiergate/internal/ratelimit"
	ratelimitstore "github.com/clearancehq/tiergate/internal/ratelimit/store"
	"github.com/clearancehq/tiergate/internal/secrets"
	"github.com/clearancehq/tiergate/internal/server"
	"github.com/clearancehq/tiergate/internal/session"
	"github.com/clearancehq/tiergate/internal/tier"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// Secret names looked up from Vault or the environment when the config
// does not carry the values inline.
const (
	signingSecretName  = "signing-secret"
	elevatedAPIKeyName = "elevated-api-key"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg := loadAndValidateConfig(flags.configPath, logger)
	app := initApplication(cfg, logger)

	run(app, flags.configPath, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("TIERGATE_CONFIG_PATH", "configs/tiergate.yaml"),
		"Path to configuration file")
	logLevel := flag.String("log-level", getEnvOrDefault("TIERGATE_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("TIERGATE_LOG_FORMAT", "json"),
		"Log format (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information and exits.
func printVersion() {
	fmt.Printf("tiergate version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}

// loadAndValidateConfig loads and validates the configuration.
func loadAndValidateConfig(configPath string, logger observability.Logger) *config.Config {
	logger.Info("starting tiergate",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", observability.Error(err))
	}

	logger.Info("configuration loaded",
		observability.String("environment", string(cfg.Environment)),
		observability.Int("principals", len(cfg.Auth.Principals)),
		observability.Int("rate_limit_profiles", len(cfg.RateLimit.Profiles)),
		observability.Int("content_rules", len(cfg.Content.Rules)),
		observability.Bool("redis", cfg.Redis.Enabled()),
		observability.Bool("vault", cfg.Vault.Enabled()),
	)

	return cfg
}

// application holds all application components.
type application struct {
	server   *server.Server
	sessions session.Store
	limits   *ratelimit.Registry
	sink     audit.Logger
	redis    *redis.Client
	config   *config.Config
}

// initApplication initializes all application components.
func initApplication(cfg *config.Config, logger observability.Logger) *application {
	signingSecret, elevatedKey := resolveSecrets(cfg, logger)

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			DialTimeout:  cfg.Redis.DialTimeout.Duration(),
			ReadTimeout:  cfg.Redis.ReadTimeout.Duration(),
			WriteTimeout: cfg.Redis.WriteTimeout.Duration(),
			PoolSize:     cfg.Redis.PoolSize,
		})
	}

	sessions := buildSessionStore(cfg, redisClient, logger)
	limits := buildRateLimitRegistry(cfg, redisClient, logger)
	sink := buildAuditSink(cfg, logger)

	creds, err := credential.NewService(signingSecret,
		credential.WithValidity(cfg.Auth.CredentialTTL.Duration()),
		credential.WithServiceLogger(logger),
		credential.WithServiceMetrics(credential.GetSharedMetrics()),
	)
	if err != nil {
		logger.Fatal("failed to create credential service", observability.Error(err))
	}

	directory := credential.NewDirectory(principalsFromConfig(cfg),
		credential.WithDirectoryLogger(logger))

	controller := access.NewController(sessions, limits,
		access.WithControllerLogger(logger),
		access.WithAuditSink(sink),
	)

	validator := admin.NewValidator(cfg.Environment, elevatedKey, cfg.Auth.ElevatedRoles,
		admin.WithValidatorLogger(logger),
		admin.WithValidatorAudit(sink),
	)

	srv := server.New(&server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout.Duration(),
		WriteTimeout:    cfg.Server.WriteTimeout.Duration(),
		ShutdownTimeout: cfg.Server.ShutdownTimeout.Duration(),
		SecureCookies:   cfg.Environment != config.EnvDevelopment,
	}, server.Deps{
		Directory:   directory,
		Credentials: creds,
		Sessions:    sessions,
		Access:      controller,
		Admin:       validator,
		Limits:      limits,
		Content:     buildContentSource(cfg),
		Audit:       sink,
		Logger:      logger,
		SessionTTL:  cfg.Auth.SessionTTL.Duration(),
	})

	return &application{
		server:   srv,
		sessions: sessions,
		limits:   limits,
		sink:     sink,
		redis:    redisClient,
		config:   cfg,
	}
}

// resolveSecrets fetches the credential signing secret and the elevated
// API key: inline config first, then Vault, then the process
// environment. An absent elevated key is legitimate, it disables the
// api_key grant method; an absent signing secret is fatal.
func resolveSecrets(cfg *config.Config, logger observability.Logger) (signingSecret []byte, elevatedKey string) {
	ctx := context.Background()

	var source secrets.Source = secrets.NewEnvSource("")
	if cfg.Vault.Enabled() {
		vaultSource, err := secrets.NewVaultSource(&secrets.VaultSourceConfig{
			Address:   cfg.Vault.Address,
			Token:     cfg.Vault.Token,
			Namespace: cfg.Vault.Namespace,
			Mount:     cfg.Vault.Mount,
			Path:      cfg.Vault.Path,
			Logger:    logger,
		})
		if err != nil {
			logger.Fatal("failed to create vault secret source", observability.Error(err))
		}
		source = vaultSource
	}

	signingSecret = []byte(cfg.Auth.SigningSecret)
	if len(signingSecret) == 0 {
		secret, err := source.Lookup(ctx, signingSecretName)
		if err != nil {
			logger.Fatal("no signing secret configured", observability.Error(err))
		}
		logger.Info("signing secret loaded from secret source")
		signingSecret = secret
	}

	elevatedKey = cfg.Auth.ElevatedAPIKey
	if elevatedKey == "" {
		if key, err := source.Lookup(ctx, elevatedAPIKeyName); err == nil {
			logger.Info("elevated api key loaded from secret source")
			elevatedKey = string(key)
		}
	}

	return signingSecret, elevatedKey
}

// buildSessionStore assembles the session store: in-process only, or
// Redis layered over an in-process fallback per the configured policy.
func buildSessionStore(cfg *config.Config, redisClient *redis.Client, logger observability.Logger) session.Store {
	memory := session.NewMemoryStore(session.WithMemoryLogger(logger))
	if redisClient == nil {
		return memory
	}

	primary := session.NewRedisStore(redisClient, session.WithRedisLogger(logger))
	return session.NewFallbackStore(primary, memory, cfg.Store.Policy(), logger)
}

// buildRateLimitRegistry assembles the limiter registry, mirroring
// counters to Redis when a shared backend is configured.
func buildRateLimitRegistry(cfg *config.Config, redisClient *redis.Client, logger observability.Logger) *ratelimit.Registry {
	opts := []ratelimit.RegistryOption{ratelimit.WithRegistryLogger(logger)}
	if redisClient != nil {
		mirror := ratelimitstore.NewRedisStore(redisClient, ratelimitstore.DefaultPrefix, logger)
		opts = append(opts, ratelimit.WithRegistryMirror(mirror))
	}

	registry, err := ratelimit.NewRegistry(cfg.RateLimit.Limiters(), opts...)
	if err != nil {
		logger.Fatal("failed to build rate limiters", observability.Error(err))
	}
	return registry
}

// buildAuditSink assembles the audit sink.
func buildAuditSink(cfg *config.Config, logger observability.Logger) audit.Logger {
	if !cfg.Audit.Enabled {
		return audit.NopLogger()
	}

	sink, err := audit.NewLogger(cfg.Audit.Output,
		audit.WithLoggerLogger(logger),
		audit.WithLoggerMetrics(audit.NewMetrics("tiergate")),
	)
	if err != nil {
		logger.Fatal("failed to create audit sink", observability.Error(err))
	}
	return sink
}

// buildContentSource assembles the content tier source from config rules.
func buildContentSource(cfg *config.Config) content.Source {
	defaultTier := tier.Private
	if cfg.Content.DefaultTier != "" {
		defaultTier = tier.Tier(cfg.Content.DefaultTier)
	}

	exact := make(map[string]tier.Tier)
	source := content.NewStaticSource(exact, defaultTier)
	for _, r := range cfg.Content.Rules {
		if r.Slug != "" {
			exact[r.Slug] = tier.Tier(r.Tier)
			continue
		}
		source.AddPrefix(r.Prefix, tier.Tier(r.Tier))
	}
	return source
}

// principalsFromConfig converts configured principals to directory
// entries. Validation has already checked the tiers.
func principalsFromConfig(cfg *config.Config) []credential.Principal {
	out := make([]credential.Principal, 0, len(cfg.Auth.Principals))
	for _, p := range cfg.Auth.Principals {
		out = append(out, credential.Principal{
			ID:           p.ID,
			Email:        p.Email,
			Name:         p.Name,
			Role:         p.Role,
			Tier:         tier.Tier(p.Tier),
			PasswordHash: p.PasswordHash,
		})
	}
	return out
}

// run starts the server and the config watcher and blocks until a
// shutdown signal arrives.
func run(app *application, configPath string, logger observability.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- app.server.Start(ctx)
	}()

	watcher := startConfigWatcher(ctx, app, configPath, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutdown signal received", observability.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			logger.Error("server stopped unexpectedly", observability.Error(err))
		}
	}

	shutdown(app, watcher, logger)
}

// startConfigWatcher watches the config file and reloads rate limit
// profiles on change. Everything else requires a restart.
func startConfigWatcher(ctx context.Context, app *application, configPath string, logger observability.Logger) *config.Watcher {
	watcher, err := config.NewWatcher(configPath, func(newCfg *config.Config) {
		if err := app.limits.Reload(newCfg.RateLimit.Limiters()); err != nil {
			logger.Error("failed to reload rate limit profiles", observability.Error(err))
			return
		}
		logger.Info("rate limit profiles reloaded",
			observability.Int("profiles", len(newCfg.RateLimit.Profiles)))
	}, config.WithWatcherLogger(logger))
	if err != nil {
		logger.Warn("config watcher unavailable, profile reloads disabled", observability.Error(err))
		return nil
	}

	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watcher failed to start, profile reloads disabled", observability.Error(err))
		return nil
	}
	return watcher
}

// shutdown stops everything in dependency order.
func shutdown(app *application, watcher *config.Watcher, logger observability.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		app.config.Server.ShutdownTimeout.Duration())
	defer cancel()

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			logger.Warn("failed to stop config watcher", observability.Error(err))
		}
	}

	if err := app.server.Stop(shutdownCtx); err != nil {
		logger.Error("failed to stop server", observability.Error(err))
	}

	if err := app.sessions.Close(); err != nil {
		logger.Warn("failed to close session store", observability.Error(err))
	}

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			logger.Warn("failed to close redis client", observability.Error(err))
		}
	}

	if err := app.sink.Close(); err != nil {
		logger.Warn("failed to close audit sink", observability.Error(err))
	}

	logger.Info("tiergate stopped")
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
