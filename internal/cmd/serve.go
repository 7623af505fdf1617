package cmd

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lumenchat/governor/internal/breaker"
	"github.com/lumenchat/governor/internal/config"
	"github.com/lumenchat/governor/internal/observability"
	"github.com/lumenchat/governor/internal/ratelimit"
	"github.com/lumenchat/governor/internal/ratelimit/store"
	"github.com/lumenchat/governor/internal/retry"
	"github.com/lumenchat/governor/internal/server"
	"github.com/lumenchat/governor/internal/server/handlers"
	servermw "github.com/lumenchat/governor/internal/server/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the governance gateway",
	Long: `Run the HTTP gateway with graceful shutdown.

SIGINT or SIGTERM drains in-flight requests before exiting.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		logger, err := observability.NewServerLogger(level)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		srv, err := buildServer(cfg, logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

// buildServer constructs the whole dependency graph: stores, limiter,
// breakers, governance gate, health surface. Everything is created here and
// injected; nothing is a package-level singleton.
func buildServer(cfg *config.Config, logger *zap.Logger) (*server.Server, error) {
	policies := make([]ratelimit.Policy, 0, len(cfg.RateLimit.Policies))
	for _, p := range cfg.RateLimit.Policies {
		policies = append(policies, ratelimit.Policy{
			Name:        p.Name,
			Window:      p.Window,
			MaxRequests: p.MaxRequests,
			Scope:       ratelimit.Scope(p.Scope),
		})
	}
	policySet, err := ratelimit.NewPolicySet(policies)
	if err != nil {
		return nil, err
	}

	memory := store.NewMemoryStore()
	var counters store.Store = memory
	var redisStore *store.RedisStore
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		redisStore = store.NewRedisStore(rdb)
		counters = store.NewFailoverStore(redisStore, memory, logger)
		logger.Info("using redis counter store", zap.String("addr", cfg.Redis.Addr))
	} else {
		logger.Warn("no redis configured, rate limits are per replica")
	}

	limiter := ratelimit.NewLimiter(policySet, counters, logger)

	settings := make([]breaker.Settings, 0, len(cfg.Breakers))
	for _, b := range cfg.Breakers {
		settings = append(settings, breaker.Settings{
			Name:             b.Name,
			FailureThreshold: b.FailureThreshold,
			Cooldown:         b.Cooldown,
		})
	}
	breakers, err := breaker.NewRegistry(settings, logger)
	if err != nil {
		return nil, err
	}

	rules := make([]servermw.RouteRule, 0, len(cfg.RateLimit.Rules))
	for _, r := range cfg.RateLimit.Rules {
		rules = append(rules, servermw.RouteRule{Prefix: r.Prefix, Policies: r.Policies})
	}
	governor := servermw.NewGovernor(servermw.GovernorSettings{
		Maintenance: servermw.MaintenanceSettings{
			Enabled:     cfg.Maintenance.Enabled,
			ExemptPaths: cfg.Maintenance.ExemptPaths,
			RetryAfter:  cfg.Maintenance.RetryAfter,
		},
		AllowedOrigins: cfg.Origins.Allowed,
		Rules:          rules,
		CheckTimeout:   cfg.RateLimit.CheckTimeout,
	}, limiter, logger)

	health := handlers.NewHealth(versionInfo.Version)
	health.SetBreakerStates(breakers.States)
	if fo, ok := counters.(*store.FailoverStore); ok {
		health.SetDegraded(fo.Degraded)
	}
	if redisStore != nil {
		health.RegisterChecker("counter-store", counterStoreChecker(breakers, redisStore))
	}

	var upstream http.Handler
	if cfg.Upstream.URL != "" {
		target, err := url.Parse(cfg.Upstream.URL)
		if err != nil {
			return nil, err
		}
		upstream = httputil.NewSingleHostReverseProxy(target)
		logger.Info("proxying governed routes to upstream", zap.String("url", cfg.Upstream.URL))
	}

	return server.New(server.Options{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		Logger:       logger,
		Governor:     governor,
		Health:       health,
		Version: handlers.VersionInfo{
			Version:   versionInfo.Version,
			Commit:    versionInfo.Commit,
			BuildDate: versionInfo.BuildDate,
		},
		Upstream: upstream,
	}), nil
}

// counterStoreChecker pings redis through the counter-store breaker with a
// short retry, so readiness reflects the same shedding the data path sees.
func counterStoreChecker(breakers *breaker.Registry, redisStore *store.RedisStore) handlers.Checker {
	pingPolicy := retry.Policy{
		MaxAttempts: 2,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    500 * time.Millisecond,
		Jitter:      true,
	}
	return handlers.CheckerFunc(func(ctx context.Context) error {
		storeBreaker, err := breakers.Get("counter-store")
		if err != nil {
			// No breaker declared for the store: ping it directly.
			return redisStore.Ping(ctx)
		}
		return retry.Do(ctx, pingPolicy, func(ctx context.Context) error {
			return storeBreaker.Execute(ctx, redisStore.Ping)
		}, retry.WithRetryIf(func(err error) bool {
			var open *breaker.CircuitOpenError
			if errors.As(err, &open) {
				return false
			}
			return true
		}))
	})
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
