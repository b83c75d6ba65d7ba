// Command contestctl browses and serves the contest hub backend from the
// terminal: paged listings, full exports, the leaderboard and a local proxy.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/Sternrassler/contesthub-client/pkg/auth"
	"github.com/Sternrassler/contesthub-client/pkg/cache"
	"github.com/Sternrassler/contesthub-client/pkg/client"
	"github.com/Sternrassler/contesthub-client/pkg/config"
	"github.com/Sternrassler/contesthub-client/pkg/logging"
	"github.com/Sternrassler/contesthub-client/pkg/pagination"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app is the state shared by all subcommands, built in PersistentPreRunE.
type app struct {
	cfg     config.Config
	logger  zerolog.Logger
	session *auth.Session
	client  *client.Client
	redis   *redis.Client
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var (
		logLevel string
		pretty   bool
		baseURL  string
	)

	root := &cobra.Command{
		Use:   "contestctl",
		Short: "Contest hub client",
		Long: `contestctl talks to a contest hub backend.

Configuration is read from CONTESTHUB_* environment variables and an
optional .env file in the working directory. Flags override both.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if cmd.Flags().Changed("pretty") {
				cfg.LogPretty = pretty
			}
			if cmd.Flags().Changed("base-url") {
				cfg.BaseURL = baseURL
			}
			return a.init(cfg, cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error, disabled)")
	root.PersistentFlags().BoolVar(&pretty, "pretty", false, "human-readable log output")
	root.PersistentFlags().StringVar(&baseURL, "base-url", "", "backend base URL (overrides "+config.EnvBaseURL+")")

	root.AddCommand(
		newListCmd(a),
		newExportCmd(a),
		newLeaderboardCmd(a),
		newRoleCmd(a),
		newProxyCmd(a),
	)
	return root
}

func (a *app) init(cfg config.Config, cmd *cobra.Command) error {
	a.cfg = cfg
	a.logger = logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: cmd.ErrOrStderr(),
	})

	a.session = auth.NewSession(logging.NewLogger("session"))
	if cfg.Token != "" {
		a.session.Set(&auth.Identity{Token: cfg.Token})
	}

	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		if err := a.redis.Ping(cmd.Context()).Err(); err != nil {
			a.logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis unavailable, running without shared cache")
			a.redis.Close()
			a.redis = nil
		}
	}

	c, err := client.New(client.Config{
		BaseURL:   cfg.BaseURL,
		UserAgent: cfg.UserAgent,
		Auth:      a.session,
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		Retry:     client.FixedRetryConfig(cfg.Retries, cfg.RetryDelay),
		Redis:     a.redis,
	})
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	a.client = c
	return nil
}

// store returns the page store for list queries: Redis when configured,
// scoped to the configured identity, in-process otherwise.
func (a *app) store() pagination.Store {
	if a.redis != nil {
		return pagination.NewRedisStore(cache.NewManager(a.redis), a.session.Current().CacheScope())
	}
	return pagination.NewMemoryStore()
}

func (a *app) coordinator() *pagination.Coordinator {
	return pagination.NewCoordinator(pagination.NewHTTPFetcher(a.client), pagination.Options{
		PageSize:  a.cfg.PageSize,
		StaleTime: a.cfg.StaleTime,
		Retry:     client.FixedRetryConfig(a.cfg.Retries, a.cfg.RetryDelay),
		Store:     a.store(),
	})
}

func (a *app) close() {
	if a.client != nil {
		a.client.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
}

// requestTimeout bounds one-shot commands.
const requestTimeout = 2 * time.Minute
