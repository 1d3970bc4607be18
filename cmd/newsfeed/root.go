package main

import (
	"context"
	"fmt"

	"github.com/Sternrassler/newsfeed-client/internal/config"
	"github.com/Sternrassler/newsfeed-client/pkg/cache"
	"github.com/Sternrassler/newsfeed-client/pkg/client"
	"github.com/Sternrassler/newsfeed-client/pkg/logging"
	"github.com/Sternrassler/newsfeed-client/pkg/transport"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app holds what every subcommand shares. It is built in PersistentPreRunE
// and torn down in PersistentPostRunE.
type app struct {
	cfg    *config.Config
	client *client.Client
	logger zerolog.Logger
	redis  *redis.Client
}

type rootFlags struct {
	configPath string
	redisAddr  string
	logLevel   string
	pretty     bool
}

func newRootCmd() *cobra.Command {
	var (
		flags rootFlags
		a     = &app{}
	)

	cmd := &cobra.Command{
		Use:          "newsfeed",
		Short:        "Paginated news reader with retrying, cached page fetches",
		Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.Context(), flags, cmd.Flags().Changed("pretty"))
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to config file (default ./newsfeed.yaml if present)")
	cmd.PersistentFlags().StringVar(&flags.redisAddr, "redis", "", "Redis address for a shared page cache (overrides cache.redis_addr)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.PersistentFlags().BoolVar(&flags.pretty, "pretty", false, "human-readable log output")

	cmd.AddCommand(newReadCmd(a), newWarmCmd(a), newServeCmd(a))
	return cmd
}

func (a *app) init(ctx context.Context, flags rootFlags, prettySet bool) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	if flags.redisAddr != "" {
		cfg.Cache.RedisAddr = flags.redisAddr
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if prettySet {
		cfg.Log.Pretty = flags.pretty
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logging.Setup(cfg.Logging())
	a.logger = logging.NewLogger(logging.ComponentCLI)

	tr, err := transport.New(cfg.Transport())
	if err != nil {
		return fmt.Errorf("create transport: %w", err)
	}

	store, err := a.openCache(ctx)
	if err != nil {
		return err
	}

	a.client, err = client.New(cfg.Client(tr, store))
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	return nil
}

// openCache returns process memory, or memory layered over Redis when an
// address is configured.
func (a *app) openCache(ctx context.Context) (cache.Store, error) {
	if a.cfg.Cache.RedisAddr == "" {
		return cache.NewMemory(), nil
	}

	a.redis = redis.NewClient(&redis.Options{
		Addr:     a.cfg.Cache.RedisAddr,
		Password: a.cfg.Cache.RedisPassword,
		DB:       a.cfg.Cache.RedisDB,
	})
	if err := a.redis.Ping(ctx).Err(); err != nil {
		_ = a.redis.Close()
		a.redis = nil
		return nil, fmt.Errorf("connect to redis at %s: %w", a.cfg.Cache.RedisAddr, err)
	}

	store := cache.NewRedisStore(a.redis, a.cfg.Redis())
	a.logger.Info().
		Str("addr", a.cfg.Cache.RedisAddr).
		Str("session", store.Session()).
		Msg("Connected to Redis")

	return cache.NewTiered(cache.NewMemory(), store), nil
}

func (a *app) close() error {
	if a.client != nil {
		_ = a.client.Close()
	}
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}
