package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	mem "teaquest/adapters/memory"
	redisAdapter "teaquest/adapters/redis"
	sqlxAdapter "teaquest/adapters/sqlx"
	"teaquest/analytics"
	"teaquest/api/httpapi"
	"teaquest/config"
	"teaquest/core"
	"teaquest/engine"
	"teaquest/game"
	"teaquest/integrations/webhook"
	"teaquest/leaderboard"
	"teaquest/realtime"
)

// App aggregates the assembled server components.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Hub     *realtime.Hub
	Metrics *analytics.ProgressionMetrics
	Service *engine.GameService
	Handler http.Handler
	Server  *http.Server
}

func provideConfig(_ context.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.Environment == config.EnvProduction {
		cfg.LoadSecretsFromEnv()
	}
	return cfg, nil
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return setupLogging(cfg)
}

func provideHub() *realtime.Hub {
	return realtime.NewHub()
}

func provideMetrics() *analytics.ProgressionMetrics {
	return analytics.NewProgressionMetrics()
}

func provideStorage(ctx context.Context, cfg *config.Config) (engine.Storage, error) {
	return setupStorage(ctx, cfg)
}

func provideService(cfg *config.Config, hub *realtime.Hub, storage engine.Storage, metrics *analytics.ProgressionMetrics) *engine.GameService {
	opts := []game.Option{
		game.WithStorage(storage),
		game.WithRealtime(hub),
		game.WithDispatchMode(engine.DispatchAsync),
		game.WithPolicy(cfg.Game.Policy()),
		game.WithAnalytics(metrics),
	}
	if cfg.Game.LeaderboardEnabled {
		opts = append(opts, game.WithLeaderboard(leaderboard.NewSkipList()))
	}
	if len(cfg.Webhook.Endpoints) > 0 {
		var types []core.EventType
		for _, t := range cfg.Webhook.EventTypes {
			types = append(types, core.EventType(t))
		}
		sink := webhook.New(cfg.Webhook.Endpoints, webhook.WithEventTypes(types...))
		opts = append(opts, game.WithWebhook(sink))
	}
	return game.New(opts...)
}

func provideHandler(svc *engine.GameService, hub *realtime.Hub, cfg *config.Config) http.Handler {
	return httpapi.NewMux(svc, hub, httpapi.Options{
		PathPrefix:       cfg.Server.PathPrefix,
		AllowCORSOrigin:  cfg.Server.CORSOrigin,
		APIKeys:          cfg.Security.APIKeys,
		RateLimitEnabled: cfg.Security.EnableRateLimit,
		RateLimitRPM:     cfg.Security.RateLimit.RequestsPerMinute,
		RateLimitBurst:   cfg.Security.RateLimit.BurstSize,
	})
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	if len(cfg.Logging.Attributes) > 0 {
		handler = handler.WithAttrs(convertAttributes(cfg.Logging.Attributes))
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// convertAttributes converts map[string]string to []slog.Attr.
func convertAttributes(attrs map[string]string) []slog.Attr {
	var result []slog.Attr
	for k, v := range attrs {
		result = append(result, slog.String(k, v))
	}
	return result
}

// setupStorage creates the appropriate storage adapter based on configuration.
func setupStorage(ctx context.Context, cfg *config.Config) (engine.Storage, error) {
	switch cfg.Storage.Adapter {
	case "memory":
		if cfg.Game.SeedDemoData {
			return mem.NewSeeded(), nil
		}
		return mem.New(), nil
	case "redis":
		store, err := redisAdapter.New(cfg.Storage.Redis)
		if err != nil {
			return nil, err
		}
		if cfg.Game.SeedDemoData {
			if err := seedRedis(ctx, store); err != nil {
				return nil, fmt.Errorf("seed redis demo data: %w", err)
			}
		}
		return store, nil
	case "sql":
		return sqlxAdapter.New(cfg.Storage.SQL)
	default:
		return nil, fmt.Errorf("unknown storage adapter: %s", cfg.Storage.Adapter)
	}
}

// seedRedis loads the demo catalogue into redis unless the demo player
// already exists.
func seedRedis(ctx context.Context, store *redisAdapter.Store) error {
	if _, err := store.GetUser(ctx, mem.DefaultUserID); err == nil {
		return nil
	} else if !errors.Is(err, core.ErrUserNotFound) {
		return err
	}

	fx := mem.DemoFixtures()
	if err := store.PutUser(ctx, fx.User); err != nil {
		return err
	}
	for _, c := range fx.TeaCards {
		if err := store.PutTeaCard(ctx, c); err != nil {
			return err
		}
	}
	for _, g := range append(fx.Quests, fx.Achievements...) {
		if err := store.PutGoal(ctx, g); err != nil {
			return err
		}
	}
	for _, uc := range fx.UserCards {
		for i := int64(0); i < uc.Quantity; i++ {
			if _, err := store.GrantCard(ctx, uc.UserID, uc.CardID); err != nil {
				return err
			}
		}
	}
	return store.PutWeeklyEvents(ctx, fx.WeeklyEvents)
}
