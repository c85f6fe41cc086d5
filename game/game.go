package game

import (
	"context"

	"teaquest/adapters/memory"
	"teaquest/analytics"
	"teaquest/core"
	"teaquest/engine"
	"teaquest/integrations/webhook"
	"teaquest/leaderboard"
	"teaquest/realtime"
)

// Option configures the game service builder.
type Option func(*config)

type config struct {
	storage   engine.Storage
	mode      engine.DispatchMode
	policy    core.CompletionPolicy
	hub       *realtime.Hub
	board     leaderboard.Board
	sink      *webhook.Sink
	analytics analytics.Hook
}

// WithStorage sets the persistence adapter.
func WithStorage(s engine.Storage) Option { return func(c *config) { c.storage = s } }

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(c *config) { c.mode = m } }

// WithPolicy sets the goal completion policy.
func WithPolicy(p core.CompletionPolicy) Option { return func(c *config) { c.policy = p } }

// WithRealtime wires a realtime hub to receive all game events.
func WithRealtime(h *realtime.Hub) Option { return func(c *config) { c.hub = h } }

// WithLeaderboard keeps the board in sync with player experience.
func WithLeaderboard(b leaderboard.Board) Option { return func(c *config) { c.board = b } }

// WithWebhook forwards game events to the sink's endpoints.
func WithWebhook(s *webhook.Sink) Option { return func(c *config) { c.sink = s } }

// WithAnalytics feeds game events into an analytics hook.
func WithAnalytics(h analytics.Hook) Option { return func(c *config) { c.analytics = h } }

var allEventTypes = []core.EventType{
	core.EventQuestCompleted,
	core.EventAchievementUnlocked,
	core.EventProgressUpdated,
	core.EventLevelUp,
	core.EventCardGranted,
}

// New builds a configured GameService. If not provided, defaults are used:
//   - storage: seeded in-memory
//   - dispatch: async
//   - policy: reject recompletion, no progress gate
func New(opts ...Option) *engine.GameService {
	cfg := &config{mode: engine.DispatchAsync}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.storage == nil {
		cfg.storage = memory.NewSeeded()
	}
	bus := engine.NewEventBus(cfg.mode)
	svc := engine.NewGameService(cfg.storage, bus, cfg.policy)
	if cfg.board != nil {
		svc.AttachLeaderboard(cfg.board)
	}
	for _, typ := range allEventTypes {
		hub, sink, hook := cfg.hub, cfg.sink, cfg.analytics
		if hub == nil && sink == nil && hook == nil {
			break
		}
		bus.Subscribe(typ, func(ctx context.Context, e core.Event) {
			if hub != nil {
				hub.Broadcast(ctx, e)
			}
			if sink != nil {
				sink.OnEvent(ctx, e)
			}
			if hook != nil {
				hook.OnEvent(e)
			}
		})
	}
	return svc
}
