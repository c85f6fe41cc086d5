package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"teaquest/core"
)

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the game HTTP + WebSocket API.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	headers    http.Header
}

// NewClient constructs a new SDK client targeting the given baseURL (e.g., http://localhost:8080/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL:    baseURL,
		wsURL:      deriveWSURL(baseURL),
		httpClient: http.DefaultClient,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithAuthToken adds an Authorization: Bearer token header to all requests (HTTP + WS).
func WithAuthToken(token string) Option {
	return func(c *Client) {
		if strings.TrimSpace(token) != "" {
			c.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithAPIKey adds an X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" {
			c.headers.Set("X-API-Key", key)
		}
	}
}

// WithUserID selects the acting player for all requests. Without it the
// server falls back to the demo account.
func WithUserID(id core.UserID) Option {
	return func(c *Client) {
		c.headers.Set("X-User-ID", fmt.Sprintf("%d", id))
	}
}

// WithHeader sets an arbitrary header applied to HTTP and WS calls.
func WithHeader(k, v string) Option {
	return func(c *Client) {
		if k != "" {
			c.headers.Set(k, v)
		}
	}
}

// GetUser fetches the acting player's account state.
func (c *Client) GetUser(ctx context.Context) (core.User, error) {
	var u core.User
	err := c.do(ctx, http.MethodGet, "/user", nil, &u)
	return u, err
}

// PatchUserStats partially updates the player's numeric stats.
func (c *Client) PatchUserStats(ctx context.Context, patch core.UserPatch) (core.User, error) {
	var u core.User
	err := c.do(ctx, http.MethodPatch, "/user/stats", patch, &u)
	return u, err
}

// ListTeaCards fetches the tea card catalogue.
func (c *Client) ListTeaCards(ctx context.Context) ([]core.TeaCard, error) {
	var cards []core.TeaCard
	err := c.do(ctx, http.MethodGet, "/tea-cards", nil, &cards)
	return cards, err
}

// ListUserCards fetches the player's collection.
func (c *Client) ListUserCards(ctx context.Context) ([]core.UserCard, error) {
	var cards []core.UserCard
	err := c.do(ctx, http.MethodGet, "/user-cards", nil, &cards)
	return cards, err
}

// GrantCard adds a card to the player's collection.
func (c *Client) GrantCard(ctx context.Context, card core.CardID) (core.UserCard, error) {
	var uc core.UserCard
	err := c.do(ctx, http.MethodPost, "/user-cards", map[string]core.CardID{"card_id": card}, &uc)
	return uc, err
}

// ListQuests fetches the player's quests.
func (c *Client) ListQuests(ctx context.Context) ([]core.Goal, error) {
	var quests []core.Goal
	err := c.do(ctx, http.MethodGet, "/quests", nil, &quests)
	return quests, err
}

// ListAchievements fetches the player's achievements.
func (c *Client) ListAchievements(ctx context.Context) ([]core.Goal, error) {
	var achievements []core.Goal
	err := c.do(ctx, http.MethodGet, "/achievements", nil, &achievements)
	return achievements, err
}

// ListWeeklyEvents fetches the active weekly event schedule.
func (c *Client) ListWeeklyEvents(ctx context.Context) ([]core.WeeklyEvent, error) {
	var events []core.WeeklyEvent
	err := c.do(ctx, http.MethodGet, "/weekly-events", nil, &events)
	return events, err
}

// CompleteQuest claims a quest's reward.
func (c *Client) CompleteQuest(ctx context.Context, id core.GoalID) (CompletionResult, error) {
	var res CompletionResult
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/complete-quest/%d", id), nil, &res)
	return res, err
}

// CompleteAchievement claims an achievement's reward.
func (c *Client) CompleteAchievement(ctx context.Context, id core.GoalID) (CompletionResult, error) {
	var res CompletionResult
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/complete-achievement/%d", id), nil, &res)
	return res, err
}

// SetQuestProgress records quest progress.
func (c *Client) SetQuestProgress(ctx context.Context, id core.GoalID, progress int64) (ProgressResult, error) {
	var res ProgressResult
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/quests/%d", id), map[string]int64{"progress": progress}, &res)
	return res, err
}

// SetAchievementProgress records achievement progress.
func (c *Client) SetAchievementProgress(ctx context.Context, id core.GoalID, progress int64) (ProgressResult, error) {
	var res ProgressResult
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/achievement/%d/progress", id), map[string]int64{"progress": progress}, &res)
	return res, err
}

// StartDailyQuest creates a fresh daily quest for the player.
func (c *Client) StartDailyQuest(ctx context.Context) (core.Goal, error) {
	var q core.Goal
	err := c.do(ctx, http.MethodPost, "/start-daily-quest", nil, &q)
	return q, err
}

// Leaderboard fetches the top n players by experience.
func (c *Client) Leaderboard(ctx context.Context, n int) ([]LeaderboardEntry, error) {
	var entries []LeaderboardEntry
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/leaderboard?n=%d", n), nil, &entries)
	return entries, err
}

// Health probes /healthz and returns status + storage check.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var hs HealthStatus
	err := c.do(ctx, http.MethodGet, "/healthz", nil, &hs)
	return hs, err
}

// SubscribeEvents connects to the WebSocket stream and emits core.Event values.
// Optional types narrow the stream server-side. The returned channel closes
// when ctx is done or the connection drops.
func (c *Client) SubscribeEvents(ctx context.Context, types ...core.EventType) (<-chan core.Event, error) {
	if c.wsURL == "" {
		return nil, errors.New("wsURL is not set; ensure baseURL is http/https")
	}
	target := c.wsURL
	if len(types) > 0 {
		parts := make([]string, len(types))
		for i, t := range types {
			parts[i] = string(t)
		}
		target += "?types=" + url.QueryEscape(strings.Join(parts, ","))
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, target, c.headers)
	if err != nil {
		return nil, err
	}

	out := make(chan core.Event, 32)
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			select {
			case <-ctx.Done():
				return
			default:
				var evt core.Event
				if err := conn.ReadJSON(&evt); err != nil {
					return
				}
				select {
				case out <- evt:
				default:
					// drop if consumer is slow
				}
			}
		}
	}()
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, target any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeJSON(resp, target)
}

func (c *Client) applyHeaders(r *http.Request) {
	for k, vals := range c.headers {
		for _, v := range vals {
			r.Header.Add(k, v)
		}
	}
}

func deriveWSURL(httpBase string) string {
	u, err := url.Parse(httpBase)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		// leave as-is for custom schemes
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}
