package sdk

import (
	"encoding/json"
	"fmt"
	"net/http"

	"teaquest/core"
)

// CompletionResult mirrors the completion endpoints' JSON response. The
// server keys the completed goal by its kind ("quest" or "achievement");
// both land in Goal here.
type CompletionResult struct {
	User      core.User
	Goal      core.Goal
	LeveledUp bool
	Rewards   core.Reward
	Card      *core.UserCard
	// CardError is set when the reward applied but the card grant failed.
	CardError string
}

func (r *CompletionResult) UnmarshalJSON(data []byte) error {
	var raw struct {
		User        core.User      `json:"user"`
		Quest       *core.Goal     `json:"quest"`
		Achievement *core.Goal     `json:"achievement"`
		LeveledUp   bool           `json:"leveledUp"`
		Rewards     core.Reward    `json:"rewards"`
		Card        *core.UserCard `json:"card"`
		CardError   string         `json:"cardError"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.User = raw.User
	r.LeveledUp = raw.LeveledUp
	r.Rewards = raw.Rewards
	r.Card = raw.Card
	r.CardError = raw.CardError
	switch {
	case raw.Quest != nil:
		r.Goal = *raw.Quest
	case raw.Achievement != nil:
		r.Goal = *raw.Achievement
	}
	return nil
}

// ProgressResult mirrors the progress endpoints' JSON response.
type ProgressResult struct {
	Goal          core.Goal
	AutoCompleted bool
}

func (r *ProgressResult) UnmarshalJSON(data []byte) error {
	var raw struct {
		Quest         *core.Goal `json:"quest"`
		Achievement   *core.Goal `json:"achievement"`
		AutoCompleted bool       `json:"autoCompleted"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.AutoCompleted = raw.AutoCompleted
	switch {
	case raw.Quest != nil:
		r.Goal = *raw.Quest
	case raw.Achievement != nil:
		r.Goal = *raw.Achievement
	}
	return nil
}

// LeaderboardEntry mirrors the leaderboard endpoint's JSON rows.
type LeaderboardEntry struct {
	User       core.UserID `json:"user"`
	Experience int64       `json:"experience"`
}

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status string                 `json:"status"`
	Checks map[string]interface{} `json:"checks"`
}

// APIError is the server's error envelope, surfaced with its HTTP status.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
}

func decodeJSON(resp *http.Response, target any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil {
			return fmt.Errorf("request failed: status %d", resp.StatusCode)
		}
		return apiErr
	}
	return json.NewDecoder(resp.Body).Decode(target)
}
