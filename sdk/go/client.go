package tallysdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal tally HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Edge is a connection between two actors.
type Edge struct {
	ID        string `json:"id"`
	PartyA    string `json:"party_a"`
	PartyB    string `json:"party_b"`
	Initiator string `json:"initiator"`
	Status    string `json:"status"`
	Version   int64  `json:"version"`
}

// Project is a fundable (partial).
type Project struct {
	ID                string   `json:"id"`
	Owner             string   `json:"owner"`
	Title             string   `json:"title"`
	GoalAmount        float64  `json:"goal_amount"`
	GoalType          string   `json:"goal_type"`
	RaisedAmount      float64  `json:"raised_amount"`
	ContributorCount  int      `json:"contributor_count"`
	Status            string   `json:"status"`
	Milestones        []string `json:"milestones"`
	FundingPercentage float64  `json:"funding_percentage"`
}

type Contribution struct {
	ID            string  `json:"id"`
	FundableID    string  `json:"fundable_id"`
	ContributorID string  `json:"contributor_id,omitempty"`
	Amount        float64 `json:"amount"`
	Anonymous     bool    `json:"anonymous"`
}

// Policy is a votable with its counters.
type Policy struct {
	ID            string `json:"id"`
	Owner         string `json:"owner"`
	Title         string `json:"title"`
	Status        string `json:"status"`
	SupportCount  int    `json:"support_count"`
	OpposeCount   int    `json:"oppose_count"`
	NeutralCount  int    `json:"neutral_count"`
	FeedbackCount int    `json:"feedback_count"`
}

// VoteResult is the policy snapshot after a vote.
type VoteResult struct {
	Policy  Policy `json:"policy"`
	Changed bool   `json:"changed"`
}

type Account struct {
	Actor       string         `json:"actor_id"`
	TotalPoints int            `json:"total_points"`
	PerActivity map[string]int `json:"per_activity"`
	Tier        string         `json:"tier"`
}

type Match struct {
	ID      string   `json:"id"`
	Score   float64  `json:"score"`
	Matched []string `json:"matched,omitempty"`
}

// Event represents a journal entry.
type Event struct {
	ID            int64          `json:"id"`
	TS            string         `json:"ts"`
	Type          string         `json:"type"`
	AggregateKind string         `json:"aggregate_kind"`
	AggregateID   string         `json:"aggregate_id"`
	ActorID       string         `json:"actor_id"`
	Payload       map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code is the envelope's error code, such
// as duplicate_action or invalid_state.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// DevLogin mints a token on a server started with dev login enabled and
// uses it for later calls.
func (c *Client) DevLogin(ctx context.Context, actorID string) error {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "auth/dev/login", map[string]any{"actor_id": actorID}, &resp); err != nil {
		return err
	}
	c.BearerToken = resp.Token
	return nil
}

func (c *Client) Connect(ctx context.Context, targetID, message string) (Edge, error) {
	var resp Edge
	err := c.do(ctx, http.MethodPost, "connections", map[string]any{"target_id": targetID, "message": message}, &resp)
	return resp, err
}

func (c *Client) AcceptConnection(ctx context.Context, edgeID string) (Edge, error) {
	var resp Edge
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("connections/%s/accept", url.PathEscape(edgeID)), nil, &resp)
	return resp, err
}

func (c *Client) ProposeProject(ctx context.Context, title string, goal float64, goalType string) (Project, error) {
	body := map[string]any{"title": title, "goal_amount": goal, "goal_type": goalType}
	var resp Project
	err := c.do(ctx, http.MethodPost, "projects", body, &resp)
	return resp, err
}

// TransitionProject applies approve, start, complete or cancel.
func (c *Client) TransitionProject(ctx context.Context, projectID, action string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("projects/%s/transitions", url.PathEscape(projectID)), map[string]any{"action": action}, &resp)
	return resp, err
}

func (c *Client) Contribute(ctx context.Context, projectID string, amount float64, anonymous bool) (Project, Contribution, error) {
	var resp struct {
		Project      Project      `json:"project"`
		Contribution Contribution `json:"contribution"`
	}
	body := map[string]any{"amount": amount, "anonymous": anonymous}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("projects/%s/contributions", url.PathEscape(projectID)), body, &resp)
	return resp.Project, resp.Contribution, err
}

func (c *Client) Project(ctx context.Context, projectID string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("projects/%s", url.PathEscape(projectID)), nil, &resp)
	return resp, err
}

func (c *Client) CreatePolicy(ctx context.Context, title string) (Policy, error) {
	var resp struct {
		Policy Policy `json:"policy"`
	}
	err := c.do(ctx, http.MethodPost, "policies", map[string]any{"title": title}, &resp)
	return resp.Policy, err
}

// TransitionPolicy applies open, review, approve, reject or implement.
func (c *Client) TransitionPolicy(ctx context.Context, policyID, event string) (Policy, error) {
	var resp Policy
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("policies/%s/transitions", url.PathEscape(policyID)), map[string]any{"event": event}, &resp)
	return resp, err
}

func (c *Client) Vote(ctx context.Context, policyID, voteType, comment string) (VoteResult, error) {
	var resp VoteResult
	body := map[string]any{"vote_type": voteType, "comment": comment}
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("policies/%s/vote", url.PathEscape(policyID)), body, &resp)
	return resp, err
}

func (c *Client) Participation(ctx context.Context, actorID string) (Account, error) {
	var resp Account
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("actors/%s/participation", url.PathEscape(actorID)), nil, &resp)
	return resp, err
}

func (c *Client) Leaderboard(ctx context.Context, limit int) ([]Account, error) {
	var resp []Account
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("leaderboard?limit=%d", limit), nil, &resp)
	return resp, err
}

func (c *Client) JobMatches(ctx context.Context) ([]Match, error) {
	var resp []Match
	err := c.do(ctx, http.MethodGet, "me/job-matches", nil, &resp)
	return resp, err
}

// EventsPage returns a page of the ledger journal. Moderators only.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v0/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return decodeAPIError(resp.StatusCode, b)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var env struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Details = env.Error.Details
	}
	return apiErr
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
