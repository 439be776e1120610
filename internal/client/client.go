// Package client is a small typed client for the StrayMandu HTTP API, used by
// the CLI.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/straymandu/internal/model"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// Client talks to one API base URL with one bearer token.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// New constructs a Client. token may be empty for anonymous calls.
func New(baseURL, token string, logger *zap.Logger) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(3*time.Second).
		SetHeader("Accept", "application/json")
	if token != "" {
		c.SetAuthToken(token)
	}
	return &Client{http: c, logger: logger}
}

func (c *Client) call(ctx context.Context, method, path string, query map[string]string, body, out interface{}) error {
	var env envelope
	req := c.http.R().SetContext(ctx).SetResult(&env).SetError(&env)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		c.logger.Error("api call failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() || !env.Success {
		msg := env.Message
		if msg == "" {
			msg = resp.Status()
		}
		return &APIError{StatusCode: resp.StatusCode(), Message: msg}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// ListParams mirrors the GET /reports query string.
type ListParams struct {
	Status    string
	Near      string
	Sort      string
	RadiusKm  float64
	Mine      bool
	Unclaimed bool
	Limit     int
}

func (p ListParams) query() map[string]string {
	q := map[string]string{}
	if p.Status != "" {
		q["status"] = p.Status
	}
	if p.Near != "" {
		q["near"] = p.Near
	}
	if p.Sort != "" {
		q["sort"] = p.Sort
	}
	if p.RadiusKm > 0 {
		q["radiusKm"] = strconv.FormatFloat(p.RadiusKm, 'f', -1, 64)
	}
	if p.Mine {
		q["mine"] = "1"
	}
	if p.Unclaimed {
		q["unclaimed"] = "1"
	}
	if p.Limit > 0 {
		q["limit"] = strconv.Itoa(p.Limit)
	}
	return q
}

// ListReports calls GET /reports.
func (c *Client) ListReports(ctx context.Context, p ListParams) ([]*model.Report, error) {
	var out []*model.Report
	if err := c.call(ctx, resty.MethodGet, "/reports", p.query(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetReport calls GET /reports/{id}.
func (c *Client) GetReport(ctx context.Context, id string) (*model.Report, error) {
	var out model.Report
	if err := c.call(ctx, resty.MethodGet, "/reports/"+id, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Claim calls POST /reports/{id}/claim.
func (c *Client) Claim(ctx context.Context, id string) (*model.Report, error) {
	var out model.Report
	if err := c.call(ctx, resty.MethodPost, "/reports/"+id+"/claim", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetStatus calls POST /reports/{id}/status.
func (c *Client) SetStatus(ctx context.Context, id string, status model.Status) (*model.Report, error) {
	var out model.Report
	body := map[string]string{"status": string(status)}
	if err := c.call(ctx, resty.MethodPost, "/reports/"+id+"/status", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AssignTeam calls POST /reports/{id}/team.
func (c *Client) AssignTeam(ctx context.Context, id, teamID string) (*model.Report, error) {
	var out model.Report
	body := map[string]string{"teamId": teamID}
	if err := c.call(ctx, resty.MethodPost, "/reports/"+id+"/team", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Notifications is the body of GET /notifications.
type Notifications struct {
	Items  []*model.Notification `json:"items"`
	Unread int                   `json:"unread"`
}

// ListNotifications calls GET /notifications.
func (c *Client) ListNotifications(ctx context.Context, limit int) (*Notifications, error) {
	var out Notifications
	q := map[string]string{}
	if limit > 0 {
		q["limit"] = strconv.Itoa(limit)
	}
	if err := c.call(ctx, resty.MethodGet, "/notifications", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkAllRead calls POST /notifications/read-all and returns how many changed.
func (c *Client) MarkAllRead(ctx context.Context) (int, error) {
	var out struct {
		Updated int `json:"updated"`
	}
	if err := c.call(ctx, resty.MethodPost, "/notifications/read-all", nil, nil, &out); err != nil {
		return 0, err
	}
	return out.Updated, nil
}

// Leaderboard calls GET /leaderboard.
func (c *Client) Leaderboard(ctx context.Context, period model.LeaderboardPeriod, limit int) ([]*model.Profile, error) {
	q := map[string]string{"period": string(period)}
	if limit > 0 {
		q["limit"] = strconv.Itoa(limit)
	}
	var out []*model.Profile
	if err := c.call(ctx, resty.MethodGet, "/leaderboard", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
