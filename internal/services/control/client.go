package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/NordCoder/Feedwatch/internal/domain/endpoint"
)

// HTTPError is a non-2xx answer from the control API.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// Client talks to a running watcher over the /api routes. Responses are
// returned as raw JSON for printing.
type Client struct {
	baseURL string
	hc      *http.Client
}

func NewClient(baseURL string, hc *http.Client) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8080"
	}
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: baseURL, hc: hc}
}

func (c *Client) ListEndpoints(ctx context.Context, activeOnly bool) ([]string, error) {
	path := "/api/endpoints"
	if activeOnly {
		path += "/active"
	}
	var out struct {
		Tags []string `json:"tags"`
	}
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out.Tags, err
}

func (c *Client) GetEndpoint(ctx context.Context, tag string) (json.RawMessage, error) {
	return c.raw(ctx, http.MethodGet, tagPath(tag, ""), nil)
}

func (c *Client) UpsertEndpoint(ctx context.Context, tag string, partial map[string]any) (json.RawMessage, error) {
	return c.raw(ctx, http.MethodPut, tagPath(tag, ""), partial)
}

func (c *Client) RemoveEndpoint(ctx context.Context, tag string) (json.RawMessage, error) {
	return c.raw(ctx, http.MethodDelete, tagPath(tag, ""), nil)
}

func (c *Client) SetActive(ctx context.Context, tag string, active bool) error {
	op := "/deactivate"
	if active {
		op = "/activate"
	}
	return c.doJSON(ctx, http.MethodPost, tagPath(tag, op), nil, nil)
}

func (c *Client) State(ctx context.Context, tag string) (json.RawMessage, error) {
	return c.raw(ctx, http.MethodGet, tagPath(tag, "/state"), nil)
}

func (c *Client) MuteItems(ctx context.Context, tag string, minutes int) (json.RawMessage, error) {
	var body any
	if minutes > 0 {
		body = muteRequest{Minutes: minutes}
	}
	return c.raw(ctx, http.MethodPost, tagPath(tag, "/mute/items"), body)
}

// StateOp posts one of the body-less state operations: unmute/items,
// mute/api, unmute/api or reset.
func (c *Client) StateOp(ctx context.Context, tag, op string) (json.RawMessage, error) {
	return c.raw(ctx, http.MethodPost, tagPath(tag, "/"+strings.Trim(op, "/")), nil)
}

func (c *Client) History(ctx context.Context, tag string, limit int) (json.RawMessage, error) {
	path := tagPath(tag, "/history")
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	return c.raw(ctx, http.MethodGet, path, nil)
}

func (c *Client) Schedulers(ctx context.Context) (json.RawMessage, error) {
	return c.raw(ctx, http.MethodGet, "/api/schedulers", nil)
}

// SchedulerOp posts start, stop or restart for the timer of tag.
func (c *Client) SchedulerOp(ctx context.Context, tag, op string) (json.RawMessage, error) {
	return c.raw(ctx, http.MethodPost, "/api/schedulers/"+url.PathEscape(tag)+"/"+strings.Trim(op, "/"), nil)
}

func (c *Client) CleanupSchedulers(ctx context.Context) (json.RawMessage, error) {
	return c.raw(ctx, http.MethodPost, "/api/schedulers/cleanup", nil)
}

func (c *Client) TestMap(ctx context.Context, cfg *endpoint.Config) (json.RawMessage, error) {
	return c.raw(ctx, http.MethodPost, "/api/test-map", cfg)
}

func tagPath(tag, suffix string) string {
	return "/api/endpoints/" + url.PathEscape(tag) + suffix
}

func (c *Client) raw(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.doJSON(ctx, method, path, body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var er errorResponse
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &er) == nil && er.Error != "" {
			msg = er.Error
		}
		return &HTTPError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
