// Package client is the thin query client for the Luminate REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"luminate/backend/models"
)

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
	Details map[string]string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api error (%d)", e.Status)
}

// IsStatus reports whether err is an *APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	token   func() string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds every request; zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		timeout: 10 * time.Second,
		token:   func() string { return "" },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetTokenSource sets where bearer tokens come from. Call it before issuing requests.
func (c *Client) SetTokenSource(fn func() string) {
	if fn != nil {
		c.token = fn
	}
}

type envelope struct {
	Success bool              `json:"success"`
	Data    json.RawMessage   `json:"data"`
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Details map[string]string `json:"details"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && !errors.Is(err, io.EOF) {
		if resp.StatusCode >= 300 {
			return &APIError{Status: resp.StatusCode}
		}
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 300 || !env.Success {
		msg := env.Message
		if msg == "" {
			msg = env.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg, Details: env.Details}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// AuthResult is what the identity endpoints return.
type AuthResult struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

func (c *Client) Register(ctx context.Context, email, password, name string) (AuthResult, error) {
	var out AuthResult
	err := c.do(ctx, http.MethodPost, "/api/auth/register", map[string]string{
		"email": email, "password": password, "name": name,
	}, &out)
	return out, err
}

func (c *Client) Login(ctx context.Context, email, password string) (AuthResult, error) {
	var out AuthResult
	err := c.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{
		"email": email, "password": password,
	}, &out)
	return out, err
}

func (c *Client) ListTopics(ctx context.Context) ([]models.Topic, error) {
	var out []models.Topic
	err := c.do(ctx, http.MethodGet, "/api/topics", nil, &out)
	return out, err
}

// SearchTopics matches term against the catalog; sort is popularity, newest or title.
func (c *Client) SearchTopics(ctx context.Context, term, sort string) ([]models.Topic, error) {
	q := url.Values{}
	q.Set("q", term)
	if sort != "" {
		q.Set("sort", sort)
	}
	var out []models.Topic
	err := c.do(ctx, http.MethodGet, "/api/topics/search?"+q.Encode(), nil, &out)
	return out, err
}

func (c *Client) ListSections(ctx context.Context, topicID string) ([]models.ContentSection, error) {
	var out []models.ContentSection
	err := c.do(ctx, http.MethodGet, "/api/topics/"+url.PathEscape(topicID)+"/sections", nil, &out)
	return out, err
}

func (c *Client) PopularityHistory(ctx context.Context, topicID string, limit int) ([]models.PopularitySnapshot, error) {
	var out []models.PopularitySnapshot
	path := "/api/topics/" + url.PathEscape(topicID) + "/popularity?limit=" + strconv.Itoa(limit)
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// ListProgress returns the signed-in user's progress records.
func (c *Client) ListProgress(ctx context.Context) ([]models.ProgressRecord, error) {
	var out []models.ProgressRecord
	err := c.do(ctx, http.MethodGet, "/api/progress", nil, &out)
	return out, err
}

// InsertProgress creates the record for topicID, or patches it if the server already has one.
func (c *Client) InsertProgress(ctx context.Context, topicID string, u models.ProgressUpdate) (models.ProgressRecord, error) {
	var out models.ProgressRecord
	err := c.do(ctx, http.MethodPut, "/api/progress/topics/"+url.PathEscape(topicID), u, &out)
	return out, err
}

func (c *Client) UpdateProgress(ctx context.Context, id string, u models.ProgressUpdate) (models.ProgressRecord, error) {
	var out models.ProgressRecord
	err := c.do(ctx, http.MethodPatch, "/api/progress/"+url.PathEscape(id), u, &out)
	return out, err
}

func (c *Client) Activity(ctx context.Context, days int) ([]models.ActivityPoint, error) {
	var out []models.ActivityPoint
	err := c.do(ctx, http.MethodGet, "/api/activity?days="+strconv.Itoa(days), nil, &out)
	return out, err
}
