// Package client talks to the medpocket REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/hugh/medpocket/internal/api/dto"
	"github.com/hugh/medpocket/internal/cards/types"
	"github.com/hugh/medpocket/internal/llm"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrBadRequest   = errors.New("bad request")
	ErrUnavailable  = errors.New("server unavailable")
)

// APIError is a non-2xx response decoded from the server's error body.
type APIError struct {
	StatusCode int
	Message    string
	Details    map[string]string
}

func (e *APIError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("api: status %d: %s", e.StatusCode, e.Message)
	}
	parts := make([]string, 0, len(e.Details))
	for field, msg := range e.Details {
		parts = append(parts, field+": "+msg)
	}
	return fmt.Sprintf("api: status %d: %s (%s)", e.StatusCode, e.Message, strings.Join(parts, "; "))
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrBadRequest:
		return e.StatusCode == http.StatusBadRequest
	case ErrUnavailable:
		return e.StatusCode >= http.StatusInternalServerError
	}
	return false
}

// IsUnavailable reports whether err means the server could not be reached
// or failed on its side, as opposed to rejecting the request.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

type Options struct {
	Timeout    time.Duration
	MaxRetries int
	Logger     *slog.Logger
}

// Client is safe for concurrent use. Only idempotent requests are retried.
type Client struct {
	baseURL string
	retry   *retryablehttp.Client
	once    *retryablehttp.Client

	mu    sync.RWMutex
	token string
}

func New(baseURL string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	build := func(retries int) *retryablehttp.Client {
		c := retryablehttp.NewClient()
		c.RetryMax = retries
		c.RetryWaitMin = 200 * time.Millisecond
		c.RetryWaitMax = 2 * time.Second
		c.HTTPClient.Timeout = opts.Timeout
		c.Logger = nil
		if opts.Logger != nil {
			c.Logger = opts.Logger
		}
		c.ErrorHandler = retryablehttp.PassthroughErrorHandler
		return c
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		retry:   build(opts.MaxRetries),
		once:    build(0),
	}
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	httpClient := c.retry
	if method == http.MethodPost {
		httpClient = c.once
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %v", method, path, ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: %w: reading response: %v", method, path, ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var body dto.ErrorResponse
		if json.Unmarshal(raw, &body) == nil && body.Error != "" {
			apiErr.Message = body.Error
			apiErr.Details = body.Details
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) Register(ctx context.Context, email, password, name string) (*dto.AuthResponse, error) {
	var resp dto.AuthResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/register",
		dto.RegisterRequest{Email: email, Password: password, Name: name}, &resp)
	if err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	return &resp, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*dto.AuthResponse, error) {
	var resp dto.AuthResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login",
		dto.LoginRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	return &resp, nil
}

func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
	c.SetToken("")
	return err
}

func (c *Client) Me(ctx context.Context) (*dto.UserDTO, error) {
	var resp dto.MeResponse
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// CardQuery mirrors the list endpoint's query parameters.
type CardQuery struct {
	Specialty string
	Section   string
	Query     string
	Tags      []string
	Sections  []string
	AI        *bool
	Sort      string
	Lang      string
}

func (q CardQuery) encode() string {
	v := url.Values{}
	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	set("specialty", q.Specialty)
	set("section", q.Section)
	set("q", q.Query)
	set("tags", strings.Join(q.Tags, ","))
	set("sections", strings.Join(q.Sections, ","))
	set("sort", q.Sort)
	set("lang", q.Lang)
	if q.AI != nil {
		v.Set("ai", fmt.Sprintf("%t", *q.AI))
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

func (c *Client) ListCards(ctx context.Context, q CardQuery) ([]types.Card, error) {
	var out []types.Card
	if err := c.do(ctx, http.MethodGet, "/api/medical-cards"+q.encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListPublicCards(ctx context.Context) ([]types.Card, error) {
	var out []types.Card
	if err := c.do(ctx, http.MethodGet, "/api/public-cards", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateCard(ctx context.Context, card types.Card) (types.Card, error) {
	var out types.Card
	err := c.do(ctx, http.MethodPost, "/api/medical-cards", createBody(card), &out)
	return out, err
}

func (c *Client) UpdateCard(ctx context.Context, id string, patch CardPatch) (types.Card, error) {
	var out types.Card
	err := c.do(ctx, http.MethodPut, "/api/medical-cards/"+url.PathEscape(id), patch.body(), &out)
	return out, err
}

func (c *Client) DeleteCard(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/medical-cards/"+url.PathEscape(id), nil, nil)
}

func (c *Client) MakePublic(ctx context.Context, id string) (types.Card, error) {
	var out types.Card
	err := c.do(ctx, http.MethodPost, "/api/public-cards/make-public/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) GetNote(ctx context.Context, cardID string) (string, error) {
	var out dto.NoteResponse
	if err := c.do(ctx, http.MethodGet, "/api/medical-cards/"+url.PathEscape(cardID)+"/note", nil, &out); err != nil {
		return "", err
	}
	return out.Note, nil
}

func (c *Client) PutNote(ctx context.Context, cardID, note string) error {
	return c.do(ctx, http.MethodPut, "/api/medical-cards/"+url.PathEscape(cardID)+"/note",
		dto.NoteRequest{Note: note}, nil)
}

// Chat proxies one conversation through the server, so the client can drive
// a generation session with the server's provider key.
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	body := dto.ChatRequest{
		Messages:    make([]dto.ChatMessage, len(req.Messages)),
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	for i, m := range req.Messages {
		body.Messages[i] = dto.ChatMessage{Role: m.Role, Content: m.Content}
	}

	var out dto.ChatResponse
	if err := c.do(ctx, http.MethodPost, "/api/ai/chat", body, &out); err != nil {
		return "", err
	}
	return out.Content, nil
}

func (c *Client) Generate(ctx context.Context, req dto.GenerateRequest) (*dto.GenerateResponse, error) {
	var out dto.GenerateResponse
	if err := c.do(ctx, http.MethodPost, "/api/ai/generate", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateGenerationJob(ctx context.Context, req dto.GenerateRequest) (*dto.GenerationJobResponse, error) {
	var out dto.GenerationJobResponse
	if err := c.do(ctx, http.MethodPost, "/api/ai/generate/jobs", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetGenerationJob(ctx context.Context, id string) (*dto.GenerationJobResponse, error) {
	var out dto.GenerationJobResponse
	if err := c.do(ctx, http.MethodGet, "/api/ai/generate/jobs/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SaveGenerationJob(ctx context.Context, id string, indexes []int) (*dto.SaveGeneratedResponse, error) {
	var out dto.SaveGeneratedResponse
	err := c.do(ctx, http.MethodPost, "/api/ai/generate/jobs/"+url.PathEscape(id)+"/save",
		dto.SaveGeneratedRequest{Indexes: indexes}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Health returns the overall status string from /health.
func (c *Client) Health(ctx context.Context) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}
