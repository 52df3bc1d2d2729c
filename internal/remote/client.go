// Package remote is the HTTP client of the example store. It implements
// editor.Remote and turns API error bodies back into apperror values, so
// the editor can tell a lock conflict (code 8) from a retryable failure.
package remote

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
	"strconv"
	"strings"
	"time"

	"github.com/sakif/example-author/internal/apperror"
	"github.com/sakif/example-author/internal/model"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// Client talks to one example store.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
	logger  *slog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default client (30s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithToken authenticates every request with a JWT.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the JWT the client sends, if any.
func (c *Client) Token() string {
	return c.token
}

// =========================================================================
// AUTH
// =========================================================================

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResult struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

// Login exchanges email and password for a token, which the client keeps.
func (c *Client) Login(ctx context.Context, email, password string) (*model.User, error) {
	return c.authenticate(ctx, "/auth/login", email, password)
}

// Register creates a password account and logs in with it.
func (c *Client) Register(ctx context.Context, email, password string) (*model.User, error) {
	return c.authenticate(ctx, "/auth/register", email, password)
}

func (c *Client) authenticate(ctx context.Context, path, email, password string) (*model.User, error) {
	var out authResult
	if err := c.do(ctx, http.MethodPost, path, credentials{Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	c.token = out.Token
	return out.User, nil
}

// Me returns the logged-in user.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var u model.User
	if err := c.do(ctx, http.MethodGet, "/api/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// =========================================================================
// EXAMPLES
// =========================================================================

func resourcePath(res model.ResourceID) string {
	return "/api/" + url.PathEscape(res.Language) + "/" + url.PathEscape(res.Package)
}

func (c *Client) LockAndList(ctx context.Context, res model.ResourceID) (*model.LockAndList, error) {
	var out model.LockAndList
	if err := c.do(ctx, http.MethodGet, resourcePath(res)+"/lockAndList", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Release(ctx context.Context, res model.ResourceID) error {
	return c.do(ctx, http.MethodDelete, resourcePath(res)+"/lock", nil, nil)
}

func (c *Client) Create(ctx context.Context, res model.ResourceID, doc model.Example) (*model.Example, error) {
	var out model.Example
	if err := c.do(ctx, http.MethodPost, resourcePath(res)+"/examples", doc, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Update(ctx context.Context, doc model.Example) (*model.Example, error) {
	var out model.Example
	path := "/api/example/" + strconv.FormatInt(doc.BackendID, 10)
	if err := c.do(ctx, http.MethodPut, path, doc, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Get(ctx context.Context, id int64) (*model.Example, error) {
	var out model.Example
	if err := c.do(ctx, http.MethodGet, "/api/example/"+strconv.FormatInt(id, 10), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History lists every snapshot of an example, oldest first.
func (c *Client) History(ctx context.Context, id int64) ([]model.Example, error) {
	var out []model.Example
	path := "/api/example/" + strconv.FormatInt(id, 10) + "/history"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Query(ctx context.Context, statuses []model.Status) ([]model.Example, error) {
	parts := make([]string, len(statuses))
	for i, st := range statuses {
		parts[i] = string(st)
	}
	q := url.Values{"statuses": {strings.Join(parts, ",")}}

	var out []model.Example
	if err := c.do(ctx, http.MethodGet, "/api/examples/query?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Packages(ctx context.Context) ([]model.PackageSummary, error) {
	var out []model.PackageSummary
	if err := c.do(ctx, http.MethodGet, "/api/packages", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Execute(ctx context.Context, language string, req model.ExecuteRequest) (*model.ExecuteResponse, error) {
	var out model.ExecuteResponse
	if err := c.do(ctx, http.MethodPost, "/api/"+url.PathEscape(language)+"/execute", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Autoformat(ctx context.Context, language string, req model.ExecuteRequest) (*model.FormatResponse, error) {
	var out model.FormatResponse
	if err := c.do(ctx, http.MethodPost, "/api/"+url.PathEscape(language)+"/autoformat", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// =========================================================================
// TRANSPORT
// =========================================================================

// apiError is the error body written by the store.
type apiError struct {
	Code    int    `json:"code"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Owner   string `json:"owner"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return apperror.Transient(fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	c.logger.Debug("request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode >= 300 {
		return c.decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperror.Transient(fmt.Errorf("decoding %s %s: %w", method, path, err))
	}
	return nil
}

// decodeError maps a failure response to an apperror. Codes come first;
// the status only decides for bodies without a code.
func (c *Client) decodeError(resp *http.Response) error {
	var body apiError
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		c.logger.Warn("reading error body",
			slog.Int("status", resp.StatusCode),
			slog.String("error", err.Error()),
		)
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.Message == "" {
		body.Message = strings.TrimSpace(string(raw))
		if body.Message == "" {
			body.Message = resp.Status
		}
	}

	if body.Code != 0 {
		return apperror.FromCode(body.Code, body.Message, body.Owner)
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return apperror.Unauthorized(body.Message)
	case http.StatusForbidden:
		return apperror.Forbidden(body.Message)
	case http.StatusTooManyRequests:
		return apperror.RateLimited()
	case http.StatusNotFound:
		return &apperror.AppError{Err: apperror.ErrNotFound, Message: body.Message}
	case http.StatusBadRequest:
		return apperror.ValidationFailed("", body.Message)
	}
	return apperror.Transient(errors.New(body.Message))
}
