// Package client talks to the todo API on behalf of one user. It keeps the
// token pair in a SessionStore and refreshes it before it goes stale.
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
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const defaultTimeout = 30 * time.Second

type Client struct {
	baseURL *url.URL
	http    *http.Client
	tokens  *TokenManager
	log     *zap.Logger

	refreshGroup singleflight.Group
	onReauth     func()
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithReauthenticateHandler registers fn to run, on its own goroutine, each
// time the session is dropped because the server no longer accepts it.
func WithReauthenticateHandler(fn func()) Option {
	return func(c *Client) { c.onReauth = fn }
}

func New(baseURL string, tokens *TokenManager, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: defaultTimeout},
		tokens:  tokens,
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Client) Tokens() *TokenManager { return c.tokens }

// Do sends ep and decodes a successful response into out, which may be nil.
// Endpoints that require auth get a fresh access token first when the stored
// one is stale. A 401 on such an endpoint is not retried: the session is
// cleared and the caller gets ErrUnauthorized.
func (c *Client) Do(ctx context.Context, ep Endpoint, out interface{}) error {
	if ep.RequiresAuth && !c.tokens.IsTokenValid() {
		if err := c.refreshSession(ctx, false); err != nil {
			return err
		}
	}
	return c.send(ctx, ep, out)
}

// Send is Do with the response type as a type parameter.
func Send[T any](ctx context.Context, c *Client, ep Endpoint) (T, error) {
	var out T
	err := c.Do(ctx, ep, &out)
	return out, err
}

func (c *Client) send(ctx context.Context, ep Endpoint, out interface{}) error {
	req, err := c.newRequest(ctx, ep)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &APIError{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{Kind: KindNetwork, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(raw) == 0 {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return &APIError{Kind: KindDecoding, Status: resp.StatusCode, Err: err}
		}
		return nil
	}

	apiErr := decodeError(resp.StatusCode, raw)
	if apiErr.Kind == KindUnauthorized && ep.RequiresAuth {
		c.log.Info("request rejected, re-authentication required",
			zap.Stringer("endpoint", ep.Kind), zap.String("message", apiErr.Message))
		c.reauthenticate(ctx)
	}
	return apiErr
}

func (c *Client) newRequest(ctx context.Context, ep Endpoint) (*http.Request, error) {
	u := *c.baseURL
	u.Path = c.baseURL.Path + ep.Path
	if len(ep.Query) > 0 {
		u.RawQuery = ep.Query.Encode()
	}

	var body io.Reader
	if ep.Body != nil {
		b, err := json.Marshal(ep.Body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", ep.Kind, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, ep.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", ep.Kind, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if ep.RequiresAuth {
		if tok := c.tokens.AccessToken(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	return req, nil
}

type errorBody struct {
	Status  int                 `json:"status"`
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

func decodeError(status int, raw []byte) *APIError {
	e := &APIError{Kind: kindForStatus(status), Status: status}
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		e.Message = body.Message
		e.Fields = body.Errors
	} else {
		e.Message = http.StatusText(status)
	}
	return e
}

// refreshSession exchanges the refresh token for a new pair. Concurrent
// callers share one in-flight exchange. Unless force is set, a caller that
// arrives after another one already refreshed returns without a new call.
func (c *Client) refreshSession(ctx context.Context, force bool) error {
	ch := c.refreshGroup.DoChan("refresh", func() (interface{}, error) {
		if !force && c.tokens.IsTokenValid() {
			return nil, nil
		}
		// the exchange outlives any single waiter's context
		return nil, c.refresh(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return &APIError{Kind: KindNetwork, Err: ctx.Err()}
	case res := <-ch:
		return res.Err
	}
}

func (c *Client) refresh(ctx context.Context) error {
	rt := c.tokens.RefreshToken()
	if rt == "" {
		c.reauthenticate(ctx)
		return &APIError{Kind: KindUnauthorized, Message: "not logged in"}
	}

	c.log.Debug("refreshing access token", zap.Time("expires_at", c.tokens.ExpiresAt()))
	var resp AuthResponse
	if err := c.send(ctx, RefreshEndpoint(rt), &resp); err != nil {
		if errors.Is(err, ErrNetwork) {
			// connectivity says nothing about the refresh token; keep it
			return err
		}
		c.log.Info("refresh failed, re-authentication required", zap.Error(err))
		c.reauthenticate(ctx)
		return &APIError{Kind: KindUnauthorized, Status: http.StatusUnauthorized, Message: "session expired, please log in again", Err: err}
	}
	return c.tokens.StoreTokens(resp.AccessToken, resp.RefreshToken, resp.ExpiresIn, resp.User.ID)
}

type loggingOutKey struct{}

// reauthenticate drops the session and signals the handler, except while
// the user is logging out on purpose.
func (c *Client) reauthenticate(ctx context.Context) {
	if err := c.tokens.ClearTokens(); err != nil {
		c.log.Warn("clear session", zap.Error(err))
	}
	if c.onReauth != nil && ctx.Value(loggingOutKey{}) == nil {
		go c.onReauth()
	}
}
