// Package api is the HTTP client for the remote contract-analysis service.
//
// The client maps every failure onto the apierr taxonomy, authenticates with
// an oauth2.TokenSource and refreshes the token exactly once when the service
// answers 401. Retrying is left to the retry package.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dailyyoga/contractflow/apierr"
	"github.com/dailyyoga/contractflow/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// RequestIDHeader carries a per-request id
const RequestIDHeader = "X-Request-ID"

// Request is one call to the service.
type Request struct {
	Method string
	// Path is resolved against the configured base URL
	Path  string
	Query url.Values
	// Body is encoded as JSON when non-nil
	Body any
}

// Response is a successful (2xx) service response.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
	RequestID   string
}

// IsJSON reports whether the response declares a JSON body.
func (r *Response) IsJSON() bool {
	mt, _, err := mime.ParseMediaType(r.ContentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return ErrDecodeBody(err)
	}
	return nil
}

// Client talks to the analysis service.
type Client interface {
	// Do performs req. Non-2xx statuses and transport failures are returned as
	// apierr errors.
	Do(ctx context.Context, req *Request) (*Response, error)

	// Refresh discards the current access token and fetches a new one.
	Refresh(ctx context.Context) error

	// SubmitBatch posts a batch for asynchronous processing and returns the
	// server-assigned job id.
	SubmitBatch(ctx context.Context, sub *BatchSubmission) (*BatchAccepted, error)

	// BatchStatus fetches the current status of a batch job.
	BatchStatus(ctx context.Context, batchID string) (*BatchStatus, error)
}

// Option configures a client.
type Option func(*client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) { c.http = hc }
}

// WithTokenSource sets the credential source. It overrides any token settings
// in Config. Refresh calls ts.Token again, so ts must not cache tokens.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *client) { c.tokens = ts }
}

type client struct {
	log      logger.Logger
	http     *http.Client
	base     *url.URL
	agent    string
	maxBytes int64

	tokens oauth2.TokenSource
	mu     sync.Mutex
	token  *oauth2.Token
}

var _ Client = (*client)(nil)

// New creates a client.
func New(log logger.Logger, cfg *Config, opts ...Option) (Client, error) {
	cfg = cfg.MergeDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, ErrInvalidBaseURL(cfg.BaseURL, err)
	}

	c := &client{
		log:      logger.Named(log, "api"),
		http:     &http.Client{Timeout: cfg.Timeout},
		base:     base,
		agent:    cfg.UserAgent,
		maxBytes: cfg.MaxResponseBytes,
		tokens:   NewTokenSource(context.Background(), cfg),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewTokenSource builds the credential source described by cfg: the client
// credentials flow when TokenURL is set, a static bearer token when Token is
// set, otherwise nil (unauthenticated).
func NewTokenSource(ctx context.Context, cfg *Config) oauth2.TokenSource {
	switch {
	case cfg.TokenURL != "":
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		return &clientCredentialsSource{ctx: ctx, cfg: cc}
	case cfg.Token != "":
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"})
	default:
		return nil
	}
}

// clientCredentialsSource requests a new token from the token endpoint on
// every call. The client caches the token itself; clientcredentials'
// TokenSource would hand the rejected token back after a 401.
type clientCredentialsSource struct {
	ctx context.Context
	cfg *clientcredentials.Config
}

func (s *clientCredentialsSource) Token() (*oauth2.Token, error) {
	return s.cfg.Token(s.ctx)
}

func (c *client) Do(ctx context.Context, req *Request) (*Response, error) {
	var body []byte
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, ErrEncodeBody(err)
		}
		body = b
	}

	resp, err := c.execute(ctx, req, body)
	if apierr.IsUnauthorized(err) && c.tokens != nil {
		c.log.Info("unauthorized, refreshing token", zap.String("path", req.Path))
		if rerr := c.Refresh(ctx); rerr != nil {
			c.log.Warn("token refresh failed", zap.Error(rerr))
			return nil, apierr.MarkRefreshed(err)
		}
		resp, err = c.execute(ctx, req, body)
		if err != nil {
			return nil, apierr.MarkRefreshed(err)
		}
	}
	return resp, err
}

func (c *client) Refresh(ctx context.Context) error {
	if c.tokens == nil {
		return nil
	}
	c.mu.Lock()
	c.token = nil
	c.mu.Unlock()
	_, err := c.currentToken()
	return err
}

// currentToken returns the cached token, fetching a new one when it is
// missing or expired.
func (c *client) currentToken() (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token.Valid() {
		return c.token, nil
	}
	tok, err := c.tokens.Token()
	if err != nil {
		return nil, err
	}
	c.token = tok
	return tok, nil
}

// execute performs a single round trip.
func (c *client) execute(ctx context.Context, req *Request, body []byte) (*Response, error) {
	u, err := c.resolve(req)
	if err != nil {
		return nil, err
	}
	target := apierr.Request{Method: req.Method, URL: u.String()}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	hreq, err := http.NewRequestWithContext(ctx, req.Method, target.URL, rd)
	if err != nil {
		return nil, ErrBuildRequest(err)
	}
	requestID := uuid.NewString()
	hreq.Header.Set("Accept", "application/json")
	hreq.Header.Set("User-Agent", c.agent)
	hreq.Header.Set(RequestIDHeader, requestID)
	if body != nil {
		hreq.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		tok, err := c.currentToken()
		if err != nil {
			return nil, &apierr.AuthError{StatusError: apierr.StatusError{
				Request:    target,
				StatusCode: http.StatusUnauthorized,
				Body:       err.Error(),
			}}
		}
		tok.SetAuthHeader(hreq)
	}

	start := time.Now()
	hresp, err := c.http.Do(hreq)
	if err != nil {
		c.log.Debug("request failed",
			zap.String("method", req.Method),
			zap.String("url", target.URL),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		return nil, apierr.FromTransport(target, err)
	}
	defer hresp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(hresp.Body, c.maxBytes+1))
	if err != nil {
		return nil, apierr.FromTransport(target, err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, ErrResponseTooLarge(target.String(), c.maxBytes)
	}

	c.log.Debug("request completed",
		zap.String("method", req.Method),
		zap.String("url", target.URL),
		zap.String("request_id", requestID),
		zap.Int("status", hresp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if err := apierr.FromStatus(target, hresp.StatusCode, data); err != nil {
		return nil, err
	}
	return &Response{
		StatusCode:  hresp.StatusCode,
		ContentType: hresp.Header.Get("Content-Type"),
		Body:        data,
		RequestID:   requestID,
	}, nil
}

// resolve merges base URL, path and query
func (c *client) resolve(req *Request) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimPrefix(req.Path, "/"))
	if err != nil {
		return nil, ErrBuildRequest(err)
	}
	u := c.base.ResolveReference(ref)
	if len(req.Query) > 0 {
		q := u.Query()
		for k, vs := range req.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u, nil
}
