package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dailyyoga/contractflow/apierr"
	"github.com/dailyyoga/contractflow/logger"
	"golang.org/x/oauth2"
)

// countingSource hands out a new token on every call: tok-1, tok-2, ...
type countingSource struct {
	mu sync.Mutex
	n  int
}

func (s *countingSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return &oauth2.Token{AccessToken: fmt.Sprintf("tok-%d", s.n), TokenType: "Bearer"}, nil
}

func (s *countingSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

func newTestClient(t *testing.T, h http.Handler, opts ...Option) Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(logger.NewNop(), &Config{BaseURL: srv.URL}, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

// ============ Config Tests ============

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{"valid", &Config{BaseURL: "http://localhost:8082"}, false},
		{"empty base", &Config{}, true},
		{"relative base", &Config{BaseURL: "localhost:8082/api"}, true},
		{"ftp base", &Config{BaseURL: "ftp://host"}, true},
		{"token url without client", &Config{BaseURL: "http://h", TokenURL: "http://h/token"}, true},
		{"client credentials", &Config{BaseURL: "http://h", TokenURL: "http://h/token", ClientID: "id"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.MergeDefaults().Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_MergeDefaults(t *testing.T) {
	cfg := (&Config{BaseURL: "http://h", Timeout: time.Second}).MergeDefaults()
	if cfg.Timeout != time.Second || cfg.UserAgent != "contractflow/1.0" || cfg.MaxResponseBytes != 10<<20 {
		t.Errorf("MergeDefaults failed: %+v", cfg)
	}
}

func TestNewTokenSource(t *testing.T) {
	if NewTokenSource(context.Background(), &Config{}) != nil {
		t.Error("no credentials must mean no token source")
	}
	ts := NewTokenSource(context.Background(), &Config{Token: "static"})
	tok, err := ts.Token()
	if err != nil || tok.AccessToken != "static" {
		t.Errorf("static token = %v, %v", tok, err)
	}
	if NewTokenSource(context.Background(), &Config{TokenURL: "http://h/token", ClientID: "id"}) == nil {
		t.Error("token url must build a client credentials source")
	}
}

// ============ Client Tests ============

func TestClient_Do(t *testing.T) {
	var seen *http.Request
	var body []byte
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Clone(context.Background())
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		fmt.Fprint(w, `{"contract_type":"NDA","risk_score":12}`)
	}), WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "secret"})))

	resp, err := c.Do(context.Background(), &Request{
		Method: http.MethodPost,
		Path:   "/api/analyze",
		Query:  map[string][]string{"lang": {"en"}},
		Body:   map[string]string{"text": "hello"},
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if !resp.IsJSON() || resp.StatusCode != 200 {
		t.Errorf("unexpected response %+v", resp)
	}
	var a Analysis
	if err := resp.JSON(&a); err != nil || a.ContractType != "NDA" {
		t.Errorf("JSON = %+v, %v", a, err)
	}

	if seen.URL.Path != "/api/analyze" || seen.URL.Query().Get("lang") != "en" {
		t.Errorf("unexpected url %s", seen.URL)
	}
	if got := seen.Header.Get("Authorization"); got != "Bearer secret" {
		t.Errorf("Authorization = %q", got)
	}
	if seen.Header.Get("User-Agent") != "contractflow/1.0" {
		t.Errorf("User-Agent = %q", seen.Header.Get("User-Agent"))
	}
	if id := seen.Header.Get(RequestIDHeader); id == "" || id != resp.RequestID {
		t.Errorf("request id header %q, response %q", id, resp.RequestID)
	}
	if seen.Header.Get("Content-Type") != "application/json" || string(body) != `{"text":"hello"}` {
		t.Errorf("unexpected body %q", body)
	}
}

func TestClient_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		kind   apierr.Kind
	}{
		{http.StatusBadRequest, apierr.KindClient},
		{http.StatusForbidden, apierr.KindAuth},
		{http.StatusTooManyRequests, apierr.KindServer},
		{http.StatusInternalServerError, apierr.KindServer},
		{http.StatusServiceUnavailable, apierr.KindServer},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"error":"nope","success":false}`)
			}))
			_, err := c.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/x"})
			if apierr.KindOf(err) != tt.kind {
				t.Errorf("kind = %v, want %v (err %v)", apierr.KindOf(err), tt.kind, err)
			}
			if apierr.StatusCode(err) != tt.status {
				t.Errorf("status = %d", apierr.StatusCode(err))
			}
		})
	}
}

func TestClient_RefreshOnce(t *testing.T) {
	src := &countingSource{}
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("Authorization") != "Bearer tok-2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{}`)
	}), WithTokenSource(src))

	if _, err := c.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/x"}); err != nil {
		t.Fatalf("expected success after refresh, got %v", err)
	}
	if hits.Load() != 2 || src.count() != 2 {
		t.Errorf("hits = %d, token fetches = %d; want 2, 2", hits.Load(), src.count())
	}

	// the refreshed token is reused
	if _, err := c.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/x"}); err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if src.count() != 2 {
		t.Errorf("token refetched without a 401: %d", src.count())
	}
}

func TestClient_RefreshFromTokenEndpoint(t *testing.T) {
	var tokenHits atomic.Int32
	tokSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := tokenHits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"bearer","expires_in":3600}`, n)
	}))
	defer tokSrv.Close()

	var apiHits atomic.Int32
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiHits.Add(1)
		if r.Header.Get("Authorization") != "Bearer tok-2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{}`)
	}))
	defer apiSrv.Close()

	c, err := New(logger.NewNop(), &Config{
		BaseURL:      apiSrv.URL,
		TokenURL:     tokSrv.URL,
		ClientID:     "id",
		ClientSecret: "secret",
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := c.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/x"}); err != nil {
		t.Fatalf("expected success after refresh, got %v", err)
	}
	if tokenHits.Load() != 2 || apiHits.Load() != 2 {
		t.Errorf("token hits = %d, api hits = %d; want 2, 2", tokenHits.Load(), apiHits.Load())
	}

	// the new token is cached until the next 401
	if _, err := c.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/x"}); err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if tokenHits.Load() != 2 {
		t.Errorf("token refetched without a 401: %d", tokenHits.Load())
	}
}

func TestClient_PersistentUnauthorized(t *testing.T) {
	src := &countingSource{}
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}), WithTokenSource(src))

	_, err := c.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/x"})
	if !apierr.IsUnauthorized(err) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("hits = %d, want exactly one retry after refresh", hits.Load())
	}
	if apierr.NeedsRefresh(err) {
		t.Error("a 401 after refresh must be marked refreshed")
	}
}

func TestClient_UnauthenticatedDoesNotRefresh(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	_, err := c.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/x"})
	if !apierr.IsUnauthorized(err) || hits.Load() != 1 {
		t.Errorf("err = %v, hits = %d", err, hits.Load())
	}
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c, err := New(logger.NewNop(), &Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	_, err = c.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/x"})
	if apierr.KindOf(err) != apierr.KindNetwork {
		t.Errorf("expected NetworkError, got %v", err)
	}
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Do(ctx, &Request{Method: http.MethodGet, Path: "/slow"})
	if apierr.KindOf(err) != apierr.KindTimeout {
		t.Errorf("expected TimeoutError, got %v", err)
	}
	if !apierr.IsRetryable(err) {
		t.Error("timeouts are retryable")
	}
}

func TestClient_Batch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/batch/process", func(w http.ResponseWriter, r *http.Request) {
		var sub BatchSubmission
		if err := json.NewDecoder(r.Body).Decode(&sub); err != nil || len(sub.Items) != 2 || sub.MaxConcurrent != 3 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"batch_id":"b-1"}`)
	})
	mux.HandleFunc("GET /api/batch/status/{id}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"batch_id":%q,"status":"processing","items":[{"id":"1","status":"completed","result":{"ok":true}},{"id":"2","status":"failed","error":"bad pdf"}],"completed_count":1,"total_count":2}`, r.PathValue("id"))
	})
	c := newTestClient(t, mux)

	acc, err := c.SubmitBatch(context.Background(), &BatchSubmission{
		Items:         []json.RawMessage{json.RawMessage(`{"text":"a"}`), json.RawMessage(`{"text":"b"}`)},
		MaxConcurrent: 3,
	})
	if err != nil || acc.BatchID != "b-1" {
		t.Fatalf("SubmitBatch = %+v, %v", acc, err)
	}

	st, err := c.BatchStatus(context.Background(), acc.BatchID)
	if err != nil {
		t.Fatalf("BatchStatus failed: %v", err)
	}
	if st.BatchID != "b-1" || st.Status != StatusProcessing || len(st.Items) != 2 || st.TotalCount != 2 {
		t.Errorf("unexpected status %+v", st)
	}
	if st.Items[1].Error != "bad pdf" || string(st.Items[0].Result) != `{"ok":true}` {
		t.Errorf("unexpected items %+v", st.Items)
	}
}

func TestClient_SubmitWithoutBatchID(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	_, err := c.SubmitBatch(context.Background(), &BatchSubmission{Items: []json.RawMessage{json.RawMessage(`1`)}})
	if !errors.Is(err, ErrMissingBatchID) {
		t.Errorf("expected ErrMissingBatchID, got %v", err)
	}
}

func TestClient_ResponseSizeCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := 10
		if r.URL.Path == "/big" {
			n = 11
		}
		fmt.Fprint(w, strings.Repeat("x", n))
	}))
	defer srv.Close()

	c, err := New(logger.NewNop(), &Config{BaseURL: srv.URL, MaxResponseBytes: 10})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	resp, err := c.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/fits"})
	if err != nil || len(resp.Body) != 10 {
		t.Fatalf("body at the cap must be returned whole, got %v", err)
	}

	resp, err = c.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/big"})
	if err == nil || !strings.Contains(err.Error(), "exceeds 10 bytes") {
		t.Errorf("expected size error, got resp %+v, err %v", resp, err)
	}
	if apierr.IsRetryable(err) {
		t.Error("oversized responses are not retryable")
	}
}
