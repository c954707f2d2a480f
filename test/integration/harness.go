// Package integration provides a reusable test harness for end-to-end
// testing of the listing submission server. It starts a fully wired HTTP
// server backed by an in-memory draft store, a mock listing backend, and a
// test JWT issuer.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/attribute"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/backend"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/config"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/location"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/media"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/observability"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/transport"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/workflow"
)

// TestHarness encapsulates a fully wired server instance with a mock
// listing backend for end-to-end testing.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer

	// Internal components exposed for advanced test scenarios.
	Store   *workflow.MemoryDraftStore
	Engine  *workflow.Engine
	Client  *backend.Client
	Backend *MockListingAPI

	cfg *config.Config
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	handlerTimeout   time.Duration
	draftTTL         time.Duration
	failureThreshold int
	retryAttempts    int
}

// WithHandlerTimeout sets the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.handlerTimeout = d
	}
}

// WithDraftTTL sets the draft expiry window.
func WithDraftTTL(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.draftTTL = d
	}
}

// WithBreakerThreshold sets the consecutive-failure trip threshold for the
// backend circuit breaker.
func WithBreakerThreshold(n int) HarnessOption {
	return func(c *harnessConfig) {
		c.failureThreshold = n
	}
}

// WithRetryAttempts sets the backend lookup retry budget.
func WithRetryAttempts(n int) HarnessOption {
	return func(c *harnessConfig) {
		c.retryAttempts = n
	}
}

// NewTestHarness creates and starts a full server instance. The server is
// automatically cleaned up when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{
		handlerTimeout:   10 * time.Second,
		draftTTL:         24 * time.Hour,
		failureThreshold: 5,
		retryAttempts:    1,
	}
	for _, opt := range opts {
		opt(hc)
	}

	h := &TestHarness{t: t}

	// Step 1: Start the mock listing backend and JWT issuer.
	h.Backend = newMockListingAPI(t)
	h.issuer = newTokenIssuer(t)

	// Step 2: Build config pointing at the mocks.
	h.cfg = &config.Config{
		Server: config.ServerConfig{
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			HandlerTimeout: hc.handlerTimeout,
			CORS: config.CORSConfig{
				AllowedOrigins: []string{"http://localhost:3000"},
				AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type", "X-Correlation-Id"},
				MaxAge:         86400,
			},
		},
		Identity: config.IdentityConfig{
			Issuer:     h.issuer.Issuer(),
			Audience:   h.issuer.Audience(),
			JWKSURL:    h.issuer.JWKSURL(),
			Algorithms: []string{"RS256"},
		},
		Backend: config.BackendConfig{
			BaseURL: h.Backend.URL(),
			Timeout: 5 * time.Second,
			Retry: config.RetryConfig{
				MaxAttempts:       hc.retryAttempts,
				BackoffInitial:    time.Millisecond,
				BackoffMultiplier: 2,
				BackoffMax:        10 * time.Millisecond,
			},
			CircuitBreaker: config.CircuitBreakerConfig{
				FailureThreshold: hc.failureThreshold,
				SuccessThreshold: 1,
				Timeout:          time.Minute,
			},
		},
		Workflow: config.WorkflowConfig{
			DraftTTL: hc.draftTTL,
		},
		Upload: config.UploadConfig{
			Concurrency:  2,
			MaxAssetSize: 1 << 20,
		},
		Lookup: config.LookupCacheConfig{
			Cache: config.CacheConfig{TTL: time.Minute, MaxEntries: 100},
		},
		Observability: config.ObservabilityConfig{
			LogLevel: "error",
			Metrics:  config.MetricsConfig{Enabled: true, Path: "/metrics"},
		},
	}

	// Step 3: Wire the domain components.
	logger := zap.NewNop()
	h.Client = backend.NewClient(h.cfg.Backend, logger)
	transferrer := backend.NewTransferrer(h.cfg.Backend, logger)

	attributes := attribute.NewEngine(h.Client, h.cfg.Lookup.Cache, logger)
	locations := location.NewResolver(h.Client, h.cfg.Lookup.Cache, logger)
	coordinator := media.NewCoordinator(h.Client, transferrer, h.cfg.Upload, logger)

	h.Store = workflow.NewMemoryDraftStore()
	h.Engine = workflow.NewEngine(h.Store, h.Client, attributes, locations, coordinator,
		h.cfg.Workflow.DraftTTL, logger)

	// Step 4: Build the router with the full middleware chain.
	jwks := transport.NewJWKSClient(h.issuer.JWKSURL(), time.Hour)
	router := transport.NewRouter(transport.Dependencies{
		Config:       h.cfg,
		Authenticate: transport.JWTAuthenticator(h.cfg.Identity, jwks),
		Drafts:       transport.NewDraftHandler(h.Engine),
		Media:        transport.NewMediaHandler(h.Engine, h.cfg.Upload.MaxAssetSize),
		Lookups:      transport.NewLookupHandler(attributes, h.Client),
		Metrics:      observability.NewMetrics(),
		Health:       observability.NewHealthChecker(),
	})

	h.server = httptest.NewServer(router)
	t.Cleanup(h.server.Close)

	return h
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// GenerateToken creates a valid JWT token with the given claims.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// GenerateExpiredToken creates a JWT that has already expired.
func (h *TestHarness) GenerateExpiredToken(claims TestClaims) string {
	return h.issuer.GenerateExpiredToken(claims)
}

// --- HTTP client helpers ---

// GET performs an authenticated GET request.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, token)
}

// POST performs an authenticated POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, token)
}

// PUT performs an authenticated PUT request with a JSON body.
func (h *TestHarness) PUT(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("PUT", path, body, token)
}

// DELETE performs an authenticated DELETE request.
func (h *TestHarness) DELETE(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("DELETE", path, nil, token)
}

// PostMultipart performs an authenticated multipart POST. Each entry of
// files maps a part name to its content; contentType applies to all parts.
func (h *TestHarness) PostMultipart(path, token string, files map[string]filePart, fields map[string]string) *http.Response {
	h.t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			h.t.Fatalf("write multipart field: %v", err)
		}
	}
	for name, part := range files {
		header := make(map[string][]string)
		header["Content-Disposition"] = []string{
			fmt.Sprintf(`form-data; name=%q; filename=%q`, name, part.fileName)}
		header["Content-Type"] = []string{part.contentType}
		w, err := mw.CreatePart(header)
		if err != nil {
			h.t.Fatalf("create multipart part: %v", err)
		}
		if _, err := w.Write(part.data); err != nil {
			h.t.Fatalf("write multipart part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		h.t.Fatalf("close multipart writer: %v", err)
	}

	req, err := http.NewRequestWithContext(context.Background(), "POST", h.server.URL+path, &buf)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := httpClient().Do(req)
	if err != nil {
		h.t.Fatalf("POST %s failed: %v", path, err)
	}
	return resp
}

// filePart is one file entry of a multipart request.
type filePart struct {
	fileName    string
	contentType string
	data        []byte
}

func (h *TestHarness) doRequest(method, path string, body any, token string) *http.Response {
	h.t.Helper()

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, h.server.URL+path, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient().Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

func httpClient() *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// ParseJSON reads the response body and unmarshals it into the target. The
// target is zeroed first so a struct reused across calls does not keep stale
// values for fields the latest body omits.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	if v := reflect.ValueOf(target); v.Kind() == reflect.Pointer && !v.IsNil() {
		v.Elem().Set(reflect.Zero(v.Elem().Type()))
	}
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
	}
}

// AssertStatus checks that the response has the expected status code.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Errorf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
}

// AssertJSON checks that the response has the expected status and parses the body.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
	h.ParseJSON(resp, target)
}

// --- Default test claims ---

// SellerClaims returns TestClaims for a typical listing owner.
func SellerClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-seller",
		Email:     "seller@example.com",
		Phone:     "+905551112233",
		Roles:     []string{"seller"},
	}
}

// OtherSellerClaims returns TestClaims for a second, unrelated owner.
func OtherSellerClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-other",
		Email:     "other@example.com",
		Roles:     []string{"seller"},
	}
}

// Phase1Form returns a valid classification form body.
func Phase1Form() map[string]any {
	return map[string]any{
		"deal_type":     map[string]string{"value": "Satılık", "slug": "sale"},
		"property_type": map[string]string{"value": "Daire", "slug": "apartment"},
		"category":      map[string]string{"value": "Konut", "slug": "residential"},
		"title":         "Bright two bedroom flat",
		"description":   "Sunny apartment close to the metro station.",
		"price":         "2500000",
	}
}
