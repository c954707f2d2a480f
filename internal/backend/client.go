// Package backend is the HTTP client for the upstream listing API. It owns
// the wire contract of the four phase commits, the feature-field and
// location lookups, and the three-step signed upload protocol.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/config"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/observability"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/model"
)

// Client talks to the listing backend. All phase commits and upload calls
// carry the caller's bearer token; feature-field and location lookups do not.
// Lookups are retried with backoff, commits never are.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *CircuitBreaker
	retry   config.RetryConfig
	logger  *zap.Logger
}

// NewClient creates a backend client from configuration.
func NewClient(cfg config.BackendConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	cb := cfg.CircuitBreaker
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		breaker: NewCircuitBreaker(
			cb.FailureThreshold,
			cb.SuccessThreshold,
			cb.Timeout,
			cb.ErrorRateThreshold,
			cb.ErrorRateWindow,
		),
		retry:  cfg.Retry,
		logger: logger,
	}
}

// Breaker exposes the circuit breaker for metrics gauges.
func (c *Client) Breaker() *CircuitBreaker { return c.breaker }

// stepResponse is the envelope returned by the phase commit endpoints.
type stepResponse struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	ElanID  json.Number     `json:"elan_id"`
	Data    json.RawMessage `json:"data"`
}

// uploadResponse is the envelope returned by the upload endpoints.
type uploadResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		URL      string `json:"url"`
		FileName string `json:"fileName"`
	} `json:"data"`
}

// UploadSlot is a short-lived pre-authorized destination for a binary
// transfer.
type UploadSlot struct {
	URL      string
	FileName string
}

// LocationOption is one entry of a cascading location lookup.
type LocationOption struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Step1Payload is the wire shape of the phase 1 commit.
type Step1Payload struct {
	DealType     string `json:"deal_type"`
	PropertyType string `json:"property_type"`
	Category     string `json:"category"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Price        int64  `json:"price"`
}

// Step3Payload is the wire shape of the phase 3 commit. The backend's field
// name for the area level is "nighborhood"; the misspelling is part of the
// contract. X and Y are nil when the coordinate strings are empty.
type Step3Payload struct {
	ElanID      string   `json:"elan_id"`
	Country     string   `json:"country"`
	Province    string   `json:"province"`
	City        string   `json:"city"`
	Nighborhood string   `json:"nighborhood"`
	Address     string   `json:"address"`
	X           *float64 `json:"x"`
	Y           *float64 `json:"y"`
}

// CreateStep1 submits the classification and pricing form. On success the
// returned identifier links every later phase to this listing.
func (c *Client) CreateStep1(ctx context.Context, rctx *model.RequestContext, p Step1Payload) (string, error) {
	resp, err := c.postJSON(ctx, "/api/elan/step1", rctx.BearerToken, p)
	if err != nil {
		return "", err
	}
	if resp.ElanID.String() == "" {
		return "", model.NewServerRejectionError(resp.Message)
	}
	return resp.ElanID.String(), nil
}

// GetFeatureFields fetches the attribute field schema for a property type.
// Unauthenticated; retried per the lookup retry policy.
func (c *Client) GetFeatureFields(ctx context.Context, propertyTypeSlug string) ([]model.FieldSchema, error) {
	q := url.Values{"property_type": {propertyTypeSlug}}
	body, err := c.getWithRetry(ctx, "/api/elan/features?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Data []model.FieldSchema `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Data != nil {
		return envelope.Data, nil
	}

	// Some deployments return the array directly.
	var fields []model.FieldSchema
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, model.NewServerRejectionError("malformed feature field response")
	}
	return fields, nil
}

// CreateStep2 submits the serialized attribute map. The payload already
// carries the "elan" linking field.
func (c *Client) CreateStep2(ctx context.Context, rctx *model.RequestContext, payload map[string]any) error {
	_, err := c.postJSON(ctx, "/api/elan/step2", rctx.BearerToken, payload)
	return err
}

// CreateStep3 submits the location form.
func (c *Client) CreateStep3(ctx context.Context, rctx *model.RequestContext, p Step3Payload) error {
	_, err := c.postJSON(ctx, "/api/elan/step3", rctx.BearerToken, p)
	return err
}

// GetLocationOptions fetches the options of one cascading level, scoped to
// the parent level's slug. Unauthenticated; retried.
func (c *Client) GetLocationOptions(ctx context.Context, level, parentSlug string) ([]LocationOption, error) {
	q := url.Values{"level": {level}}
	if parentSlug != "" {
		q.Set("parent", parentSlug)
	}
	body, err := c.getWithRetry(ctx, "/api/locations?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Data []LocationOption `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, model.NewServerRejectionError("malformed location lookup response")
	}
	return envelope.Data, nil
}

// GetUploadSlot requests a signed write destination for a binary of the
// given category, kind, and extension.
func (c *Client) GetUploadSlot(ctx context.Context, rctx *model.RequestContext, category, kind, extension string) (UploadSlot, error) {
	payload := map[string]string{
		"category":  category,
		"kind":      kind,
		"extension": extension,
	}
	resp, err := c.postUpload(ctx, "/api/upload/slot", rctx.BearerToken, payload)
	if err != nil {
		return UploadSlot{}, err
	}
	if resp.Data.URL == "" || resp.Data.FileName == "" {
		return UploadSlot{}, model.NewServerRejectionError(resp.Message)
	}
	return UploadSlot{URL: resp.Data.URL, FileName: resp.Data.FileName}, nil
}

// ConfirmUpload notifies the backend that a binary transfer completed.
func (c *Client) ConfirmUpload(ctx context.Context, rctx *model.RequestContext, fileName, mimeType, category, originalName string) error {
	payload := map[string]string{
		"fileName":     fileName,
		"mimeType":     mimeType,
		"category":     category,
		"originalName": originalName,
	}
	_, err := c.postUpload(ctx, "/api/upload/confirm", rctx.BearerToken, payload)
	return err
}

// FinalizeStep4 submits the publish call with the positional primary image
// index and the uploaded remote filenames, and returns the published
// listing's canonical identifier.
func (c *Client) FinalizeStep4(ctx context.Context, rctx *model.RequestContext, elanID string, primaryIndex int, images []string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("primaryImageIndex", strconv.Itoa(primaryIndex)); err != nil {
		return "", fmt.Errorf("backend: write multipart field: %w", err)
	}
	for _, img := range images {
		if err := mw.WriteField("images[]", img); err != nil {
			return "", fmt.Errorf("backend: write multipart field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("backend: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/elan/"+url.PathEscape(elanID)+"/step4", &buf)
	if err != nil {
		return "", fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+rctx.BearerToken)

	body, err := c.do(req)
	if err != nil {
		return "", err
	}

	var resp struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
		Data    struct {
			ID json.Number `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", model.NewServerRejectionError("malformed publish response")
	}
	if !resp.Status {
		return "", model.NewServerRejectionError(resp.Message)
	}
	return resp.Data.ID.String(), nil
}

// postJSON sends an authenticated JSON POST and decodes the step envelope.
func (c *Client) postJSON(ctx context.Context, path, token string, payload any) (stepResponse, error) {
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return stepResponse{}, fmt.Errorf("backend: marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return stepResponse{}, fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	respBody, err := c.do(req)
	if err != nil {
		return stepResponse{}, err
	}

	var resp stepResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return stepResponse{}, model.NewServerRejectionError("malformed backend response")
	}
	if !resp.Status {
		return stepResponse{}, model.NewServerRejectionError(resp.Message)
	}
	return resp, nil
}

// postUpload sends an authenticated JSON POST and decodes the upload envelope.
func (c *Client) postUpload(ctx context.Context, path, token string, payload any) (uploadResponse, error) {
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return uploadResponse{}, fmt.Errorf("backend: marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return uploadResponse{}, fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	respBody, err := c.do(req)
	if err != nil {
		return uploadResponse{}, err
	}

	var resp uploadResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return uploadResponse{}, model.NewServerRejectionError("malformed backend response")
	}
	if !resp.Success {
		return uploadResponse{}, model.NewServerRejectionError(resp.Message)
	}
	return resp, nil
}

// getWithRetry performs an unauthenticated GET with exponential backoff.
// Only lookups use this path; commits must never be silently repeated.
func (c *Client) getWithRetry(ctx context.Context, path string) ([]byte, error) {
	maxAttempts := c.retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := calculateBackoff(c.retry, attempt)
			select {
			case <-ctx.Done():
				return nil, model.NewBackendTimeoutError()
			case <-time.After(delay):
			}
			c.logger.Debug("backend: retrying lookup",
				zap.String("path", path),
				zap.Int("attempt", attempt+1),
			)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, fmt.Errorf("backend: build request: %w", err)
		}

		body, err := c.do(req)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

// do executes a single request behind the circuit breaker and maps transport
// and HTTP failures onto the workflow error taxonomy.
func (c *Client) do(req *http.Request) ([]byte, error) {
	if err := c.breaker.Allow(); err != nil {
		return nil, model.NewBackendUnavailableError()
	}

	observability.InjectTraceHeaders(req.Context(), req.Header)
	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		if isTimeout(err) {
			return nil, model.NewBackendTimeoutError()
		}
		return nil, model.NewNetworkError(err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		c.breaker.RecordFailure()
		return nil, model.NewNetworkError(err.Error())
	}

	if resp.StatusCode >= 500 {
		c.breaker.RecordFailure()
		return nil, model.NewServerRejectionError(extractMessage(body))
	}
	c.breaker.RecordSuccess()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, model.NewServerRejectionError(extractMessage(body))
	}
	return body, nil
}

// extractMessage pulls a human-readable message out of an error body.
func extractMessage(body []byte) string {
	var envelope struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		return envelope.Message
	}
	return ""
}

// calculateBackoff computes the delay before the given retry attempt.
func calculateBackoff(cfg config.RetryConfig, attempt int) time.Duration {
	initial := cfg.BackoffInitial
	if initial <= 0 {
		initial = 200 * time.Millisecond
	}
	multiplier := cfg.BackoffMultiplier
	if multiplier <= 1 {
		multiplier = 2.0
	}
	maxDelay := cfg.BackoffMax
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * multiplier)
		if delay > maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

// isTimeout reports whether the transport error was a timeout.
func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// isRetryable reports whether a lookup failure is worth another attempt.
// Server rejections are deterministic; transport failures are not.
func isRetryable(err error) bool {
	var ee *model.ErrorEnvelope
	if errors.As(err, &ee) {
		switch ee.Code {
		case model.ErrNetworkError, model.ErrBackendTimeout, model.ErrBackendUnavailable:
			return true
		}
		return false
	}
	return false
}
