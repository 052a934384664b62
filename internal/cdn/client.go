// Package cdn uploads product images to Cloudinary and returns their served
// URLs. Uploads are signed, retried with exponential backoff, and bounded by
// a per-attempt timeout.
package cdn

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shelfline/catalog-pipeline/internal/observability"
)

// UploadError is the terminal failure for one image after all attempts.
type UploadError struct {
	Path     string
	Attempts int
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s failed after %d attempts: %v", e.Path, e.Attempts, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// UploadResult is the outcome of uploading a single image. Exactly one of
// URL and Err is set after Upload returns.
type UploadResult struct {
	SourcePath string
	PublicID   string
	URL        string
	Attempts   int
	Err        error
}

// Config holds client settings.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	BaseURL   string
	Timeout   time.Duration // per attempt
	Retry     RetryConfig
}

// Client handles communication with the Cloudinary upload API.
type Client struct {
	cloudName  string
	apiKey     string
	apiSecret  string
	baseURL    string
	timeout    time.Duration
	retry      RetryConfig
	httpClient *http.Client
	logger     *observability.Logger
}

// NewClient creates a new upload client.
func NewClient(cfg Config, logger *observability.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.cloudinary.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultAttemptTimeout
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.Retry.InitialBackoff <= 0 {
		cfg.Retry.InitialBackoff = defaultInitialBackoff
	}
	if cfg.Retry.MaxBackoff <= 0 {
		cfg.Retry.MaxBackoff = defaultMaxBackoff
	}

	return &Client{
		cloudName:  cfg.CloudName,
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		timeout:    cfg.Timeout,
		retry:      cfg.Retry,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// uploadResponse is the subset of the Cloudinary response we use.
type uploadResponse struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
	URL       string `json:"url"`
	Error     struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Upload sends one image to the CDN under the given public ID. The result
// carries the served URL on success, or a terminal *UploadError after all
// attempts are spent. It never panics and never aborts anything beyond this
// one image.
func (c *Client) Upload(ctx context.Context, localPath, publicID string) UploadResult {
	result := UploadResult{SourcePath: localPath, PublicID: publicID}

	body, contentType, err := c.buildUploadBody(localPath, publicID)
	if err != nil {
		result.Err = &UploadError{Path: localPath, Err: err}
		return result
	}

	respBody, status, attempts, err := c.postWithRetry(ctx, c.uploadURL(), contentType, body)
	result.Attempts = attempts
	if err != nil {
		result.Err = &UploadError{Path: localPath, Attempts: attempts, Err: err}
		return result
	}

	if status != http.StatusOK {
		result.Err = &UploadError{
			Path:     localPath,
			Attempts: attempts,
			Err:      fmt.Errorf("API returned status %d: %s", status, apiErrorMessage(respBody)),
		}
		return result
	}

	var parsed uploadResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		result.Err = &UploadError{Path: localPath, Attempts: attempts, Err: fmt.Errorf("parse response: %w", err)}
		return result
	}

	url := parsed.SecureURL
	if url == "" {
		url = parsed.URL
	}
	if url == "" {
		result.Err = &UploadError{Path: localPath, Attempts: attempts, Err: fmt.Errorf("response carries no URL")}
		return result
	}

	result.URL = url
	return result
}

// buildUploadBody constructs the signed multipart form for one image.
func (c *Client) buildUploadBody(localPath, publicID string) ([]byte, string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}

	params := map[string]string{
		"public_id": publicID,
		"overwrite": "true",
		"timestamp": strconv.FormatInt(time.Now().Unix(), 10),
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for key, val := range params {
		if err := writer.WriteField(key, val); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", key, err)
		}
	}
	if err := writer.WriteField("api_key", c.apiKey); err != nil {
		return nil, "", fmt.Errorf("write field api_key: %w", err)
	}
	if err := writer.WriteField("signature", signParams(params, c.apiSecret)); err != nil {
		return nil, "", fmt.Errorf("write field signature: %w", err)
	}

	part, err := writer.CreateFormFile("file", filepath.Base(localPath))
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("write file part: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}

	return buf.Bytes(), writer.FormDataContentType(), nil
}

// postWithRetry sends the request with retry logic. Each attempt runs under
// its own timeout; a non-retryable status returns immediately with the body
// for the caller to inspect. The returned attempt count includes the attempt
// in flight when a terminal condition hit.
func (c *Client) postWithRetry(ctx context.Context, url, contentType string, body []byte) ([]byte, int, int, error) {
	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		// Check context cancellation
		select {
		case <-ctx.Done():
			return nil, 0, attempts, ctx.Err()
		default:
		}
		attempts = attempt

		respBody, status, err := c.doAttempt(ctx, url, contentType, body)
		if err == nil {
			if status == http.StatusOK || !shouldRetry(status) {
				return respBody, status, attempts, nil
			}
			lastErr = fmt.Errorf("HTTP %d", status)
		} else {
			lastErr = err
		}

		// Don't wait after the last attempt
		if attempt == c.retry.MaxAttempts {
			break
		}

		backoff := calculateBackoff(attempt, c.retry)
		c.logger.Warn().
			Str("url", url).
			Int("attempt", attempt).
			Int("max_attempts", c.retry.MaxAttempts).
			Dur("backoff", backoff).
			Err(lastErr).
			Msg("upload attempt failed, retrying")

		// Wait with context cancellation support
		select {
		case <-ctx.Done():
			return nil, 0, attempts, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, 0, attempts, fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}

// doAttempt performs a single POST bounded by the per-attempt timeout.
func (c *Client) doAttempt(ctx context.Context, url, contentType string, body []byte) ([]byte, int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}

	return respBody, resp.StatusCode, nil
}

func (c *Client) uploadURL() string {
	return fmt.Sprintf("%s/v1_1/%s/image/upload", c.baseURL, c.cloudName)
}

// signParams computes the Cloudinary request signature: the SHA-1 hex digest
// of the sorted form parameters joined with & and suffixed with the API
// secret. Auth fields (api_key, file) are never part of the signed payload.
func signParams(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}

	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + secret))
	return hex.EncodeToString(sum[:])
}

// apiErrorMessage extracts the error message from an API failure body,
// falling back to the raw body when it is not the usual JSON shape.
func apiErrorMessage(body []byte) string {
	var parsed uploadResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return string(body)
}
