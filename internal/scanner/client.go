package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pesoscan/pesoscan/internal/imaging"
	"github.com/pesoscan/pesoscan/internal/metrics"
	"github.com/pesoscan/pesoscan/internal/models"
)

const (
	DefaultBaseURL = "http://localhost:8000"
	DefaultTimeout = 30 * time.Second
	ScanTimeout    = 45 * time.Second

	scanPath   = "/api/comprehensive-scan"
	healthPath = "/api/health"

	maxResponseBytes = 8 * 1024 * 1024
)

// Options configures a Client. Zero values fall back to the defaults above.
type Options struct {
	BaseURL string
	// Dataset is sent as ?dataset= unless empty or "auto"
	Dataset string
	// MaxImageDimension enables JPEG down-scaling before upload when > 0
	MaxImageDimension int
	Timeout           time.Duration
	ScanTimeout       time.Duration
	HTTPClient        *http.Client
}

// Client submits bill images to the inference backend. It allows at most one
// scan in flight at a time.
type Client struct {
	baseURL     string
	dataset     string
	maxDim      int
	timeout     time.Duration
	scanTimeout time.Duration
	httpClient  *http.Client

	inFlight atomic.Bool
}

// Response is a successful scan: the payload as received and its decoded form
type Response struct {
	Body     json.RawMessage
	Payload  models.RawResult
	Duration time.Duration
}

// Health is the backend's /api/health answer
type Health struct {
	Status       string          `json:"status" yaml:"status"`
	Timestamp    string          `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	Version      string          `json:"version,omitempty" yaml:"version,omitempty"`
	ModelsLoaded map[string]bool `json:"models_loaded,omitempty" yaml:"models_loaded,omitempty"`
	Uptime       float64         `json:"uptime,omitempty" yaml:"uptime,omitempty"`
	Error        string          `json:"error,omitempty" yaml:"error,omitempty"`
}

func New(opts Options) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		dataset:     opts.Dataset,
		maxDim:      opts.MaxImageDimension,
		timeout:     opts.Timeout,
		scanTimeout: opts.ScanTimeout,
		httpClient:  opts.HTTPClient,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.scanTimeout <= 0 {
		c.scanTimeout = ScanTimeout
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	return c
}

// BaseURL returns the backend the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Submit uploads img for a comprehensive scan. The payload is returned
// unclassified. Cancelling ctx abandons the request and yields
// context.Canceled.
func (c *Client) Submit(ctx context.Context, img *imaging.Image) (*Response, error) {
	if img == nil || len(img.Data) == 0 {
		metrics.ScansTotal.WithLabelValues(Outcome(ErrNoImage)).Inc()
		return nil, ErrNoImage
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		metrics.ScansTotal.WithLabelValues(Outcome(ErrScanInProgress)).Inc()
		return nil, ErrScanInProgress
	}
	defer c.inFlight.Store(false)

	metrics.ScanInFlight.Inc()
	defer metrics.ScanInFlight.Dec()

	start := time.Now()
	resp, err := c.submit(ctx, img)
	elapsed := time.Since(start)

	outcome := Outcome(err)
	metrics.ScansTotal.WithLabelValues(outcome).Inc()
	metrics.ScanDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())

	if err != nil {
		slog.Warn("Scan failed", "filename", img.Filename, "result", outcome, "duration", elapsed, "err", err)
		return nil, err
	}

	resp.Duration = elapsed
	slog.Info("Scan completed", "filename", img.Filename, "bytes", len(resp.Body), "duration", elapsed)
	return resp, nil
}

func (c *Client) submit(ctx context.Context, img *imaging.Image) (*Response, error) {
	if c.maxDim > 0 {
		prepared, _, err := imaging.Prepare(img, c.maxDim)
		if err != nil {
			slog.Warn("Image preparation failed, sending original", "filename", img.Filename, "err", err)
		} else {
			img = prepared
		}
	}

	body, contentType, err := multipartBody(img)
	if err != nil {
		return nil, err
	}

	endpoint := c.baseURL + scanPath
	if c.dataset != "" && c.dataset != "auto" {
		endpoint += "?" + url.Values{"dataset": {c.dataset}}.Encode()
	}

	callCtx, cancel := context.WithTimeout(ctx, c.scanTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	slog.Debug("Submitting scan", "url", endpoint, "filename", img.Filename, "bytes", len(img.Data))

	data, err := c.do(ctx, callCtx, req)
	if err != nil {
		return nil, err
	}

	resp := &Response{Body: json.RawMessage(data)}
	if err := json.Unmarshal(data, &resp.Payload); err != nil {
		// A mistyped field leaves its zero value; the rest is still decoded.
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return nil, fmt.Errorf("failed to decode scan result: %w", err)
		}
		slog.Warn("Ignoring mistyped field in scan result", "field", typeErr.Field, "value", typeErr.Value)
	}
	return resp, nil
}

// Health queries the backend status endpoint
func (c *Client) Health(ctx context.Context) (*Health, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	data, err := c.do(ctx, callCtx, req)
	if err != nil {
		return nil, err
	}

	var health Health
	if err := json.Unmarshal(data, &health); err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}
	return &health, nil
}

// do sends req and returns the body of a 2xx response. Transport failures are
// mapped onto the error taxonomy using the caller's context and the per-call
// context to tell cancellation from timeout.
func (c *Client) do(parent, callCtx context.Context, req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(parent, callCtx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, transportError(parent, callCtx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ServerError{StatusCode: resp.StatusCode, Message: serverMessage(data)}
	}
	return data, nil
}

func transportError(parent, callCtx context.Context, err error) error {
	if errors.Is(parent.Err(), context.Canceled) {
		return fmt.Errorf("scan abandoned: %w", context.Canceled)
	}
	var netErr net.Error
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// serverMessage picks the human readable reason out of an error body
func serverMessage(data []byte) string {
	var body struct {
		Message string          `json:"message"`
		Detail  json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return MessageServerError
	}
	if body.Message != "" {
		return body.Message
	}
	var detail string
	if err := json.Unmarshal(body.Detail, &detail); err == nil && detail != "" {
		return detail
	}
	return MessageServerError
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func multipartBody(img *imaging.Image) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	contentType := img.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(img.Filename)))
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, "", fmt.Errorf("failed to write form file: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
