package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/utils/contextkey"
	"codearena/pkg/utils/logger"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"
)

const (
	requestIDHeader = "X-Request-Id"
	detailStatusKey = "status"
)

var (
	transportOnce sync.Once
	transport     http.RoundTripper
)

// sharedTransport negotiates gzip with the backend and keeps one connection pool per process.
func sharedTransport() http.RoundTripper {
	transportOnce.Do(func() {
		transport = gzhttp.Transport(http.DefaultTransport)
	})
	return transport
}

// ResponseInfo carries response details.
type ResponseInfo struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Client wraps HTTP requests against the platform backend.
type Client struct {
	mu      sync.RWMutex
	baseURL string
	http    *http.Client
}

// New creates a client. A zero timeout means no client-side deadline;
// callers may still cancel through ctx.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout, Transport: sharedTransport()},
	}
}

func (c *Client) SetBaseURL(baseURL string) {
	c.mu.Lock()
	c.baseURL = strings.TrimRight(baseURL, "/")
	c.mu.Unlock()
}

func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

func (c *Client) Do(ctx context.Context, method, path string, headers map[string]string, body []byte) (ResponseInfo, error) {
	var info ResponseInfo

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL()+path, reader)
	if err != nil {
		return info, pkgerrors.Wrapf(err, pkgerrors.RequestBuildFailed, "build request failed: %v", err)
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	requestID := uuid.NewString()
	req.Header.Set(requestIDHeader, requestID)
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	info.Duration = time.Since(start)
	logCtx := context.WithValue(ctx, contextkey.RequestID, requestID)
	if err != nil {
		logger.Debug(logCtx, "request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return info, pkgerrors.TransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	info.StatusCode = resp.StatusCode
	info.Headers = resp.Header
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return info, pkgerrors.TransportError(fmt.Errorf("read response body failed: %w", err))
	}
	info.Body = bodyBytes
	logger.Debug(logCtx, "request done",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", info.Duration),
	)
	return info, nil
}

// Bearer returns the Authorization header map for a token, or nil when empty.
func Bearer(token string) map[string]string {
	if token == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

// DoJSON sends in as JSON and decodes a 2xx body into out.
// Non-2xx responses become coded errors carrying the backend's detail message.
func (c *Client) DoJSON(ctx context.Context, method, path string, headers map[string]string, in, out interface{}) error {
	var body []byte
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return pkgerrors.Wrapf(err, pkgerrors.RequestBuildFailed, "marshal request body failed: %v", err)
		}
		body = data
	}

	resp, err := c.Do(ctx, method, path, headers, body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return StatusError(resp)
	}
	if out == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.MalformedResponse, "decode response failed: %v", err)
	}
	return nil
}

// StatusError converts a non-2xx response into a coded error.
func StatusError(resp ResponseInfo) *pkgerrors.Error {
	code := pkgerrors.CodeFromStatus(resp.StatusCode)
	msg := Detail(resp.Body)
	if msg == "" {
		msg = fmt.Sprintf("%s (HTTP %d)", code.Message(), resp.StatusCode)
	}
	return pkgerrors.New(code).WithMessage(msg).WithDetail(detailStatusKey, resp.StatusCode)
}

// Detail extracts the human readable message from an error body.
// Both {"detail": "..."} and {"detail": [{"msg": "..."}]} shapes are understood.
func Detail(body []byte) string {
	var envelope struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	if len(envelope.Detail) > 0 {
		var text string
		if err := json.Unmarshal(envelope.Detail, &text); err == nil {
			return text
		}
		var items []struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(envelope.Detail, &items); err == nil {
			msgs := make([]string, 0, len(items))
			for _, item := range items {
				if item.Msg != "" {
					msgs = append(msgs, item.Msg)
				}
			}
			return strings.Join(msgs, "; ")
		}
		return string(envelope.Detail)
	}
	if envelope.Message != "" {
		return envelope.Message
	}
	return envelope.Error
}

// StatusOf returns the HTTP status recorded on an error from this package, or 0.
func StatusOf(err error) int {
	e := pkgerrors.GetError(err)
	if e == nil {
		return 0
	}
	if status, ok := e.Details[detailStatusKey].(int); ok {
		return status
	}
	return 0
}
