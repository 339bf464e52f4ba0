// Package backend is the HTTP client for the remote household API. Every call
// carries the deployment bypass header, the caller's bearer token and the
// request id.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/harrylevesque/hivebff/internal/utils"
)

// maxBodyBytes caps how much of an upstream response is read.
const maxBodyBytes = 8 << 20

// Options configures a Client.
type Options struct {
	BaseURL      string
	BypassHeader string
	BypassSecret string
	Timeout      time.Duration
	HTTP         *http.Client
	Logger       *zap.Logger
}

// Client talks to the backend API.
type Client struct {
	base         string
	bypassHeader string
	bypassSecret string
	timeout      time.Duration
	http         *http.Client
	log          *zap.Logger
	tracer       trace.Tracer
}

// New builds a Client. A nil HTTP client or logger falls back to defaults.
func New(opts Options) *Client {
	hc := opts.HTTP
	if hc == nil {
		hc = &http.Client{}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		base:         strings.TrimRight(opts.BaseURL, "/"),
		bypassHeader: opts.BypassHeader,
		bypassSecret: opts.BypassSecret,
		timeout:      opts.Timeout,
		http:         hc,
		log:          log,
		tracer:       otel.Tracer("github.com/harrylevesque/hivebff/internal/backend"),
	}
}

// Request describes one upstream call. Body is JSON encoded when non-nil.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Bearer string
}

// Response is a buffered upstream response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool { return r.Status >= 200 && r.Status < 300 }

// JSONBody returns the body, substituting {} for an empty one.
func (r *Response) JSONBody() []byte {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return []byte("{}")
	}
	return r.Body
}

// UpstreamError is returned alongside the Response for non-2xx statuses.
type UpstreamError struct {
	Method string
	Path   string
	Status int
	Body   []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("backend %s %s: status %d: %s", e.Method, e.Path, e.Status, truncate(string(e.Body), 256))
}

// Details returns the upstream body as JSON when it parses, otherwise as text.
func (e *UpstreamError) Details() any {
	var v any
	if err := json.Unmarshal(e.Body, &v); err == nil {
		return v
	}
	return strings.TrimSpace(string(e.Body))
}

// Do performs req. Transport failures return a nil Response. Non-2xx
// statuses return both the Response and an *UpstreamError.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	ctx, span := c.tracer.Start(ctx, "backend "+req.Method+" "+req.Path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", req.Path),
		))
	defer span.End()

	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.log.Warn("backend request failed",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.String("request_id", utils.RequestID(ctx)),
			zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("backend %s %s: %w", req.Method, req.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("read backend %s %s: %w", req.Method, req.Path, err)
	}

	out := &Response{Status: resp.StatusCode, Header: resp.Header, Body: body}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	c.log.Debug("backend request",
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
		zap.String("request_id", utils.RequestID(ctx)))

	if !out.OK() {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		return out, &UpstreamError{Method: req.Method, Path: req.Path, Status: resp.StatusCode, Body: body}
	}
	return out, nil
}

func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	target := c.base + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode backend body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build backend request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.bypassSecret != "" && c.bypassHeader != "" {
		httpReq.Header.Set(c.bypassHeader, c.bypassSecret)
	}
	if req.Bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Bearer)
	}
	if id := utils.RequestID(ctx); id != "" {
		httpReq.Header.Set(utils.RequestIDHeader, id)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))
	return httpReq, nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
