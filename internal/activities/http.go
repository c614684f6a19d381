package activities

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// OutcomeUnhandledHTTPStatus fires when the response status is not listed in
// HttpStatusCodes.
const OutcomeUnhandledHTTPStatus = "UnhandledHttpStatus"

const (
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
	defaultHTTPTimeout     = 30 * time.Second
)

// HTTPRequestTask sends an HTTP request and fires the response status code as
// its outcome.
//
// Properties: Url (required), Method (default GET), Headers (object), Body,
// ContentType (default application/json for non-string bodies), Timeout
// (duration string) and HttpStatusCodes (comma separated list or array; the
// codes the workflow handles, default "200").
//
// The response {status_code, headers, body, content_type, duration_ms} becomes
// the last result. JSON bodies are decoded.
type HTTPRequestTask struct {
	client          *http.Client
	maxResponseBody int64
}

func (a *HTTPRequestTask) Type() string { return TypeHTTPRequest }

func (a *HTTPRequestTask) Outcomes(input *Input) []string {
	codes, err := statusCodes(input)
	if err != nil {
		codes = nil
	}
	out := make([]string, 0, len(codes)+1)
	for _, c := range codes {
		out = append(out, strconv.Itoa(c))
	}
	return append(out, OutcomeUnhandledHTTPStatus)
}

func (a *HTTPRequestTask) Execute(ctx context.Context, input *Input, wctx Context) (Result, error) {
	rawURL := input.String("Url")
	u, err := url.ParseRequestURI(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return Result{}, fmt.Errorf("invalid url %q", rawURL)
	}
	codes, err := statusCodes(input)
	if err != nil {
		return Result{}, fmt.Errorf("http status codes: %w", err)
	}
	method := strings.ToUpper(input.String("Method"))
	if method == "" {
		method = http.MethodGet
	}

	timeout := defaultHTTPTimeout
	if ts := input.String("Timeout"); ts != "" {
		d, err := time.ParseDuration(ts)
		if err != nil {
			return Result{}, fmt.Errorf("timeout: %w", err)
		}
		timeout = d
	}

	body, contentType, err := requestBody(input)
	if err != nil {
		return Result{}, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, body)
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if raw, ok := input.Value("Headers"); ok && raw != nil {
		headers, err := cast.ToStringMapStringE(raw)
		if err != nil {
			return Result{}, fmt.Errorf("headers: %w", err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}
	req.Header.Set("X-Correlation-Id", wctx.CorrelationID())

	start := time.Now()
	resp, err := a.client.Do(req)
	duration := time.Since(start)
	if err != nil {
		return Result{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, a.maxResponseBody))
	if err != nil {
		return Result{}, fmt.Errorf("read response body: %w", err)
	}

	respType := resp.Header.Get("Content-Type")
	var parsed any
	if len(data) > 0 {
		parsed = string(data)
		if strings.Contains(respType, "application/json") {
			var v any
			if err := json.Unmarshal(data, &v); err == nil {
				parsed = v
			}
		}
	}
	respHeaders := make(map[string]any, len(resp.Header))
	for k := range resp.Header {
		respHeaders[k] = resp.Header.Get(k)
	}
	err = wctx.SetLastResult(map[string]any{
		"status_code":  resp.StatusCode,
		"headers":      respHeaders,
		"body":         parsed,
		"content_type": respType,
		"duration_ms":  duration.Milliseconds(),
	})
	if err != nil {
		return Result{}, err
	}

	for _, c := range codes {
		if c == resp.StatusCode {
			return Outcomes(strconv.Itoa(c)), nil
		}
	}
	return Outcomes(OutcomeUnhandledHTTPStatus), nil
}

// statusCodes reads HttpStatusCodes, accepting "200, 404" or [200, 404].
func statusCodes(input *Input) ([]int, error) {
	raw, ok := input.Value("HttpStatusCodes")
	if !ok || raw == nil {
		return []int{http.StatusOK}, nil
	}
	var parts []string
	if s, isString := raw.(string); isString {
		parts = strings.Split(s, ",")
	} else {
		var err error
		if parts, err = cast.ToStringSliceE(raw); err != nil {
			return nil, err
		}
	}
	codes := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		c, err := strconv.Atoi(p)
		if err != nil || c < 100 || c > 599 {
			return nil, fmt.Errorf("invalid status code %q", p)
		}
		codes = append(codes, c)
	}
	return codes, nil
}

// requestBody encodes property Body. Strings are sent as-is, anything else
// as JSON.
func requestBody(input *Input) (io.Reader, string, error) {
	raw, ok := input.Value("Body")
	if !ok || raw == nil {
		return nil, "", nil
	}
	contentType := input.String("ContentType")
	if s, isString := raw.(string); isString {
		if contentType == "" {
			contentType = "text/plain"
		}
		return strings.NewReader(s), contentType, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, "", fmt.Errorf("marshal body: %w", err)
	}
	if contentType == "" {
		contentType = "application/json"
	}
	return strings.NewReader(string(b)), contentType, nil
}
