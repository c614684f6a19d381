package activities

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHTTPTask(srv *httptest.Server) *HTTPRequestTask {
	return &HTTPRequestTask{client: srv.Client(), maxResponseBody: defaultMaxResponseBody}
}

func TestHTTPRequestTask_StatusOutcome(t *testing.T) {
	var gotMethod, gotBody, gotType, gotCorr, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotType = r.Header.Get("Content-Type")
		gotCorr = r.Header.Get("X-Correlation-Id")
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 7}`))
	}))
	defer srv.Close()

	wctx := newFakeContext()
	res, err := newHTTPTask(srv).Execute(context.Background(), props(
		"Url", srv.URL+"/orders",
		"Method", "post",
		"Headers", map[string]any{"Authorization": "Bearer t"},
		"Body", map[string]any{"qty": 2},
		"HttpStatusCodes", "200, 201",
	), wctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"201"}, res.Outcomes)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, "corr", gotCorr)
	assert.Equal(t, "Bearer t", gotAuth)
	assert.JSONEq(t, `{"qty": 2}`, gotBody)

	last := wctx.last.(map[string]any)
	assert.Equal(t, http.StatusCreated, last["status_code"])
	assert.Equal(t, map[string]any{"id": float64(7)}, last["body"])
}

func TestHTTPRequestTask_UnhandledStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	wctx := newFakeContext()
	res, err := newHTTPTask(srv).Execute(context.Background(), props("Url", srv.URL), wctx)
	require.NoError(t, err)
	assert.Equal(t, []string{OutcomeUnhandledHTTPStatus}, res.Outcomes)
	assert.Equal(t, "nope\n", wctx.last.(map[string]any)["body"])
}

func TestHTTPRequestTask_Errors(t *testing.T) {
	task := &HTTPRequestTask{client: http.DefaultClient, maxResponseBody: defaultMaxResponseBody}
	ctx := context.Background()

	_, err := task.Execute(ctx, props("Url", "ftp://example.com"), newFakeContext())
	assert.ErrorContains(t, err, "invalid url")

	_, err = task.Execute(ctx, props("Url", "http://example.com", "HttpStatusCodes", "abc"), newFakeContext())
	assert.ErrorContains(t, err, "invalid status code")

	_, err = task.Execute(ctx, props("Url", "http://example.com", "Timeout", "soon"), newFakeContext())
	assert.ErrorContains(t, err, "timeout")
}

func TestHTTPRequestTask_Outcomes(t *testing.T) {
	task := &HTTPRequestTask{}
	assert.Equal(t, []string{"200", "404", OutcomeUnhandledHTTPStatus},
		task.Outcomes(props("HttpStatusCodes", []any{"200", 404})))
	assert.Equal(t, []string{OutcomeUnhandledHTTPStatus}, task.Outcomes(props("HttpStatusCodes", "bad")))
}
