package memu

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(ClientConfig{
		APIKey:         "test-key",
		BaseURL:        srv.URL,
		RequestTimeout: 5 * time.Second,
	})
}

func TestDisabledClientMakesNoCalls(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL})
	assert.False(t, c.Enabled())

	mem := c.Memorize([]Message{{Role: "user", Content: "hi"}}, "u", "a", nil, true, time.Millisecond, time.Second)
	assert.Equal(t, ErrorDisabled, mem.Error)

	ret := c.Retrieve(context.Background(), "q", "u", "a", nil)
	assert.Equal(t, ErrorDisabled, ret.Error)

	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestMemorizeWaitsForSuccess(t *testing.T) {
	var polls int32
	mux := http.NewServeMux()
	mux.HandleFunc(memorizePath, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var req memorizeRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "alice", req.UserID)
		assert.Equal(t, "physics_agent", req.AgentID)
		assert.Len(t, req.Conversation, 2)
		assert.Equal(t, []interface{}{"knowledge"}, req.OverrideConfig["memory_types"])
		w.Write([]byte(`{"task_id":"task-42","status":"PENDING"}`))
	})
	mux.HandleFunc(memorizeStatusPath, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/task-42"))
		if atomic.AddInt32(&polls, 1) < 3 {
			w.Write([]byte(`{"status":"PROCESSING"}`))
			return
		}
		w.Write([]byte(`{"status":"SUCCESS"}`))
	})

	c := newTestClient(t, mux)
	conv := []Message{{Role: "user", Content: "store"}, {Role: "assistant", Content: "ok"}}
	override := map[string]interface{}{"memory_types": []interface{}{"knowledge"}}

	res := c.Memorize(conv, "alice", "physics_agent", override, true, 10*time.Millisecond, 5*time.Second)
	assert.Empty(t, res.Error)
	assert.Equal(t, "task-42", res.TaskID)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.False(t, res.Failed())
	assert.EqualValues(t, 3, atomic.LoadInt32(&polls))
}

func TestMemorizeReportsFailedStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(memorizePath, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"task_id":"t1"}`))
	})
	mux.HandleFunc(memorizeStatusPath, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"FAILED","reason":"quota"}`))
	})

	res := newTestClient(t, mux).Memorize(nil, "u", "a", nil, true, 10*time.Millisecond, time.Second)
	assert.Equal(t, StatusFailed, res.Status)
	assert.True(t, res.Failed())
	assert.Contains(t, string(res.Detail), "quota")
}

func TestMemorizeWithoutWait(t *testing.T) {
	var polled int32
	mux := http.NewServeMux()
	mux.HandleFunc(memorizePath, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"task_id":"t2","status":"PENDING"}`))
	})
	mux.HandleFunc(memorizeStatusPath, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&polled, 1)
	})

	res := newTestClient(t, mux).Memorize(nil, "u", "a", nil, false, time.Millisecond, time.Second)
	assert.Empty(t, res.Error)
	assert.Equal(t, "t2", res.TaskID)
	assert.Equal(t, "PENDING", res.Status)
	assert.Zero(t, atomic.LoadInt32(&polled))
}

func TestMemorizeTimeoutIsBounded(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(memorizePath, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"task_id":"slow"}`))
	})
	mux.HandleFunc(memorizeStatusPath, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"PROCESSING"}`))
	})
	c := newTestClient(t, mux)

	start := time.Now()
	res := c.Memorize(nil, "u", "a", nil, true, time.Second, 500*time.Millisecond)
	elapsed := time.Since(start)

	assert.Equal(t, StatusTimeout, res.Status)
	assert.Equal(t, "slow", res.TaskID)
	assert.Empty(t, res.Error)
	assert.GreaterOrEqual(t, elapsed, 450*time.Millisecond)
	assert.Less(t, elapsed, 1500*time.Millisecond)
}

func TestMemorizeHTTPErrorBecomesErrorField(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(memorizePath, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	})

	res := newTestClient(t, mux).Memorize(nil, "u", "a", nil, true, time.Millisecond, time.Second)
	assert.Contains(t, res.Error, "401")
	assert.True(t, res.Failed())
}

func TestRetrieveTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(ClientConfig{APIKey: "k", BaseURL: url, RequestTimeout: time.Second})
	res := c.Retrieve(context.Background(), "q", "u", "a", nil)
	assert.NotEmpty(t, res.Error)
	assert.Nil(t, res.Raw)
}

func TestRetrieveSendsQueryAndOverride(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(retrievePath, func(w http.ResponseWriter, r *http.Request) {
		var req retrieveRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "alpha", req.Query)
		assert.Equal(t, "rag", req.OverrideConfig["method"])
		w.Write([]byte(`{"items":[{"content":"[MEMU_REF record_id=abc-1 category=paper file=x.pdf]"}]}`))
	})

	res := newTestClient(t, mux).Retrieve(context.Background(), "alpha", "u", "a", map[string]interface{}{"method": "rag"})
	require.Empty(t, res.Error)
	assert.Equal(t, []string{"abc-1"}, ExtractRecordIDs(res.Raw))
}
