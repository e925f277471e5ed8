package memu

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

	"golang.org/x/time/rate"

	"github.com/alucardeht/memvault/internal/logger"
)

var log = logger.ForComponent("memu")

type ClientConfig struct {
	APIKey         string
	BaseURL        string
	RequestTimeout time.Duration
	RateLimit      float64
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:        "https://api.memu.so",
		RequestTimeout: 30 * time.Second,
		RateLimit:      5,
	}
}

// Client is the best-effort gateway to the remote memory service. Without an
// API key it is disabled and every call returns Error "disabled" without I/O.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := int(cfg.RateLimit)
	if burst < 1 {
		burst = 1
	}

	return &Client{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		limiter:    rate.NewLimiter(limit, burst),
	}
}

func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// Memorize submits a conversation. With wait it polls the task status every
// pollInterval until SUCCESS, FAILED, or timeout (reported as TIMEOUT). The
// loop is bounded only by timeout and cannot be cancelled from outside.
func (c *Client) Memorize(conversation []Message, userID, agentID string, override map[string]interface{}, wait bool, pollInterval, timeout time.Duration) *MemorizeResult {
	if !c.Enabled() {
		return &MemorizeResult{Error: ErrorDisabled}
	}

	payload := memorizeRequest{
		Conversation:   conversation,
		UserID:         userID,
		AgentID:        agentID,
		OverrideConfig: override,
	}

	body, errMsg := c.do(context.Background(), http.MethodPost, memorizePath, payload)
	if errMsg != "" {
		return &MemorizeResult{Error: errMsg}
	}

	var created struct {
		TaskID string `json:"task_id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return &MemorizeResult{Error: fmt.Sprintf("decode memorize response: %v", err), Detail: rawOrNil(body)}
	}
	if created.TaskID == "" || !wait {
		return &MemorizeResult{TaskID: created.TaskID, Status: created.Status, Detail: rawOrNil(body)}
	}

	return c.poll(created.TaskID, pollInterval, timeout)
}

func (c *Client) poll(taskID string, pollInterval, timeout time.Duration) *MemorizeResult {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	start := time.Now()
	deadline := start.Add(timeout)
	var last json.RawMessage

	for time.Now().Before(deadline) {
		// each status call is bounded by the overall deadline
		ctx, cancel := context.WithDeadline(context.Background(), deadline)
		body, errMsg := c.do(ctx, http.MethodGet, memorizeStatusPath+url.PathEscape(taskID), nil)
		cancel()

		if errMsg == "" {
			last = rawOrNil(body)
			var st struct {
				Status string `json:"status"`
			}
			if json.Unmarshal(body, &st) == nil {
				switch st.Status {
				case StatusSuccess:
					return &MemorizeResult{TaskID: taskID, Status: StatusSuccess}
				case StatusFailed:
					return &MemorizeResult{TaskID: taskID, Status: StatusFailed, Detail: last}
				}
			}
		} else {
			log.Debug("memorize status check failed", "task_id", taskID, "error", errMsg)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		sleep := pollInterval
		if sleep > remaining {
			sleep = remaining
		}
		time.Sleep(sleep)
	}

	log.Warn("memorize timed out", "task_id", taskID, "elapsed", time.Since(start))
	return &MemorizeResult{TaskID: taskID, Status: StatusTimeout, Detail: last}
}

// Retrieve runs a single query. override is the per-agent retrieve tuning
// chosen by the caller; nil sends none.
func (c *Client) Retrieve(ctx context.Context, query, userID, agentID string, override map[string]interface{}) *RetrieveResult {
	if !c.Enabled() {
		return &RetrieveResult{Error: ErrorDisabled}
	}

	payload := retrieveRequest{
		UserID:         userID,
		AgentID:        agentID,
		Query:          query,
		OverrideConfig: override,
	}

	body, errMsg := c.do(ctx, http.MethodPost, retrievePath, payload)
	if errMsg != "" {
		return &RetrieveResult{Error: errMsg}
	}

	return &RetrieveResult{Raw: body}
}

// do returns the response body, or an error message. It never returns a Go error.
func (c *Client) do(ctx context.Context, method, path string, payload interface{}) ([]byte, string) {
	endpoint := c.baseURL + path

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Sprintf("rate limit wait: %v", err)
	}

	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Sprintf("encode request: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Sprintf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn("memu request failed", "url", endpoint, "error", err)
		return nil, err.Error()
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Sprintf("read response: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn("memu request rejected", "url", endpoint, "status", resp.StatusCode)
		return nil, fmt.Sprintf("HTTP %d from %s", resp.StatusCode, endpoint)
	}

	return body, ""
}

func rawOrNil(body []byte) json.RawMessage {
	if !json.Valid(body) {
		return nil
	}
	return json.RawMessage(body)
}
