package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/alucardeht/memvault/internal/index"
)

type StatsSource interface {
	Stats() (*index.Stats, error)
}

type HealthTool struct {
	stats          StatsSource
	gatewayEnabled bool
	version        string
	started        time.Time
}

func NewHealthTool(stats StatsSource, gatewayEnabled bool, version string) *HealthTool {
	return &HealthTool{
		stats:          stats,
		gatewayEnabled: gatewayEnabled,
		version:        version,
		started:        time.Now(),
	}
}

func (t *HealthTool) Name() string {
	return "health"
}

func (t *HealthTool) Description() string {
	return "Check daemon health status"
}

func (t *HealthTool) Title() string {
	return "Health"
}

func (t *HealthTool) Annotations() map[string]bool {
	return ReadOnlyAnnotations()
}

func (t *HealthTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {},
		"required": []
	}`)
}

func (t *HealthTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	result := map[string]interface{}{
		"status":          "healthy",
		"version":         t.version,
		"uptime_seconds":  int64(time.Since(t.started).Seconds()),
		"gateway_enabled": t.gatewayEnabled,
	}

	if t.stats != nil {
		stats, err := t.stats.Stats()
		if err != nil {
			result["status"] = "degraded"
			result["index_error"] = err.Error()
		} else {
			result["index"] = stats
		}
	}

	return result, nil
}
