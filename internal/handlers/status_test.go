package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shardpulse/shardpulse/internal/config"
	"github.com/shardpulse/shardpulse/internal/logging"
	"github.com/shardpulse/shardpulse/internal/models"
	"github.com/shardpulse/shardpulse/internal/monitor"
	"github.com/shardpulse/shardpulse/internal/registry"
	"github.com/shardpulse/shardpulse/internal/transport"
)

// testApp wires a control loop with one overloaded node behind the status API
// and runs a monitoring pass so every route has state to serve
func testApp(t *testing.T) *fiber.App {
	t.Helper()

	cfg := config.DefaultConfig().Controller
	cfg.Strategy = "reactive"
	cfg.TotalShards = 16
	cfg.MonitoringInterval = 10 * time.Millisecond

	reg := registry.NewMemoryRegistry()
	collector := transport.NewMemoryCollector()
	logger := logging.NewWithWriter(io.Discard, zerolog.Disabled)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	require.NoError(t, reg.Register(ctx, models.Node{
		ID:           "node1",
		Capabilities: models.Capabilities{ProcessingPower: 100},
		HealthScore:  1.0,
	}))
	collector.Push("node1", models.MetricSample{Timestamp: time.Now(), CPU: 95, Memory: 40})

	loop := monitor.New(cfg, monitor.Options{
		Registry:  reg,
		Collector: collector,
		Logger:    logger,
	})
	require.NoError(t, loop.Start(ctx))
	t.Cleanup(loop.Stop)

	require.Eventually(t, func() bool {
		return loop.SystemMetrics().ActiveNodes == 1
	}, time.Second, 5*time.Millisecond)

	app := fiber.New()
	NewHandler(loop, logger).RegisterRoutes(app)
	return app
}

func get(t *testing.T, app *fiber.App, path string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, out))
}

func TestHealth(t *testing.T) {
	app := testApp(t)

	resp := get(t, app, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestSystemStatus(t *testing.T) {
	app := testApp(t)

	resp := get(t, app, "/api/v1/status")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var status monitor.Status
	decodeBody(t, resp, &status)
	assert.Equal(t, "reactive", status.Strategy)
	assert.Equal(t, 1, status.Metrics.ActiveNodes)
}

func TestShardStatistics(t *testing.T) {
	app := testApp(t)

	resp := get(t, app, "/api/v1/shards")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var stats struct {
		TotalShards int `json:"total_shards"`
		TotalNodes  int `json:"total_nodes"`
	}
	decodeBody(t, resp, &stats)
	assert.Equal(t, 16, stats.TotalShards)
	assert.Equal(t, 1, stats.TotalNodes)
}

func TestRecentDecisions(t *testing.T) {
	app := testApp(t)

	resp := get(t, app, "/api/v1/decisions?limit=5")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Decisions []models.ScalingDecision `json:"decisions"`
	}
	decodeBody(t, resp, &body)
	require.NotEmpty(t, body.Decisions)
	assert.Equal(t, models.ActionScaleUp, body.Decisions[0].Action)
}

func TestRecentDecisions_BadLimit(t *testing.T) {
	app := testApp(t)

	for _, limit := range []string{"abc", "0", "-3"} {
		resp := get(t, app, "/api/v1/decisions?limit="+limit)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "limit %q", limit)
	}
}
