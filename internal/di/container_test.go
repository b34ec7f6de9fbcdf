package di

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fieldsales/crm-api/internal/platform/config"
	"github.com/fieldsales/crm-api/internal/platform/idempotency"
)

func testConfig(t *testing.T, overrides map[string]string) config.Config {
	t.Helper()
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID":    "crm-test",
		"API_FIRESTORE_EMULATOR_HOST": "127.0.0.1:8681",
		"API_IDEMPOTENCY_BACKEND":     config.IdempotencyBackendMemory,
		"API_BUILD_VERSION":           "1.2.3",
	}
	for k, v := range overrides {
		env[k] = v
	}
	cfg, err := config.Load(context.Background(), config.WithEnvMap(env), config.WithoutSystemEnv(), config.WithEnvFile(""))
	require.NoError(t, err)
	if _, ok := overrides["API_PUBSUB_ORDER_EVENTS_TOPIC"]; !ok {
		cfg.PubSub.OrderEventsTopic = ""
	}
	return cfg
}

func newTestContainer(t *testing.T, overrides map[string]string) *Container {
	t.Helper()
	c, err := NewContainer(context.Background(), testConfig(t, overrides), zaptest.NewLogger(t), time.Now())
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, c.Close(context.Background()))
	})
	return c
}

func TestNewContainerWiresServices(t *testing.T) {
	c := newTestContainer(t, nil)

	assert.NotNil(t, c.Services.Orders)
	assert.NotNil(t, c.Services.Catalog)
	assert.NotNil(t, c.Services.System)
	assert.Nil(t, c.topic, "publishing is disabled without a topic")
	assert.IsType(t, &idempotency.MemoryStore{}, c.idempotency)
	assert.Equal(t, "1.2.3", c.Build.Version)

	names := make([]string, 0)
	for _, check := range c.dependencyChecks() {
		names = append(names, check.Name)
	}
	assert.Equal(t, []string{"firestore"}, names)
}

func TestNewContainerRedisBackend(t *testing.T) {
	c := newTestContainer(t, map[string]string{
		"API_IDEMPOTENCY_BACKEND": config.IdempotencyBackendRedis,
		"API_REDIS_ADDR":          "127.0.0.1:6390",
	})

	assert.IsType(t, &idempotency.RedisStore{}, c.idempotency)
	require.NotNil(t, c.redis)

	names := make([]string, 0)
	for _, check := range c.dependencyChecks() {
		names = append(names, check.Name)
	}
	assert.Equal(t, []string{"firestore", "redis"}, names)
}

func TestNewContainerWithEventTopic(t *testing.T) {
	c := newTestContainer(t, map[string]string{
		"API_PUBSUB_ORDER_EVENTS_TOPIC": "orders",
		"API_PUBSUB_EMULATOR_HOST":      "127.0.0.1:8085",
	})

	require.NotNil(t, c.topic)
	assert.Equal(t, "orders", c.topic.ID())
	assert.True(t, c.topic.EnableMessageOrdering)

	names := make([]string, 0)
	for _, check := range c.dependencyChecks() {
		names = append(names, check.Name)
	}
	assert.Equal(t, []string{"firestore", "pubsub"}, names)
}

func TestNewContainerRejectsUnknownBackend(t *testing.T) {
	cfg := testConfig(t, nil)
	cfg.Idempotency.Backend = "etcd"

	_, err := NewContainer(context.Background(), cfg, zaptest.NewLogger(t), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "etcd")
}

func TestPubSubClientOptions(t *testing.T) {
	assert.Empty(t, pubsubClientOptions(config.PubSubConfig{}))
	assert.Len(t, pubsubClientOptions(config.PubSubConfig{EmulatorHost: "localhost:8085"}), 3)
}

func TestContainerHandler(t *testing.T) {
	handler := newTestContainer(t, nil).Handler()

	t.Run("liveness", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		require.Equal(t, http.StatusOK, rr.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "1.2.3", body["version"])
	})

	t.Run("order submission requires caller identity", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{"lines":[]}`))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("structural validation runs before any lookup", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{
			"accountReference": "ACC-1",
			"accountDisplayName": "Bakery Lopez",
			"channel": "direct",
			"lines": []
		}`))
		req.Header.Set("X-Actor-Id", "rep-1")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		require.Equal(t, http.StatusBadRequest, rr.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "validation_error", body["error"])
		assert.Equal(t, "lines", body["field"])
		assert.NotEmpty(t, body["request_id"])
	})
}
