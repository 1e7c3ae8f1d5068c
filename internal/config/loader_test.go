package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfigYAML = `
server:
  host: "127.0.0.1"
  port: 8090
log:
  level: "debug"
  format: "console"
redis:
  addr: "redis.internal:6379"
kafka:
  brokers: ["kafka-0:9092", "kafka-1:9092"]
  group_id: "ipscope-test"
sources:
  patents:
    base_url: "https://patents.internal"
    path: "/v1/search"
    query_param: "org"
  request_timeout: 20s
aggregation:
  max_concurrency: 4
  timeout: 30s
`

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func setEnvVars(t *testing.T, vars map[string]string) {
	t.Helper()
	for k, v := range vars {
		os.Setenv(k, v)
	}
	t.Cleanup(func() {
		for k := range vars {
			os.Unsetenv(k)
		}
	})
}

func TestLoad_ValidFile(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.Equal(t, []string{"kafka-0:9092", "kafka-1:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "https://patents.internal", cfg.Sources.Patents.BaseURL)
	assert.Equal(t, "/v1/search", cfg.Sources.Patents.Path)
	assert.Equal(t, "org", cfg.Sources.Patents.QueryParam)
	assert.Equal(t, 20*time.Second, cfg.Sources.RequestTimeout)
	assert.Equal(t, 4, cfg.Aggregation.MaxConcurrency)
	assert.Equal(t, 30*time.Second, cfg.Aggregation.Timeout)
}

func TestLoad_DefaultsFillUnsetSections(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	// Sections absent from the file fall back to defaults.
	assert.Equal(t, DefaultTrademarksBaseURL, cfg.Sources.Trademarks.BaseURL)
	assert.Equal(t, DefaultPendingFallbackPath, cfg.Sources.Pending.FallbackPath)
	assert.Equal(t, DefaultWorkerConcurrency, cfg.Worker.Concurrency)
	assert.Equal(t, DefaultCacheRecountTTL, cfg.Cache.RecountTTL)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("does-not-exist.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := createTempConfigFile(t, "sources: [")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := createTempConfigFile(t, `
log:
  level: "chatty"
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)
	setEnvVars(t, map[string]string{
		"IPSCOPE_SERVER_PORT": "9999",
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestLoad_EnvOverride_NestedSourceKey(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)
	setEnvVars(t, map[string]string{
		"IPSCOPE_SOURCES_PENDING_BASE_URL": "https://pending.internal",
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://pending.internal", cfg.Sources.Pending.BaseURL)
}

func TestLoadFromEnv_DefaultsOnly(t *testing.T) {
	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, DefaultAggregationTimeout, cfg.Aggregation.Timeout)
}

func TestLoadFromEnv_WithOverrides(t *testing.T) {
	setEnvVars(t, map[string]string{
		"IPSCOPE_AGGREGATION_MAX_CONCURRENCY": "2",
		"IPSCOPE_REDIS_ADDR":                  "cache.internal:6379",
	})

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Aggregation.MaxConcurrency)
	assert.Equal(t, "cache.internal:6379", cfg.Redis.Addr)
}

func TestMustLoad_Success(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)
	assert.NotPanics(t, func() { MustLoad(path) })
}

func TestMustLoad_PanicsOnError(t *testing.T) {
	assert.Panics(t, func() { MustLoad("missing.yaml") })
}
