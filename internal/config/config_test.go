package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-agent-go/internal/constants"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `
llm:
  providers:
    - name: openai
      base_url: https://api.openai.com/v1
      api_key: sk-test
      models: [gpt-4o-mini]
`

func TestLoadConfigAppliesDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfigFile(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, constants.DefaultParseExchange, cfg.RabbitMQ.ParseExchange)
	assert.Equal(t, constants.DefaultParseQueue, cfg.RabbitMQ.ParseQueue)
	assert.Equal(t, constants.DefaultParseWaitQueue, cfg.RabbitMQ.WaitQueue)
	assert.Equal(t, constants.DefaultWorkerPrefetch, cfg.RabbitMQ.PrefetchCount)
	assert.Equal(t, constants.DefaultMaxRetries, cfg.Pipeline.MaxRetries)
	assert.Equal(t, constants.DefaultTransientMaxRetries, cfg.Pipeline.TransientMaxRetries)
	assert.Equal(t, int64(constants.DefaultMaxFileSizeBytes), cfg.Pipeline.MaxFileSizeBytes)
	assert.Equal(t, constants.DefaultMaxBatchSize, cfg.Pipeline.MaxBatchSize)
	assert.InDelta(t, constants.DefaultExtractionTemperature, cfg.LLM.ExtractionTemperature, 1e-6)
	assert.InDelta(t, constants.DefaultSummaryTemperature, cfg.LLM.SummaryTemperature, 1e-6)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "resume-agent-go", cfg.Tracing.ServiceName)
}

func TestLoadConfigDurationHelpers(t *testing.T) {
	cfg, err := LoadConfig(writeConfigFile(t, minimalConfig+`
pipeline:
  retry_base_seconds: 15
  backoff_ceiling_seconds: 300
`))
	require.NoError(t, err)

	assert.Equal(t, constants.DefaultLLMCallTimeout, cfg.LLM.CallTimeout())
	assert.Equal(t, constants.DefaultRateLimitBackoffHint, cfg.LLM.RateLimitBackoffHint())
	assert.Equal(t, "15s", cfg.Pipeline.RetryBase().String())
	assert.Equal(t, "5m0s", cfg.Pipeline.BackoffCeiling().String())
	assert.Equal(t, constants.DefaultTransientRetryDelay, cfg.Pipeline.TransientRetryBase())
	assert.Equal(t, constants.DefaultLivenessTimeout, cfg.Pipeline.LivenessTimeout())
}

func TestLoadConfigRejectsEmptyProviderChain(t *testing.T) {
	_, err := LoadConfig(writeConfigFile(t, `
server:
  address: ":9090"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "降级链")
}

func TestLoadConfigRejectsProviderWithoutModels(t *testing.T) {
	_, err := LoadConfig(writeConfigFile(t, `
llm:
  providers:
    - name: openai
      base_url: https://api.openai.com/v1
      models: []
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "模型列表")
}

func TestLoadConfigRejectsOversizedBatchLimit(t *testing.T) {
	_, err := LoadConfig(writeConfigFile(t, minimalConfig+`
pipeline:
  max_batch_size: 500
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_batch_size")
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("MYSQL_PASSWORD", "env-secret")
	t.Setenv("LLM_API_KEY_OPENAI", "sk-from-env")

	cfg, err := LoadConfig(writeConfigFile(t, minimalConfig+`
mysql:
  password: file-secret
`))
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.MySQL.Password)
	assert.Equal(t, "sk-from-env", cfg.LLM.Providers[0].APIKey)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
