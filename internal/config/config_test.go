package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	cfg, err := LoadFromEnv("PHARMANET_TEST_DEFAULTS")
	require.NoError(t, err)

	assert.Equal(t, "pharmanet", cfg.ServiceName)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "stdout", cfg.Log.Output)
	assert.Equal(t, "sqlite", cfg.Ledger.Driver)
	assert.Equal(t, "pharmanet.db", cfg.Ledger.SQLitePath)
	assert.Equal(t, "scan", cfg.Index.Driver)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 0, cfg.Redis.DB)
	assert.Equal(t, "none", cfg.Events.Driver)
	assert.Equal(t, "pharmanet/events", cfg.MQTT.Topic)
	assert.Equal(t, "fs", cfg.Blob.Driver)
	assert.False(t, cfg.Blob.S3.PathStyle)
	assert.Equal(t, "none", cfg.Metrics.Driver)
	assert.Equal(t, "Org2MSP", cfg.Access.ManufacturerOrg)
	assert.Equal(t, "Org1MSP", cfg.Access.SupplyChainOrg)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("PHARMANET_LEDGER_DRIVER", "postgres")
	t.Setenv("PHARMANET_POSTGRES_DSN", "postgres://db/pharmanet")
	t.Setenv("PHARMANET_INDEX_DRIVER", "redis")
	t.Setenv("PHARMANET_REDIS_DB", "3")
	t.Setenv("PHARMANET_EVENTS_DRIVER", "mqtt")
	t.Setenv("PHARMANET_BLOB_DRIVER", "s3")
	t.Setenv("PHARMANET_BLOB_S3_BUCKET", "reports")
	t.Setenv("PHARMANET_BLOB_S3_PATH_STYLE", "true")
	t.Setenv("PHARMANET_METRICS_DRIVER", "prometheus")
	t.Setenv("PHARMANET_ACCESS_MANUFACTURER_ORG", "MakerMSP")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Ledger.Driver)
	assert.Equal(t, "postgres://db/pharmanet", cfg.Ledger.PostgresDSN)
	assert.Equal(t, "redis", cfg.Index.Driver)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, "mqtt", cfg.Events.Driver)
	assert.Equal(t, "reports", cfg.Blob.S3.Bucket)
	assert.True(t, cfg.Blob.S3.PathStyle)
	assert.Equal(t, "prometheus", cfg.Metrics.Driver)
	assert.Equal(t, "MakerMSP", cfg.Access.ManufacturerOrg)
}

func TestLoadFromEnvRejectsInvalidValues(t *testing.T) {
	t.Setenv("PHARMANET_BAD_REDIS_DB", "one")
	_, err := LoadFromEnv("PHARMANET_BAD")
	require.Error(t, err)

	t.Setenv("PHARMANET_BAD2_LEDGER_DRIVER", "cassandra")
	t.Setenv("PHARMANET_BAD2_BLOB_DRIVER", "s3")
	_, err = LoadFromEnv("PHARMANET_BAD2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger driver")
	assert.Contains(t, err.Error(), "requires a bucket")
}

func TestValidatePostgresNeedsDSN(t *testing.T) {
	cfg, err := LoadFromEnv("PHARMANET_TEST_PG")
	require.NoError(t, err)
	cfg.Ledger.Driver = "postgres"
	assert.ErrorContains(t, cfg.Validate(), "dsn")
}
