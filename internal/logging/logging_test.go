package logging

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"pharmanet/internal/core"
)

func TestNewHonoursLevel(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		logger, err := New("warn", format, "pharmanet-test")
		require.NoError(t, err)
		assert.False(t, logger.Core().Enabled(zapcore.InfoLevel), format)
		assert.True(t, logger.Core().Enabled(zapcore.WarnLevel), format)
	}
}

func TestNewWritesJSONToOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.log")
	logger, err := New("info", "json", "pharmanet-test", "", path)
	require.NoError(t, err)
	logger.Info("ledger opened", zap.String("driver", "sqlite"))
	require.NoError(t, logger.Sync())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(raw, &entry))
	assert.Equal(t, "ledger opened", entry["msg"])
	assert.Equal(t, "pharmanet-test", entry["service_name"])
	assert.Contains(t, entry, "timestamp")
}

func TestNewWritesConsoleToOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.log")
	logger, err := New("info", "console", "pharmanet-test", path)
	require.NoError(t, err)
	logger.Info("chaincode started")
	require.NoError(t, logger.Sync())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "chaincode started")
	assert.Contains(t, string(raw), "pharmanet-test")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("verbose"))
}

func TestServiceLoggerWritesKeyValues(t *testing.T) {
	obsCore, logs := observer.New(zapcore.DebugLevel)
	logger := NewServiceLogger(zap.New(obsCore))

	logger.Debug("operation completed", "operation", "mint_drug", "tx_id", "tx-1")
	logger.Warn("operation rejected", "operation", "retail_drug")

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, "operation completed", entries[0].Message)
	assert.Equal(t, "tx-1", entries[0].ContextMap()["tx_id"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
}

func TestServiceLoggerThroughService(t *testing.T) {
	obsCore, logs := observer.New(zapcore.DebugLevel)
	svc := core.NewInMemoryService(core.WithLogger(NewServiceLogger(zap.New(obsCore))))

	_, _, err := svc.RegisterCompany(context.Background(), "Org1MSP", core.RegisterCompanyInput{CRN: "M1", Name: "Sun Pharma", Role: "Manufacturer"})
	require.NoError(t, err)
	_, _, err = svc.RegisterCompany(context.Background(), "Org1MSP", core.RegisterCompanyInput{CRN: "M1", Name: "Sun Pharma", Role: "Manufacturer"})
	require.Error(t, err)

	assert.Equal(t, 1, logs.FilterMessage("operation completed").Len())
	rejected := logs.FilterMessage("operation rejected").All()
	require.Len(t, rejected, 1)
	assert.Equal(t, "already_exists", rejected[0].ContextMap()["kind"])
}

func TestNilServiceLoggerDiscards(t *testing.T) {
	logger := NewServiceLogger(nil)
	logger.Info("ignored", "k", "v")
	logger.Error("ignored")
}
