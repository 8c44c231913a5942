package logging

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_NoSinksDiscards(t *testing.T) {
	logger := New(Options{Level: "debug"})
	assert.Equal(t, zerolog.Disabled, logger.GetLevel())
}

func TestNew_FileSinkWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "console.log")
	logger := New(Options{Level: "info", File: true, FilePath: path, MaxSizeMB: 1})

	logger.Debug().Msg("hidden")
	LogPlanAction(WithComponent(logger, "plans"), "p1", "approve", "approved", nil)
	LogAPICall(logger, "GET", "/api/trade-plans", 503, 40*time.Millisecond, errors.New("unavailable"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var plan map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &plan))
	assert.Equal(t, "plans", plan["component"])
	assert.Equal(t, "p1", plan["plan_id"])
	assert.Equal(t, "Plan approve", plan["message"])

	var call map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &call))
	assert.Equal(t, "warn", call["level"])
	assert.Equal(t, float64(503), call["status"])
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	New(Options{Level: "chatty"})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestRequestID(t *testing.T) {
	assert.Empty(t, RequestID(context.Background()))
	ctx := WithRequestID(context.Background(), "req-7")
	assert.Equal(t, "req-7", RequestID(ctx))
}
