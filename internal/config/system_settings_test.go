package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	assert.Equal(t, "8080", GetSystemSettingString(SERVER_WEB_PORT))
	assert.Equal(t, 3, GetSystemSettingInteger(ENGINE_CONFLICT_RETRIES))
	assert.Equal(t, time.Minute, GetSystemSettingDuration(ENGINE_ESCALATION_INTERVAL, time.Hour))
}

func TestEnvironmentOverridesDefault(t *testing.T) {
	t.Setenv("AFLOW_ENGINE_BATCH_SIZE", "42")
	assert.Equal(t, 42, GetSystemSettingInteger(ENGINE_BATCH_SIZE))
}

func TestDurationFallback(t *testing.T) {
	Set(ENGINE_HEARTBEAT_INTERVAL, "not-a-duration")
	t.Cleanup(func() { Set(ENGINE_HEARTBEAT_INTERVAL, "30s") })
	assert.Equal(t, 5*time.Second, GetSystemSettingDuration(ENGINE_HEARTBEAT_INTERVAL, 5*time.Second))
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "approvalflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("business_hours:\n  start: 8\n  end: 18\n"), 0o600))

	require.NoError(t, Load(path))
	assert.Equal(t, 8, GetSystemSettingInteger(BUSINESS_HOURS_START))
	assert.Equal(t, 18, GetSystemSettingInteger(BUSINESS_HOURS_END))
}
