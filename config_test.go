package runwatch_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	runwatch "github.com/fedlens/runwatch"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	content := `
[backend]
url = "https://backend.example.com:8000"
tls_verification = true

[poll]
interval = "10s"
max_attempts = 12
allow_force_ready = true

[mqtt]
address = "tcp://localhost:1883"
client_id = "runwatch-1"
base_topic = "runwatch"
`

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := runwatch.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://backend.example.com:8000", cfg.Backend.URL)
	assert.True(t, cfg.Backend.TLSVerification)
	assert.Equal(t, 10*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 12, cfg.Poll.MaxAttempts)
	assert.True(t, cfg.Poll.AllowForceReady)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Address)
	assert.Equal(t, "runwatch-1", cfg.MQTT.ClientID)
	assert.Equal(t, "runwatch", cfg.MQTT.BaseTopic)
}

func TestLoadConfigPartial(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[backend]\nurl = \"http://localhost:8000\"\n"), 0o644))

	cfg, err := runwatch.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.Backend.URL)
	assert.Zero(t, cfg.Poll.MaxAttempts)
	assert.Empty(t, cfg.MQTT.Address)
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Parallel()

	_, err := runwatch.LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestLoadConfigMalformed(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[backend\nurl ="), 0o644))

	_, err := runwatch.LoadConfig(path)
	assert.Error(t, err)
}
