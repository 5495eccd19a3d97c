package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtstt/ingestcore/internal/device"
)

func noEnv(string) string { return "" }

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]string{"--ws-url", "ws://localhost:9000"}, noEnv)
	require.NoError(t, err)
	assert.Equal(t, "auto", cfg.Driver)
	assert.Equal(t, 16000, cfg.SampleRate)
	assert.Equal(t, 2000, cfg.ChunkMs)
}

func TestParseFlagsOverrideDefaults(t *testing.T) {
	cfg, err := Parse([]string{"--ws-url", "wss://host/path", "--sample-rate", "48000", "--driver", "synthetic"}, noEnv)
	require.NoError(t, err)
	assert.Equal(t, 48000, cfg.SampleRate)
	assert.Equal(t, "synthetic", cfg.Driver)
}

func TestParseRejectsMissingWSURL(t *testing.T) {
	_, err := Parse([]string{}, noEnv)
	assert.Error(t, err)
}

func TestParseRejectsNonWebSocketScheme(t *testing.T) {
	_, err := Parse([]string{"--ws-url", "http://localhost"}, noEnv)
	assert.Error(t, err)
}

func TestParseAllowsListDevicesWithoutWSURL(t *testing.T) {
	cfg, err := Parse([]string{"--list-devices"}, noEnv)
	require.NoError(t, err)
	assert.True(t, cfg.ListDevices)
}

func TestParseRejectsUnknownDriver(t *testing.T) {
	_, err := Parse([]string{"--ws-url", "ws://localhost", "--driver", "bogus"}, noEnv)
	assert.Error(t, err)
}

func TestParseFlagsCoverVADAndReconnectOptions(t *testing.T) {
	cfg, err := Parse([]string{
		"--ws-url", "ws://localhost",
		"--vad-pre-roll-ms", "400",
		"--vad-hangover-ms", "600",
		"--heartbeat-ms", "5000",
		"--reconnect-initial-ms", "2000",
		"--reconnect-max-ms", "60000",
		"--reconnect-max-retries", "5",
	}, noEnv)
	require.NoError(t, err)
	assert.Equal(t, 400, cfg.VADPreRollMs)
	assert.Equal(t, 600, cfg.VADHangoverMs)
	assert.Equal(t, 5000, cfg.HeartbeatMs)
	assert.Equal(t, 2000, cfg.ReconnectInitialMs)
	assert.Equal(t, 60000, cfg.ReconnectMaxMs)
	assert.Equal(t, 5, cfg.ReconnectMaxRetries)
}

func TestEnvOverridesApplyBeforeFlags(t *testing.T) {
	env := map[string]string{
		"RTSTT_WS_URL":      "ws://from-env",
		"RTSTT_SAMPLE_RATE": "22050",
	}
	getenv := func(k string) string { return env[k] }

	cfg, err := Parse([]string{"--sample-rate", "8000"}, getenv)
	require.NoError(t, err)
	assert.Equal(t, "ws://from-env", cfg.WSURL, "env sets what flags don't override")
	assert.Equal(t, 8000, cfg.SampleRate, "explicit flag wins over env")
}

func TestToSessionConfigTranslatesFields(t *testing.T) {
	cfg, err := Parse([]string{"--ws-url", "ws://localhost", "--driver", "native"}, noEnv)
	require.NoError(t, err)
	sc := cfg.ToSessionConfig()
	assert.Equal(t, device.KindNative, sc.DriverKind)
	assert.Equal(t, "ws://localhost", sc.WSURL)
}

func TestFormatDeviceLine(t *testing.T) {
	d := device.Descriptor{ID: "dev1", HumanName: "Built-in Mic", IsDefault: true}
	assert.Equal(t, "dev1\tBuilt-in Mic\t(default)", FormatDeviceLine(d))

	d2 := device.Descriptor{ID: "dev2", HumanName: "USB Mic"}
	assert.Equal(t, "dev2\tUSB Mic", FormatDeviceLine(d2))
}
