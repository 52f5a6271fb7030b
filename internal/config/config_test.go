// Package config_test tests the configuration loading for the xtts-server.
package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/logger"
	"github.com/champierre/saym/internal/config"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullConfig = `
[server]
host = "127.0.0.1"
port = 9020

[engine]
kind = "http"
service_url = "http://inference:8000"
model_id = "xtts_v2"
device = "cpu"
default_language = "de"
timeout_seconds = 300

[speaker]
default = "/voices/narrator.wav"

[nats]
url = "nats://127.0.0.1:4222"
synthesis_subject = "tts.synthesize"
audio_chunk_created_subject = "audio.chunk.created"
text_object_store_bucket = "TEXT_FILES"
audio_object_store_bucket = "AUDIO_FILES"

[paths]
base_logs_dir = "/var/log/xtts"
`

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	var cfg config.Config

	err := toml.Unmarshal([]byte(fullConfig), &cfg)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9020, cfg.Server.Port)
	assert.Equal(t, config.EngineHTTP, cfg.Engine.Kind)
	assert.Equal(t, "http://inference:8000", cfg.Engine.ServiceURL)
	assert.Equal(t, "de", cfg.Engine.DefaultLanguage)
	assert.Equal(t, 300, cfg.Engine.TimeoutSeconds)
	assert.Equal(t, "/voices/narrator.wav", cfg.Speaker.Default)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "AUDIO_FILES", cfg.NATS.AudioObjectStoreBucket)
	assert.Equal(t, "/var/log/xtts", cfg.Paths.BaseLogsDir)
	require.NoError(t, cfg.Validate())
}

func TestDefault_ServerSettings(t *testing.T) {
	t.Parallel()

	cfg := config.Default()

	assert.Equal(t, "0.0.0.0:8020", cfg.Server.Address())
	assert.Equal(t, "en", cfg.Engine.DefaultLanguage)
	assert.Equal(t, "xtts_v2", cfg.Engine.ModelID)
	assert.Equal(t, config.DeviceAuto, cfg.Engine.Device)
	assert.False(t, cfg.NATS.Enabled())
	require.NoError(t, cfg.Validate())
}

func TestServerAddress_BracketsIPv6(t *testing.T) {
	t.Parallel()

	tests := []struct {
		host string
		want string
	}{
		{host: "::", want: "[::]:8020"},
		{host: "::1", want: "[::1]:8020"},
		{host: "127.0.0.1", want: "127.0.0.1:8020"},
		{host: "localhost", want: "localhost:8020"},
	}

	for _, testCase := range tests {
		server := config.ServerConfig{Host: testCase.host, Port: 8020}
		assert.Equal(t, testCase.want, server.Address())
	}
}

func TestLoadFile_KeepsDefaultsForAbsentKeys(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "xtts.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nport = 9000\n"), 0o600))

	cfg := config.Default()
	require.NoError(t, config.LoadFile(path, cfg))

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, config.DefaultHost, cfg.Server.Host)
	assert.Equal(t, config.EngineCLI, cfg.Engine.Kind)
}

func TestLoadFile_Missing(t *testing.T) {
	t.Parallel()

	err := config.LoadFile(filepath.Join(t.TempDir(), "absent.toml"), config.Default())
	require.ErrorIs(t, err, config.ErrConfigFileMissing)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xtts.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nport = 9000\n"), 0o600))

	t.Setenv("XTTS_PORT", "9100")
	t.Setenv("XTTS_SPEAKER", "/voices/env.wav")

	log, err := logger.New(t.TempDir(), "config-test.log")
	require.NoError(t, err)

	defer log.Close()

	cfg, err := config.Load(path, log)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "/voices/env.wav", cfg.Speaker.Default)
}

func TestLoad_InvalidPortEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xtts.toml")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o600))

	t.Setenv("XTTS_PORT", "eighty")

	_, err := config.Load(path, nil)
	require.Error(t, err)
}

func TestApply_FlagsWinOverConfig(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Speaker.Default = "/voices/config.wav"

	cfg.Apply(config.Overrides{Host: "", Port: 8081, Speaker: "/voices/flag.wav"})

	assert.Equal(t, config.DefaultHost, cfg.Server.Host)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "/voices/flag.wav", cfg.Speaker.Default)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(cfg *config.Config)
		wantErr error
	}{
		{
			name:    "port out of range",
			mutate:  func(cfg *config.Config) { cfg.Server.Port = 70000 },
			wantErr: config.ErrInvalidPort,
		},
		{
			name:    "unknown engine",
			mutate:  func(cfg *config.Config) { cfg.Engine.Kind = "grpc" },
			wantErr: config.ErrUnknownEngine,
		},
		{
			name:    "http engine without url",
			mutate:  func(cfg *config.Config) { cfg.Engine.Kind = config.EngineHTTP },
			wantErr: config.ErrEngineURLEmpty,
		},
		{
			name:    "cli engine without binary",
			mutate:  func(cfg *config.Config) { cfg.Engine.BinaryPath = "" },
			wantErr: config.ErrBinaryPathEmpty,
		},
		{
			name:    "unknown device",
			mutate:  func(cfg *config.Config) { cfg.Engine.Device = "tpu" },
			wantErr: config.ErrUnknownDevice,
		},
		{
			name:    "negative timeout",
			mutate:  func(cfg *config.Config) { cfg.Engine.TimeoutSeconds = -1 },
			wantErr: config.ErrNegativeTimeout,
		},
		{
			name: "nats without audio bucket",
			mutate: func(cfg *config.Config) {
				cfg.NATS.URL = "nats://127.0.0.1:4222"
				cfg.NATS.AudioObjectStoreBucket = ""
			},
			wantErr: config.ErrAudioBucketEmpty,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.Default()
			testCase.mutate(cfg)

			require.ErrorIs(t, cfg.Validate(), testCase.wantErr)
		})
	}
}
