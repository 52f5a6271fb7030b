// Package config provides the configuration structure for the xtts-server.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Engine kinds.
const (
	EngineCLI  = "cli"
	EngineHTTP = "http"
)

// Device selection values.
const (
	DeviceAuto = "auto"
	DeviceCUDA = "cuda"
	DeviceCPU  = "cpu"
)

// Defaults match the reference XTTS v2 HTTP server.
const (
	DefaultHost       = "0.0.0.0"
	DefaultPort       = 8020
	DefaultLanguage   = "en"
	DefaultModelID    = "xtts_v2"
	DefaultModelName  = "tts_models/multilingual/multi-dataset/xtts_v2"
	DefaultBinaryPath = "tts"
	DefaultLogsDir    = "logs"

	defaultSynthesisSubject = "tts.synthesize"
	defaultAudioSubject     = "audio.chunk.created"
	defaultTextBucket       = "TEXT_FILES"
	defaultAudioBucket      = "AUDIO_FILES"

	maxPort = 65535
)

// Environment variable names applied on top of file configuration.
const (
	envHost      = "XTTS_HOST"
	envPort      = "XTTS_PORT"
	envSpeaker   = "XTTS_SPEAKER"
	envEngine    = "XTTS_ENGINE"
	envEngineURL = "XTTS_ENGINE_URL"
	envDevice    = "XTTS_DEVICE"
	envNATSURL   = "XTTS_NATS_URL"
)

// Static errors.
var (
	ErrInvalidPort       = errors.New("port must be between 1 and 65535")
	ErrUnknownEngine     = errors.New("unknown engine kind")
	ErrEngineURLEmpty    = errors.New("engine service_url is required for the http engine")
	ErrBinaryPathEmpty   = errors.New("engine binary_path is required for the cli engine")
	ErrUnknownDevice     = errors.New("device must be one of auto, cuda, cpu")
	ErrNegativeTimeout   = errors.New("engine timeout_seconds must be non-negative")
	ErrSubjectEmpty      = errors.New("nats synthesis_subject is required when nats is enabled")
	ErrAudioBucketEmpty  = errors.New("nats audio_object_store_bucket is required when nats is enabled")
	ErrTextBucketEmpty   = errors.New("nats text_object_store_bucket is required when nats is enabled")
	ErrDefaultLangEmpty  = errors.New("engine default_language cannot be empty")
	ErrConfigFileMissing = errors.New("config file not found")
)

// ServerConfig holds the HTTP bind settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// EngineConfig describes how the synthesis engine is reached.
type EngineConfig struct {
	Kind            string `toml:"kind"`
	BinaryPath      string `toml:"binary_path"`
	ModelName       string `toml:"model_name"`
	ModelID         string `toml:"model_id"`
	ServiceURL      string `toml:"service_url"`
	Device          string `toml:"device"`
	DefaultLanguage string `toml:"default_language"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
}

// SpeakerConfig holds the startup default reference voice.
type SpeakerConfig struct {
	Default string `toml:"default"`
}

// NATSConfig holds the configuration for the optional NATS worker.
type NATSConfig struct {
	URL                      string `toml:"url"`
	SynthesisSubject         string `toml:"synthesis_subject"`
	AudioChunkCreatedSubject string `toml:"audio_chunk_created_subject"`
	TextObjectStoreBucket    string `toml:"text_object_store_bucket"`
	AudioObjectStoreBucket   string `toml:"audio_object_store_bucket"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
	TempDir     string `toml:"temp_dir"`
}

// Config is the root configuration structure.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Engine  EngineConfig  `toml:"engine"`
	Speaker SpeakerConfig `toml:"speaker"`
	NATS    NATSConfig    `toml:"nats"`
	Paths   PathsConfig   `toml:"paths"`
}

// Overrides carries command-line values. Zero values leave the loaded
// configuration untouched.
type Overrides struct {
	Host    string
	Port    int
	Speaker string
}

// Default returns a configuration populated with the server defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Engine: EngineConfig{
			Kind:            EngineCLI,
			BinaryPath:      DefaultBinaryPath,
			ModelName:       DefaultModelName,
			ModelID:         DefaultModelID,
			ServiceURL:      "",
			Device:          DeviceAuto,
			DefaultLanguage: DefaultLanguage,
			TimeoutSeconds:  0,
		},
		Speaker: SpeakerConfig{Default: ""},
		NATS: NATSConfig{
			URL:                      "",
			SynthesisSubject:         defaultSynthesisSubject,
			AudioChunkCreatedSubject: defaultAudioSubject,
			TextObjectStoreBucket:    defaultTextBucket,
			AudioObjectStoreBucket:   defaultAudioBucket,
		},
		Paths: PathsConfig{
			BaseLogsDir: DefaultLogsDir,
			TempDir:     os.TempDir(),
		},
	}
}

// Load builds the configuration for the xtts-server. When path is empty the
// central configurator is consulted; a missing central configuration is not
// fatal because every setting has a default.
func Load(path string, log *logger.Logger) (*Config, error) {
	cfg := Default()

	if path != "" {
		err := LoadFile(path, cfg)
		if err != nil {
			return nil, err
		}
	} else {
		err := configurator.Load(cfg, log)
		if err != nil {
			log.Warn("No central configuration loaded, using defaults: %v", err)
		}
	}

	err := applyEnv(cfg)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFile decodes a TOML file into cfg, keeping defaults for absent keys.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrConfigFileMissing, path)
		}

		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	err = toml.Unmarshal(data, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode config file %s: %w", path, err)
	}

	return nil
}

// applyEnv loads a .env file if present and applies XTTS_* variables.
func applyEnv(cfg *Config) error {
	_ = godotenv.Load()

	if v := os.Getenv(envHost); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv(envPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", envPort, v, err)
		}

		cfg.Server.Port = port
	}

	if v := os.Getenv(envSpeaker); v != "" {
		cfg.Speaker.Default = v
	}

	if v := os.Getenv(envEngine); v != "" {
		cfg.Engine.Kind = v
	}

	if v := os.Getenv(envEngineURL); v != "" {
		cfg.Engine.ServiceURL = v
	}

	if v := os.Getenv(envDevice); v != "" {
		cfg.Engine.Device = v
	}

	if v := os.Getenv(envNATSURL); v != "" {
		cfg.NATS.URL = v
	}

	return nil
}

// Apply copies non-zero command-line overrides into the configuration.
func (c *Config) Apply(o Overrides) {
	if o.Host != "" {
		c.Server.Host = o.Host
	}

	if o.Port != 0 {
		c.Server.Port = o.Port
	}

	if o.Speaker != "" {
		c.Speaker.Default = o.Speaker
	}
}

// Validate checks that the configuration can start a server.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("%w: got %d", ErrInvalidPort, c.Server.Port)
	}

	switch c.Engine.Kind {
	case EngineCLI:
		if c.Engine.BinaryPath == "" {
			return ErrBinaryPathEmpty
		}
	case EngineHTTP:
		if c.Engine.ServiceURL == "" {
			return ErrEngineURLEmpty
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEngine, c.Engine.Kind)
	}

	switch c.Engine.Device {
	case DeviceAuto, DeviceCUDA, DeviceCPU:
	default:
		return fmt.Errorf("%w: got %q", ErrUnknownDevice, c.Engine.Device)
	}

	if c.Engine.TimeoutSeconds < 0 {
		return ErrNegativeTimeout
	}

	if c.Engine.DefaultLanguage == "" {
		return ErrDefaultLangEmpty
	}

	return c.NATS.validate()
}

func (n NATSConfig) validate() error {
	if !n.Enabled() {
		return nil
	}

	if n.SynthesisSubject == "" {
		return ErrSubjectEmpty
	}

	if n.TextObjectStoreBucket == "" {
		return ErrTextBucketEmpty
	}

	if n.AudioObjectStoreBucket == "" {
		return ErrAudioBucketEmpty
	}

	return nil
}

// Enabled reports whether the NATS worker should be started.
func (n NATSConfig) Enabled() bool {
	return n.URL != ""
}

// Address returns the host:port the HTTP server binds to. IPv6 hosts are
// bracketed.
func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}
