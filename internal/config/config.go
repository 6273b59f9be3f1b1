package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	StdoutTraces   bool   `yaml:"stdout_traces"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Speech      SpeechConfig    `yaml:"speech"`
	Storage     StorageConfig   `yaml:"storage"`
	History     HistoryConfig   `yaml:"history"`
	Studio      StudioConfig    `yaml:"studio"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
	// MaxPayload is the largest message the embedded server accepts.
	MaxPayload     int      `yaml:"max_payload_bytes"`
}

// SpeechConfig selects and configures the synthesis backend. The API key is
// never read from YAML, only from the environment.
type SpeechConfig struct {
	Mode         string `yaml:"mode"` // gemini, exec, mock
	Endpoint     string `yaml:"endpoint"`
	Model        string `yaml:"model"`
	Command      string `yaml:"command"`
	SampleRate   int    `yaml:"sample_rate"`
	Channels     int    `yaml:"channels"`
	TimeoutMS    int    `yaml:"timeout_ms"`
	CloneVoice   string `yaml:"clone_voice"`
	ServeOnBus   bool   `yaml:"serve_on_bus"`
	APIKey       string `yaml:"-"`
	APIKeySource string `yaml:"-"`
}

type StorageConfig struct {
	Driver        string `yaml:"driver"` // memory, sqlite, nats, redis
	Path          string `yaml:"path"`
	Bucket        string `yaml:"bucket"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	Prefix        string `yaml:"prefix"`
	MaxValueBytes int    `yaml:"max_value_bytes"`
}

type HistoryConfig struct {
	Key          string `yaml:"key"`
	PersistLimit int    `yaml:"persist_limit"`
}

type StudioConfig struct {
	DefaultVoice      string `yaml:"default_voice"`
	PreviewTTLMS      int    `yaml:"preview_ttl_ms"`
	MaxReferenceBytes int    `yaml:"max_reference_bytes"`
}

// MaxBusPayload is the NATS server's hard ceiling for max_payload.
const MaxBusPayload = 64 * 1024 * 1024

// Placeholder values that some deployment tools write when a secret is unset.
var placeholderKeys = map[string]bool{
	"":             true,
	"undefined":    true,
	"null":         true,
	"your-api-key": true,
	"YOUR_API_KEY": true,
	"changeme":     true,
	"<api-key>":    true,
}

// ErrMissingCredential reports an absent or placeholder API key.
var ErrMissingCredential = errors.New("API key is missing: set GEMINI_API_KEY or API_KEY in the environment")

func Default() Config {
	return Config{
		RuntimeName: "vocalforge",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
			MaxPayload:     8 * 1024 * 1024,
		},
		Speech: SpeechConfig{
			Mode:       "gemini",
			Endpoint:   "https://generativelanguage.googleapis.com/v1beta",
			Model:      "gemini-2.5-flash-preview-tts",
			SampleRate: 24000,
			Channels:   1,
			TimeoutMS:  60000,
			CloneVoice: "Charon",
		},
		Storage: StorageConfig{
			Driver:        "sqlite",
			Path:          "./data/vocalforge.db",
			Bucket:        "vocalforge",
			RedisAddr:     "localhost:6379",
			Prefix:        "vocalforge",
			MaxValueBytes: 5 * 1024 * 1024,
		},
		History: HistoryConfig{
			Key:          "vocalforge_persistent_history_v3",
			PersistLimit: 15,
		},
		Studio: StudioConfig{
			DefaultVoice:      "Kore",
			PreviewTTLMS:      60000,
			MaxReferenceBytes: 10 * 1024 * 1024,
		},
	}
}

// Load reads the optional YAML file at path, applies .env and environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("failed to read .env file: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "VOCALFORGE_RUNTIME_NAME")
	overrideString(&cfg.Environment, "VOCALFORGE_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "VOCALFORGE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "VOCALFORGE_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "VOCALFORGE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VOCALFORGE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VOCALFORGE_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Telemetry.StdoutTraces, "VOCALFORGE_TELEMETRY_STDOUT_TRACES")
	overrideString(&cfg.Telemetry.PrometheusBind, "VOCALFORGE_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Enabled, "VOCALFORGE_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "VOCALFORGE_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "VOCALFORGE_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "VOCALFORGE_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "VOCALFORGE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "VOCALFORGE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "VOCALFORGE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "VOCALFORGE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "VOCALFORGE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "VOCALFORGE_BUS_CONNECT_TIMEOUT_MS")
	overrideInt(&cfg.Bus.MaxPayload, "VOCALFORGE_BUS_MAX_PAYLOAD_BYTES")
	overrideString(&cfg.Speech.Mode, "VOCALFORGE_SPEECH_MODE")
	overrideString(&cfg.Speech.Endpoint, "VOCALFORGE_SPEECH_ENDPOINT")
	overrideString(&cfg.Speech.Model, "VOCALFORGE_SPEECH_MODEL")
	overrideString(&cfg.Speech.Command, "VOCALFORGE_SPEECH_COMMAND")
	overrideInt(&cfg.Speech.SampleRate, "VOCALFORGE_SPEECH_SAMPLE_RATE")
	overrideInt(&cfg.Speech.Channels, "VOCALFORGE_SPEECH_CHANNELS")
	overrideInt(&cfg.Speech.TimeoutMS, "VOCALFORGE_SPEECH_TIMEOUT_MS")
	overrideString(&cfg.Speech.CloneVoice, "VOCALFORGE_SPEECH_CLONE_VOICE")
	overrideBool(&cfg.Speech.ServeOnBus, "VOCALFORGE_SPEECH_SERVE_ON_BUS")
	overrideString(&cfg.Storage.Driver, "VOCALFORGE_STORAGE_DRIVER")
	overrideString(&cfg.Storage.Path, "VOCALFORGE_STORAGE_PATH")
	overrideString(&cfg.Storage.Bucket, "VOCALFORGE_STORAGE_BUCKET")
	overrideString(&cfg.Storage.RedisAddr, "VOCALFORGE_STORAGE_REDIS_ADDR")
	overrideString(&cfg.Storage.RedisPassword, "VOCALFORGE_STORAGE_REDIS_PASSWORD")
	overrideInt(&cfg.Storage.RedisDB, "VOCALFORGE_STORAGE_REDIS_DB")
	overrideString(&cfg.Storage.Prefix, "VOCALFORGE_STORAGE_PREFIX")
	overrideInt(&cfg.Storage.MaxValueBytes, "VOCALFORGE_STORAGE_MAX_VALUE_BYTES")
	overrideString(&cfg.History.Key, "VOCALFORGE_HISTORY_KEY")
	overrideInt(&cfg.History.PersistLimit, "VOCALFORGE_HISTORY_PERSIST_LIMIT")
	overrideString(&cfg.Studio.DefaultVoice, "VOCALFORGE_STUDIO_DEFAULT_VOICE")
	overrideInt(&cfg.Studio.PreviewTTLMS, "VOCALFORGE_STUDIO_PREVIEW_TTL_MS")
	overrideInt(&cfg.Studio.MaxReferenceBytes, "VOCALFORGE_STUDIO_MAX_REFERENCE_BYTES")

	cfg.Speech.APIKey, cfg.Speech.APIKeySource = lookupAPIKey()
}

// lookupAPIKey prefers GEMINI_API_KEY and falls back to API_KEY.
func lookupAPIKey() (string, string) {
	for _, key := range []string{"GEMINI_API_KEY", "API_KEY"} {
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value), key
		}
	}
	return "", ""
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

// CredentialError returns ErrMissingCredential when the remote backend is
// selected and the key is absent or a placeholder. Other modes need no key.
func (s SpeechConfig) CredentialError() error {
	if s.Mode != "gemini" {
		return nil
	}
	if placeholderKeys[strings.TrimSpace(s.APIKey)] {
		return ErrMissingCredential
	}
	return nil
}

// Timeout returns the per-request deadline for the speech backend.
func (s SpeechConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMS) * time.Millisecond
}

// PreviewTTL returns how long a preview URL stays resolvable.
func (s StudioConfig) PreviewTTL() time.Duration {
	return time.Duration(s.PreviewTTLMS) * time.Millisecond
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
			if cfg.Bus.MaxPayload <= 0 || cfg.Bus.MaxPayload > MaxBusPayload {
				return errors.New("bus.max_payload_bytes must be between 1 and 64 MiB")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.Speech.Mode {
	case "gemini":
		if cfg.Speech.Endpoint == "" {
			return errors.New("speech.endpoint must be set when mode=gemini")
		}
		if cfg.Speech.Model == "" {
			return errors.New("speech.model must be set when mode=gemini")
		}
	case "exec":
		if cfg.Speech.Command == "" {
			return errors.New("speech.command must be set when mode=exec")
		}
	case "mock":
	default:
		return errors.New("speech.mode must be one of gemini|exec|mock")
	}
	if cfg.Speech.SampleRate <= 0 {
		return errors.New("speech.sample_rate must be positive")
	}
	if cfg.Speech.Channels <= 0 {
		return errors.New("speech.channels must be positive")
	}
	if cfg.Speech.TimeoutMS <= 0 {
		return errors.New("speech.timeout_ms must be positive")
	}
	if cfg.Speech.CloneVoice == "" {
		return errors.New("speech.clone_voice must not be empty")
	}
	if cfg.Speech.ServeOnBus && !cfg.Bus.Enabled {
		return errors.New("speech.serve_on_bus requires bus.enabled")
	}
	switch cfg.Storage.Driver {
	case "memory":
	case "sqlite":
		if cfg.Storage.Path == "" {
			return errors.New("storage.path must be set when driver=sqlite")
		}
	case "nats":
		if !cfg.Bus.Enabled {
			return errors.New("storage.driver=nats requires bus.enabled")
		}
		if cfg.Storage.Bucket == "" {
			return errors.New("storage.bucket must be set when driver=nats")
		}
	case "redis":
		if cfg.Storage.RedisAddr == "" {
			return errors.New("storage.redis_addr must be set when driver=redis")
		}
	default:
		return errors.New("storage.driver must be one of memory|sqlite|nats|redis")
	}
	if cfg.Storage.MaxValueBytes < 0 {
		return errors.New("storage.max_value_bytes must be >= 0")
	}
	if cfg.History.Key == "" {
		return errors.New("history.key must not be empty")
	}
	if cfg.History.PersistLimit <= 0 {
		return errors.New("history.persist_limit must be positive")
	}
	if cfg.Studio.DefaultVoice == "" {
		return errors.New("studio.default_voice must not be empty")
	}
	if cfg.Studio.PreviewTTLMS <= 0 {
		return errors.New("studio.preview_ttl_ms must be positive")
	}
	if cfg.Studio.MaxReferenceBytes <= 0 {
		return errors.New("studio.max_reference_bytes must be positive")
	}
	return nil
}
