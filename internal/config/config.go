package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
	MetricsPath  string `yaml:"metrics_path"`
}

type HTTPConfig struct {
	Bind        string `yaml:"bind"`
	Port        int    `yaml:"port"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	Auth        AuthConfig       `yaml:"auth"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	STT         STTConfig        `yaml:"stt"`
	Format      FormatConfig     `yaml:"format"`
	Models      []ModelConfig    `yaml:"models"`
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
	NodeID         string   `yaml:"node_id"`
	HeartbeatMS    int      `yaml:"heartbeat_interval_ms"`
}

type AuthConfig struct {
	APIKey      string `yaml:"api_key"`
	APIKeysFile string `yaml:"api_keys_file"`
	WatchFile   bool   `yaml:"watch_file"`
}

// Enabled reports whether requests must carry a bearer key.
func (a AuthConfig) Enabled() bool {
	return a.APIKey != "" || a.APIKeysFile != ""
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxJobs       int    `yaml:"max_jobs"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type STTConfig struct {
	Mode        string `yaml:"mode"` // mock, exec, http
	Command     string `yaml:"command"`
	Endpoint    string `yaml:"endpoint"`
	Model       string `yaml:"model"`
	Language    string `yaml:"language"`
	ComputeType string `yaml:"compute_type"`
	BatchSize   int    `yaml:"batch_size"`
	ChunkSize   int    `yaml:"chunk_size"`
	Diarize     bool   `yaml:"diarize"`
	Align       bool   `yaml:"align"`
	SampleRate  int    `yaml:"sample_rate"`
	Channels    int    `yaml:"channels"`
	TimeoutMS   int    `yaml:"timeout_ms"`
	Retries     int    `yaml:"retries"`
	RetryBaseMS int    `yaml:"retry_base_ms"`
}

type FormatConfig struct {
	Default        string `yaml:"default"`
	MaxLineWidth   int    `yaml:"max_line_width"`
	MaxLineCount   int    `yaml:"max_line_count"`
	HighlightWords bool   `yaml:"highlight_words"`
}

type ModelConfig struct {
	ID      string `yaml:"id"`
	OwnedBy string `yaml:"owned_by"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-scribe",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind:        "0.0.0.0",
			Port:        8000,
			MaxUploadMB: 512,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
			MetricsPath:  "/metrics",
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       false,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
			HeartbeatMS:    5000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/scribe-jobs.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxJobs:       10000,
		},
		STT: STTConfig{
			Mode:        "mock",
			Model:       "large-v3",
			ComputeType: "float16",
			BatchSize:   8,
			ChunkSize:   20,
			Align:       true,
			SampleRate:  16000,
			Channels:    1,
			TimeoutMS:   600000,
			Retries:     3,
			RetryBaseMS: 1000,
		},
		Format: FormatConfig{
			Default:      "json",
			MaxLineWidth: 1000,
		},
		Models: []ModelConfig{
			{ID: "large-v3", OwnedBy: "whisperx"},
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

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
	overrideString(&cfg.RuntimeName, "SCRIBE_RUNTIME_NAME")
	overrideString(&cfg.Environment, "SCRIBE_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "SCRIBE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "SCRIBE_HTTP_PORT")
	overrideInt(&cfg.HTTP.MaxUploadMB, "SCRIBE_HTTP_MAX_UPLOAD_MB")
	overrideString(&cfg.Telemetry.LogLevel, "SCRIBE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "SCRIBE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "SCRIBE_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.MetricsPath, "SCRIBE_TELEMETRY_METRICS_PATH")
	overrideBool(&cfg.Bus.Enabled, "SCRIBE_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "SCRIBE_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "SCRIBE_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "SCRIBE_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "SCRIBE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "SCRIBE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "SCRIBE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "SCRIBE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "SCRIBE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "SCRIBE_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Bus.NodeID, "SCRIBE_BUS_NODE_ID")
	overrideInt(&cfg.Bus.HeartbeatMS, "SCRIBE_BUS_HEARTBEAT_INTERVAL_MS")
	overrideString(&cfg.Auth.APIKey, "SCRIBE_AUTH_API_KEY")
	overrideString(&cfg.Auth.APIKeysFile, "SCRIBE_AUTH_API_KEYS_FILE")
	overrideBool(&cfg.Auth.WatchFile, "SCRIBE_AUTH_WATCH_FILE")
	overrideString(&cfg.EventStore.Path, "SCRIBE_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "SCRIBE_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "SCRIBE_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxJobs, "SCRIBE_EVENT_STORE_MAX_JOBS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "SCRIBE_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.STT.Mode, "SCRIBE_STT_MODE")
	overrideString(&cfg.STT.Command, "SCRIBE_STT_COMMAND")
	overrideString(&cfg.STT.Endpoint, "SCRIBE_STT_ENDPOINT")
	overrideString(&cfg.STT.Model, "SCRIBE_STT_MODEL")
	overrideString(&cfg.STT.Language, "SCRIBE_STT_LANGUAGE")
	overrideString(&cfg.STT.ComputeType, "SCRIBE_STT_COMPUTE_TYPE")
	overrideInt(&cfg.STT.BatchSize, "SCRIBE_STT_BATCH_SIZE")
	overrideInt(&cfg.STT.ChunkSize, "SCRIBE_STT_CHUNK_SIZE")
	overrideBool(&cfg.STT.Diarize, "SCRIBE_STT_DIARIZE")
	overrideBool(&cfg.STT.Align, "SCRIBE_STT_ALIGN")
	overrideInt(&cfg.STT.SampleRate, "SCRIBE_STT_SAMPLE_RATE")
	overrideInt(&cfg.STT.Channels, "SCRIBE_STT_CHANNELS")
	overrideInt(&cfg.STT.TimeoutMS, "SCRIBE_STT_TIMEOUT_MS")
	overrideInt(&cfg.STT.Retries, "SCRIBE_STT_RETRIES")
	overrideInt(&cfg.STT.RetryBaseMS, "SCRIBE_STT_RETRY_BASE_MS")
	overrideString(&cfg.Format.Default, "SCRIBE_FORMAT_DEFAULT")
	overrideInt(&cfg.Format.MaxLineWidth, "SCRIBE_FORMAT_MAX_LINE_WIDTH")
	overrideInt(&cfg.Format.MaxLineCount, "SCRIBE_FORMAT_MAX_LINE_COUNT")
	overrideBool(&cfg.Format.HighlightWords, "SCRIBE_FORMAT_HIGHLIGHT_WORDS")
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

// knownFormats mirrors format.All; config stays free of the format package.
var knownFormats = map[string]struct{}{
	"json": {}, "verbose_json": {}, "vtt_json": {}, "text": {}, "srt": {}, "vtt": {},
	"aud": {}, "md_basic": {}, "md_list": {}, "md_quote": {}, "md_table": {},
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.HTTP.MaxUploadMB <= 0 {
		return errors.New("http.max_upload_mb must be positive")
	}
	if !strings.HasPrefix(cfg.Telemetry.MetricsPath, "/") {
		return errors.New("telemetry.metrics_path must start with /")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.EventStore.Path == "" && cfg.EventStore.RetentionMode != "ephemeral" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	switch cfg.STT.Mode {
	case "mock":
	case "exec":
		if cfg.STT.Command == "" {
			return errors.New("stt.command must be set when mode=exec")
		}
	case "http":
		if cfg.STT.Endpoint == "" {
			return errors.New("stt.endpoint must be set when mode=http")
		}
	default:
		return errors.New("stt.mode must be one of mock|exec|http")
	}
	if cfg.STT.SampleRate <= 0 {
		return errors.New("stt.sample_rate must be positive")
	}
	if cfg.STT.Channels <= 0 {
		return errors.New("stt.channels must be positive")
	}
	if cfg.STT.TimeoutMS <= 0 {
		return errors.New("stt.timeout_ms must be positive")
	}
	if cfg.STT.Retries < 0 {
		return errors.New("stt.retries must be >= 0")
	}
	if _, ok := knownFormats[cfg.Format.Default]; !ok {
		return fmt.Errorf("format.default %q is not a supported format", cfg.Format.Default)
	}
	if cfg.Format.MaxLineWidth < 0 || cfg.Format.MaxLineCount < 0 {
		return errors.New("format.max_line_width and format.max_line_count must be >= 0")
	}
	for _, m := range cfg.Models {
		if m.ID == "" {
			return errors.New("models entries must have an id")
		}
	}
	return nil
}
