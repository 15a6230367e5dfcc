package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Capture backend selection.
const (
	BackendAuto     = "auto"
	BackendPipeWire = "pipewire"
	BackendFallback = "fallback"
)

// Config holds application configuration.
type Config struct {
	// LogLevel is the daemon log level: debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error"`

	Audio   AudioConfig   `json:"audio"`
	Whisper WhisperConfig `json:"whisper"`
	LLM     LLMConfig     `json:"llm"`
	Daemon  DaemonConfig  `json:"daemon"`
	Web     WebConfig     `json:"web"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty" validate:"gte=0"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty" validate:"gte=0"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// AudioConfig controls capture and compression.
type AudioConfig struct {
	// Backend is auto, pipewire or fallback (microphone-only arecord).
	Backend    string `json:"backend,omitempty" validate:"omitempty,oneof=auto pipewire fallback"`
	SampleRate int    `json:"sample_rate,omitempty" validate:"omitempty,oneof=8000 12000 16000 24000 48000"`
	Channels   int    `json:"channels,omitempty" validate:"omitempty,min=1,max=2"`

	// Pointers so an explicit false in config.json survives Merge.
	CaptureSystem     *bool `json:"capture_system,omitempty"`
	CaptureMicrophone *bool `json:"capture_microphone,omitempty"`
	CompressToOGG     *bool `json:"compress_to_ogg,omitempty"`

	OGGBitrate int     `json:"ogg_bitrate,omitempty" validate:"omitempty,min=6000,max=510000"`
	MicBoost   float64 `json:"mic_boost,omitempty" validate:"gte=0,lte=8"`
}

// WhisperConfig controls the whisper.cpp engine.
type WhisperConfig struct {
	Command   string `json:"command,omitempty"`
	Model     string `json:"model,omitempty"`
	ModelsDir string `json:"models_dir,omitempty"`
	// Language is a whisper language code; empty means auto-detect.
	Language  string `json:"language,omitempty"`
	Translate bool   `json:"translate,omitempty"`
	Threads   int    `json:"threads,omitempty" validate:"gte=0"`
}

// LLMConfig controls the summarizer.
type LLMConfig struct {
	Provider string `json:"provider,omitempty" validate:"omitempty,oneof=gemini anthropic"`
	APIKey   string `json:"api_key,omitempty"`
	Model    string `json:"model,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
}

// DaemonConfig controls the background daemon.
type DaemonConfig struct {
	SocketPath       string `json:"socket_path,omitempty"`
	PIDPath          string `json:"pid_path,omitempty"`
	PollIntervalSecs int    `json:"poll_interval_secs,omitempty" validate:"gte=0"`
}

// WebConfig controls the browser UI.
type WebConfig struct {
	Bind string `json:"bind,omitempty"`
	Port int    `json:"port,omitempty" validate:"gte=0,lte=65535"`
}

// DefaultConfig returns the default configuration.
// Paths that depend on the base directory are filled in by Load.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			Backend:           BackendAuto,
			SampleRate:        16000,
			Channels:          1,
			CaptureSystem:     boolPtr(true),
			CaptureMicrophone: boolPtr(true),
			CompressToOGG:     boolPtr(true),
			OGGBitrate:        24000,
			MicBoost:          1.2,
		},
		Whisper: WhisperConfig{
			Command: "whisper-cli",
			Model:   "base",
		},
		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.5-flash",
		},
		Daemon: DaemonConfig{
			PollIntervalSecs: 5,
		},
		Web: WebConfig{
			Bind: "127.0.0.1",
			Port: 8790,
		},
	}
}

// Path returns the location of config.json under baseDir.
func Path(baseDir string) string {
	return filepath.Join(baseDir, "config.json")
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.minutes.
func Load(baseDir string) (*Config, error) {
	raw, err := loadFileRaw(Path(baseDir))
	if err != nil {
		return nil, err
	}

	cfg := Merge(DefaultConfig(), raw)
	applyEnvOverrides(cfg)
	cfg.resolvePaths(baseDir)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as indented JSON to baseDir/config.json.
func Save(baseDir string, cfg *Config) error {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(Path(baseDir), append(data, '\n'), 0600)
}

// Validate checks field constraints declared in struct tags.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides fills secrets and the runtime dir from the environment.
// Values already present in config.json win for API keys.
func applyEnvOverrides(cfg *Config) {
	if strings.TrimSpace(cfg.LLM.APIKey) == "" {
		var key string
		switch cfg.LLM.Provider {
		case "anthropic":
			key = os.Getenv("MINUTES_ANTHROPIC_API_KEY")
		default:
			key = os.Getenv("MINUTES_GEMINI_API_KEY")
		}
		if strings.TrimSpace(key) != "" {
			cfg.LLM.APIKey = strings.TrimSpace(key)
		}
	}
}

// resolvePaths fills in path defaults that depend on baseDir and the runtime dir.
func (c *Config) resolvePaths(baseDir string) {
	if c.Whisper.ModelsDir == "" {
		c.Whisper.ModelsDir = filepath.Join(baseDir, "models")
	}
	if c.Daemon.SocketPath == "" {
		c.Daemon.SocketPath = filepath.Join(RuntimeDir(), "minutes.sock")
	}
	if c.Daemon.PIDPath == "" {
		c.Daemon.PIDPath = filepath.Join(RuntimeDir(), "minutes.pid")
	}
}

// RuntimeDir is where the socket and PID file live.
// MINUTES_RUNTIME_DIR wins over XDG_RUNTIME_DIR; /tmp is the last resort.
func RuntimeDir() string {
	if dir := os.Getenv("MINUTES_RUNTIME_DIR"); dir != "" {
		return dir
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir
	}
	return os.TempDir()
}

// ModelPath returns the whisper model file for the configured model.
func (c *Config) ModelPath() string {
	return filepath.Join(c.Whisper.ModelsDir, fmt.Sprintf("ggml-%s.bin", c.Whisper.Model))
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	cp := *c
	if cp.LLM.APIKey != "" {
		cp.LLM.APIKey = "********"
	}
	return &cp
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.LogLevel = pickString(overlay.LogLevel, base.LogLevel)

	result.Audio = AudioConfig{
		Backend:           pickString(overlay.Audio.Backend, base.Audio.Backend),
		SampleRate:        pickInt(overlay.Audio.SampleRate, base.Audio.SampleRate),
		Channels:          pickInt(overlay.Audio.Channels, base.Audio.Channels),
		CaptureSystem:     pickBool(overlay.Audio.CaptureSystem, base.Audio.CaptureSystem),
		CaptureMicrophone: pickBool(overlay.Audio.CaptureMicrophone, base.Audio.CaptureMicrophone),
		CompressToOGG:     pickBool(overlay.Audio.CompressToOGG, base.Audio.CompressToOGG),
		OGGBitrate:        pickInt(overlay.Audio.OGGBitrate, base.Audio.OGGBitrate),
		MicBoost:          overlay.Audio.MicBoost,
	}
	if result.Audio.MicBoost == 0 {
		result.Audio.MicBoost = base.Audio.MicBoost
	}

	result.Whisper = WhisperConfig{
		Command:   pickString(overlay.Whisper.Command, base.Whisper.Command),
		Model:     pickString(overlay.Whisper.Model, base.Whisper.Model),
		ModelsDir: pickString(overlay.Whisper.ModelsDir, base.Whisper.ModelsDir),
		Language:  pickString(overlay.Whisper.Language, base.Whisper.Language),
		Translate: base.Whisper.Translate || overlay.Whisper.Translate,
		Threads:   pickInt(overlay.Whisper.Threads, base.Whisper.Threads),
	}

	result.LLM = LLMConfig{
		Provider: pickString(overlay.LLM.Provider, base.LLM.Provider),
		APIKey:   pickString(overlay.LLM.APIKey, base.LLM.APIKey),
		Model:    pickString(overlay.LLM.Model, base.LLM.Model),
		Endpoint: pickString(overlay.LLM.Endpoint, base.LLM.Endpoint),
	}
	// A provider switch without a model would keep the other provider's default model.
	if overlay.LLM.Provider != "" && overlay.LLM.Provider != base.LLM.Provider && overlay.LLM.Model == "" {
		result.LLM.Model = ""
	}

	result.Daemon = DaemonConfig{
		SocketPath:       pickString(overlay.Daemon.SocketPath, base.Daemon.SocketPath),
		PIDPath:          pickString(overlay.Daemon.PIDPath, base.Daemon.PIDPath),
		PollIntervalSecs: pickInt(overlay.Daemon.PollIntervalSecs, base.Daemon.PollIntervalSecs),
	}

	result.Web = WebConfig{
		Bind: pickString(overlay.Web.Bind, base.Web.Bind),
		Port: pickInt(overlay.Web.Port, base.Web.Port),
	}

	result.DBMaxOpenConns = pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = pickInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

// Enabled reports the value of an optional flag, treating nil as def.
func Enabled(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

func boolPtr(b bool) *bool { return &b }

func pickString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

func pickBool(overlay, base *bool) *bool {
	if overlay != nil {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
