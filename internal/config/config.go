package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root of config.yaml.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Captions CaptionsConfig `yaml:"captions"`
	Acquire  AcquireConfig  `yaml:"acquire"`
	Audio    AudioConfig    `yaml:"audio"`
	Decoder  DecoderConfig  `yaml:"decoder"`
	Language LanguageConfig `yaml:"language"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Delivery DeliveryConfig `yaml:"delivery"`
}

type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	UploadDir      string        `yaml:"upload_dir"`
	MaxUploadMB    int64         `yaml:"max_upload_mb"`
	MaxConcurrent  int           `yaml:"max_concurrent"`
	ShutdownWait   time.Duration `yaml:"shutdown_wait"`
	AllowedFormats []string      `yaml:"allowed_formats"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// PipelineConfig holds the fallback order and the tunable floors.
type PipelineConfig struct {
	WorkDir         string        `yaml:"work_dir"`
	Timeout         time.Duration `yaml:"timeout"`
	StrategyOrder   []string      `yaml:"strategy_order"`
	MinCaptionChars int           `yaml:"min_caption_chars"`
	MinMediaBytes   int64         `yaml:"min_media_bytes"`
	MinDecodedChars int           `yaml:"min_decoded_chars"`
	Placeholder     string        `yaml:"placeholder_text"`
	EventLogDir     string        `yaml:"event_log_dir"`
}

type CaptionsConfig struct {
	Enabled           bool     `yaml:"enabled"`
	Language          string   `yaml:"language"`
	AcceptedLanguages []string `yaml:"accepted_languages"`
	PlatformsFile     string   `yaml:"platforms_file"`
}

type AcquireConfig struct {
	RulesFile string          `yaml:"rules_file"`
	Retry     RetryConfig     `yaml:"retry"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Proxy     ProxyConfig     `yaml:"proxy"`
	Direct    DirectConfig    `yaml:"direct"`
}

type RetryConfig struct {
	MaxRetries  int           `yaml:"max_retries"`
	InitialWait time.Duration `yaml:"initial_wait"`
	MaxWait     time.Duration `yaml:"max_wait"`
}

type ExtractorConfig struct {
	Path    string `yaml:"path"`
	Format  string `yaml:"format"`
	Retries int    `yaml:"retries"`
}

type ProxyConfig struct {
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	Format       string        `yaml:"format"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxPolls     int           `yaml:"max_polls"`
}

type DirectConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

type AudioConfig struct {
	FFmpegPath string `yaml:"ffmpeg_path"`
}

// DecoderConfig selects the recognizer. Provider is "vosk-server" or "local".
type DecoderConfig struct {
	Provider     string `yaml:"provider"`
	ModelPath    string `yaml:"model_path"`
	ServerURL    string `yaml:"server_url"`
	FrameSamples int    `yaml:"frame_samples"`
}

type LanguageConfig struct {
	Detect    bool     `yaml:"detect"`
	Languages []string `yaml:"languages"`
}

type JobsConfig struct {
	RedisURL  string        `yaml:"redis_url"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

type DeliveryConfig struct {
	SMTP SMTPConfig `yaml:"smtp"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// Enabled reports whether enough is configured to send mail.
func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.From != ""
}

// Strategy names accepted in pipeline.strategy_order.
const (
	StrategyExtractor = "extractor"
	StrategyProxy     = "proxy"
	StrategyDirect    = "direct"
)

// Decoder providers.
const (
	ProviderVoskServer = "vosk-server"
	ProviderLocal      = "local"
)

// Default returns a configuration that runs against a local vosk-server,
// yt-dlp and ffmpeg on PATH.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           5000,
			UploadDir:      "uploads",
			MaxUploadMB:    500,
			MaxConcurrent:  4,
			ShutdownWait:   30 * time.Second,
			AllowedFormats: []string{"mp4", "avi", "mov", "mkv", "webm", "flv"},
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Pipeline: PipelineConfig{
			WorkDir:         os.TempDir(),
			Timeout:         15 * time.Minute,
			StrategyOrder:   []string{StrategyExtractor, StrategyProxy, StrategyDirect},
			MinCaptionChars: 10,
			MinMediaBytes:   1024,
			MinDecodedChars: 10,
			Placeholder:     "No speech could be detected in this video.",
		},
		Captions: CaptionsConfig{
			Enabled:           true,
			Language:          "en",
			AcceptedLanguages: []string{"en", "en-US", "en-GB"},
		},
		Acquire: AcquireConfig{
			Retry: RetryConfig{
				MaxRetries:  2,
				InitialWait: 500 * time.Millisecond,
				MaxWait:     5 * time.Second,
			},
			Extractor: ExtractorConfig{Path: "yt-dlp", Format: "bestaudio/best", Retries: 3},
			Proxy: ProxyConfig{
				Format:       "mp3",
				PollInterval: 2 * time.Second,
				MaxPolls:     30,
			},
			Direct: DirectConfig{MaxBytes: 2 << 30},
		},
		Audio: AudioConfig{FFmpegPath: "ffmpeg"},
		Decoder: DecoderConfig{
			Provider:     ProviderVoskServer,
			ModelPath:    "model",
			ServerURL:    "ws://127.0.0.1:2700",
			FrameSamples: 4000,
		},
		Language: LanguageConfig{
			Detect:    true,
			Languages: []string{"en", "es", "fr", "de", "it", "pt"},
		},
		Jobs: JobsConfig{KeyPrefix: "vt:job:", TTL: time.Hour},
		Delivery: DeliveryConfig{
			SMTP: SMTPConfig{Port: 587},
		},
	}
}

// Load reads a .env file (if present), expands ${VAR} references in the YAML
// file and decodes it over Default(). An empty path returns the defaults.
func Load(path string, envFiles ...string) (Config, error) {
	if err := loadEnv(envFiles...); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, cfg.Validate()
}

// loadEnv loads .env style files without overriding variables already set.
// Missing files are skipped.
func loadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.MaxConcurrent <= 0 {
		return fmt.Errorf("server.max_concurrent must be positive")
	}
	if c.Pipeline.Timeout <= 0 {
		return fmt.Errorf("pipeline.timeout must be positive")
	}
	if len(c.Pipeline.StrategyOrder) == 0 {
		return fmt.Errorf("pipeline.strategy_order is empty")
	}
	seen := make(map[string]bool, len(c.Pipeline.StrategyOrder))
	for _, s := range c.Pipeline.StrategyOrder {
		switch s {
		case StrategyExtractor, StrategyProxy, StrategyDirect:
		default:
			return fmt.Errorf("pipeline.strategy_order: unknown strategy %q", s)
		}
		if seen[s] {
			return fmt.Errorf("pipeline.strategy_order: %q listed twice", s)
		}
		seen[s] = true
	}
	if c.Pipeline.MinCaptionChars < 0 || c.Pipeline.MinMediaBytes < 0 || c.Pipeline.MinDecodedChars < 0 {
		return fmt.Errorf("pipeline floors must not be negative")
	}
	switch c.Decoder.Provider {
	case ProviderVoskServer:
		if c.Decoder.ServerURL == "" {
			return fmt.Errorf("decoder.server_url is required for provider %s", ProviderVoskServer)
		}
	case ProviderLocal:
		if c.Decoder.ModelPath == "" {
			return fmt.Errorf("decoder.model_path is required for provider %s", ProviderLocal)
		}
	default:
		return fmt.Errorf("unknown decoder provider: %s", c.Decoder.Provider)
	}
	if c.Decoder.FrameSamples <= 0 {
		return fmt.Errorf("decoder.frame_samples must be positive")
	}
	return nil
}
