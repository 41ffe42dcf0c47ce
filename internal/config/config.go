package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/audio-scribe/backend/internal/translate"
)

// ErrMissingAPIKey is returned when GOOGLE_API_KEY is not set. The server must
// not start without it.
var ErrMissingAPIKey = errors.New("GOOGLE_API_KEY is not set")

type Config struct {
	Port           int
	DataPath       string
	DBPath         string
	UploadPath     string
	CORSOrigins    []string
	LogLevel       string
	MaxUploadBytes int64

	GoogleAPIKey string
	OpenAIKey    string
	DeepLKey     string
	WhisperURL   string
	GeminiModel  string

	Pipeline PipelineConfig
}

// PipelineConfig holds the transcription parameters. Zero values are replaced
// by the defaults below.
type PipelineConfig struct {
	ChunkSeconds   int           `yaml:"chunk_seconds"`
	SampleRate     int           `yaml:"sample_rate"`
	Channels       int           `yaml:"channels"`
	SampleWidth    int           `yaml:"sample_width"`
	Language       string        `yaml:"language"`
	TargetLanguage string        `yaml:"target_language"`
	Placeholder    string        `yaml:"placeholder"`
	ProgressPause  time.Duration `yaml:"progress_pause"`

	// pauseSet marks an explicit pause (file or PROGRESS_PAUSE) so that "0s" disables it.
	pauseSet bool
}

const (
	DefaultChunkSeconds   = 30
	DefaultSampleRate     = 16000
	DefaultChannels       = 1
	DefaultSampleWidth    = 2
	DefaultLanguage       = "en-US"
	DefaultTargetLanguage = "pt-BR"
	DefaultPlaceholder    = "[inaudible]"
	DefaultProgressPause  = 100 * time.Millisecond
	DefaultGeminiModel    = "gemini-1.5-flash"
)

type fileConfig struct {
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// pauseField tells an explicit progress_pause (including 0s) from a missing one.
type pauseField struct {
	Pipeline struct {
		ProgressPause *time.Duration `yaml:"progress_pause"`
	} `yaml:"pipeline"`
}

// Load reads .env (without overriding the real environment), the optional
// YAML file named by CONFIG_FILE, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := strconv.Atoi(getEnv("PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}
	dataPath := getEnv("DATA_PATH", "./data")

	// CORS origins: comma-separated list or "*" (default)
	corsOrigins := []string{"*"}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		corsOrigins = make([]string, 0, len(origins))
		for _, o := range origins {
			o = strings.TrimSpace(o)
			if o != "" {
				corsOrigins = append(corsOrigins, o)
			}
		}
	}

	var maxUpload int64
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		maxUpload, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_UPLOAD_BYTES: %w", err)
		}
	}

	var pipeline PipelineConfig
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		pipeline, err = loadFile(path)
		if err != nil {
			return nil, err
		}
	}
	if err := applyPipelineEnv(&pipeline); err != nil {
		return nil, err
	}
	pipeline.applyDefaults()

	cfg := &Config{
		Port:           port,
		DataPath:       dataPath,
		DBPath:         getEnv("DB_PATH", dataPath+"/scribe.db"),
		UploadPath:     getEnv("UPLOAD_PATH", dataPath+"/uploads"),
		CORSOrigins:    corsOrigins,
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		MaxUploadBytes: maxUpload,
		GoogleAPIKey:   os.Getenv("GOOGLE_API_KEY"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		DeepLKey:       os.Getenv("DEEPL_API_KEY"),
		WhisperURL:     os.Getenv("WHISPER_URL"),
		GeminiModel:    getEnv("GEMINI_MODEL", DefaultGeminiModel),
		Pipeline:       pipeline,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string) (PipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PipelineConfig{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return PipelineConfig{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	var pf pauseField
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return PipelineConfig{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	fc.Pipeline.pauseSet = pf.Pipeline.ProgressPause != nil
	return fc.Pipeline, nil
}

func applyPipelineEnv(p *PipelineConfig) error {
	ints := []struct {
		key string
		dst *int
	}{
		{"CHUNK_SECONDS", &p.ChunkSeconds},
		{"SAMPLE_RATE", &p.SampleRate},
	}
	for _, e := range ints {
		v := os.Getenv(e.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", e.key, err)
		}
		*e.dst = n
	}
	if v := os.Getenv("RECOGNITION_LANGUAGE"); v != "" {
		p.Language = v
	}
	if v := os.Getenv("TARGET_LANGUAGE"); v != "" {
		p.TargetLanguage = v
	}
	if v := os.Getenv("PROGRESS_PAUSE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid PROGRESS_PAUSE: %w", err)
		}
		p.ProgressPause = d
		p.pauseSet = true
	}
	return nil
}

func (p *PipelineConfig) applyDefaults() {
	if p.ChunkSeconds == 0 {
		p.ChunkSeconds = DefaultChunkSeconds
	}
	if p.SampleRate == 0 {
		p.SampleRate = DefaultSampleRate
	}
	if p.Channels == 0 {
		p.Channels = DefaultChannels
	}
	if p.SampleWidth == 0 {
		p.SampleWidth = DefaultSampleWidth
	}
	if p.Language == "" {
		p.Language = DefaultLanguage
	}
	if p.TargetLanguage == "" {
		p.TargetLanguage = DefaultTargetLanguage
	}
	if p.Placeholder == "" {
		p.Placeholder = DefaultPlaceholder
	}
	if p.ProgressPause == 0 && !p.pauseSet {
		p.ProgressPause = DefaultProgressPause
	}
}

// Validate checks the credential and the pipeline parameters.
func (c *Config) Validate() error {
	if c.GoogleAPIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline config: %w", err)
	}
	return nil
}

func (p *PipelineConfig) Validate() error {
	if p.ChunkSeconds < 1 {
		return fmt.Errorf("chunk_seconds must be at least 1, got %d", p.ChunkSeconds)
	}
	if p.SampleRate < 8000 || p.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000, got %d", p.SampleRate)
	}
	if p.Channels != 1 {
		return fmt.Errorf("only mono audio is supported, got %d channels", p.Channels)
	}
	if p.SampleWidth != 2 {
		return fmt.Errorf("only 16-bit samples are supported, got width %d", p.SampleWidth)
	}
	if p.ProgressPause < 0 {
		return fmt.Errorf("progress_pause cannot be negative")
	}
	if !translate.IsSupportedTarget(p.TargetLanguage) {
		return fmt.Errorf("unsupported target_language %q", p.TargetLanguage)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
