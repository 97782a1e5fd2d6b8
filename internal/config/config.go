package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	LLM        LLMConfig
	OpenAI     OpenAIConfig
	Gemini     GeminiConfig
	Ollama     OllamaConfig
	Extraction ExtractionConfig
	Uploads    UploadsConfig
	Ingest     IngestConfig
	Log        LogConfig
}

type ServerConfig struct {
	Host     string
	Port     int
	APIToken string
}

type StorageConfig struct {
	DataDir    string
	RecordsDir string
}

type LLMConfig struct {
	Provider string
	Timeout  string
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type ExtractionConfig struct {
	Provider          string
	LlamaParseAPIKey  string
	LlamaParseBaseURL string
}

type UploadsConfig struct {
	Backend     string
	Dir         string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3Prefix    string
	S3AccessKey string
	S3SecretKey string
}

type IngestConfig struct {
	MaxUploadBytes int
	TmpDir         string
}

type LogConfig struct {
	Level string
}

// Structuring providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

// Extraction providers.
const (
	ExtractionLocal      = "local"
	ExtractionLlamaParse = "llamaparse"
)

// Upload backends.
const (
	UploadsLocal = "local"
	UploadsS3    = "s3"
)

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 3000,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		LLM: LLMConfig{
			Provider: ProviderOpenAI,
			Timeout:  "120s",
		},
		OpenAI: OpenAIConfig{
			Model: "gpt-4o-2024-08-06",
		},
		Gemini: GeminiConfig{
			Model: "gemini-2.5-flash",
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
			Model:   "llama3.1",
		},
		Extraction: ExtractionConfig{
			Provider:          ExtractionLocal,
			LlamaParseBaseURL: "https://api.cloud.llamaindex.ai",
		},
		Uploads: UploadsConfig{
			Backend: UploadsLocal,
		},
		Ingest: IngestConfig{
			MaxUploadBytes: 10 << 20,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// RecordsPath returns the directory holding experiences.json and projects.json.
func (c Config) RecordsPath() string {
	if c.Storage.RecordsDir != "" {
		return c.Storage.RecordsDir
	}
	return filepath.Join(c.Storage.DataDir, "data")
}

// UploadsPath returns the directory raw uploads are written to by the local backend.
func (c Config) UploadsPath() string {
	if c.Uploads.Dir != "" {
		return c.Uploads.Dir
	}
	return filepath.Join(c.Storage.DataDir, "uploads")
}

// LLMTimeout returns the per-call structuring timeout, falling back to two
// minutes when llm.timeout is not a valid duration.
func (c Config) LLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil || d <= 0 {
		return 120 * time.Second
	}
	return d
}

// Load reads configuration from the JSON config file, a .env file in the
// working directory and environment variables, in increasing precedence.
//
// The config file lives at $XDG_CONFIG_HOME/vitae/config.json. Values from
// .env never override variables already present in the environment.
// Environment variables (VITAE_*) override file values; secrets are only
// read from the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not load .env file", "error", err)
	}
	return loadWith(newPlatformBackend())
}

// fallbackEnv lists provider-native variables consulted when the VITAE_*
// variable for a secret is unset.
var fallbackEnv = []struct {
	env   string
	apply func(cfg *Config, v string)
	get   func(cfg Config) string
}{
	{"OPENAI_API_KEY", func(cfg *Config, v string) { cfg.OpenAI.APIKey = v }, func(cfg Config) string { return cfg.OpenAI.APIKey }},
	{"GEMINI_API_KEY", func(cfg *Config, v string) { cfg.Gemini.APIKey = v }, func(cfg Config) string { return cfg.Gemini.APIKey }},
	{"LLAMA_CLOUD_API_KEY", func(cfg *Config, v string) { cfg.Extraction.LlamaParseAPIKey = v }, func(cfg Config) string { return cfg.Extraction.LlamaParseAPIKey }},
}

// LoadForClient is like Load but skips validation. CLI commands that only
// talk to a running server use it so they work without provider keys.
func LoadForClient() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not load .env file", "error", err)
	}
	return resolve(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg, err := resolve(b)
	if err != nil {
		return Config{}, err
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolve(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	for _, f := range fallbackEnv {
		if f.get(cfg) == "" {
			if v := os.Getenv(f.env); v != "" {
				f.apply(&cfg, v)
			}
		}
	}

	return cfg, nil
}

func validate(cfg Config) error {
	switch strings.ToLower(cfg.LLM.Provider) {
	case ProviderOpenAI:
		if cfg.OpenAI.APIKey == "" {
			return missing("OpenAI API key", "VITAE_OPENAI_API_KEY or OPENAI_API_KEY")
		}
	case ProviderGemini:
		if cfg.Gemini.APIKey == "" {
			return missing("Gemini API key", "VITAE_GEMINI_API_KEY or GEMINI_API_KEY")
		}
	case ProviderOllama:
	default:
		return fmt.Errorf("unknown llm.provider %q (want %s, %s or %s)", cfg.LLM.Provider, ProviderOpenAI, ProviderGemini, ProviderOllama)
	}

	switch strings.ToLower(cfg.Extraction.Provider) {
	case ExtractionLocal:
	case ExtractionLlamaParse:
		if cfg.Extraction.LlamaParseAPIKey == "" {
			return missing("LlamaParse API key", "VITAE_LLAMAPARSE_API_KEY or LLAMA_CLOUD_API_KEY")
		}
	default:
		return fmt.Errorf("unknown extraction.provider %q (want %s or %s)", cfg.Extraction.Provider, ExtractionLocal, ExtractionLlamaParse)
	}

	switch strings.ToLower(cfg.Uploads.Backend) {
	case UploadsLocal:
	case UploadsS3:
		if cfg.Uploads.S3Bucket == "" {
			return fmt.Errorf("missing required config: uploads.s3_bucket must be set when uploads.backend is s3")
		}
	default:
		return fmt.Errorf("unknown uploads.backend %q (want %s or %s)", cfg.Uploads.Backend, UploadsLocal, UploadsS3)
	}

	if cfg.Ingest.MaxUploadBytes <= 0 {
		return fmt.Errorf("ingest.max_upload_bytes must be positive, got %d", cfg.Ingest.MaxUploadBytes)
	}
	return nil
}

func missing(what, where string) error {
	return fmt.Errorf("missing required config: %s. Set it via environment variable %s", what, where)
}
