package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "VITAE_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "VITAE_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "VITAE_API_TOKEN",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "storage.data_dir", typ: kString, env: "VITAE_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.records_dir", typ: kString, env: "VITAE_STORAGE_RECORDS_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.RecordsDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.RecordsDir },
	},
	{
		key: "llm.provider", typ: kString, env: "VITAE_LLM_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.LLM.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Provider },
	},
	{
		key: "llm.timeout", typ: kString, env: "VITAE_LLM_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.LLM.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Timeout },
	},
	{
		key: "openai.api_key", typ: kString, env: "VITAE_OPENAI_API_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.OpenAI.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.APIKey },
	},
	{
		key: "openai.base_url", typ: kString, env: "VITAE_OPENAI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.BaseURL },
	},
	{
		key: "openai.model", typ: kString, env: "VITAE_OPENAI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.Model },
	},
	{
		key: "gemini.api_key", typ: kString, env: "VITAE_GEMINI_API_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Gemini.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.APIKey },
	},
	{
		key: "gemini.model", typ: kString, env: "VITAE_GEMINI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.Model },
	},
	{
		key: "ollama.base_url", typ: kString, env: "VITAE_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.model", typ: kString, env: "VITAE_OLLAMA_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.Model },
	},
	{
		key: "extraction.provider", typ: kString, env: "VITAE_EXTRACTION_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Extraction.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Extraction.Provider },
	},
	{
		key: "extraction.llamaparse_api_key", typ: kString, env: "VITAE_LLAMAPARSE_API_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Extraction.LlamaParseAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Extraction.LlamaParseAPIKey },
	},
	{
		key: "extraction.llamaparse_base_url", typ: kString, env: "VITAE_LLAMAPARSE_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Extraction.LlamaParseBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Extraction.LlamaParseBaseURL },
	},
	{
		key: "uploads.backend", typ: kString, env: "VITAE_UPLOADS_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Uploads.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Uploads.Backend },
	},
	{
		key: "uploads.dir", typ: kString, env: "VITAE_UPLOADS_DIR",
		apply:   func(cfg *Config, v any) { cfg.Uploads.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Uploads.Dir },
	},
	{
		key: "uploads.s3_bucket", typ: kString, env: "VITAE_UPLOADS_S3_BUCKET",
		apply:   func(cfg *Config, v any) { cfg.Uploads.S3Bucket = v.(string) },
		extract: func(cfg Config) any { return cfg.Uploads.S3Bucket },
	},
	{
		key: "uploads.s3_region", typ: kString, env: "VITAE_UPLOADS_S3_REGION",
		apply:   func(cfg *Config, v any) { cfg.Uploads.S3Region = v.(string) },
		extract: func(cfg Config) any { return cfg.Uploads.S3Region },
	},
	{
		key: "uploads.s3_endpoint", typ: kString, env: "VITAE_UPLOADS_S3_ENDPOINT",
		apply:   func(cfg *Config, v any) { cfg.Uploads.S3Endpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.Uploads.S3Endpoint },
	},
	{
		key: "uploads.s3_prefix", typ: kString, env: "VITAE_UPLOADS_S3_PREFIX",
		apply:   func(cfg *Config, v any) { cfg.Uploads.S3Prefix = v.(string) },
		extract: func(cfg Config) any { return cfg.Uploads.S3Prefix },
	},
	{
		key: "uploads.s3_access_key", typ: kString, env: "VITAE_UPLOADS_S3_ACCESS_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Uploads.S3AccessKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Uploads.S3AccessKey },
	},
	{
		key: "uploads.s3_secret_key", typ: kString, env: "VITAE_UPLOADS_S3_SECRET_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Uploads.S3SecretKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Uploads.S3SecretKey },
	},
	{
		key: "ingest.max_upload_bytes", typ: kInt, env: "VITAE_INGEST_MAX_UPLOAD_BYTES",
		apply:   func(cfg *Config, v any) { cfg.Ingest.MaxUploadBytes = v.(int) },
		extract: func(cfg Config) any { return cfg.Ingest.MaxUploadBytes },
	},
	{
		key: "ingest.tmp_dir", typ: kString, env: "VITAE_INGEST_TMP_DIR",
		apply:   func(cfg *Config, v any) { cfg.Ingest.TmpDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Ingest.TmpDir },
	},
	{
		key: "log.level", typ: kString, env: "VITAE_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
