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
	kFloat
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
		key: "server.port", typ: kInt, env: "VONO_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "log.level", typ: kString, env: "VONO_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "openai.base_url", typ: kString, env: "VONO_OPENAI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.BaseURL },
	},
	{
		key: "openai.transcription_model", typ: kString, env: "VONO_OPENAI_TRANSCRIPTION_MODEL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.TranscriptionModel = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.TranscriptionModel },
	},
	{
		key: "openai.extraction_model", typ: kString, env: "VONO_OPENAI_EXTRACTION_MODEL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.ExtractionModel = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.ExtractionModel },
	},
	{
		// Resolved by the credentials package, never loaded into Config.
		key: "openai.api_key", typ: kString, env: "VONO_OPENAI_API_KEY",
		secret: true,
	},
	{
		key: "ratelimit.transcription_rpm", typ: kFloat, env: "VONO_RATELIMIT_TRANSCRIPTION_RPM",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.TranscriptionRPM = v.(float64) },
		extract: func(cfg Config) any { return cfg.RateLimit.TranscriptionRPM },
	},
	{
		key: "ratelimit.transcription_burst", typ: kInt, env: "VONO_RATELIMIT_TRANSCRIPTION_BURST",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.TranscriptionBurst = v.(int) },
		extract: func(cfg Config) any { return cfg.RateLimit.TranscriptionBurst },
	},
	{
		key: "ratelimit.extraction_rpm", typ: kFloat, env: "VONO_RATELIMIT_EXTRACTION_RPM",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.ExtractionRPM = v.(float64) },
		extract: func(cfg Config) any { return cfg.RateLimit.ExtractionRPM },
	},
	{
		key: "ratelimit.extraction_burst", typ: kInt, env: "VONO_RATELIMIT_EXTRACTION_BURST",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.ExtractionBurst = v.(int) },
		extract: func(cfg Config) any { return cfg.RateLimit.ExtractionBurst },
	},
	{
		key: "retry.max_attempts", typ: kInt, env: "VONO_RETRY_MAX_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.Retry.MaxAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.Retry.MaxAttempts },
	},
	{
		key: "retry.initial_delay", typ: kString, env: "VONO_RETRY_INITIAL_DELAY",
		apply:   func(cfg *Config, v any) { cfg.Retry.InitialDelay = v.(string) },
		extract: func(cfg Config) any { return cfg.Retry.InitialDelay },
	},
	{
		key: "retry.max_delay", typ: kString, env: "VONO_RETRY_MAX_DELAY",
		apply:   func(cfg *Config, v any) { cfg.Retry.MaxDelay = v.(string) },
		extract: func(cfg Config) any { return cfg.Retry.MaxDelay },
	},
	{
		key: "audio.max_file_size", typ: kInt, env: "VONO_AUDIO_MAX_FILE_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Audio.MaxFileSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Audio.MaxFileSize },
	},
	{
		key: "audio.min_duration_seconds", typ: kFloat, env: "VONO_AUDIO_MIN_DURATION_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Audio.MinDurationSeconds = v.(float64) },
		extract: func(cfg Config) any { return cfg.Audio.MinDurationSeconds },
	},
	{
		key: "audio.max_duration_seconds", typ: kFloat, env: "VONO_AUDIO_MAX_DURATION_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Audio.MaxDurationSeconds = v.(float64) },
		extract: func(cfg Config) any { return cfg.Audio.MaxDurationSeconds },
	},
	{
		key: "storage.data_dir", typ: kString, env: "VONO_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
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
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" || s.secret {
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
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
