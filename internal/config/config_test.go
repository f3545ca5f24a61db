package config

import (
	"strings"
	"testing"
)

// mockBackend is a test double for ConfigBackend backed by plain maps.
type mockBackend struct {
	strings map[string]string
	ints    map[string]int
	err     error

	setStrings map[string]string
	setInts    map[string]int
}

func (m *mockBackend) GetString(key string) (string, bool, error) {
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.strings[key]
	return v, ok, nil
}

func (m *mockBackend) GetInt(key string) (int, bool, error) {
	if m.err != nil {
		return 0, false, m.err
	}
	v, ok := m.ints[key]
	return v, ok, nil
}

func (m *mockBackend) SetString(key, val string) error {
	if m.setStrings == nil {
		m.setStrings = make(map[string]string)
	}
	m.setStrings[key] = val
	return nil
}

func (m *mockBackend) SetInt(key string, val int) error {
	if m.setInts == nil {
		m.setInts = make(map[string]int)
	}
	m.setInts[key] = val
	return nil
}

func (m *mockBackend) Delete(key string) error { return nil }

// TestDefaults verifies all default values survive a load from an empty backend.
func TestDefaults(t *testing.T) {
	cfg, err := loadWith(&mockBackend{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4400 {
		t.Errorf("Server.Port = %d, want 4400", cfg.Server.Port)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.OpenAI.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("OpenAI.BaseURL = %q", cfg.OpenAI.BaseURL)
	}
	if cfg.OpenAI.TranscriptionModel != "whisper-1" {
		t.Errorf("OpenAI.TranscriptionModel = %q, want %q", cfg.OpenAI.TranscriptionModel, "whisper-1")
	}
	if cfg.OpenAI.ExtractionModel != "gpt-4o-mini" {
		t.Errorf("OpenAI.ExtractionModel = %q, want %q", cfg.OpenAI.ExtractionModel, "gpt-4o-mini")
	}
	if cfg.RateLimit.TranscriptionRPM != 3 || cfg.RateLimit.ExtractionRPM != 3 {
		t.Errorf("RateLimit RPM = %v/%v, want 3/3", cfg.RateLimit.TranscriptionRPM, cfg.RateLimit.ExtractionRPM)
	}
	if cfg.RateLimit.TranscriptionBurst != 5 || cfg.RateLimit.ExtractionBurst != 5 {
		t.Errorf("RateLimit Burst = %d/%d, want 5/5", cfg.RateLimit.TranscriptionBurst, cfg.RateLimit.ExtractionBurst)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("Retry.MaxAttempts = %d, want 3", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.InitialDelay != "1s" || cfg.Retry.MaxDelay != "8s" {
		t.Errorf("Retry delays = %q/%q, want 1s/8s", cfg.Retry.InitialDelay, cfg.Retry.MaxDelay)
	}
	if cfg.Audio.MaxFileSize != 25*1024*1024 {
		t.Errorf("Audio.MaxFileSize = %d, want %d", cfg.Audio.MaxFileSize, 25*1024*1024)
	}
	if cfg.Audio.MinDurationSeconds != 0 || cfg.Audio.MaxDurationSeconds != 0 {
		t.Errorf("Audio duration bounds = %v/%v, want 0/0", cfg.Audio.MinDurationSeconds, cfg.Audio.MaxDurationSeconds)
	}
	if cfg.Storage.DataDir == "" {
		t.Error("Storage.DataDir is empty")
	}
}

// TestBackendValues verifies backend values override defaults.
func TestBackendValues(t *testing.T) {
	b := &mockBackend{
		strings: map[string]string{
			"log.level":                   "debug",
			"openai.extraction_model":     "gpt-4o",
			"retry.initial_delay":         "500ms",
			"ratelimit.transcription_rpm": "2.5",
			"storage.data_dir":            "/tmp/vono-test",
		},
		ints: map[string]int{
			"server.port":        5500,
			"retry.max_attempts": 5,
		},
	}

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5500 {
		t.Errorf("Server.Port = %d, want 5500", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.OpenAI.ExtractionModel != "gpt-4o" {
		t.Errorf("OpenAI.ExtractionModel = %q, want %q", cfg.OpenAI.ExtractionModel, "gpt-4o")
	}
	if cfg.Retry.InitialDelay != "500ms" {
		t.Errorf("Retry.InitialDelay = %q, want %q", cfg.Retry.InitialDelay, "500ms")
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Errorf("Retry.MaxAttempts = %d, want 5", cfg.Retry.MaxAttempts)
	}
	if cfg.RateLimit.TranscriptionRPM != 2.5 {
		t.Errorf("RateLimit.TranscriptionRPM = %v, want 2.5", cfg.RateLimit.TranscriptionRPM)
	}
	if cfg.Storage.DataDir != "/tmp/vono-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	// Untouched keys keep defaults.
	if cfg.OpenAI.TranscriptionModel != "whisper-1" {
		t.Errorf("OpenAI.TranscriptionModel = %q, want default", cfg.OpenAI.TranscriptionModel)
	}
}

// TestEnvOverride verifies that environment variables beat backend values.
func TestEnvOverride(t *testing.T) {
	b := &mockBackend{
		ints:    map[string]int{"server.port": 5500},
		strings: map[string]string{"openai.extraction_model": "backend-model"},
	}

	t.Setenv("VONO_SERVER_PORT", "6600")
	t.Setenv("VONO_OPENAI_EXTRACTION_MODEL", "env-model")
	t.Setenv("VONO_AUDIO_MAX_DURATION_SECONDS", "120.5")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 6600 {
		t.Errorf("Server.Port = %d, want 6600", cfg.Server.Port)
	}
	if cfg.OpenAI.ExtractionModel != "env-model" {
		t.Errorf("OpenAI.ExtractionModel = %q, want %q", cfg.OpenAI.ExtractionModel, "env-model")
	}
	if cfg.Audio.MaxDurationSeconds != 120.5 {
		t.Errorf("Audio.MaxDurationSeconds = %v, want 120.5", cfg.Audio.MaxDurationSeconds)
	}
}

// TestEnvInvalidValueKeepsDefault verifies unparseable env values fall back
// to the default instead of failing the load.
func TestEnvInvalidValueKeepsDefault(t *testing.T) {
	t.Setenv("VONO_SERVER_PORT", "not-a-port")
	t.Setenv("VONO_RATELIMIT_EXTRACTION_RPM", "fast")

	cfg, err := loadWith(&mockBackend{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4400 {
		t.Errorf("Server.Port = %d, want default 4400", cfg.Server.Port)
	}
	if cfg.RateLimit.ExtractionRPM != 3 {
		t.Errorf("RateLimit.ExtractionRPM = %v, want default 3", cfg.RateLimit.ExtractionRPM)
	}
}

// TestBadFloatInBackendKeepsDefault verifies a malformed float in the
// backend is skipped with the default retained.
func TestBadFloatInBackendKeepsDefault(t *testing.T) {
	b := &mockBackend{
		strings: map[string]string{"ratelimit.transcription_rpm": "plenty"},
	}

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RateLimit.TranscriptionRPM != 3 {
		t.Errorf("RateLimit.TranscriptionRPM = %v, want default 3", cfg.RateLimit.TranscriptionRPM)
	}
}

// TestSecretNeverLoaded verifies the API key is not read from the backend
// or the environment during Load.
func TestSecretNeverLoaded(t *testing.T) {
	b := &mockBackend{
		strings: map[string]string{"openai.api_key": "sk-backend"},
	}
	t.Setenv("VONO_OPENAI_API_KEY", "sk-env")

	if _, err := loadWith(b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, info := range ShowAll(defaults()) {
		if info.Key == "openai.api_key" {
			t.Error("ShowAll includes openai.api_key")
		}
	}
}

// TestSetKeyRejectsSecret verifies the API key cannot be written via config.
func TestSetKeyRejectsSecret(t *testing.T) {
	b := &mockBackend{}
	err := setKeyOn(b, "openai.api_key", "sk-123")
	if err == nil {
		t.Fatal("expected error setting secret, got nil")
	}
	if !strings.Contains(err.Error(), "vono key set") {
		t.Errorf("error = %q, want mention of `vono key set`", err)
	}
	if len(b.setStrings) != 0 {
		t.Errorf("backend received writes: %v", b.setStrings)
	}
}

// TestSetKey verifies typed writes land on the backend.
func TestSetKey(t *testing.T) {
	b := &mockBackend{}

	if err := setKeyOn(b, "log.level", "debug"); err != nil {
		t.Fatalf("setKeyOn string: %v", err)
	}
	if b.setStrings["log.level"] != "debug" {
		t.Errorf("log.level = %q, want %q", b.setStrings["log.level"], "debug")
	}

	if err := setKeyOn(b, "server.port", "5500"); err != nil {
		t.Fatalf("setKeyOn int: %v", err)
	}
	if b.setInts["server.port"] != 5500 {
		t.Errorf("server.port = %d, want 5500", b.setInts["server.port"])
	}

	if err := setKeyOn(b, "ratelimit.extraction_rpm", "1.5"); err != nil {
		t.Fatalf("setKeyOn float: %v", err)
	}
	if b.setStrings["ratelimit.extraction_rpm"] != "1.5" {
		t.Errorf("ratelimit.extraction_rpm = %q, want %q", b.setStrings["ratelimit.extraction_rpm"], "1.5")
	}
}

// TestSetKeyInvalidValues verifies type validation on writes.
func TestSetKeyInvalidValues(t *testing.T) {
	b := &mockBackend{}

	if err := setKeyOn(b, "server.port", "eighty"); err == nil {
		t.Error("expected error for non-integer port")
	}
	if err := setKeyOn(b, "ratelimit.extraction_rpm", "quick"); err == nil {
		t.Error("expected error for non-float rpm")
	}
	if err := setKeyOn(b, "no.such.key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
}

// TestValidKeys verifies the key list excludes secrets.
func TestValidKeys(t *testing.T) {
	keys := ValidKeys()

	found := map[string]bool{}
	for _, k := range keys {
		found[k] = true
	}

	for _, want := range []string{"server.port", "log.level", "openai.base_url", "storage.data_dir", "retry.max_attempts"} {
		if !found[want] {
			t.Errorf("ValidKeys missing %q", want)
		}
	}
	if found["openai.api_key"] {
		t.Error("ValidKeys includes secret openai.api_key")
	}
}

// TestShowAll verifies every non-secret key is listed with its env var.
func TestShowAll(t *testing.T) {
	infos := ShowAll(defaults())

	if len(infos) != len(ValidKeys()) {
		t.Fatalf("ShowAll returned %d entries, want %d", len(infos), len(ValidKeys()))
	}
	for _, info := range infos {
		if info.EnvVar == "" {
			t.Errorf("key %q has no env var", info.Key)
		}
		if !strings.HasPrefix(info.EnvVar, "VONO_") {
			t.Errorf("key %q env var %q lacks VONO_ prefix", info.Key, info.EnvVar)
		}
	}
}
