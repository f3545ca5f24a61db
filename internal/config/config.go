package config

type Config struct {
	Server    ServerConfig
	Log       LogConfig
	OpenAI    OpenAIConfig
	RateLimit RateLimitConfig
	Retry     RetryConfig
	Audio     AudioConfig
	Storage   StorageConfig
}

type ServerConfig struct {
	Port int
}

type LogConfig struct {
	Level string
}

type OpenAIConfig struct {
	BaseURL            string
	TranscriptionModel string
	ExtractionModel    string
}

type RateLimitConfig struct {
	TranscriptionRPM   float64
	TranscriptionBurst int
	ExtractionRPM      float64
	ExtractionBurst    int
}

// RetryConfig holds delays as duration strings ("1s", "8s"); the server
// parses them when assembling the retry policy.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay string
	MaxDelay     string
}

type AudioConfig struct {
	MaxFileSize        int
	MinDurationSeconds float64
	MaxDurationSeconds float64
}

type StorageConfig struct {
	DataDir string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4400,
		},
		Log: LogConfig{
			Level: "info",
		},
		OpenAI: OpenAIConfig{
			BaseURL:            "https://api.openai.com/v1",
			TranscriptionModel: "whisper-1",
			ExtractionModel:    "gpt-4o-mini",
		},
		RateLimit: RateLimitConfig{
			TranscriptionRPM:   3,
			TranscriptionBurst: 5,
			ExtractionRPM:      3,
			ExtractionBurst:    5,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: "1s",
			MaxDelay:     "8s",
		},
		Audio: AudioConfig{
			MaxFileSize: 25 * 1024 * 1024,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
	}
}

// Load reads configuration from the platform-native backend and
// environment variables.
//
// On macOS the backend is UserDefaults (domain: com.vono.app).
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/vono/config.json.
//
// Environment variables (VONO_*) override backend values on all platforms.
// The OpenAI API key is never loaded into Config; the credentials package
// resolves it per request.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

// NewBackend returns the platform-native config backend. The credentials
// package reads the stored API key through it.
func NewBackend() ConfigBackend {
	return newPlatformBackend()
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}
