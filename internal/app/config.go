package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported STT_PROVIDER values
const (
	ProviderAWSMedical = "aws-medical"
	ProviderDeepgram   = "deepgram"
)

type Config struct {
	HTTPAddr       string `yaml:"http_addr"`
	TranscriptsDir string `yaml:"transcripts_dir"`
	DatabaseURL    string `yaml:"database_url"`
	LogLevel       string `yaml:"log_level"`

	// Streaming transcription
	STTProvider      string `yaml:"stt_provider"`
	LanguageCode     string `yaml:"language"`
	SampleRateHz     int    `yaml:"sample_rate"`
	AWSRegion        string `yaml:"aws_region"`
	VocabularyName   string `yaml:"vocabulary_name"`
	MedicalSpecialty string `yaml:"medical_specialty"`
	MedicalType      string `yaml:"medical_type"`
	DeepgramAPIKey   string `yaml:"deepgram_api_key"`
	DeepgramModel    string `yaml:"deepgram_model"`

	// DeepgramEndpointing is the silence in ms that ends an utterance, 0 for
	// Deepgram's default.
	DeepgramEndpointing int `yaml:"deepgram_endpointing"`

	// Relay
	ChunkPace   time.Duration `yaml:"chunk_pace"`
	StopTimeout time.Duration `yaml:"stop_timeout"`

	// JWT Authentication (disabled when empty)
	JWTSecret string `yaml:"jwt_secret"`

	// Error monitoring
	SentryDSN   string `yaml:"sentry_dsn"`
	Environment string `yaml:"environment"`
}

func defaultConfig() Config {
	return Config{
		HTTPAddr:         ":3001",
		TranscriptsDir:   "transcripts",
		LogLevel:         "info",
		STTProvider:      ProviderAWSMedical,
		LanguageCode:     "en-US",
		SampleRateHz:     16000,
		AWSRegion:        "us-east-1",
		MedicalSpecialty: "PRIMARYCARE",
		MedicalType:      "DICTATION",
		ChunkPace:        20 * time.Millisecond,
		StopTimeout:      2 * time.Second,
		Environment:      "development",
	}
}

// LoadConfig builds the configuration from defaults, the optional YAML file
// named by CONFIG_FILE, and the environment, in that order of precedence.
func LoadConfig() (Config, error) {
	cfg := defaultConfig()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.HTTPAddr = getenv("HTTP_ADDR", c.HTTPAddr)
	c.TranscriptsDir = getenv("TRANSCRIPTS_DIR", c.TranscriptsDir)
	c.DatabaseURL = getenv("DATABASE_URL", c.DatabaseURL)
	c.LogLevel = strings.ToLower(getenv("LOG_LEVEL", c.LogLevel))

	c.STTProvider = strings.ToLower(getenv("STT_PROVIDER", c.STTProvider))
	c.LanguageCode = getenv("STT_LANGUAGE", c.LanguageCode)
	c.SampleRateHz = getenvIntClamped("STT_SAMPLE_RATE", c.SampleRateHz, 8000, 48000)
	c.AWSRegion = getenv("AWS_REGION", c.AWSRegion)
	c.VocabularyName = getenv("VOCABULARY_NAME", c.VocabularyName)
	c.MedicalSpecialty = getenv("MEDICAL_SPECIALTY", c.MedicalSpecialty)
	c.MedicalType = strings.ToUpper(getenv("MEDICAL_TYPE", c.MedicalType))
	c.DeepgramAPIKey = getenv("DEEPGRAM_API_KEY", c.DeepgramAPIKey)
	c.DeepgramModel = getenv("DEEPGRAM_MODEL", c.DeepgramModel)
	c.DeepgramEndpointing = getenvIntClamped("DEEPGRAM_ENDPOINTING", c.DeepgramEndpointing, 0, 10000)

	c.ChunkPace = getenvDuration("RELAY_CHUNK_PACE", c.ChunkPace)
	c.StopTimeout = getenvDuration("RELAY_STOP_TIMEOUT", c.StopTimeout)

	c.JWTSecret = getenv("JWT_SECRET", c.JWTSecret)

	c.SentryDSN = getenv("SENTRY_DSN", c.SentryDSN)
	c.Environment = getenv("ENVIRONMENT", c.Environment)
}

// Validate checks the settings the server cannot start without.
func (c Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("HTTP_ADDR must not be empty")
	}
	if c.TranscriptsDir == "" {
		return errors.New("TRANSCRIPTS_DIR must not be empty")
	}
	switch c.STTProvider {
	case ProviderAWSMedical:
		if c.AWSRegion == "" {
			return errors.New("AWS_REGION is required for aws-medical")
		}
		if c.MedicalType != "DICTATION" && c.MedicalType != "CONVERSATION" {
			return fmt.Errorf("MEDICAL_TYPE must be DICTATION or CONVERSATION, got %q", c.MedicalType)
		}
	case ProviderDeepgram:
		if c.DeepgramAPIKey == "" {
			return errors.New("DEEPGRAM_API_KEY is required for deepgram")
		}
	default:
		return fmt.Errorf("unknown STT_PROVIDER %q", c.STTProvider)
	}
	if c.ChunkPace < 0 {
		return errors.New("RELAY_CHUNK_PACE must not be negative")
	}
	if c.StopTimeout <= 0 {
		return errors.New("RELAY_STOP_TIMEOUT must be positive")
	}
	return nil
}

// Debug reports whether per-chunk diagnostics are enabled.
func (c Config) Debug() bool {
	return c.LogLevel == "debug"
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// getenvIntClamped parses an int env var, falling back to def when unset or
// invalid and clamping to [min, max].
func getenvIntClamped(k string, def, min, max int) int {
	v, err := strconv.Atoi(os.Getenv(k))
	if err != nil {
		return def
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func getenvDuration(k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(k))
	if err != nil {
		return def
	}
	return d
}
