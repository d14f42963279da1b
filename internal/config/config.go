package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jcsn13/ocr-prescription/internal/logger"
)

// Supported backends.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	OCRBackendDocumentAI = "documentai"
	OCRBackendVision     = "vision"
)

// Config is the process-wide configuration. It is loaded once at startup and
// passed to every component constructor; nothing mutates it afterwards.
type Config struct {
	// Google Cloud Configuration
	GoogleCloudProject    string
	DocumentAILocation    string
	DocumentAIProcessorID string
	OCRBackend            string

	// Generative model configuration
	CompletionProvider   string
	GeminiAPIKey         string
	GeminiModel          string
	OpenAIAPIKey         string
	OpenAIModel          string
	CompletionMaxRetries int

	// Pipeline behaviour
	FewShotDir             string
	CallTimeout            time.Duration
	ValidateResponseSchema bool
	EnforceAggregateStatus bool
	StrictClassification   bool

	// Batch runs
	BatchWorkers int
	SheetURL     string
	SheetName    string

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	config := &Config{
		GoogleCloudProject:     getEnv("GOOGLE_CLOUD_PROJECT", ""),
		DocumentAILocation:     getEnv("DOCUMENT_AI_LOCATION", "us"),
		DocumentAIProcessorID:  getEnv("DOCUMENT_AI_PROCESSOR_ID", ""),
		OCRBackend:             strings.ToLower(getEnv("OCR_BACKEND", OCRBackendDocumentAI)),
		CompletionProvider:     strings.ToLower(getEnv("COMPLETION_PROVIDER", ProviderGemini)),
		GeminiAPIKey:           getEnv("GEMINI_API_KEY", ""),
		GeminiModel:            getEnv("GEMINI_MODEL", "gemini-1.5-pro-002"),
		OpenAIAPIKey:           getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:            getEnv("OPENAI_MODEL", "gpt-4o"),
		FewShotDir:             getEnv("FEWSHOT_DIR", "fewshot"),
		ValidateResponseSchema: getEnv("VALIDATE_RESPONSE_SCHEMA", "false") == "true",
		EnforceAggregateStatus: getEnv("ENFORCE_AGGREGATE_STATUS", "true") == "true",
		StrictClassification:   getEnv("STRICT_CLASSIFICATION", "false") == "true",
		SheetURL:               getEnv("GOOGLE_SHEET_URL", ""),
		SheetName:              getEnv("GOOGLE_SHEET_NAME", "Validacoes"),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		LogFormat:              getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:          getEnv("LOG_TIME_FORMAT", time.RFC3339),
		LogOutput:              getEnv("LOG_OUTPUT", "stderr"),
	}

	var err error
	if config.CompletionMaxRetries, err = parseIntEnv("COMPLETION_MAX_RETRIES", 3); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if config.BatchWorkers, err = parseIntEnv("BATCH_WORKERS", 4); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if config.CallTimeout, err = parseDurationEnv("CALL_TIMEOUT", 120*time.Second); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.GoogleCloudProject == "" {
		return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required")
	}

	switch c.CompletionProvider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when COMPLETION_PROVIDER=%s", ProviderGemini)
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when COMPLETION_PROVIDER=%s", ProviderOpenAI)
		}
	default:
		return fmt.Errorf("unsupported COMPLETION_PROVIDER %q (use %s or %s)", c.CompletionProvider, ProviderGemini, ProviderOpenAI)
	}

	switch c.OCRBackend {
	case OCRBackendDocumentAI:
		if c.DocumentAIProcessorID == "" {
			return fmt.Errorf("DOCUMENT_AI_PROCESSOR_ID is required when OCR_BACKEND=%s", OCRBackendDocumentAI)
		}
	case OCRBackendVision:
	default:
		return fmt.Errorf("unsupported OCR_BACKEND %q (use %s or %s)", c.OCRBackend, OCRBackendDocumentAI, OCRBackendVision)
	}

	if c.CompletionMaxRetries < 1 {
		return fmt.Errorf("COMPLETION_MAX_RETRIES must be at least 1")
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("CALL_TIMEOUT must be positive")
	}
	if c.BatchWorkers < 1 {
		return fmt.Errorf("BATCH_WORKERS must be at least 1")
	}
	return nil
}

// ProcessorName returns the fully qualified Document AI processor resource.
func (c *Config) ProcessorName() string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		c.GoogleCloudProject, c.DocumentAILocation, c.DocumentAIProcessorID)
}

// CompletionModel returns the model identifier of the selected provider.
func (c *Config) CompletionModel() string {
	if c.CompletionProvider == ProviderOpenAI {
		return c.OpenAIModel
	}
	return c.GeminiModel
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return value, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration such as 90s: %w", key, err)
	}
	return value, nil
}
