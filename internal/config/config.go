// Package config provides configuration for the OCR service.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultPrompt asks the chatbot for the structured invoice fields.
const DefaultPrompt = "請幫我分析這張發票圖片的內容，提取其中的結構化資訊，包括發票號碼、日期、統一編號、品項詳細和總金額。"

// Config holds the service configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// Logging
	LogDir   string
	LogLevel string

	// Mode selects the provider implementation ("MOCK" for the in-process fake).
	Mode string

	Provider ProviderConfig
	Upload   UploadConfig
	Timing   Timing
	WS       WSConfig
}

// ProviderConfig configures the MaiAgent API.
type ProviderConfig struct {
	BaseURL        string
	APIKey         string
	ConversationID string
	RequestTimeout time.Duration
	Prompt         string
}

// UploadConfig bounds what the intake accepts.
type UploadConfig struct {
	MaxBytes           int64
	AcceptedMediaTypes []string
	MaxPDFPages        int
}

// Timing holds the workflow's delays and polling budget.
type Timing struct {
	PreCompletionDelay time.Duration
	PollInterval       time.Duration
	MaxPollAttempts    int
	PollPageSize       int
	WorkflowBudget     time.Duration
}

// WSConfig holds websocket connection settings for progress streaming.
type WSConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
}

// DefaultTiming returns the production delays: 10s before the completion
// request, then up to 18 polls 5s apart.
func DefaultTiming() Timing {
	return Timing{
		PreCompletionDelay: 10 * time.Second,
		PollInterval:       5 * time.Second,
		MaxPollAttempts:    18,
		PollPageSize:       10,
		WorkflowBudget:     150 * time.Second,
	}
}

// DefaultAcceptedMediaTypes lists the document types the provider can read.
func DefaultAcceptedMediaTypes() []string {
	return []string{"image/jpeg", "image/png", "image/gif", "image/webp", "application/pdf"}
}

// Load loads configuration from environment variables. A .env file in the
// working directory is read first when present; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	timing := DefaultTiming()
	cfg := &Config{
		HTTPPort:    getEnvInt("PORT", 3001),
		DatabaseURL: getEnv("DATABASE_URL", "file:ocrflow.db?cache=shared&mode=rwc"),
		LogDir:      getEnv("LOG_DIR", "logs"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Mode:        getEnv("OCRFLOW_MODE", ""),
		Provider: ProviderConfig{
			BaseURL:        getEnv("MAIAGENT_BASE_URL", "https://api.maiagent.ai/api"),
			APIKey:         getEnv("MAIAGENT_API_KEY", ""),
			ConversationID: getEnv("MAIAGENT_CONVERSATION_ID", ""),
			RequestTimeout: time.Duration(getEnvInt("MAIAGENT_TIMEOUT_MS", 60000)) * time.Millisecond,
			Prompt:         getEnv("OCR_PROMPT", DefaultPrompt),
		},
		Upload: UploadConfig{
			MaxBytes:           int64(getEnvInt("UPLOAD_MAX_BYTES", 10*1024*1024)),
			AcceptedMediaTypes: getEnvList("UPLOAD_ACCEPTED_TYPES", DefaultAcceptedMediaTypes()),
			MaxPDFPages:        getEnvInt("UPLOAD_MAX_PDF_PAGES", 50),
		},
		Timing: Timing{
			PreCompletionDelay: getEnvMillis("PRE_COMPLETION_DELAY_MS", timing.PreCompletionDelay),
			PollInterval:       getEnvMillis("POLL_INTERVAL_MS", timing.PollInterval),
			MaxPollAttempts:    getEnvInt("POLL_MAX_ATTEMPTS", timing.MaxPollAttempts),
			PollPageSize:       getEnvInt("POLL_PAGE_SIZE", timing.PollPageSize),
			WorkflowBudget:     getEnvMillis("WORKFLOW_BUDGET_MS", timing.WorkflowBudget),
		},
		WS: WSConfig{
			ReadTimeout:    getEnvMillis("WS_READ_TIMEOUT_MS", 60*time.Second),
			WriteTimeout:   getEnvMillis("WS_WRITE_TIMEOUT_MS", 10*time.Second),
			PingInterval:   getEnvMillis("WS_PING_INTERVAL_MS", 30*time.Second),
			MaxMessageSize: int64(getEnvInt("WS_MAX_MESSAGE_SIZE", 64*1024)),
		},
	}
	return cfg
}

// Missing returns the names of required provider settings that are unset.
// The mock provider needs none.
func (c *Config) Missing() []string {
	if strings.EqualFold(c.Mode, "MOCK") {
		return nil
	}
	var missing []string
	if c.Provider.APIKey == "" {
		missing = append(missing, "MAIAGENT_API_KEY")
	}
	if c.Provider.ConversationID == "" {
		missing = append(missing, "MAIAGENT_CONVERSATION_ID")
	}
	return missing
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvMillis(key string, defaultVal time.Duration) time.Duration {
	return time.Duration(getEnvInt(key, int(defaultVal/time.Millisecond))) * time.Millisecond
}

func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
