package conf

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/DevRickLin/feishu-chat-analyst/internal/infra/openai"
)

// DefaultEnvFile is read when no --env-file is given; its absence is not an error
const DefaultEnvFile = ".env"

// Config represents application configuration
type Config struct {
	// Feishu configuration
	Feishu FeishuConfig

	// Analysis provider configuration
	AI AIConfig

	// Buffering and gate configuration
	Analysis AnalysisConfig

	// Status API configuration
	API APIConfig

	// Logging configuration
	Log LogConfig

	PromptsPath string `env:"PROMPTS_CONFIG_PATH"`
}

// FeishuConfig contains Feishu configuration
type FeishuConfig struct {
	AppID     string `env:"FEISHU_APP_ID" validate:"required"`
	AppSecret string `env:"FEISHU_APP_SECRET" validate:"required"`
}

// AIConfig selects the analysis provider
type AIConfig struct {
	Provider       string        `env:"AI_PROVIDER" env-default:"openai" validate:"oneof=openai moonshot"`
	OpenAIAPIKey   string        `env:"OPENAI_API_KEY"`
	MoonshotAPIKey string        `env:"MOONSHOT_API_KEY"`
	Model          string        `env:"AI_MODEL"`
	BaseURL        string        `env:"AI_BASE_URL" validate:"omitempty,url"`
	Temperature    float32       `env:"AI_TEMPERATURE" env-default:"0.5" validate:"gte=0,lte=2"`
	MaxTokens      int           `env:"AI_MAX_TOKENS" env-default:"2000" validate:"gte=0"`
	Timeout        time.Duration `env:"AI_TIMEOUT" env-default:"90s" validate:"gt=0"`
}

// AnalysisConfig contains buffer, gate and prompt limits
type AnalysisConfig struct {
	BufferCapacity  int           `env:"BUFFER_CAPACITY" env-default:"1000" validate:"gte=1"`
	Cooldown        time.Duration `env:"RATE_LIMIT_COOLDOWN" env-default:"10s" validate:"gt=0"`
	AuthorizedUsers []string      `env:"AUTHORIZED_USERS" env-separator:"," validate:"min=1"`
	MaxPromptChars  int           `env:"MAX_PROMPT_CHARS" env-default:"60000" validate:"gte=1000"`
}

// APIConfig contains the status API listen address; empty disables it
type APIConfig struct {
	Addr string `env:"API_ADDR" env-default:"127.0.0.1:9876"`
}

// LogConfig contains logger settings
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" env-default:"info" validate:"oneof=debug info warn error"`
	Format string `env:"LOG_FORMAT" env-default:"text" validate:"oneof=text json"`
}

// Load reads envFile into the process environment, then decodes and validates the environment.
// Variables already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil {
		if !(errors.Is(err, fs.ErrNotExist) && envFile == DefaultEnvFile) {
			return nil, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}
	cfg.Analysis.AuthorizedUsers = splitIDs(cfg.Analysis.AuthorizedUsers)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("env")
	})

	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ConfigError{Field: fe.Field(), Message: describe(fe)}
		}
		return fmt.Errorf("config: validate: %w", err)
	}

	if c.AI.APIKey() == "" {
		field := "OPENAI_API_KEY"
		if c.AI.Provider == openai.ProviderMoonshot {
			field = "MOONSHOT_API_KEY"
		}
		return &ConfigError{Field: field, Message: "required for AI_PROVIDER=" + c.AI.Provider}
	}
	return nil
}

// APIKey returns the credential of the selected provider
func (c *AIConfig) APIKey() string {
	if c.Provider == openai.ProviderMoonshot {
		return c.MoonshotAPIKey
	}
	return c.OpenAIAPIKey
}

// ToClientConfig converts to the analysis client configuration
func (c *AIConfig) ToClientConfig() openai.Config {
	return openai.Config{
		Provider:    c.Provider,
		APIKey:      c.APIKey(),
		Model:       c.Model,
		BaseURL:     c.BaseURL,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
	}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "min":
		return "at least " + fe.Param() + " entries required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fmt.Sprint(fe.Value()))
	default:
		return fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
	}
}

// splitIDs trims ids and drops blanks
func splitIDs(ids []string) []string {
	var out []string
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
