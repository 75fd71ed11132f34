package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       Log       `yaml:"log"`
	DB        DB        `yaml:"db"`
	API       API       `yaml:"api"`
	OpenAI    OpenAI    `yaml:"openai"`
	Mailbox   Mailbox   `yaml:"mailbox"`
	Scheduler Scheduler `yaml:"scheduler"`
	Summary   Summary   `yaml:"summary"`
}

type Log struct {
	// Minimum level written to the console sink
	Level string `yaml:"level" example:"debug" validate:"oneof=debug info warn error"`
	// Telegram logging config
	Telegram TelegramLog `yaml:"telegram"`
}

func (l Log) GetLevel() slog.Level {
	switch l.Level {
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

type TelegramLog struct {
	// Chat bot token, obtain it via BotFather
	Token string `yaml:"token" example:"1234567890:ABCdefGHIjklMNopQRstUVwxyZ-123456789"`
	// Chat ID to send messages to
	ChatID string `yaml:"chat_id" example:"1001234567890"`
}

type DB struct {
	// Postgres username
	User string `yaml:"user" example:"postgres" validate:"required"`
	// Postgres password
	Pass string `yaml:"pass" validate:"required"`
	// Postgres host
	Host string `yaml:"host" example:"localhost:5432" validate:"required"`
	// Postgres database name
	Database string `yaml:"database" example:"aimon" validate:"required"`
}

type API struct {
	// Address the HTTP server listens on
	Listen string `yaml:"listen" example:":8001" validate:"required"`
	// Shared secret expected in the X-API-Key header
	Key string `yaml:"key" example:"dev-api-key" validate:"required"`
}

type OpenAI struct {
	// OpenAI base url
	BaseURL string `yaml:"base_url" example:"https://openrouter.ai/api/v1" validate:"required"`
	// OpenAI token
	Token string `yaml:"token" example:"sk-proj-abc123456789DEF789ghi012JKL345mno678PQR901stu234VWX" validate:"required"`
	// OpenAI model
	Model string `yaml:"model" example:"deepseek/deepseek-chat-v3-0324:free" validate:"required"`
}

type Mailbox struct {
	// What Submit does while a prompt is still outstanding
	OnBusy string `yaml:"on_busy" example:"reject" validate:"oneof=reject replace"`
	// Number of prompt/response pairs kept in history
	HistorySize int `yaml:"history_size" example:"10" validate:"gt=0"`
}

type Scheduler struct {
	// Delay between sweep runs
	Interval string `yaml:"interval" example:"30s" validate:"required"`
	// Max records processed per sweep
	BatchSize int `yaml:"batch_size" example:"50" validate:"gt=0"`
	// Age after which a processing summary task is considered abandoned
	StaleAfter string `yaml:"stale_after" example:"5m" validate:"required"`
}

type Summary struct {
	// Max size of the conversation history embedded in the summary prompt
	PromptBudget int `yaml:"prompt_budget" example:"4000" validate:"gt=0"`
	// Per-call timeout for the language model
	LLMTimeout string `yaml:"llm_timeout" example:"30s" validate:"required"`
}

func (s Scheduler) GetInterval() time.Duration {
	d, err := time.ParseDuration(s.Interval)
	if err != nil {
		return 30 * time.Second
	}

	return d
}

func (s Scheduler) GetStaleAfter() time.Duration {
	d, err := time.ParseDuration(s.StaleAfter)
	if err != nil {
		return 5 * time.Minute
	}

	return d
}

func (s Summary) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(s.LLMTimeout)
	if err != nil {
		return 30 * time.Second
	}

	return d
}

func Load() (*Config, error) {
	var result Config

	data, err := os.ReadFile("config.yaml")
	if err != nil {
		return nil, oops.Errorf("failed to read config file: %w", err)
	}

	if err = yaml.Unmarshal(data, &result); err != nil {
		return nil, oops.Errorf("failed to parse YAML config: %w", err)
	}

	applyDefaults(&result)

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(result); err != nil {
		return nil, oops.Errorf("failed to validate config: %w", err)
	}

	return &result, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "debug"
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "postgres"
	}
	if cfg.DB.Pass == "" {
		cfg.DB.Pass = "postgres"
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost:5432"
	}
	if cfg.DB.Database == "" {
		cfg.DB.Database = "aimon"
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = ":8001"
	}
	if cfg.Mailbox.OnBusy == "" {
		cfg.Mailbox.OnBusy = "reject"
	}
	if cfg.Mailbox.HistorySize == 0 {
		cfg.Mailbox.HistorySize = 10
	}
	if cfg.Scheduler.Interval == "" {
		cfg.Scheduler.Interval = "30s"
	}
	if cfg.Scheduler.BatchSize == 0 {
		cfg.Scheduler.BatchSize = 50
	}
	if cfg.Scheduler.StaleAfter == "" {
		cfg.Scheduler.StaleAfter = "5m"
	}
	if cfg.Summary.PromptBudget == 0 {
		cfg.Summary.PromptBudget = 4000
	}
	if cfg.Summary.LLMTimeout == "" {
		cfg.Summary.LLMTimeout = "30s"
	}
}
