package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone  = "Asia/Kolkata"
	configPathEnv    = "DISCLOSURE_MONITOR_CONFIG"
	feedURLEnv       = "FEED_URL"
	databaseDSNEnv   = "DATABASE_DSN"
	geminiAPIKeyEnv  = "GEMINI_API_KEY"
	openAIAPIKeyEnv  = "OPENAI_API_KEY"
	senderEmailEnv   = "SENDER_EMAIL"
	senderPassEnv    = "SENDER_PASSWORD"
	recipientEnv     = "RECIPIENT_EMAIL"
	emailProviderEnv = "EMAIL_PROVIDER"
	telegramTokenEnv = "TELEGRAM_BOT_TOKEN"
	telegramChatEnv  = "TELEGRAM_CHAT_ID"
	logLevelEnv      = "LOG_LEVEL"
	checkIntervalEnv = "CHECK_INTERVAL"

	minRetention = 14 * 24 * time.Hour
)

// Config holds high-level settings required across the application.
type Config struct {
	Feed          FeedConfig         `yaml:"feed"`
	Filter        FilterConfig       `yaml:"filter"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Storage       StorageConfig      `yaml:"storage"`
	AI            AIConfig           `yaml:"ai"`
	Financials    FinancialsConfig   `yaml:"financials"`
	Enrich        EnrichConfig       `yaml:"enrich"`
	Notifications NotificationConfig `yaml:"notifications"`
	Server        ServerConfig       `yaml:"server"`
	Logging       LoggingConfig      `yaml:"logging"`
	Process       ProcessConfig      `yaml:"process"`
}

// FeedConfig points at the disclosure RSS feed.
type FeedConfig struct {
	URL     string        `yaml:"url" validate:"required,url"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

// FilterConfig selects the keyword rules and the freshness window.
type FilterConfig struct {
	Presets    []string      `yaml:"presets" validate:"dive,oneof=awards contracts regulation-30"`
	Keywords   []string      `yaml:"keywords" validate:"dive,required"`
	DateWindow time.Duration `yaml:"dateWindow" validate:"gt=0"`
}

// SchedulerConfig defines when cycles run and how suspension is detected.
type SchedulerConfig struct {
	Interval          time.Duration  `yaml:"interval" validate:"gt=0"`
	HeartbeatInterval time.Duration  `yaml:"heartbeatInterval" validate:"gt=0"`
	SleepThreshold    time.Duration  `yaml:"sleepThreshold" validate:"gtfield=HeartbeatInterval"`
	MaxLookback       time.Duration  `yaml:"maxLookback" validate:"gt=0"`
	RetryWindow       time.Duration  `yaml:"retryWindow" validate:"gt=0"`
	PruneInterval     time.Duration  `yaml:"pruneInterval" validate:"gte=0"`
	Timezone          string         `yaml:"timezone"`
	location          *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, err := time.LoadLocation(defaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Backend   string        `yaml:"backend" validate:"oneof=badger postgres memory"`
	Path      string        `yaml:"path" validate:"required_if=Backend badger"`
	DSN       string        `yaml:"dsn" validate:"required_if=Backend postgres"`
	Retention time.Duration `yaml:"retention"`
}

// AIConfig describes the summarization provider.
type AIConfig struct {
	Provider          string `yaml:"provider" validate:"oneof=gemini openai none"`
	Model             string `yaml:"model"`
	APIKey            string `yaml:"apiKey"`
	BaseURL           string `yaml:"baseUrl" validate:"omitempty,url"`
	SystemPrompt      string `yaml:"systemPrompt"`
	RequestsPerMinute int    `yaml:"requestsPerMinute" validate:"gte=0"`
	MaxTries          uint   `yaml:"maxTries" validate:"gte=1,lte=10"`
}

// FinancialsConfig describes where company financials come from.
type FinancialsConfig struct {
	Provider  string        `yaml:"provider" validate:"oneof=llm http none"`
	Endpoint  string        `yaml:"endpoint" validate:"omitempty,url"`
	APIKey    string        `yaml:"apiKey"`
	Timeout   time.Duration `yaml:"timeout" validate:"gte=0"`
	CacheSize int           `yaml:"cacheSize" validate:"gte=1"`
	CacheTTL  time.Duration `yaml:"cacheTtl" validate:"gt=0"`
}

// EnrichConfig bounds the enrichment pipeline.
type EnrichConfig struct {
	Concurrency int           `yaml:"concurrency" validate:"gte=1,lte=16"`
	PDFTimeout  time.Duration `yaml:"pdfTimeout" validate:"gt=0"`
	MaxPDFBytes int64         `yaml:"maxPdfBytes" validate:"gt=0"`
	MaxChars    int           `yaml:"maxChars" validate:"gt=0"`
	ItemTimeout time.Duration `yaml:"itemTimeout" validate:"gt=0"`
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	Transport string         `yaml:"transport" validate:"oneof=smtp telegram"`
	Email     EmailConfig    `yaml:"email"`
	Telegram  TelegramConfig `yaml:"telegram"`
}

// EmailConfig wires SMTP delivery. Provider picks host and port presets.
type EmailConfig struct {
	Provider   string        `yaml:"provider"`
	Host       string        `yaml:"host"`
	Port       int           `yaml:"port" validate:"gte=0,lte=65535"`
	Sender     string        `yaml:"sender" validate:"omitempty,email"`
	Password   string        `yaml:"password"`
	Recipients []string      `yaml:"recipients" validate:"dive,email"`
	Timeout    time.Duration `yaml:"timeout" validate:"gte=0"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	APIBase  string `yaml:"apiBase" validate:"omitempty,url"`
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// ServerConfig holds the status endpoint address. Empty disables it.
type ServerConfig struct {
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}

// LoggingConfig sets slog level and format.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// ProcessConfig locates the pidfile used by start/stop/status.
type ProcessConfig struct {
	PIDFile string `yaml:"pidFile" validate:"required"`
}

// Load reads .env, the YAML file (path, or DISCLOSURE_MONITOR_CONFIG when
// path is empty), applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.bindTimezone(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	set := func(dst *string, env string) {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			*dst = v
		}
	}

	set(&c.Feed.URL, feedURLEnv)
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Storage.DSN = v
		c.Storage.Backend = "postgres"
	}
	set(&c.Notifications.Email.Sender, senderEmailEnv)
	set(&c.Notifications.Email.Password, senderPassEnv)
	set(&c.Notifications.Email.Provider, emailProviderEnv)
	if v := os.Getenv(recipientEnv); v != "" {
		c.Notifications.Email.Recipients = splitList(v)
	}
	set(&c.Notifications.Telegram.BotToken, telegramTokenEnv)
	set(&c.Notifications.Telegram.ChatID, telegramChatEnv)
	set(&c.Logging.Level, logLevelEnv)
	c.Scheduler.Interval = durationEnv(checkIntervalEnv, c.Scheduler.Interval)

	switch c.AI.Provider {
	case "gemini":
		set(&c.AI.APIKey, geminiAPIKeyEnv)
	case "openai":
		set(&c.AI.APIKey, openAIAPIKeyEnv)
	}
}

func (c *Config) bindTimezone() error {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("scheduler.timezone: unknown timezone %q: %w", tz, err)
	}
	c.Scheduler.Timezone = tz
	c.Scheduler.location = loc
	return nil
}

// Validate checks field constraints and the rules spanning sections.
func (c Config) Validate() error {
	var errs []error

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate config: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, fieldError(fe))
		}
	}

	if len(c.Filter.Presets) == 0 && len(c.Filter.Keywords) == 0 {
		errs = append(errs, errors.New("filter: at least one preset or keyword is required"))
	}

	floor := max(minRetention, 2*max(c.Filter.DateWindow, c.Scheduler.MaxLookback, c.Scheduler.RetryWindow))
	if c.Storage.Retention < floor {
		errs = append(errs, fmt.Errorf("storage.retention: %s is shorter than the minimum %s", c.Storage.Retention, floor))
	}

	if c.AI.Provider != "none" && strings.TrimSpace(c.AI.APIKey) == "" {
		errs = append(errs, fmt.Errorf("ai.apiKey: required for provider %s", c.AI.Provider))
	}
	if c.Financials.Provider == "http" && c.Financials.Endpoint == "" {
		errs = append(errs, errors.New("financials.endpoint: required for provider http"))
	}
	if c.Financials.Provider == "llm" && c.AI.Provider == "none" {
		errs = append(errs, errors.New("financials.provider: llm requires an ai provider"))
	}

	switch c.Notifications.Transport {
	case "smtp":
		e := c.Notifications.Email
		if e.Sender == "" {
			errs = append(errs, errors.New("notifications.email.sender: required for smtp transport"))
		}
		if e.Password == "" {
			errs = append(errs, errors.New("notifications.email.password: required for smtp transport"))
		}
		if len(e.Recipients) == 0 {
			errs = append(errs, errors.New("notifications.email.recipients: at least one recipient is required"))
		}
		if e.Host == "" && !slices.Contains(EmailProviders, strings.ToLower(e.Provider)) {
			errs = append(errs, fmt.Errorf("notifications.email.provider: unknown provider %q and no host set", e.Provider))
		}
	case "telegram":
		t := c.Notifications.Telegram
		if t.BotToken == "" || t.ChatID == "" {
			errs = append(errs, errors.New("notifications.telegram: botToken and chatId are required for telegram transport"))
		}
	}

	return errors.Join(errs...)
}

// EmailProviders lists the SMTP presets known to the mail transport.
var EmailProviders = []string{"gmail", "outlook", "yahoo", "icloud"}

func fieldError(fe validator.FieldError) error {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Errorf("%s: is required", field)
	case "oneof":
		return fmt.Errorf("%s: %q must be one of [%s]", field, fe.Value(), fe.Param())
	case "url":
		return fmt.Errorf("%s: must be a valid URL", field)
	case "email":
		return fmt.Errorf("%s: %q is not a valid email address", field, fe.Value())
	case "gt", "gte", "lte":
		return fmt.Errorf("%s: must be %s %s", field, fe.Tag(), fe.Param())
	case "gtfield":
		return fmt.Errorf("%s: must be greater than %s", field, fe.Param())
	default:
		return fmt.Errorf("%s: failed %s validation", field, fe.Tag())
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// durationEnv parses a Go duration or a bare number of minutes.
func durationEnv(name string, def time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Minute
		}
	}
	return def
}

func defaultConfig() Config {
	return Config{
		Feed: FeedConfig{
			URL:     "https://nsearchives.nseindia.com/content/RSS/Online_announcements.xml",
			Timeout: 30 * time.Second,
		},
		Filter: FilterConfig{
			Presets:    []string{"awards", "contracts"},
			DateWindow: 6 * time.Hour,
		},
		Scheduler: SchedulerConfig{
			Interval:          15 * time.Minute,
			HeartbeatInterval: time.Minute,
			SleepThreshold:    5 * time.Minute,
			MaxLookback:       24 * time.Hour,
			RetryWindow:       7 * 24 * time.Hour,
			PruneInterval:     24 * time.Hour,
			Timezone:          defaultTimezone,
		},
		Storage: StorageConfig{
			Backend:   "badger",
			Path:      "data/state",
			Retention: 90 * 24 * time.Hour,
		},
		AI: AIConfig{
			Provider:          "gemini",
			RequestsPerMinute: 10,
			MaxTries:          3,
		},
		Financials: FinancialsConfig{
			Provider:  "llm",
			Timeout:   15 * time.Second,
			CacheSize: 256,
			CacheTTL:  24 * time.Hour,
		},
		Enrich: EnrichConfig{
			Concurrency: 2,
			PDFTimeout:  30 * time.Second,
			MaxPDFBytes: 20 << 20,
			MaxChars:    100_000,
			ItemTimeout: 5 * time.Minute,
		},
		Notifications: NotificationConfig{
			Transport: "smtp",
			Email: EmailConfig{
				Provider: "gmail",
				Timeout:  30 * time.Second,
			},
		},
		Server:  ServerConfig{Addr: "127.0.0.1:8085"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Process: ProcessConfig{PIDFile: "data/monitor.pid"},
	}
}
