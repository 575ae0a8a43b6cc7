package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone     = "UTC"
	configPathEnv       = "KNOWLEDGESYNC_CONFIG"
	crawlAPIKeyEnv      = "CRAWL_API_KEY"
	kbAPIKeyEnv         = "KB_API_KEY"
	kbInstanceEnv       = "KB_INSTANCE"
	kbSourceEnv         = "KB_KNOWLEDGE_SOURCE_ID"
	databaseDSNEnv      = "DATABASE_DSN"
	redisAddressEnv     = "REDIS_ADDRESS"
	telegramTokenEnv    = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv   = "TELEGRAM_CHAT_ID"
	logLevelEnv         = "LOG_LEVEL"
	instanceURLTemplate = "https://%s.ada.support/api/v2"
)

// Session store kinds.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config holds high-level settings required across the application.
type Config struct {
	Crawl         CrawlConfig        `yaml:"crawl"`
	Knowledge     KnowledgeConfig    `yaml:"knowledge"`
	Upload        UploadConfig       `yaml:"upload"`
	Session       SessionConfig      `yaml:"session"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Notifications NotificationConfig `yaml:"notifications"`
	Metrics       MetricsConfig      `yaml:"metrics"`
	Logging       LoggingConfig      `yaml:"logging"`
}

// CrawlConfig describes how to reach the crawl service and what to ask of it.
type CrawlConfig struct {
	Endpoint        string        `yaml:"endpoint"`
	APIKey          string        `yaml:"apiKey"`
	URL             string        `yaml:"url"`
	Limit           int           `yaml:"limit"`
	OnlyMainContent *bool         `yaml:"onlyMainContent"`
	Formats         []string      `yaml:"formats"`
	ProxyMode       string        `yaml:"proxyMode"`
	PollInterval    time.Duration `yaml:"pollInterval"`
	MaxPollAttempts int           `yaml:"maxPollAttempts"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
}

// MainContentOnly reports whether only the main page content should be scraped.
func (c CrawlConfig) MainContentOnly() bool {
	return c.OnlyMainContent == nil || *c.OnlyMainContent
}

// KnowledgeConfig describes the knowledge-base target.
type KnowledgeConfig struct {
	Instance          string        `yaml:"instance"`
	BaseURL           string        `yaml:"baseUrl"`
	APIKey            string        `yaml:"apiKey"`
	KnowledgeSourceID string        `yaml:"knowledgeSourceId"`
	Language          string        `yaml:"language"`
	URLTitles         bool          `yaml:"urlTitles"`
	PageDelay         time.Duration `yaml:"pageDelay"`
	RequestTimeout    time.Duration `yaml:"requestTimeout"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
}

// Endpoint resolves the API base URL, deriving it from the instance name if unset.
func (k KnowledgeConfig) Endpoint() string {
	if k.BaseURL != "" {
		return strings.TrimSuffix(k.BaseURL, "/")
	}
	if k.Instance == "" {
		return ""
	}
	return fmt.Sprintf(instanceURLTemplate, k.Instance)
}

// UploadConfig tunes batching, retries and pacing.
type UploadConfig struct {
	BatchSize   int           `yaml:"batchSize"`
	MaxRetries  int           `yaml:"maxRetries"`
	BackoffBase time.Duration `yaml:"backoffBase"`
	BatchRest   time.Duration `yaml:"batchRest"`
	ResultsDir  string        `yaml:"resultsDir"`
}

// SessionConfig chooses where upload sessions are persisted.
type SessionConfig struct {
	Store         string `yaml:"store"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDb"`
	DSN           string `yaml:"dsn"`
	Table         string `yaml:"table"`
}

// SchedulerConfig defines when recurring syncs should run.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig controls log level, format and an optional rotated file.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Load reads .env and YAML configuration (if present) and applies environment overrides.
func Load() Config {
	_ = godotenv.Load()

	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			fileCfg, err := Parse(raw)
			if err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	return cfg
}

// Parse decodes a YAML document without applying defaults.
func Parse(raw []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode yaml: %w", err)
	}
	return cfg, nil
}

// Validate reports the first setting that prevents a sync from running.
func (c Config) Validate() error {
	switch {
	case c.Crawl.APIKey == "":
		return fmt.Errorf("crawl api key is required")
	case c.Knowledge.Endpoint() == "":
		return fmt.Errorf("knowledge instance or baseUrl is required")
	case c.Knowledge.APIKey == "":
		return fmt.Errorf("knowledge api key is required")
	case c.Knowledge.KnowledgeSourceID == "":
		return fmt.Errorf("knowledge source id is required")
	case c.Knowledge.Language == "":
		return fmt.Errorf("language is required")
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(crawlAPIKeyEnv); v != "" {
		c.Crawl.APIKey = v
	}

	if v := os.Getenv(kbAPIKeyEnv); v != "" {
		c.Knowledge.APIKey = v
	}

	if v := os.Getenv(kbInstanceEnv); v != "" {
		c.Knowledge.Instance = v
	}

	if v := os.Getenv(kbSourceEnv); v != "" {
		c.Knowledge.KnowledgeSourceID = v
	}

	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Session.DSN = v
	}

	if v := os.Getenv(redisAddressEnv); v != "" {
		c.Session.RedisAddr = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	base.Crawl = mergeCrawl(base.Crawl, override.Crawl)
	base.Knowledge = mergeKnowledge(base.Knowledge, override.Knowledge)

	if override.Upload.BatchSize > 0 {
		base.Upload.BatchSize = override.Upload.BatchSize
	}
	if override.Upload.MaxRetries > 0 {
		base.Upload.MaxRetries = override.Upload.MaxRetries
	}
	if override.Upload.BackoffBase > 0 {
		base.Upload.BackoffBase = override.Upload.BackoffBase
	}
	// A negative rest disables it, so any non-zero value is taken.
	if override.Upload.BatchRest != 0 {
		base.Upload.BatchRest = override.Upload.BatchRest
	}
	if override.Upload.ResultsDir != "" {
		base.Upload.ResultsDir = override.Upload.ResultsDir
	}

	base.Session = mergeSession(base.Session, override.Session)

	if override.Scheduler.CronExpression != "" {
		base.Scheduler.CronExpression = override.Scheduler.CronExpression
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	if override.Metrics.Addr != "" {
		base.Metrics.Addr = override.Metrics.Addr
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}
	if override.Logging.File != "" {
		base.Logging.File = override.Logging.File
	}

	return base
}

func mergeCrawl(base, override CrawlConfig) CrawlConfig {
	if override.Endpoint != "" {
		base.Endpoint = override.Endpoint
	}
	if override.APIKey != "" {
		base.APIKey = override.APIKey
	}
	if override.URL != "" {
		base.URL = override.URL
	}
	if override.Limit > 0 {
		base.Limit = override.Limit
	}
	if override.OnlyMainContent != nil {
		base.OnlyMainContent = override.OnlyMainContent
	}
	if len(override.Formats) > 0 {
		base.Formats = override.Formats
	}
	if override.ProxyMode != "" {
		base.ProxyMode = override.ProxyMode
	}
	if override.PollInterval > 0 {
		base.PollInterval = override.PollInterval
	}
	if override.MaxPollAttempts > 0 {
		base.MaxPollAttempts = override.MaxPollAttempts
	}
	if override.RequestTimeout > 0 {
		base.RequestTimeout = override.RequestTimeout
	}
	return base
}

func mergeKnowledge(base, override KnowledgeConfig) KnowledgeConfig {
	if override.Instance != "" {
		base.Instance = override.Instance
	}
	if override.BaseURL != "" {
		base.BaseURL = override.BaseURL
	}
	if override.APIKey != "" {
		base.APIKey = override.APIKey
	}
	if override.KnowledgeSourceID != "" {
		base.KnowledgeSourceID = override.KnowledgeSourceID
	}
	if override.Language != "" {
		base.Language = override.Language
	}
	if override.URLTitles {
		base.URLTitles = true
	}
	if override.PageDelay != 0 {
		base.PageDelay = override.PageDelay
	}
	if override.RequestTimeout > 0 {
		base.RequestTimeout = override.RequestTimeout
	}
	if override.RequestsPerSecond > 0 {
		base.RequestsPerSecond = override.RequestsPerSecond
	}
	return base
}

func mergeSession(base, override SessionConfig) SessionConfig {
	if override.Store != "" {
		base.Store = override.Store
	}
	if override.RedisAddr != "" {
		base.RedisAddr = override.RedisAddr
	}
	if override.RedisPassword != "" {
		base.RedisPassword = override.RedisPassword
	}
	if override.RedisDB != 0 {
		base.RedisDB = override.RedisDB
	}
	if override.DSN != "" {
		base.DSN = override.DSN
	}
	if override.Table != "" {
		base.Table = override.Table
	}
	return base
}

// SessionKey names the upload session for a knowledge source.
func (c Config) SessionKey() string {
	host := c.Knowledge.Instance
	if host == "" {
		host = c.Knowledge.Endpoint()
	}
	return host + ":" + c.Knowledge.KnowledgeSourceID
}

// String renders a redacted one-line summary for logs.
func (c Config) String() string {
	return "crawl=" + c.Crawl.Endpoint +
		" knowledge=" + c.Knowledge.Endpoint() +
		" source=" + c.Knowledge.KnowledgeSourceID +
		" batch=" + strconv.Itoa(c.Upload.BatchSize) +
		" retries=" + strconv.Itoa(c.Upload.MaxRetries) +
		" store=" + c.Session.Store
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Crawl: CrawlConfig{
			Endpoint:        "https://api.firecrawl.dev",
			URL:             "https://example.com",
			Limit:           5,
			Formats:         []string{"markdown"},
			PollInterval:    5 * time.Second,
			MaxPollAttempts: 60,
			RequestTimeout:  30 * time.Second,
		},
		Knowledge: KnowledgeConfig{
			KnowledgeSourceID: "123",
			Language:          "en",
			PageDelay:         500 * time.Millisecond,
			RequestTimeout:    30 * time.Second,
		},
		Upload: UploadConfig{
			BatchSize:   10,
			MaxRetries:  3,
			BackoffBase: time.Second,
			BatchRest:   3 * time.Second,
			ResultsDir:  ".",
		},
		Session: SessionConfig{
			Store: StoreMemory,
			Table: "upload_sessions",
		},
		Scheduler: SchedulerConfig{CronExpression: "0 6 * * *", Timezone: defaultTimezone, location: tz},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
	}
}
