package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ReelRelay/internal/domain"
)

const (
	defaultTimezone = "UTC"
	configPathEnv   = "REELRELAY_CONFIG"

	apifyTokenEnv          = "APIFY_API_TOKEN"
	facebookPageIDEnv      = "FACEBOOK_PAGE_ID"
	facebookTokenEnv       = "FACEBOOK_ACCESS_TOKEN"
	telegramTokenEnv       = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv      = "TELEGRAM_CHAT_ID"
	chatGPTAPIKeyEnv       = "CHATGPT_API_KEY"
	chatGPTModelEnv        = "CHATGPT_MODEL"
	scheduleIntervalEnv    = "SCHEDULE_INTERVAL"
	videosPerRunEnv        = "VIDEOS_PER_RUN"
	runOnStartEnv          = "RUN_ON_START"
	logLevelEnv            = "LOG_LEVEL"
	logFormatEnv           = "LOG_FORMAT"
	databasePathEnv        = "DATABASE_PATH"
	downloadsDirEnv        = "DOWNLOADS_DIR"
	facebookPublishModeEnv = "FACEBOOK_PUBLISH_MODE"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Database      DatabaseConfig     `yaml:"database"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Discovery     DiscoveryConfig    `yaml:"discovery"`
	Download      DownloadConfig     `yaml:"download"`
	Facebook      FacebookConfig     `yaml:"facebook"`
	ChatGPT       ChatGPTConfig      `yaml:"chatgpt"`
	Notifications NotificationConfig `yaml:"notifications"`
}

// LoggingConfig selects verbosity and output format ("json" or "console").
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig points at the SQLite deduplication store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SchedulerConfig defines when and how much the pipeline should run.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	VideosPerRun   int            `yaml:"videosPerRun"`
	RunOnStart     bool           `yaml:"runOnStart"`
	ItemDelay      time.Duration  `yaml:"itemDelay"`
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

// DiscoveryConfig configures the Apify scraping actor.
type DiscoveryConfig struct {
	Endpoint string        `yaml:"endpoint"`
	ActorID  string        `yaml:"actorId"`
	Token    string        `yaml:"token"`
	Hashtags []string      `yaml:"hashtags"`
	MinViews int64         `yaml:"minViews"`
	MinLikes int64         `yaml:"minLikes"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DownloadConfig configures the acquisition chain.
type DownloadConfig struct {
	Dir             string            `yaml:"dir"`
	Resolvers       []string          `yaml:"resolvers"`
	Endpoints       map[string]string `yaml:"endpoints"`
	MinFileSize     int64             `yaml:"minFileSize"`
	ResolverTimeout time.Duration     `yaml:"resolverTimeout"`
	DownloadTimeout time.Duration     `yaml:"downloadTimeout"`
}

// FacebookConfig describes the Graph API target and upload tuning.
type FacebookConfig struct {
	GraphURL          string        `yaml:"graphUrl"`
	APIVersion        string        `yaml:"apiVersion"`
	PageID            string        `yaml:"pageId"`
	AccessToken       string        `yaml:"accessToken"`
	PublishMode       string        `yaml:"publishMode"`
	ChunkSize         int64         `yaml:"chunkSize"`
	MaxAttempts       int           `yaml:"maxAttempts"`
	RetryBaseDelay    time.Duration `yaml:"retryBaseDelay"`
	PollInterval      time.Duration `yaml:"pollInterval"`
	ProcessingTimeout time.Duration `yaml:"processingTimeout"`
}

// ChatGPTConfig defines how to contact the content generation API.
type ChatGPTConfig struct {
	Endpoint     string `yaml:"endpoint"`
	Model        string `yaml:"model"`
	APIKey       string `yaml:"apiKey"`
	SystemPrompt string `yaml:"systemPrompt"`
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

// Enabled reports whether both credentials are present.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// Load reads .env, the optional YAML file and applies environment overrides.
// path takes precedence over REELRELAY_CONFIG.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.bindTimezone(); err != nil {
		return Config{}, err
	}
	cfg.fillZeroValues()

	return cfg, nil
}

// Validate reports every missing credential required before a run may start.
func (c Config) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{apifyTokenEnv, c.Discovery.Token},
		{facebookPageIDEnv, c.Facebook.PageID},
		{facebookTokenEnv, c.Facebook.AccessToken},
	}

	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return &domain.ConfigurationError{Missing: missing}
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	setString(&c.Discovery.Token, apifyTokenEnv)
	setString(&c.Facebook.PageID, facebookPageIDEnv)
	setString(&c.Facebook.AccessToken, facebookTokenEnv)
	setString(&c.Facebook.PublishMode, facebookPublishModeEnv)
	setString(&c.Notifications.Telegram.BotToken, telegramTokenEnv)
	setString(&c.Notifications.Telegram.ChatID, telegramChatIDEnv)
	setString(&c.ChatGPT.APIKey, chatGPTAPIKeyEnv)
	setString(&c.ChatGPT.Model, chatGPTModelEnv)
	setString(&c.Scheduler.CronExpression, scheduleIntervalEnv)
	setString(&c.Logging.Level, logLevelEnv)
	setString(&c.Logging.Format, logFormatEnv)
	setString(&c.Database.Path, databasePathEnv)
	setString(&c.Download.Dir, downloadsDirEnv)

	if v := os.Getenv(videosPerRunEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Scheduler.VideosPerRun = n
		}
	}
	if v := os.Getenv(runOnStartEnv); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Scheduler.RunOnStart = b
		}
	}
}

func (c *Config) bindTimezone() error {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("config: unknown timezone %s: %w", tz, err)
	}
	c.Scheduler.location = loc
	return nil
}

// fillZeroValues restores defaults that a YAML file blanked out explicitly.
func (c *Config) fillZeroValues() {
	def := defaultConfig()
	if c.Scheduler.VideosPerRun <= 0 {
		c.Scheduler.VideosPerRun = def.Scheduler.VideosPerRun
	}
	if len(c.Download.Resolvers) == 0 {
		c.Download.Resolvers = def.Download.Resolvers
	}
	if c.Download.MinFileSize <= 0 {
		c.Download.MinFileSize = def.Download.MinFileSize
	}
	if c.Facebook.ChunkSize <= 0 {
		c.Facebook.ChunkSize = def.Facebook.ChunkSize
	}
	if c.Facebook.MaxAttempts <= 0 {
		c.Facebook.MaxAttempts = def.Facebook.MaxAttempts
	}
	if c.Facebook.PublishMode == "" {
		c.Facebook.PublishMode = def.Facebook.PublishMode
	}
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:  LoggingConfig{Level: "info", Format: "json"},
		Database: DatabaseConfig{Path: "./data/videos.db"},
		Scheduler: SchedulerConfig{
			CronExpression: "0 */2 * * *",
			Timezone:       defaultTimezone,
			VideosPerRun:   3,
			ItemDelay:      30 * time.Second,
			location:       tz,
		},
		Discovery: DiscoveryConfig{
			Endpoint: "https://api.apify.com/v2",
			ActorID:  "clockworks/tiktok-scraper",
			Hashtags: []string{"viral", "trending", "fyp"},
			MinViews: 10000,
			MinLikes: 500,
			Timeout:  5 * time.Minute,
		},
		Download: DownloadConfig{
			Dir:             "./downloads",
			Resolvers:       []string{"tikwm", "snaptik", "douyin"},
			MinFileSize:     1000,
			ResolverTimeout: 30 * time.Second,
			DownloadTimeout: 2 * time.Minute,
		},
		Facebook: FacebookConfig{
			GraphURL:          "https://graph.facebook.com",
			APIVersion:        "v18.0",
			PublishMode:       "reel",
			ChunkSize:         4 * 1024 * 1024,
			MaxAttempts:       3,
			RetryBaseDelay:    2 * time.Second,
			PollInterval:      5 * time.Second,
			ProcessingTimeout: 5 * time.Minute,
		},
		ChatGPT: ChatGPTConfig{
			Endpoint:     "https://api.openai.com/v1/chat/completions",
			Model:        "gpt-4o-mini",
			SystemPrompt: "You are a social media content expert writing original Facebook video posts.",
		},
	}
}
