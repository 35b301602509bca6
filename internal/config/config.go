// Package config provides YAML-based configuration loading for meetbot.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the config file leaves a field unset.
const (
	DefaultDurationMinutes = 60
	MaxDurationCeiling     = 180
	DefaultDisplayName     = "Meeting Bot"
)

// Config is the top-level meetbot configuration, loaded from meetbot.yaml.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Browser   BrowserConfig   `yaml:"browser"`
	Bot       BotConfig       `yaml:"bot"`
	Detection DetectionConfig `yaml:"detection"`
	Redis     RedisConfig     `yaml:"redis"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Schedule  []ScheduleEntry `yaml:"schedule"`
}

// DatabaseConfig selects the transcript store backend.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "sqlite" or "mysql"
	Path     string `yaml:"path"`   // sqlite file
	DSN      string `yaml:"dsn"`    // full mysql DSN, overrides host/port/user/database
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// BrowserConfig controls how the headless browser is launched.
type BrowserConfig struct {
	ExecPath     string `yaml:"exec_path"`
	Headless     bool   `yaml:"headless"`
	WindowWidth  int    `yaml:"window_width"`
	WindowHeight int    `yaml:"window_height"`
	UserAgent    string `yaml:"user_agent"`
}

// BotConfig holds session timings and limits.
type BotConfig struct {
	DisplayName            string        `yaml:"display_name"`
	DefaultDurationMinutes int           `yaml:"default_duration_minutes"`
	MaxDurationMinutes     int           `yaml:"max_duration_minutes"`
	CaptionInterval        time.Duration `yaml:"caption_interval"`
	ExitCheckInterval      time.Duration `yaml:"exit_check_interval"`
	PersistInterval        time.Duration `yaml:"persist_interval"`
	HeartbeatInterval      time.Duration `yaml:"heartbeat_interval"`
	LeaveGrace             time.Duration `yaml:"leave_grace"`
	UIWaitTimeout          time.Duration `yaml:"ui_wait_timeout"`
	CaptionsWaitTimeout    time.Duration `yaml:"captions_wait_timeout"`
	JoinSettle             time.Duration `yaml:"join_settle"`
}

// DetectionConfig holds the page heuristics. Every list replaces the
// built-in default when set.
type DetectionConfig struct {
	CaptionSelector      string   `yaml:"caption_selector"`
	LeaveSelector        string   `yaml:"leave_selector"`
	CaptionsSelector     string   `yaml:"captions_selector"`
	NameInputSelector    string   `yaml:"name_input_selector"`
	ErrorSelector        string   `yaml:"error_selector"`
	ReadySelectors       []string `yaml:"ready_selectors"`
	JoinSelectors        []string `yaml:"join_selectors"`
	JoinTexts            []string `yaml:"join_texts"`
	CameraSelectors      []string `yaml:"camera_selectors"`
	MicrophoneSelectors  []string `yaml:"microphone_selectors"`
	ParticipantSelectors []string `yaml:"participant_selectors"`
	AlonePhrases         []string `yaml:"alone_phrases"`
	EndedPhrases         []string `yaml:"ended_phrases"`
	RejectedPhrases      []string `yaml:"rejected_phrases"`
}

// RedisConfig enables lifecycle event publishing when Addr is set.
type RedisConfig struct {
	Addr          string `yaml:"addr"`
	Password      string `yaml:"password"`
	DB            int    `yaml:"db"`
	ChannelPrefix string `yaml:"channel_prefix"`
}

// ServerConfig configures the read-only status server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// ScheduleEntry describes a recurring meeting the bot joins on a cron schedule.
type ScheduleEntry struct {
	Name            string `yaml:"name"`
	URL             string `yaml:"url"`
	Cron            string `yaml:"cron"`
	DurationMinutes int    `yaml:"duration_minutes"`
}

// Load reads a YAML config file from path and returns a validated Config.
// Environment overrides are applied after parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a validated Config with every default applied, used when
// no config file exists.
func Default() *Config {
	var cfg Config
	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults()
	return &cfg
}

// applyEnv overlays MEETBOT_* environment variables.
func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("MEETBOT_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := getenv("MEETBOT_DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := getenv("MEETBOT_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := getenv("MEETBOT_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := getenv("MEETBOT_CHROME_PATH"); v != "" {
		c.Browser.ExecPath = v
	}
	if v := getenv("MEETBOT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "meetbot.db"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
		if c.Database.Database == "" {
			c.Database.Database = "meetbot"
		}
	}

	if c.Browser.WindowWidth == 0 {
		c.Browser.WindowWidth = 1280
	}
	if c.Browser.WindowHeight == 0 {
		c.Browser.WindowHeight = 720
	}

	b := &c.Bot
	if b.DisplayName == "" {
		b.DisplayName = DefaultDisplayName
	}
	if b.DefaultDurationMinutes <= 0 {
		b.DefaultDurationMinutes = DefaultDurationMinutes
	}
	if b.MaxDurationMinutes <= 0 {
		b.MaxDurationMinutes = MaxDurationCeiling
	}
	setDuration(&b.CaptionInterval, 2*time.Second)
	setDuration(&b.ExitCheckInterval, 30*time.Second)
	setDuration(&b.PersistInterval, 30*time.Second)
	setDuration(&b.HeartbeatInterval, 60*time.Second)
	setDuration(&b.LeaveGrace, 2*time.Second)
	setDuration(&b.UIWaitTimeout, 30*time.Second)
	setDuration(&b.CaptionsWaitTimeout, 10*time.Second)
	setDuration(&b.JoinSettle, 5*time.Second)

	if c.Redis.ChannelPrefix == "" {
		c.Redis.ChannelPrefix = "meetbot"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8090
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	for i := range c.Schedule {
		if c.Schedule[i].DurationMinutes <= 0 {
			c.Schedule[i].DurationMinutes = b.DefaultDurationMinutes
		}
	}
}

func setDuration(d *time.Duration, def time.Duration) {
	if *d <= 0 {
		*d = def
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q must be sqlite or mysql", c.Database.Driver))
	}
	if c.Bot.DefaultDurationMinutes > c.Bot.MaxDurationMinutes {
		errs = append(errs, fmt.Sprintf("bot.default_duration_minutes %d exceeds max_duration_minutes %d",
			c.Bot.DefaultDurationMinutes, c.Bot.MaxDurationMinutes))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q must be debug, info, warn or error", c.Log.Level))
	}
	for i, s := range c.Schedule {
		if s.Name == "" {
			errs = append(errs, fmt.Sprintf("schedule[%d].name is required", i))
		}
		if s.URL == "" {
			errs = append(errs, fmt.Sprintf("schedule[%d].url is required", i))
		}
		if s.Cron == "" {
			errs = append(errs, fmt.Sprintf("schedule[%d].cron is required", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ClampDuration applies the default and ceiling to a requested session
// length in minutes.
func (b BotConfig) ClampDuration(minutes int) int {
	if minutes <= 0 {
		minutes = b.DefaultDurationMinutes
	}
	if minutes > b.MaxDurationMinutes {
		minutes = b.MaxDurationMinutes
	}
	return minutes
}
