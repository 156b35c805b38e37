// Package config builds the follower-watch configuration once at startup from
// defaults, an optional YAML file, a .env file, the environment and flags.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	followerwatch "github.com/ianfoo/follower-watch"
)

const (
	defaultInterval = 10 * time.Second
	minInterval     = time.Second
)

// Notifier names accepted in the notifier list.
const (
	NotifierTelegram = "telegram"
	NotifierTwilio   = "twilio"
	NotifierEmail    = "email"
	NotifierSlack    = "slack"
	NotifierDiscord  = "discord"
	NotifierLog      = "log"
)

// Source kinds.
const (
	SourcePage    = "page"
	SourceJSON    = "json"
	SourceBrowser = "browser"
)

// Config is the complete, validated configuration. It is built once by Load
// and passed by value from then on.
type Config struct {
	Env string

	Account    string
	Platform   string
	Target     int
	Milestones []int

	Interval       time.Duration
	Schedule       string
	FetchTimeout   time.Duration
	NotifyTimeout  time.Duration
	OnFetchFailure string

	Source Source
	State  string

	Notifiers []string
	Telegram  Telegram
	Twilio    Twilio
	Email     Email
	Slack     Webhook
	Discord   Webhook

	// Messages replaces the wording of notifications; empty fields keep
	// the built-in text.
	Messages followerwatch.MessageTemplates

	Addr string
}

// Source configures where the count comes from.
type Source struct {
	Kind           string
	URL            string
	Pattern        string
	Query          string
	Selector       string
	MinSpacing     time.Duration
	UserAgent      string
	APIKeyHeader   string
	APIKey         string
	InstallBrowser bool
}

// Telegram holds the Bot API credentials and destination chat.
type Telegram struct {
	Token  string
	ChatID string
}

// Twilio holds the SMS credentials and phone numbers.
type Twilio struct {
	AccountSID string
	AuthToken  string
	From       string
	To         string
}

// Email holds the Resend credentials and addresses.
type Email struct {
	APIKey string
	From   string
	To     []string
}

// Webhook is a Slack or Discord incoming webhook.
type Webhook struct {
	URL      string
	Username string
}

// Production reports whether ENV asks for production logging.
func (c Config) Production() bool {
	switch strings.ToLower(c.Env) {
	case "prod", "production":
		return true
	}
	return false
}

// SQLiteState reports whether the state location names a SQLite database,
// and returns its path.
func (c Config) SQLiteState() (string, bool) {
	if p := strings.TrimPrefix(c.State, "sqlite:"); p != c.State {
		return p, true
	}
	for _, ext := range []string{".db", ".sqlite", ".sqlite3"} {
		if strings.HasSuffix(c.State, ext) {
			return c.State, true
		}
	}
	return "", false
}

// NewViper returns a viper instance with every key bound to the environment
// variables that can set it, preferred name first, and given its default.
// Flags are bound on top by the caller.
func NewViper() *viper.Viper {
	v := viper.New()
	bind := func(key string, env ...string) {
		// BindEnv only fails when given no key.
		_ = v.BindEnv(append([]string{key}, env...)...)
	}
	bind("env", "ENV")
	bind("account", "FOLLOWWATCH_ACCOUNT", "TIKTOK_USERNAME")
	bind("platform", "FOLLOWWATCH_PLATFORM")
	bind("target", "FOLLOWWATCH_TARGET", "TARGET_FOLLOWERS")
	bind("milestones", "FOLLOWWATCH_MILESTONES")
	bind("interval", "FOLLOWWATCH_INTERVAL")
	bind("poll_interval_ms", "POLL_INTERVAL_MS")
	bind("schedule", "FOLLOWWATCH_SCHEDULE")
	bind("fetch_timeout", "FOLLOWWATCH_FETCH_TIMEOUT")
	bind("notify_timeout", "FOLLOWWATCH_NOTIFY_TIMEOUT")
	bind("on_fetch_failure", "FOLLOWWATCH_ON_FETCH_FAILURE")

	bind("source.kind", "FOLLOWWATCH_SOURCE")
	bind("source.url", "FOLLOWWATCH_SOURCE_URL")
	bind("source.pattern", "FOLLOWWATCH_SOURCE_PATTERN")
	bind("source.query", "FOLLOWWATCH_SOURCE_QUERY")
	bind("source.selector", "FOLLOWWATCH_SOURCE_SELECTOR")
	bind("source.min_spacing", "FOLLOWWATCH_SOURCE_MIN_SPACING")
	bind("source.user_agent", "FOLLOWWATCH_SOURCE_USER_AGENT")
	bind("source.api_key_header", "FOLLOWWATCH_SOURCE_API_KEY_HEADER")
	bind("source.api_key", "FOLLOWWATCH_SOURCE_API_KEY")
	bind("source.install_browser", "FOLLOWWATCH_SOURCE_INSTALL_BROWSER")
	bind("state", "FOLLOWWATCH_STATE")

	bind("notifier", "FOLLOWWATCH_NOTIFIER")
	bind("telegram.token", "TELEGRAM_BOT_TOKEN")
	bind("telegram.chat_id", "TELEGRAM_CHAT_ID")
	bind("twilio.account_sid", "TWILIO_ACCOUNT_SID")
	bind("twilio.auth_token", "TWILIO_AUTH_TOKEN")
	bind("twilio.from", "TWILIO_PHONE_NUMBER")
	bind("twilio.to", "FOLLOWWATCH_SMS_TO")
	bind("email.api_key", "RESEND_API_KEY")
	bind("email.from", "FOLLOWWATCH_EMAIL_FROM")
	bind("email.to", "FOLLOWWATCH_EMAIL_TO")
	bind("slack.webhook_url", "SLACK_WEBHOOK_URL")
	bind("slack.username", "SLACK_USERNAME")
	bind("discord.webhook_url", "DISCORD_WEBHOOK_URL")
	bind("discord.username", "DISCORD_USERNAME")
	bind("messages.growth", "FOLLOWWATCH_MESSAGE_GROWTH")
	bind("messages.target", "FOLLOWWATCH_MESSAGE_TARGET")
	bind("messages.milestone", "FOLLOWWATCH_MESSAGE_MILESTONE")
	bind("addr", "FOLLOWWATCH_ADDR")

	v.SetDefault("platform", "TikTok")
	v.SetDefault("milestones", "100,500,1000,5000")
	v.SetDefault("fetch_timeout", "20s")
	v.SetDefault("notify_timeout", "10s")
	v.SetDefault("on_fetch_failure", "skip")
	v.SetDefault("source.kind", SourcePage)
	v.SetDefault("source.min_spacing", "2s")
	v.SetDefault("source.api_key_header", "X-API-Key")
	v.SetDefault("state", "followers.json")
	v.SetDefault("notifier", NotifierTelegram)
	v.SetDefault("addr", ":4040")
	return v
}

// LoadDotEnv loads variables from the given .env files, or ./.env if none are
// given, into the process environment. Variables already set win. A missing
// file is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "error loading %s", f)
		}
	}
	return nil
}

// Load reads configFile, if given, into v and builds a validated Config.
func Load(v *viper.Viper, configFile string) (Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "error reading config file %s", configFile)
		}
	}

	var (
		c   Config
		err error
	)
	c.Env = v.GetString("env")
	c.Account = strings.TrimPrefix(strings.TrimSpace(v.GetString("account")), "@")
	c.Platform = v.GetString("platform")
	c.Schedule = strings.TrimSpace(v.GetString("schedule"))
	c.OnFetchFailure = strings.ToLower(v.GetString("on_fetch_failure"))
	c.State = v.GetString("state")
	c.Addr = v.GetString("addr")

	if c.Target, err = intValue(v, "target"); err != nil {
		return Config{}, err
	}
	if c.Milestones, err = intList(v, "milestones"); err != nil {
		return Config{}, err
	}
	if c.Interval, err = interval(v); err != nil {
		return Config{}, err
	}
	if c.FetchTimeout, err = duration(v, "fetch_timeout"); err != nil {
		return Config{}, err
	}
	if c.NotifyTimeout, err = duration(v, "notify_timeout"); err != nil {
		return Config{}, err
	}

	c.Source = Source{
		Kind:           strings.ToLower(v.GetString("source.kind")),
		URL:            v.GetString("source.url"),
		Pattern:        v.GetString("source.pattern"),
		Query:          v.GetString("source.query"),
		Selector:       v.GetString("source.selector"),
		UserAgent:      v.GetString("source.user_agent"),
		APIKeyHeader:   v.GetString("source.api_key_header"),
		APIKey:         v.GetString("source.api_key"),
		InstallBrowser: v.GetBool("source.install_browser"),
	}
	if c.Source.MinSpacing, err = duration(v, "source.min_spacing"); err != nil {
		return Config{}, err
	}

	c.Notifiers = stringList(v, "notifier")
	for i, n := range c.Notifiers {
		c.Notifiers[i] = strings.ToLower(n)
	}
	c.Telegram = Telegram{
		Token:  v.GetString("telegram.token"),
		ChatID: v.GetString("telegram.chat_id"),
	}
	c.Twilio = Twilio{
		AccountSID: v.GetString("twilio.account_sid"),
		AuthToken:  v.GetString("twilio.auth_token"),
		From:       v.GetString("twilio.from"),
		To:         v.GetString("twilio.to"),
	}
	c.Email = Email{
		APIKey: v.GetString("email.api_key"),
		From:   v.GetString("email.from"),
		To:     stringList(v, "email.to"),
	}
	c.Slack = Webhook{URL: v.GetString("slack.webhook_url"), Username: v.GetString("slack.username")}
	c.Discord = Webhook{URL: v.GetString("discord.webhook_url"), Username: v.GetString("discord.username")}
	c.Messages = followerwatch.MessageTemplates{
		Growth:    v.GetString("messages.growth"),
		Target:    v.GetString("messages.target"),
		Milestone: v.GetString("messages.milestone"),
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports the first problem that would stop the watcher from doing
// its job.
func (c Config) Validate() error {
	if c.Account == "" {
		return errors.New("account is required")
	}
	if c.Target < 1 {
		return errors.New("target followers must be greater than zero")
	}
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return errors.Wrapf(err, "invalid schedule %q", c.Schedule)
		}
	} else if c.Interval < minInterval {
		return errors.New("minimum interval is one second")
	}
	if c.FetchTimeout <= 0 || c.NotifyTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	switch c.OnFetchFailure {
	case "skip", "zero":
	default:
		return errors.Errorf("on_fetch_failure must be skip or zero, not %q", c.OnFetchFailure)
	}
	switch c.Source.Kind {
	case SourcePage, SourceBrowser:
	case SourceJSON:
		if c.Source.URL == "" {
			return errors.New("the json source needs source.url")
		}
	default:
		return errors.Errorf("unknown source %q (use page, json or browser)", c.Source.Kind)
	}
	if c.State == "" {
		return errors.New("state location is required")
	}
	if _, err := followerwatch.NewMessages(c.Messages); err != nil {
		return err
	}
	if len(c.Notifiers) == 0 {
		return errors.New("at least one notifier is required")
	}
	for _, n := range c.Notifiers {
		if err := c.validateNotifier(n); err != nil {
			return err
		}
	}
	return nil
}

func (c Config) validateNotifier(name string) error {
	missing := func(what ...string) error {
		return errors.Errorf("%s notifier needs %s", name, strings.Join(what, " and "))
	}
	switch name {
	case NotifierTelegram:
		if c.Telegram.Token == "" || c.Telegram.ChatID == "" {
			return missing("TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID")
		}
	case NotifierTwilio:
		if c.Twilio.AccountSID == "" || c.Twilio.AuthToken == "" || c.Twilio.From == "" || c.Twilio.To == "" {
			return missing("TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_PHONE_NUMBER", "FOLLOWWATCH_SMS_TO")
		}
	case NotifierEmail:
		if c.Email.APIKey == "" || c.Email.From == "" || len(c.Email.To) == 0 {
			return missing("RESEND_API_KEY", "FOLLOWWATCH_EMAIL_FROM", "FOLLOWWATCH_EMAIL_TO")
		}
	case NotifierSlack:
		if c.Slack.URL == "" {
			return missing("SLACK_WEBHOOK_URL")
		}
	case NotifierDiscord:
		if c.Discord.URL == "" {
			return missing("DISCORD_WEBHOOK_URL")
		}
	case NotifierLog:
	default:
		return errors.Errorf("unknown notifier %q", name)
	}
	return nil
}

func interval(v *viper.Viper) (time.Duration, error) {
	if s := strings.TrimSpace(v.GetString("interval")); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, errors.Wrapf(err, "invalid interval %q", s)
		}
		return d, nil
	}
	if s := strings.TrimSpace(v.GetString("poll_interval_ms")); s != "" {
		ms, err := strconv.Atoi(s)
		if err != nil {
			return 0, errors.Wrapf(err, "invalid POLL_INTERVAL_MS %q", s)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	return defaultInterval, nil
}

func duration(v *viper.Viper, key string) (time.Duration, error) {
	s := strings.TrimSpace(v.GetString(key))
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s %q", key, s)
	}
	return d, nil
}

func intValue(v *viper.Viper, key string) (int, error) {
	s := strings.TrimSpace(v.GetString(key))
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s %q", key, s)
	}
	return n, nil
}

// stringList accepts either a YAML list or a comma separated string.
func stringList(v *viper.Viper, key string) []string {
	var raw []string
	switch val := v.Get(key).(type) {
	case string:
		raw = strings.Split(val, ",")
	case nil:
	default:
		raw = v.GetStringSlice(key)
	}
	var out []string
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func intList(v *viper.Viper, key string) ([]int, error) {
	var out []int
	for _, s := range stringList(v, key) {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid %s entry %q", key, s)
		}
		if n < 1 {
			return nil, errors.Errorf("%s must be positive, got %d", key, n)
		}
		out = append(out, n)
	}
	return out, nil
}

// String renders the configuration with secrets masked, for the startup log.
func (c Config) String() string {
	return fmt.Sprintf("account=%s target=%d milestones=%v interval=%s schedule=%q source=%s state=%s notifiers=%v",
		c.Account, c.Target, c.Milestones, c.Interval, c.Schedule, c.Source.Kind, c.State, c.Notifiers)
}
