package publisher

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"auto_reddit_speakout_poster/ledger"
	"auto_reddit_speakout_poster/logging"
)

// Config is read from a JSON file and then overridden by the environment.
type Config struct {
	Reddit          RedditConfig   `json:"reddit"`
	Source          SourceConfig   `json:"source"`
	LLM             *LLMConfig     `json:"llm,omitempty"`
	Ledger          LedgerConfig   `json:"ledger"`
	Server          ServerConfig   `json:"server"`
	Schedule        ScheduleConfig `json:"schedule"`
	DryRun          bool           `json:"dry_run"`
	SkipLatestCheck bool           `json:"skip_latest_check"`
}

// RedditConfig holds the script-app credentials and posting target.
type RedditConfig struct {
	AppID      string `json:"app_id"`
	AppSecret  string `json:"app_secret"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	Subreddit  string `json:"subreddit"`
	TitleLabel string `json:"title_label"`
	UserAgent  string `json:"user_agent,omitempty"`

	// FlairTemplates maps a party (BJP, INC, ...) to a link flair template id.
	FlairTemplates map[string]string `json:"flair_templates,omitempty"`
}

type SourceConfig struct {
	ListURL string `json:"list_url,omitempty"`
}

// LLMConfig selects the model for party detection. Without it no flair is applied.
type LLMConfig struct {
	Provider    string `json:"provider,omitempty"`
	Model       string `json:"model,omitempty"`
	SearchModel string `json:"search_model,omitempty"`
	APIKey      string `json:"api_key,omitempty"`
	BaseURL     string `json:"base_url,omitempty"`
}

type LedgerConfig struct {
	Backend    string `json:"backend,omitempty"` // "memory" or "redis"
	RedisURL   string `json:"redis_url,omitempty"`
	Key        string `json:"key,omitempty"`
	MaxHistory int    `json:"max_history,omitempty"`
}

type ServerConfig struct {
	Addr            string `json:"addr,omitempty"`
	DashboardSecret string `json:"dashboard_secret,omitempty"`
}

type ScheduleConfig struct {
	Interval   string `json:"interval,omitempty"`
	RunOnStart bool   `json:"run_on_start,omitempty"`
}

const (
	DefaultSubreddit  = "DHSavagery"
	DefaultTitleLabel = "DH Speakout"
	defaultInterval   = 6 * time.Hour
)

// IntervalDuration parses Schedule.Interval, falling back to six hours.
func (c Config) IntervalDuration() time.Duration {
	if c.Schedule.Interval == "" {
		return defaultInterval
	}
	d, err := time.ParseDuration(c.Schedule.Interval)
	if err != nil || d <= 0 {
		return defaultInterval
	}
	return d
}

// LoadEnvFiles loads .env and .env.dev into the process environment when present.
func LoadEnvFiles(logger logging.Logger) {
	files := []string{".env", ".env.dev"}
	loaded := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Overload(file); err != nil {
			if logger != nil {
				logger.WithError(err).Warnf("Failed to load %s", file)
			}
			continue
		}
		loaded = append(loaded, file)
	}
	if logger != nil && len(loaded) > 0 {
		logger.Debugf("Loaded env files: %s", strings.Join(loaded, ", "))
	}
}

// LoadConfig reads JSON config from disk, applies environment overrides and
// defaults, and validates the result. A missing file is not an error: the
// environment alone may carry the configuration.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the fields every command needs.
func (c Config) Validate() error {
	if c.Reddit.AppID == "" || c.Reddit.AppSecret == "" {
		return errors.New("config must include reddit.app_id and reddit.app_secret")
	}
	if c.Reddit.Username == "" || c.Reddit.Password == "" {
		return errors.New("config must include reddit.username and reddit.password")
	}
	if c.Ledger.Backend == "redis" && c.Ledger.RedisURL == "" {
		return errors.New("ledger backend redis requires ledger.redis_url")
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Reddit.AppID, "REDDIT_APP_ID")
	setString(&cfg.Reddit.AppSecret, "REDDIT_APP_SECRET")
	setString(&cfg.Reddit.Username, "REDDIT_USERNAME")
	setString(&cfg.Reddit.Password, "REDDIT_PASSWORD")
	setString(&cfg.Reddit.Subreddit, "REDDIT_SUBREDDIT")
	setString(&cfg.Source.ListURL, "SPEAKOUT_LIST_URL")
	setString(&cfg.Ledger.RedisURL, "REDIS_URL")
	setString(&cfg.Ledger.Backend, "LEDGER_BACKEND")
	setString(&cfg.Server.Addr, "SERVER_ADDR")
	setString(&cfg.Server.DashboardSecret, "DASHBOARD_SECRET")
	setString(&cfg.Schedule.Interval, "SCHEDULE_INTERVAL")
	setBool(&cfg.DryRun, "DRY_RUN")
	setBool(&cfg.SkipLatestCheck, "SKIP_LATEST_CHECK")
	if v := os.Getenv("LEDGER_MAX_HISTORY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ledger.MaxHistory = n
		}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if cfg.LLM == nil {
			cfg.LLM = &LLMConfig{}
		}
		cfg.LLM.APIKey = key
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Reddit.Subreddit == "" {
		cfg.Reddit.Subreddit = DefaultSubreddit
	}
	if cfg.Reddit.TitleLabel == "" {
		cfg.Reddit.TitleLabel = DefaultTitleLabel
	}
	if cfg.Ledger.Backend == "" {
		cfg.Ledger.Backend = "memory"
		if cfg.Ledger.RedisURL != "" {
			cfg.Ledger.Backend = "redis"
		}
	}
	if cfg.Ledger.MaxHistory <= 0 {
		cfg.Ledger.MaxHistory = ledger.DefaultMaxHistory
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.LLM != nil {
		if cfg.LLM.Provider == "" {
			cfg.LLM.Provider = "openai"
		}
		if cfg.LLM.Model == "" {
			cfg.LLM.Model = "gpt-4o-mini"
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setBool accepts "1" and "true" like the deployment's env flags do.
func setBool(dst *bool, key string) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true":
		*dst = true
	case "0", "false":
		*dst = false
	}
}
