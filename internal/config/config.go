package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RateLimitConfig indicates how many requests are allowed within a given interval.
type RateLimitConfig struct {
	Requests int
	Interval time.Duration
}

// DatabaseConfig holds either a full DATABASE_URL or its discrete parts.
type DatabaseConfig struct {
	URL      string
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
}

// SubscriberConfig configures the subscriber API sync.
type SubscriberConfig struct {
	APIKey           string
	BaseURL          string
	GroupID          int64
	Status           string
	QueryLimit       int
	BatchSleep       time.Duration
	RetryCount       int
	RetryBackoffBase time.Duration
	HTTPTimeout      time.Duration
}

// CEIDGConfig configures the company register client.
type CEIDGConfig struct {
	Token   string
	BaseURL string
	Pace    time.Duration
}

// CrawlConfig configures directory crawling.
type CrawlConfig struct {
	BaseURL     string
	PageSize    int
	DetailDelay time.Duration
	PageTimeout time.Duration
	Workers     int
	Headless    bool
	UserAgent   string
	ChromePath  string
}

// ServerConfig configures the lookup API.
type ServerConfig struct {
	Port            string
	APIKey          string
	RateLimitLookup RateLimitConfig
}

// LogConfig selects the zap encoder and level.
type LogConfig struct {
	Level  string
	Format string
}

// Config aggregates application-wide configuration values.
type Config struct {
	Database   DatabaseConfig
	Subscriber SubscriberConfig
	CEIDG      CEIDGConfig
	Crawl      CrawlConfig
	Server     ServerConfig
	Log        LogConfig
}

// Load reads configuration from the environment (and a .env file loaded by
// the binary) and applies defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "postgres")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("MAILERLITE_API_BASE", "https://connect.mailerlite.com/api")
	v.SetDefault("QUERY_LIMIT", 0)
	v.SetDefault("BATCH_SLEEP_SEC", "0")
	v.SetDefault("RETRY_COUNT", 3)
	v.SetDefault("RETRY_BACKOFF_BASE", "0.8")
	v.SetDefault("HTTP_TIMEOUT", "10")
	v.SetDefault("CEIDG_API_BASE", "https://dane.biznes.gov.pl/api/ceidg/v3")
	v.SetDefault("CEIDG_PACE", "0.2")
	v.SetDefault("CRAWL_BASE_URL", "https://aleo.com/pl/")
	v.SetDefault("CRAWL_PAGE_SIZE", 10)
	v.SetDefault("CRAWL_DETAIL_DELAY", "1")
	v.SetDefault("CRAWL_PAGE_TIMEOUT", "30")
	v.SetDefault("CRAWL_WORKERS", 1)
	v.SetDefault("CRAWL_HEADLESS", true)
	v.SetDefault("PORT", "8080")
	v.SetDefault("RATE_LIMIT_LOOKUP", "30/min")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	cfg := &Config{
		Database: DatabaseConfig{
			URL:      v.GetString("DATABASE_URL"),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			Name:     v.GetString("DB_NAME"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		Subscriber: SubscriberConfig{
			APIKey:     v.GetString("MAILERLITE_API_KEY"),
			BaseURL:    v.GetString("MAILERLITE_API_BASE"),
			Status:     v.GetString("SUBSCRIBER_STATUS"),
			QueryLimit: v.GetInt("QUERY_LIMIT"),
			RetryCount: v.GetInt("RETRY_COUNT"),
		},
		CEIDG: CEIDGConfig{
			Token:   v.GetString("CEIDG_API_TOKEN"),
			BaseURL: v.GetString("CEIDG_API_BASE"),
		},
		Crawl: CrawlConfig{
			BaseURL:    v.GetString("CRAWL_BASE_URL"),
			PageSize:   v.GetInt("CRAWL_PAGE_SIZE"),
			Workers:    v.GetInt("CRAWL_WORKERS"),
			Headless:   v.GetBool("CRAWL_HEADLESS"),
			UserAgent:  v.GetString("CRAWL_USER_AGENT"),
			ChromePath: v.GetString("CHROME_PATH"),
		},
		Server: ServerConfig{
			Port:   v.GetString("PORT"),
			APIKey: v.GetString("API_KEY"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("LOG_LEVEL")),
			Format: strings.ToLower(v.GetString("LOG_FORMAT")),
		},
	}

	if raw := strings.TrimSpace(v.GetString("MAILERLITE_GROUP_ID")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return nil, eris.Errorf("invalid MAILERLITE_GROUP_ID value %q", raw)
		}
		cfg.Subscriber.GroupID = id
	}

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{"BATCH_SLEEP_SEC", &cfg.Subscriber.BatchSleep},
		{"RETRY_BACKOFF_BASE", &cfg.Subscriber.RetryBackoffBase},
		{"HTTP_TIMEOUT", &cfg.Subscriber.HTTPTimeout},
		{"CEIDG_PACE", &cfg.CEIDG.Pace},
		{"CRAWL_DETAIL_DELAY", &cfg.Crawl.DetailDelay},
		{"CRAWL_PAGE_TIMEOUT", &cfg.Crawl.PageTimeout},
	}
	for _, d := range durations {
		parsed, err := parseSeconds(v.GetString(d.key))
		if err != nil {
			return nil, eris.Wrapf(err, "invalid %s value", d.key)
		}
		*d.target = parsed
	}

	rl, err := parseRateLimit(v.GetString("RATE_LIMIT_LOOKUP"))
	if err != nil {
		return nil, eris.Wrap(err, "invalid RATE_LIMIT_LOOKUP value")
	}
	cfg.Server.RateLimitLookup = rl

	if cfg.Subscriber.RetryCount < 1 {
		cfg.Subscriber.RetryCount = 1
	}
	if cfg.Crawl.PageSize <= 0 {
		return nil, eris.Errorf("invalid CRAWL_PAGE_SIZE value %d", cfg.Crawl.PageSize)
	}

	return cfg, nil
}

// RequireSubscriber fails when the subscriber API cannot be reached.
func (c *Config) RequireSubscriber() error {
	if strings.TrimSpace(c.Subscriber.APIKey) == "" {
		return eris.New("MAILERLITE_API_KEY is not set")
	}
	return nil
}

// RequireCEIDG fails when the register API cannot be reached.
func (c *Config) RequireCEIDG() error {
	if strings.TrimSpace(c.CEIDG.Token) == "" {
		return eris.New("CEIDG_API_TOKEN is not set")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

func parseRateLimit(value string) (RateLimitConfig, error) {
	parts := strings.Split(value, "/")
	if len(parts) != 2 {
		return RateLimitConfig{}, eris.Errorf("expected format <requests>/<interval>, got %q", value)
	}

	requests, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || requests <= 0 {
		return RateLimitConfig{}, eris.Errorf("invalid request count: %v", parts[0])
	}

	unit := strings.ToLower(strings.TrimSpace(parts[1]))
	var interval time.Duration
	switch unit {
	case "s", "sec", "second", "seconds":
		interval = time.Second
	case "m", "min", "minute", "minutes":
		interval = time.Minute
	case "h", "hr", "hour", "hours":
		interval = time.Hour
	default:
		return RateLimitConfig{}, eris.Errorf("unsupported interval unit: %s", unit)
	}

	return RateLimitConfig{Requests: requests, Interval: interval}, nil
}

// parseSeconds accepts a bare number of seconds ("0.8") or a Go duration ("800ms").
func parseSeconds(input string) (time.Duration, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(input, 64); err == nil {
		if secs < 0 {
			return 0, eris.Errorf("negative duration %q", input)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(input)
	if err != nil {
		return 0, eris.Wrapf(err, "parse duration %q", input)
	}
	if d < 0 {
		return 0, eris.Errorf("negative duration %q", input)
	}
	return d, nil
}
