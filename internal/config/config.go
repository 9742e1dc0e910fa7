package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/hitoshi/liveinfo/internal/version"
)

// 永続ストアのバックエンド。
const (
	StoreFile     = "file"
	StorePostgres = "postgres"
	StoreValkey   = "valkey"
)

// ErrNoPlatform は監視対象のプラットフォームが1つも設定されていないことを示す。
var ErrNoPlatform = errors.New("no platform configured: set NICOLIVE_USER_ID and/or YTLIVE_CHANNEL_ID")

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	Nicolive NicoliveConfig
	Ytlive   YtliveConfig

	// Fetch
	UserAgent             string
	FetchTimeout          time.Duration
	FetchMaxSize          int64
	CacheSingleFlight     bool
	AllowPrivateUpstreams bool

	// Store
	StoreBackend   string
	DatabaseURL    string
	ValkeyAddr     string
	ValkeyPassword string
	ValkeyDB       int

	// Rate Limit
	RateLimitPerMinute int

	// Logging
	LogFormat string
	LogLevel  string
	LogDir    string

	// Server
	ServerPort string

	// CORS
	CORSAllowOrigins []string
}

// NicoliveConfig はニコニコ生放送の監視設定。
type NicoliveConfig struct {
	UserID   string
	DumpPath string
	Interval time.Duration
}

// Enabled はユーザーIDが設定されているかを返す。
func (c NicoliveConfig) Enabled() bool { return c.UserID != "" }

// YtliveConfig はYouTube Liveの監視設定。
type YtliveConfig struct {
	ChannelID string
	APIKey    string
	DumpPath  string
	Interval  time.Duration
	Discovery string
}

// Enabled はチャンネルIDが設定されているかを返す。
func (c YtliveConfig) Enabled() bool { return c.ChannelID != "" }

// Load はカレントディレクトリの.envを読み込んだ後、環境変数からConfigを読み込む。
// 既に設定されている環境変数は.envで上書きされない。
// 設定値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.Nicolive = NicoliveConfig{
		UserID:   os.Getenv("NICOLIVE_USER_ID"),
		DumpPath: getEnvString("NICOLIVE_DUMP_PATH", "data/nicolive.json"),
		Interval: time.Duration(getEnvInt("NICOLIVE_INTERVAL", 60)) * time.Second,
	}
	cfg.Ytlive = YtliveConfig{
		ChannelID: os.Getenv("YTLIVE_CHANNEL_ID"),
		APIKey:    os.Getenv("YTLIVE_API_KEY"),
		DumpPath:  getEnvString("YTLIVE_DUMP_PATH", "data/ytlive.json"),
		Interval:  time.Duration(getEnvInt("YTLIVE_INTERVAL", 60)) * time.Second,
		Discovery: getEnvString("YTLIVE_DISCOVERY", "search"),
	}

	cfg.UserAgent = getEnvString("USERAGENT", version.DefaultUserAgent())
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)
	cfg.CacheSingleFlight = getEnvBool("CACHE_SINGLEFLIGHT", false)
	cfg.AllowPrivateUpstreams = getEnvBool("ALLOW_PRIVATE_UPSTREAMS", false)

	cfg.StoreBackend = getEnvString("STORE_BACKEND", StoreFile)
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.ValkeyAddr = getEnvString("VALKEY_ADDR", "localhost:6379")
	cfg.ValkeyPassword = os.Getenv("VALKEY_PASSWORD")
	cfg.ValkeyDB = getEnvInt("VALKEY_DB", 0)

	cfg.RateLimitPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", 120)
	cfg.LogFormat = getEnvString("LOG_FORMAT", "json")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.LogDir = os.Getenv("LOG_DIR")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowOrigins = splitList(os.Getenv("CORS_ALLOW_ORIGINS"))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var problems []string

	if c.Ytlive.Enabled() && c.Ytlive.APIKey == "" {
		problems = append(problems, "YTLIVE_API_KEY is required when YTLIVE_CHANNEL_ID is set")
	}
	switch c.Ytlive.Discovery {
	case "search", "feed":
	default:
		problems = append(problems, fmt.Sprintf("YTLIVE_DISCOVERY must be search or feed, got %q", c.Ytlive.Discovery))
	}
	if c.Nicolive.Interval <= 0 {
		problems = append(problems, "NICOLIVE_INTERVAL must be positive")
	}
	if c.Ytlive.Interval <= 0 {
		problems = append(problems, "YTLIVE_INTERVAL must be positive")
	}

	switch c.StoreBackend {
	case StoreFile, StoreValkey:
	case StorePostgres:
		if c.DatabaseURL == "" {
			problems = append(problems, "DATABASE_URL is required when STORE_BACKEND=postgres")
		}
	default:
		problems = append(problems, fmt.Sprintf("STORE_BACKEND must be file, postgres or valkey, got %q", c.StoreBackend))
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		problems = append(problems, fmt.Sprintf("LOG_FORMAT must be json or text, got %q", c.LogFormat))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// RequirePlatform は監視対象が1つ以上設定されているかを検証する。
// migrateサブコマンドは監視対象なしで実行できるため、Loadとは分けている。
func (c *Config) RequirePlatform() error {
	if !c.Nicolive.Enabled() && !c.Ytlive.Enabled() {
		return ErrNoPlatform
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}
