package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Sync    SyncConfig    `yaml:"sync"`
	Session SessionConfig `yaml:"session"`
	Logger  LoggerConfig  `yaml:"logger"`
	Metrics MetricsConfig `yaml:"metrics"`
	Mock    MockConfig    `yaml:"mock"`
}

type ServerConfig struct {
	BaseURL string `yaml:"base_url"`
	PushURL string `yaml:"push_url"` // derived from base_url when empty
}

type SyncConfig struct {
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	SearchDebounce    time.Duration `yaml:"search_debounce"`
	TimelineSize      int           `yaml:"timeline_size"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	ActionRetries     uint          `yaml:"action_retries"`
	VoteCacheTTL      time.Duration `yaml:"vote_cache_ttl"`
}

type SessionConfig struct {
	Storage string             `yaml:"storage"` // "file" or "redis"
	Path    string             `yaml:"path"`    // directory for file storage
	Redis   SessionRedisConfig `yaml:"redis"`
}

type SessionRedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type LoggerConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // json or console
	Output     string `yaml:"output"` // stdout or file
	FilePath   string `yaml:"file_path"`
	MaxSize    int    `yaml:"max_size"` // megabytes
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"` // days
	Compress   bool   `yaml:"compress"`
	Color      bool   `yaml:"color"`
	Stacktrace bool   `yaml:"stacktrace"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the endpoint
}

// MockConfig configures interceptor-mock.
type MockConfig struct {
	Addr          string        `yaml:"addr"`
	JWTSecret     string        `yaml:"jwt_secret"`
	TokenTTL      time.Duration `yaml:"token_ttl"`
	BlockInterval time.Duration `yaml:"block_interval"`
	QueryTTL      time.Duration `yaml:"query_ttl"` // pending queries older than this expire
	MinVotes      int           `yaml:"min_votes"`
	Users         []MockUser    `yaml:"users"`
}

type MockUser struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL: "http://localhost:8080",
		},
		Sync: SyncConfig{
			ReconnectInterval: 5 * time.Second,
			HandshakeTimeout:  10 * time.Second,
			PollInterval:      15 * time.Second,
			SearchDebounce:    400 * time.Millisecond,
			TimelineSize:      50,
			RequestTimeout:    10 * time.Second,
			ActionRetries:     3,
			VoteCacheTTL:      5 * time.Second,
		},
		Session: SessionConfig{
			Storage: "file",
			Redis: SessionRedisConfig{
				Addr:   "localhost:6379",
				Prefix: "interceptor:",
			},
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "json",
			Output: "file",
		},
		Mock: MockConfig{
			Addr:          ":8080",
			JWTSecret:     "interceptor-mock-secret",
			TokenTTL:      8 * time.Hour,
			BlockInterval: 20 * time.Second,
			QueryTTL:      10 * time.Minute,
			MinVotes:      2,
			Users: []MockUser{
				{Username: "admin", Password: "admin123", Role: "ADMIN"},
				{Username: "peer1", Password: "peer123", Role: "PEER"},
				{Username: "peer2", Password: "peer123", Role: "PEER"},
			},
		},
	}
}

// Default returns the built-in configuration with the push URL resolved.
func Default() *Config {
	cfg := defaultConfig()
	cfg.Server.PushURL = PushURLFor(cfg.Server.BaseURL)
	return cfg
}

// Load reads path over the defaults. A .env file in the working directory
// is loaded first and ${VAR} or ${VAR:default} references in the file are
// expanded from the environment. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(resolveEnv(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	if cfg.Server.PushURL == "" {
		cfg.Server.PushURL = PushURLFor(cfg.Server.BaseURL)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	for name, raw := range map[string]string{"server.base_url": c.Server.BaseURL, "server.push_url": c.Server.PushURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return fmt.Errorf("%s: invalid URL %q", name, raw)
		}
	}
	switch c.Session.Storage {
	case "file", "redis":
	default:
		return fmt.Errorf("session.storage: unknown backend %q", c.Session.Storage)
	}
	if c.Sync.TimelineSize < 0 {
		return fmt.Errorf("sync.timeline_size: must not be negative")
	}
	return nil
}

// PushURLFor derives the STOMP WebSocket endpoint from the REST base URL.
func PushURLFor(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/websocket"
	return u.String()
}

var envRef = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

func resolveEnv(content []byte) []byte {
	return envRef.ReplaceAllFunc(content, func(match []byte) []byte {
		m := envRef.FindSubmatch(match)
		if value, ok := os.LookupEnv(string(m[1])); ok {
			return []byte(value)
		}
		return m[2]
	})
}
