package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Store drivers
const (
	StoreSQLite    = "sqlite"
	StoreCouchbase = "couchbase"
)

// Session drivers
const (
	SessionMemory = "memory"
	SessionRedis  = "redis"
)

// Config is the root configuration for the API server and the CLI
type Config struct {
	Env     string        `yaml:"env"`
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	Store   StoreConfig   `yaml:"store"`
	Session SessionConfig `yaml:"session"`
	Admin   AdminConfig   `yaml:"admin"`
	Mail    MailConfig    `yaml:"mail"`
	SMS     SMSConfig     `yaml:"sms"`
	LLM     LLMConfig     `yaml:"llm"`
	Sandbox SandboxConfig `yaml:"sandbox"`
	ASR     ASRConfig     `yaml:"asr"`
	Hot     HotConfig     `yaml:"hot"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	ContextPath    string   `yaml:"context_path"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	CookieSecure   bool     `yaml:"cookie_secure"`
	// TrustedProxies lists the CIDRs (or bare IPs) of reverse proxies whose
	// X-Forwarded-For header is believed. Empty means the peer address is used.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// ProxyPrefixes parses TrustedProxies
func (s ServerConfig) ProxyPrefixes() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(s.TrustedProxies))
	for _, raw := range s.TrustedProxies {
		if p, err := netip.ParsePrefix(raw); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q", raw)
		}
		out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return out, nil
}

type LogConfig struct {
	Level            string `yaml:"level"`
	ElasticsearchURL string `yaml:"elasticsearch_url"`
	Index            string `yaml:"index"`
	App              string `yaml:"app"`
}

type MetricsConfig struct {
	Business       bool          `yaml:"business"`
	System         bool          `yaml:"system"`
	SystemInterval time.Duration `yaml:"system_interval"`
}

type StoreConfig struct {
	Driver     string          `yaml:"driver"`
	SQLitePath string          `yaml:"sqlite_path"`
	Couchbase  CouchbaseConfig `yaml:"couchbase"`
	NodeID     int64           `yaml:"node_id"`
}

type CouchbaseConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Bucket   string `yaml:"bucket"`
}

type SessionConfig struct {
	Driver    string        `yaml:"driver"`
	RedisAddr string        `yaml:"redis_addr"`
	Secret    string        `yaml:"secret"`
	TTL       time.Duration `yaml:"ttl"`
}

type AdminConfig struct {
	Password string `yaml:"password"`
}

type MailConfig struct {
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type SMSConfig struct {
	Endpoint string `yaml:"endpoint"`
	Sender   string `yaml:"sender"`
}

type LLMConfig struct {
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type SandboxConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	Timeout     time.Duration `yaml:"timeout"`
	HistoryFile string        `yaml:"history_file"`
}

type ASRConfig struct {
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

type HotConfig struct {
	Interval time.Duration `yaml:"interval"`
	MaxItems int           `yaml:"max_items"`
}

// Default returns a configuration that runs locally without any external service
func Default() *Config {
	return &Config{
		Env: "dev",
		Server: ServerConfig{
			Port:           8121,
			ContextPath:    "/api",
			AllowedOrigins: []string{"http://localhost:5173"},
		},
		Log: LogConfig{
			Level: "info",
			Index: "logs",
			App:   "portfolio-api",
		},
		Metrics: MetricsConfig{
			SystemInterval: 15 * time.Second,
		},
		Store: StoreConfig{
			Driver:     StoreSQLite,
			SQLitePath: "./data/qa.db",
			Couchbase: CouchbaseConfig{
				URL:    "couchbase://localhost",
				Bucket: "portfolio",
			},
		},
		Session: SessionConfig{
			Driver: SessionMemory,
			Secret: "dev-session-secret",
			TTL:    24 * time.Hour,
		},
		Mail: MailConfig{
			SMTPPort: 587,
		},
		SMS: SMSConfig{
			Sender: "ShaneShark",
		},
		LLM: LLMConfig{
			BaseURL: "https://api.siliconflow.cn/v1",
			Model:   "Qwen/Qwen2.5-7B-Instruct",
			Timeout: 60 * time.Second,
		},
		Sandbox: SandboxConfig{
			Endpoint:    "https://rapi.xjq.icu/code/run",
			Timeout:     30 * time.Second,
			HistoryFile: "sandbox_history.json",
		},
		ASR: ASRConfig{
			BaseURL: "https://router.huggingface.co",
			Model:   "openai/whisper-large-v3",
			Timeout: 120 * time.Second,
		},
		Hot: HotConfig{
			Interval: 5 * time.Second,
			MaxItems: 3,
		},
	}
}

// LoadDotEnv loads ../.env then .env, neither is required
func LoadDotEnv() {
	if err := godotenv.Load("../.env"); err != nil {
		log.Debug().Msg("Not found .env file in parent directory, trying current directory")
		if err := godotenv.Load(".env"); err != nil {
			log.Debug().Msg("Not found .env file in current directory, assuming environment variables are set")
		}
	}
}

// Load reads the YAML file at path (if any), then applies environment overrides
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets the environment win over the file for secrets and endpoints
func (c *Config) applyEnvOverrides() {
	setString(&c.Env, "APP_ENV")

	if v := firstEnv("API_PORT", "PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	setString(&c.Server.ContextPath, "API_CONTEXT_PATH")
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}
	setBool(&c.Server.CookieSecure, "SESSION_COOKIE_SECURE")
	if v := os.Getenv("TRUSTED_PROXIES"); v != "" {
		c.Server.TrustedProxies = splitList(v)
	}

	setString(&c.Log.Level, "API_LOG_LEVEL")
	setString(&c.Log.ElasticsearchURL, "ELASTICSEARCH_URL")

	setBool(&c.Metrics.Business, "ENABLE_BUSINESS_METRICS")
	setBool(&c.Metrics.System, "ENABLE_SYSTEM_METRICS")

	setString(&c.Store.Driver, "STORE_DRIVER")
	setString(&c.Store.SQLitePath, "SQLITE_DB_PATH")
	setString(&c.Store.Couchbase.URL, "COUCHBASE_URL")
	setString(&c.Store.Couchbase.Username, "COUCHBASE_USERNAME")
	setString(&c.Store.Couchbase.Password, "COUCHBASE_PASSWORD")
	setString(&c.Store.Couchbase.Bucket, "COUCHBASE_BUCKET")

	setString(&c.Session.Driver, "SESSION_DRIVER")
	setString(&c.Session.RedisAddr, "REDIS_ADDR")
	setString(&c.Session.Secret, "SESSION_SECRET")

	setString(&c.Admin.Password, "QA_ADMIN_PASSWORD")

	setString(&c.Mail.SMTPHost, "SMTP_HOST")
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Mail.SMTPPort = port
		}
	}
	setString(&c.Mail.Username, "SMTP_USERNAME")
	setString(&c.Mail.Password, "SMTP_PASSWORD")
	setString(&c.Mail.From, "SMTP_FROM")

	setString(&c.SMS.Endpoint, "SMS_ENDPOINT")

	setString(&c.LLM.BaseURL, "SILICON_FLOW_BASE_URL")
	setString(&c.LLM.Model, "SILICON_FLOW_MODEL")
	setString(&c.LLM.APIKey, "SILICON_FLOW_API_KEY")

	if v := firstEnv("SANDBOX_RUN_API", "CODE_RUN_API"); v != "" {
		c.Sandbox.Endpoint = v
	}

	setString(&c.ASR.BaseURL, "HF_PROXY_BASE_URL")
	setString(&c.ASR.Model, "HUGGINGFACE_ASR_MODEL")
	setString(&c.ASR.Token, "HUGGINGFACE_API_TOKEN")
}

// Validate checks the values that would otherwise fail late at runtime
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if _, err := c.Server.ProxyPrefixes(); err != nil {
		return err
	}
	switch c.Store.Driver {
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite driver")
		}
	case StoreCouchbase:
		if c.Store.Couchbase.URL == "" || c.Store.Couchbase.Bucket == "" {
			return fmt.Errorf("store.couchbase.url and store.couchbase.bucket are required for the couchbase driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Session.Driver {
	case SessionMemory:
	case SessionRedis:
		if c.Session.RedisAddr == "" {
			return fmt.Errorf("session.redis_addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown session driver %q", c.Session.Driver)
	}
	if !c.IsDev() && (c.Session.Secret == "" || c.Session.Secret == Default().Session.Secret) {
		return fmt.Errorf("SESSION_SECRET must be set outside dev")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive")
	}
	if c.Hot.MaxItems <= 0 {
		return fmt.Errorf("hot.max_items must be positive")
	}
	return nil
}

// IsDev reports whether the server runs in development mode
func (c *Config) IsDev() bool {
	return c.Env == "" || c.Env == "dev"
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "true" || v == "1"
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
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
