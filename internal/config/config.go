// Package config loads relay configuration from file and environment.
// All tunables carry defaults so the relay runs with an empty config.
package config

import (
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Config is the full relay configuration tree.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Relay    RelayConfig    `mapstructure:"relay"`
	Chats    ChatsConfig    `mapstructure:"chats"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// AppConfig covers the HTTP listener and environment.
type AppConfig struct {
	Env              string `mapstructure:"env"`
	Host             string `mapstructure:"host"`
	Port             int    `mapstructure:"port"`
	RateLimitPerHour int    `mapstructure:"rate_limit_per_hour"`
}

// AuthConfig configures caller token validation.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// RelayConfig tunes the upstream connection manager.
type RelayConfig struct {
	HeartbeatInterval    time.Duration `mapstructure:"heartbeat_interval"`
	HandshakeTimeout     time.Duration `mapstructure:"handshake_timeout"`
	ReconnectDelay       time.Duration `mapstructure:"reconnect_delay"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	ConnectStagger       time.Duration `mapstructure:"connect_stagger"`
	DedupTTL             time.Duration `mapstructure:"dedup_ttl"`
	// SweepSchedule is the cron spec for the periodic full
	// reconnect-all sweep. Empty disables the sweep.
	SweepSchedule string `mapstructure:"sweep_schedule"`
}

// ChatsConfig tunes the dialog aggregator.
type ChatsConfig struct {
	AccessCacheTTL    time.Duration `mapstructure:"access_cache_ttl"`
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout"`
	ProfileChunkSize  int           `mapstructure:"profile_chunk_size"`
	PageSizeDefault   int           `mapstructure:"page_size_default"`
	PageSizeOver10    int           `mapstructure:"page_size_over_10"`
	PageSizeOver15    int           `mapstructure:"page_size_over_15"`
}

// GatewayConfig tunes the dashboard-facing websocket hub.
type GatewayConfig struct {
	ClientSendBuffer int           `mapstructure:"client_send_buffer"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	PongTimeout      time.Duration `mapstructure:"pong_timeout"`
}

// UpstreamConfig locates the third-party platform.
type UpstreamConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	SocketURL   string        `mapstructure:"socket_url"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
}

// RedisConfig enables the redis-backed access cache when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

var (
	mu     sync.RWMutex
	loaded *Config
)

// Load reads configuration from the given file (optional) plus
// ANCHAT_* environment variables and caches the result for Get.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ANCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	mu.Lock()
	loaded = cfg
	mu.Unlock()
	return cfg, nil
}

// Get returns the last loaded configuration, loading defaults if Load
// was never called.
func Get() *Config {
	mu.RLock()
	cfg := loaded
	mu.RUnlock()
	if cfg != nil {
		return cfg
	}
	cfg, _ = Load("")
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 4001)
	v.SetDefault("app.rate_limit_per_hour", 1000)

	v.SetDefault("relay.heartbeat_interval", 30*time.Second)
	v.SetDefault("relay.handshake_timeout", 10*time.Second)
	v.SetDefault("relay.reconnect_delay", 5*time.Second)
	v.SetDefault("relay.max_reconnect_attempts", 3)
	v.SetDefault("relay.connect_stagger", 250*time.Millisecond)
	v.SetDefault("relay.dedup_ttl", 30*time.Second)
	v.SetDefault("relay.sweep_schedule", "@every 30m")

	v.SetDefault("chats.access_cache_ttl", 5*time.Minute)
	v.SetDefault("chats.fetch_timeout", 15*time.Second)
	v.SetDefault("chats.profile_chunk_size", 50)
	v.SetDefault("chats.page_size_default", 15)
	v.SetDefault("chats.page_size_over_10", 10)
	v.SetDefault("chats.page_size_over_15", 5)

	v.SetDefault("gateway.client_send_buffer", 64)
	v.SetDefault("gateway.write_timeout", 10*time.Second)
	v.SetDefault("gateway.pong_timeout", 60*time.Second)

	v.SetDefault("upstream.http_timeout", 15*time.Second)
}
