package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type RateLimit struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

type Store struct {
	// Driver is "sqlite" or "memory".
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type Media struct {
	AnnouncedIP      string        `mapstructure:"announced_ip"`
	PortMin          uint16        `mapstructure:"port_min"`
	PortMax          uint16        `mapstructure:"port_max"`
	GatherCandidates bool          `mapstructure:"gather_candidates"`
	GatherTimeout    time.Duration `mapstructure:"gather_timeout"`
}

type Registry struct {
	Shards int `mapstructure:"shards"`
}

type Config struct {
	Mode               string        `mapstructure:"mode"`
	Port               int           `mapstructure:"port"`
	StaticPath         string        `mapstructure:"static_path"`
	ReadLimit          int64         `mapstructure:"read_limit"`
	PingPeriod         time.Duration `mapstructure:"ping_period"`
	WriteWait          time.Duration `mapstructure:"write_wait"`
	SendBuffer         int           `mapstructure:"send_buffer"`
	Secret             string        `mapstructure:"secret"`
	AdminToken         string        `mapstructure:"admin_token"`
	LogLevel           string        `mapstructure:"log_level"`
	SlowConsumerPolicy string        `mapstructure:"slow_consumer_policy"`
	RateLimit          RateLimit     `mapstructure:"ratelimit"`
	Store              Store         `mapstructure:"store"`
	Media              Media         `mapstructure:"media"`
	Registry           Registry      `mapstructure:"registry"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("send_buffer", 32)
	v.SetDefault("secret", "bloom-dev-secret")
	v.SetDefault("admin_token", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("slow_consumer_policy", "kick")
	v.SetDefault("ratelimit.limit", 50)
	v.SetDefault("ratelimit.window", "1s")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "bloom.db")
	v.SetDefault("media.announced_ip", "127.0.0.1")
	v.SetDefault("media.port_min", 40000)
	v.SetDefault("media.port_max", 49999)
	v.SetDefault("media.gather_candidates", false)
	v.SetDefault("media.gather_timeout", "3s")
	v.SetDefault("registry.shards", 16)
}

// Load reads config/config.<CONFIG_ENV>.yaml (CONFIG_ENV defaults to dev).
// BLOOM_* environment variables override file values, e.g. BLOOM_STORE_DSN.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("BLOOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("store", cfg.Store.Driver).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch c.Store.Driver {
	case "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	switch c.SlowConsumerPolicy {
	case "kick", "drop":
	default:
		errs = append(errs, fmt.Errorf("unknown slow consumer policy %q", c.SlowConsumerPolicy))
	}
	if c.Media.PortMax < c.Media.PortMin {
		errs = append(errs, fmt.Errorf("media port range %d-%d is empty", c.Media.PortMin, c.Media.PortMax))
	}
	if c.RateLimit.Limit > 0 && c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("ratelimit.window must be positive"))
	}
	return errors.Join(errs...)
}
