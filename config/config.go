package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Sim         SimConfig         `mapstructure:"sim"`
	Needs       NeedsConfig       `mapstructure:"needs"`
	Sensor      SensorConfig      `mapstructure:"sensor"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Security    SecurityConfig    `mapstructure:"security"`
	Script      ScriptConfig      `mapstructure:"script"`
	Logger      LoggerConfig      `mapstructure:"logger"`
}

type ServerConfig struct {
	Addr  string `mapstructure:"addr"`
	Debug bool   `mapstructure:"debug"`
	// Bridge disables the overlay HTTP bridge when false (headless runs).
	Bridge bool `mapstructure:"bridge"`
	// AdminKey guards /api/admin; empty disables those routes.
	AdminKey        string        `mapstructure:"admin_key"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SimConfig holds the tick loop and decision tunables.
type SimConfig struct {
	TickRate         int           `mapstructure:"tick_rate"` // ticks per second
	MaxDelta         time.Duration `mapstructure:"max_delta"`
	HysteresisMargin float64       `mapstructure:"hysteresis_margin"`
	WalkSpeed        float64       `mapstructure:"walk_speed"` // pixels per second
	ApproachDistance float64       `mapstructure:"approach_distance"`
	InboxSize        int           `mapstructure:"inbox_size"`
	SaveInterval     time.Duration `mapstructure:"save_interval"`
	FallbackID       string        `mapstructure:"fallback_id"`
}

// NeedsConfig holds per-second drift rates. Positive values grow the need.
type NeedsConfig struct {
	HungerRate    float64 `mapstructure:"hunger_rate"`
	EnergyRate    float64 `mapstructure:"energy_rate"`
	BoredomRate   float64 `mapstructure:"boredom_rate"`
	AffectionRate float64 `mapstructure:"affection_rate"`

	InitialHunger    float64 `mapstructure:"initial_hunger"`
	InitialEnergy    float64 `mapstructure:"initial_energy"`
	InitialBoredom   float64 `mapstructure:"initial_boredom"`
	InitialAffection float64 `mapstructure:"initial_affection"`
}

type SensorConfig struct {
	// MaxAge marks a published reading unavailable once it is older than this.
	MaxAge time.Duration `mapstructure:"max_age"`
	// FallbackWidth/Height are used until the first screen query succeeds.
	FallbackWidth  float64 `mapstructure:"fallback_width"`
	FallbackHeight float64 `mapstructure:"fallback_height"`
}

type CatalogConfig struct {
	Path     string `mapstructure:"path"` // optional YAML catalog, merged after the built-ins
	Builtins bool   `mapstructure:"builtins"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // sqlite | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type PersistenceConfig struct {
	Backend string `mapstructure:"backend"` // db | cache | none
	Key     string `mapstructure:"key"`
	Journal bool   `mapstructure:"journal"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"` // empty disables bearer auth
	JWTTTLH        time.Duration `mapstructure:"jwt_ttl_h"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	AllowedIPs     []string      `mapstructure:"allowed_ips"`
	// AllowedOrigins lists the WebSocket/SSE origins that are permitted.
	// An empty slice allows all origins (useful for local development only).
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type ScriptConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // console | json
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("config: invalid value")

// Load reads config from the given YAML file path. An empty path, or a path
// that does not exist, yields the defaults. PETD_* environment variables
// override file values.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		}
	}
	return decode(v)
}

// Watch reloads path on every change and hands the decoded config to fn.
// Decode or validation failures are passed as err and the previous config
// stays in effect.
func Watch(path string, fn func(cfg *Config, err error)) error {
	if path == "" {
		return errors.New("config: watch requires a file path")
	}
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	v.OnConfigChange(func(fsnotify.Event) {
		fn(decode(v))
	})
	v.WatchConfig()
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("petd")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.addr", "127.0.0.1:7878")
	v.SetDefault("server.debug", false)
	v.SetDefault("server.bridge", true)
	v.SetDefault("server.shutdown_timeout", "5s")
	v.SetDefault("sim.tick_rate", 30)
	v.SetDefault("sim.max_delta", "250ms")
	v.SetDefault("sim.hysteresis_margin", 0.1)
	v.SetDefault("sim.walk_speed", 120.0)
	v.SetDefault("sim.approach_distance", 48.0)
	v.SetDefault("sim.inbox_size", 256)
	v.SetDefault("sim.save_interval", "60s")
	v.SetDefault("sim.fallback_id", "idle")
	v.SetDefault("needs.hunger_rate", 0.002)
	v.SetDefault("needs.energy_rate", -0.001)
	v.SetDefault("needs.boredom_rate", 0.003)
	v.SetDefault("needs.affection_rate", -0.0015)
	v.SetDefault("needs.initial_hunger", 0.2)
	v.SetDefault("needs.initial_energy", 0.9)
	v.SetDefault("needs.initial_boredom", 0.1)
	v.SetDefault("needs.initial_affection", 0.7)
	v.SetDefault("sensor.max_age", "2s")
	v.SetDefault("sensor.fallback_width", 1920.0)
	v.SetDefault("sensor.fallback_height", 1080.0)
	v.SetDefault("catalog.builtins", true)
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/pet.db")
	v.SetDefault("database.mysql_max_open", 4)
	v.SetDefault("database.mysql_max_idle", 2)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("persistence.backend", "db")
	v.SetDefault("persistence.key", "default")
	v.SetDefault("persistence.journal", true)
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 64)
	v.SetDefault("security.jwt_ttl_h", "720h")
	v.SetDefault("security.rate_limit_rps", 200)
	v.SetDefault("security.rate_limit_burst", 400)
	v.SetDefault("security.allowed_ips", []string{"127.0.0.1", "::1"})
	v.SetDefault("script.timeout", "20ms")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values the rest of the program relies on.
func (c *Config) Validate() error {
	var errs []error
	if c.Sim.TickRate <= 0 {
		errs = append(errs, fmt.Errorf("%w: sim.tick_rate must be positive, got %d", ErrInvalid, c.Sim.TickRate))
	}
	if c.Sim.MaxDelta <= 0 {
		errs = append(errs, fmt.Errorf("%w: sim.max_delta must be positive", ErrInvalid))
	}
	if c.Sim.HysteresisMargin < 0 || c.Sim.HysteresisMargin > 1 {
		errs = append(errs, fmt.Errorf("%w: sim.hysteresis_margin must be within [0,1], got %v", ErrInvalid, c.Sim.HysteresisMargin))
	}
	if c.Sim.WalkSpeed <= 0 {
		errs = append(errs, fmt.Errorf("%w: sim.walk_speed must be positive", ErrInvalid))
	}
	if c.Sim.InboxSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: sim.inbox_size must be positive", ErrInvalid))
	}
	if c.Sim.SaveInterval <= 0 {
		errs = append(errs, fmt.Errorf("%w: sim.save_interval must be positive", ErrInvalid))
	}
	if c.Sim.FallbackID == "" {
		errs = append(errs, fmt.Errorf("%w: sim.fallback_id is required", ErrInvalid))
	}
	switch c.Database.Mode {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Errorf("%w: database.mode %q", ErrInvalid, c.Database.Mode))
	}
	switch c.Persistence.Backend {
	case "db", "cache", "none":
	default:
		errs = append(errs, fmt.Errorf("%w: persistence.backend %q", ErrInvalid, c.Persistence.Backend))
	}
	return errors.Join(errs...)
}

// TickInterval is the wall-clock budget of one tick.
func (c SimConfig) TickInterval() time.Duration {
	if c.TickRate <= 0 {
		return 0
	}
	return time.Second / time.Duration(c.TickRate)
}
