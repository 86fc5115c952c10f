// Package config loads runtime configuration from defaults, an optional
// YAML file, and TEESCHED_* environment variables, in that order of
// precedence (later wins).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Zone      string          `mapstructure:"zone"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Security  SecurityConfig  `mapstructure:"security"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Booking   BookingConfig   `mapstructure:"booking"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Notify    NotifyConfig    `mapstructure:"notify"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// RegistryURL points a standalone coordinator at a remote registry.
	// Empty means serve (or use) the local store.
	RegistryURL string `mapstructure:"registry_url"`
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
	// Memory selects the in-process store instead of Postgres.
	Memory bool `mapstructure:"memory"`
}

type LoggerConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

type SecurityConfig struct {
	// HashKey and BlockKey are base64 32-byte keys sealing credentials at
	// rest. Generate with `teesched keys`.
	HashKey  string `mapstructure:"hash_key"`
	BlockKey string `mapstructure:"block_key"`
	// TokenHash is the bcrypt hash of the operator API token.
	TokenHash string `mapstructure:"token_hash"`
	// Token is the plaintext token a coordinator presents to a remote
	// registry. Never logged.
	Token string `mapstructure:"token"`
}

type ScheduleConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	DispatchWindow  time.Duration `mapstructure:"dispatch_window"`
	PrePositionLead time.Duration `mapstructure:"pre_position_lead"`
	LateTolerance   time.Duration `mapstructure:"late_tolerance"`
}

type BookingConfig struct {
	// URLTemplate receives the course ID via %d.
	URLTemplate string `mapstructure:"url_template"`
	Headless    bool   `mapstructure:"headless"`
	// AcquireUnknownTimes selects a slot even when its time text cannot be
	// parsed against the window. Off by default.
	AcquireUnknownTimes bool `mapstructure:"acquire_unknown_times"`
}

func (b *BookingConfig) URL(course int) string {
	return fmt.Sprintf(b.URLTemplate, course)
}

type ArtifactsConfig struct {
	Dir string `mapstructure:"dir"`
}

type NotifyConfig struct {
	SMTPAddr string `mapstructure:"smtp_addr"`
	From     string `mapstructure:"from"`
	To       string `mapstructure:"to"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// setDefaults registers every config key. Keys without a meaningful default
// still get an empty one: viper only surfaces environment variables for keys
// it already knows about, so an unregistered key could not be provisioned
// via TEESCHED_* at all.
func setDefaults(v *viper.Viper) {
	v.SetDefault("zone", "America/Chicago")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.registry_url", "")
	v.SetDefault("database.url", "")
	v.SetDefault("database.memory", false)
	v.SetDefault("security.hash_key", "")
	v.SetDefault("security.block_key", "")
	v.SetDefault("security.token_hash", "")
	v.SetDefault("security.token", "")
	v.SetDefault("notify.smtp_addr", "")
	v.SetDefault("notify.from", "")
	v.SetDefault("notify.to", "")
	v.SetDefault("notify.username", "")
	v.SetDefault("notify.password", "")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "console")
	v.SetDefault("schedule.poll_interval", time.Minute)
	v.SetDefault("schedule.dispatch_window", 2*time.Minute)
	v.SetDefault("schedule.pre_position_lead", 90*time.Second)
	v.SetDefault("schedule.late_tolerance", 5*time.Minute)
	v.SetDefault("booking.url_template",
		"https://web1.myvscloud.com/wbwsc/txaustinwt.wsc/search.html?Action=Start&secondarycode=%d&module=GR")
	v.SetDefault("booking.headless", true)
	v.SetDefault("booking.acquire_unknown_times", false)
	v.SetDefault("artifacts.dir", "artifacts")
}

// Load reads configuration. path may be empty, in which case only defaults
// and environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("TEESCHED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}
