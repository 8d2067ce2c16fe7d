package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for our application
type Config struct {
	Apavital  ApavitalConfig  `mapstructure:"apavital"`
	Server    ServerConfig    `mapstructure:"server"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Database  DatabaseConfig  `mapstructure:"database"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ApavitalConfig struct {
	URL        string        `mapstructure:"url"`
	ClientCode string        `mapstructure:"client_code"`
	Token      string        `mapstructure:"token"`
	Timeout    time.Duration `mapstructure:"timeout"`
	// ScanInterval is expressed in minutes.
	ScanInterval  int     `mapstructure:"scan_interval"`
	LeakThreshold float64 `mapstructure:"leak_threshold"`
	Location      string  `mapstructure:"location"`
}

// Interval returns the polling interval as a duration.
func (a ApavitalConfig) Interval() time.Duration {
	return time.Duration(a.ScanInterval) * time.Minute
}

type ServerConfig struct {
	Host     string `mapstructure:"host"`
	GRPCPort int    `mapstructure:"grpc_port"`
	HTTPPort int    `mapstructure:"http_port"`
}

type RateLimitConfig struct {
	Rate  float64 `mapstructure:"rate"`
	Burst int     `mapstructure:"burst"`
}

type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// ConnString builds a lib/pq key/value connection string.
func (d DatabaseConfig) ConnString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

type MQTTConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Broker          string        `mapstructure:"broker"`
	ClientID        string        `mapstructure:"client_id"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	DiscoveryPrefix string        `mapstructure:"discovery_prefix"`
	BaseTopic       string        `mapstructure:"base_topic"`
	PublishTimeout  time.Duration `mapstructure:"publish_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
//
// ${VAR} references inside the file are expanded first; APAVITAL_<SECTION>_<KEY>
// variables then override individual keys, e.g. APAVITAL_APAVITAL_TOKEN.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APAVITAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	expanded := os.ExpandEnv(string(data))
	if err := v.ReadConfig(bytes.NewBufferString(expanded)); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the ranges accepted by the options flow.
func (c *Config) Validate() error {
	var errs []error
	if c.Apavital.ClientCode == "" {
		errs = append(errs, errors.New("apavital.client_code is required"))
	}
	if c.Apavital.Token == "" {
		errs = append(errs, errors.New("apavital.token is required"))
	}
	if c.Apavital.ScanInterval < 15 || c.Apavital.ScanInterval > 1440 {
		errs = append(errs, fmt.Errorf("apavital.scan_interval must be between 15 and 1440 minutes, got %d", c.Apavital.ScanInterval))
	}
	if c.Apavital.LeakThreshold < 0.01 || c.Apavital.LeakThreshold > 1.0 {
		errs = append(errs, fmt.Errorf("apavital.leak_threshold must be between 0.01 and 1.0, got %g", c.Apavital.LeakThreshold))
	}
	if c.Apavital.Timeout <= 0 {
		errs = append(errs, errors.New("apavital.timeout must be positive"))
	}
	if c.RateLimit.Rate <= 0 || c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("ratelimit.rate and ratelimit.burst must be positive"))
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required when mqtt is enabled"))
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("apavital.url", "https://my.apavital.ro/api/get_usage")
	v.SetDefault("apavital.client_code", "")
	v.SetDefault("apavital.token", "")
	v.SetDefault("apavital.timeout", 30*time.Second)
	v.SetDefault("apavital.scan_interval", 60)
	v.SetDefault("apavital.leak_threshold", 0.1)
	v.SetDefault("apavital.location", "Europe/Bucharest")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.http_port", 8080)

	v.SetDefault("ratelimit.rate", 5.0)
	v.SetDefault("ratelimit.burst", 10)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "apavital")
	v.SetDefault("database.user", "apavital")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "apavital")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.discovery_prefix", "homeassistant")
	v.SetDefault("mqtt.base_topic", "apavital")
	v.SetDefault("mqtt.publish_timeout", 5*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
