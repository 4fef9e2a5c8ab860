package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds the daemon configuration, loadable from file and
// environment.
type ServerConfig struct {
	HTTPPort string `mapstructure:"HTTP_PORT"`
	Issuer   string `mapstructure:"ISSUER"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`

	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	AccessTokenTTLMin   int `mapstructure:"ACCESS_TOKEN_TTL_MIN"`
	RefreshTokenTTLHour int `mapstructure:"REFRESH_TOKEN_TTL_HOUR"`
	AuthCodeTTLSec      int `mapstructure:"AUTH_CODE_TTL_SEC"`
	AuthRequestTTLSec   int `mapstructure:"AUTH_REQUEST_TTL_SEC"`
	DeviceCodeTTLSec    int `mapstructure:"DEVICE_CODE_TTL_SEC"`
	DeviceIntervalSec   int `mapstructure:"DEVICE_INTERVAL_SEC"`

	VerificationURI string `mapstructure:"VERIFICATION_URI"`

	// Optional: when set, client tokens obtained by in-process flows are
	// shared through Redis instead of process memory.
	RedisAddr string `mapstructure:"REDIS_ADDR"`
}

// AccessTokenTTL returns the configured access token lifetime.
func (c *ServerConfig) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMin) * time.Minute
}

// RefreshTokenTTL returns the configured refresh token lifetime.
func (c *ServerConfig) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenTTLHour) * time.Hour
}

// LoadConfig reads configuration from file, environment variables and
// defaults, in that order of precedence.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/oauthd/")
	v.AddConfigPath("$HOME/.oauthd")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("ISSUER", "http://localhost:8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("OTEL_SERVICE_NAME", "oauthd")
	v.SetDefault("ACCESS_TOKEN_TTL_MIN", 60)
	v.SetDefault("REFRESH_TOKEN_TTL_HOUR", 720)
	v.SetDefault("AUTH_CODE_TTL_SEC", 600)
	v.SetDefault("AUTH_REQUEST_TTL_SEC", 600)
	v.SetDefault("DEVICE_CODE_TTL_SEC", 600)
	v.SetDefault("DEVICE_INTERVAL_SEC", 5)
	v.SetDefault("VERIFICATION_URI", "http://localhost:8080/device")

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine: defaults and env vars apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}
