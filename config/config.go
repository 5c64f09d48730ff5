// Package config provides configuration management for the Yappy payment service.
// Configuration can be loaded from YAML files and overridden by environment variables.
package config

import (
	"fmt"
	"github.com/ilyakaznacheev/cleanenv"
	"sync"
	"time"
)

// Config holds all configuration for the Yappy payment service.
// Values can be set via YAML configuration file or environment variables.
// Environment variables take precedence over YAML values.
type Config struct {
	IsDebug bool `yaml:"is_debug" env:"DEBUG" env-default:"false"`
	Listen  struct {
		BindIP   string `yaml:"bind_ip" env:"BIND_IP" env-default:"0.0.0.0"`
		Port     string `yaml:"port" env:"PORT" env-default:"5200"`
		TLS      bool   `yaml:"tls_enabled" env:"TLS_ENABLED" env-default:"false"`
		CertFile string `yaml:"cert_file" env:"TLS_CERT_FILE" env-default:""`
		KeyFile  string `yaml:"key_file" env:"TLS_KEY_FILE" env-default:""`
	} `yaml:"listen"`
	Mongo struct {
		Enabled  bool   `yaml:"enabled" env:"MONGO_ENABLED" env-default:"false"`
		Host     string `yaml:"host" env:"MONGO_HOST" env-default:"127.0.0.1"`
		Port     string `yaml:"port" env:"MONGO_PORT" env-default:"27017"`
		User     string `yaml:"user" env:"MONGO_USER" env-default:"admin"`
		Password string `yaml:"password" env:"MONGO_PASSWORD" env-default:"pass"`
		Database string `yaml:"database" env:"MONGO_DATABASE" env-default:"yappy"`
	} `yaml:"mongo"`
	// Yappy holds static credentials, used when nothing is stored yet
	Yappy struct {
		BaseUrl    string `yaml:"base_url" env:"YAPPY_BASE_URL" env-default:"https://apipagosbg.bgeneral.cloud"`
		ApiKey     string `yaml:"api_key" env:"YAPPY_API_KEY" env-default:""`
		SecretKey  string `yaml:"secret_key" env:"YAPPY_SECRET_KEY" env-default:""`
		DeviceId   string `yaml:"device_id" env:"YAPPY_DEVICE_ID" env-default:""`
		DeviceName string `yaml:"device_name" env:"YAPPY_DEVICE_NAME" env-default:""`
		DeviceUser string `yaml:"device_user" env:"YAPPY_DEVICE_USER" env-default:""`
		GroupId    string `yaml:"group_id" env:"YAPPY_GROUP_ID" env-default:""`
	} `yaml:"yappy"`
	Remote struct {
		Url      string `yaml:"url" env:"REMOTE_CONFIG_URL" env-default:""`
		Username string `yaml:"username" env:"REMOTE_CONFIG_USERNAME" env-default:""`
		Password string `yaml:"password" env:"REMOTE_CONFIG_PASSWORD" env-default:""`
	} `yaml:"remote"`
	Poll struct {
		Interval    time.Duration `yaml:"interval" env:"POLL_INTERVAL" env-default:"5s"`
		MaxAttempts int           `yaml:"max_attempts" env:"POLL_MAX_ATTEMPTS" env-default:"24"`
	} `yaml:"poll"`
	Http struct {
		Timeout time.Duration `yaml:"timeout" env:"HTTP_TIMEOUT" env-default:"15s"`
	} `yaml:"http"`
	Store struct {
		MasterKey string `yaml:"master_key" env:"STORE_MASTER_KEY" env-default:""`
	} `yaml:"store"`
	// Otel exports traces to an OTLP gRPC collector, disabled when the endpoint is empty
	Otel struct {
		Endpoint    string `yaml:"endpoint" env:"OTEL_ENDPOINT" env-default:""`
		ServiceName string `yaml:"service_name" env:"OTEL_SERVICE_NAME" env-default:"yappy"`
	} `yaml:"otel"`
}

var instance *Config
var once sync.Once

// GetConfig loads configuration from the specified YAML file path.
// Configuration values can be overridden by environment variables.
// This function uses a singleton pattern and only loads the config once.
//
// Example:
//
//	cfg, err := config.GetConfig("config.yml")
//	if err != nil {
//	    log.Fatal(err)
//	}
func GetConfig(path string) (*Config, error) {
	var err error
	once.Do(func() {
		instance = &Config{}
		if err = cleanenv.ReadConfig(path, instance); err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			err = fmt.Errorf("load config: %w; %s", err, desc)
			instance = nil
		}
	})
	if err == nil && instance == nil {
		err = fmt.Errorf("config not loaded")
	}
	return instance, err
}

// Default returns a configuration filled from defaults and environment only,
// for tools that run without a config file.
func Default() (*Config, error) {
	conf := &Config{}
	if err := cleanenv.ReadEnv(conf); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	return conf, nil
}
