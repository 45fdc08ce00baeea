// Copyright 2019 Hewlett Packard Enterprise Development LP

// Package config loads the array connection settings and the desired-state
// host document. Connection settings come from a YAML config file overlaid
// with PSTORE_ prefixed environment variables; the host document is a
// plain YAML file matching the HostSpec shape.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	log "github.com/hpe-storage/common-host-libs/logger"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/powerstore-tools/host-reconciler/pkg/model"
	"github.com/powerstore-tools/host-reconciler/pkg/storageprovider"
)

const (
	envPrefix = "PSTORE"

	defaultPort    = 443
	defaultTimeout = 300
)

// Config is the root configuration for the reconciler process
type Config struct {
	// Array contains the management endpoint connection settings
	Array ArrayConfig `mapstructure:"array"`

	// Logging contains log destination settings
	Logging LoggingConfig `mapstructure:"logging"`
}

// ArrayConfig contains the storage array connection settings
type ArrayConfig struct {
	// Endpoint is the array management address (IP or FQDN)
	Endpoint string `mapstructure:"endpoint" validate:"required"`

	// Username for array authentication
	Username string `mapstructure:"username" validate:"required"`

	// Password for array authentication
	Password string `mapstructure:"password" validate:"required"`

	// Port is the management API port
	Port int `mapstructure:"port"`

	// Insecure skips TLS certificate validation
	Insecure bool `mapstructure:"skipCertificateValidation"`

	// Timeout in seconds for array operations
	Timeout int `mapstructure:"timeout"`
}

// LoggingConfig contains log destination settings
type LoggingConfig struct {
	// File is the log file path
	File string `mapstructure:"file"`

	// Level is the log level (trace, debug, info, warn, error)
	Level string `mapstructure:"level"`
}

// Load reads the configuration from the given file path, overlaying
// PSTORE_ environment variables. An empty path loads from the
// environment alone.
func Load(path string) (*Config, error) {
	log.Tracef(">>>>> Load, path: %s", path)
	defer log.Trace("<<<<< Load")

	v := viper.New()
	v.SetDefault("array.port", defaultPort)
	v.SetDefault("array.timeout", defaultTimeout)
	v.SetDefault("logging.level", "info")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only surfaces keys viper already knows about, so bind
	// every key explicitly to make the env overlay work without a file
	keys := []string{
		"array.endpoint", "array.username", "array.password",
		"array.port", "array.skipCertificateValidation", "array.timeout",
		"logging.file", "logging.level",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("Failed to bind env for key %s, err: %v", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("Failed to read config file %s, err: %v", path, err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("Failed to unmarshal config, err: %v", err)
	}

	if err := validator.New().Struct(config.Array); err != nil {
		return nil, fmt.Errorf("Invalid array configuration: %v", err)
	}
	return config, nil
}

// Credentials converts the array settings into provider credentials
func (c *Config) Credentials() *storageprovider.Credentials {
	return &storageprovider.Credentials{
		Username: c.Array.Username,
		Password: c.Array.Password,
		ArrayIP:  c.Array.Endpoint,
		Port:     c.Array.Port,
		Insecure: c.Array.Insecure,
	}
}

// LoadHostSpec reads the desired-state host document from a YAML file.
// Unknown fields are rejected so a typo cannot silently drop a setting.
func LoadHostSpec(path string) (*model.HostSpec, error) {
	log.Tracef(">>>>> LoadHostSpec, path: %s", path)
	defer log.Trace("<<<<< LoadHostSpec")

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("Failed to open host document %s, err: %v", path, err)
	}
	defer file.Close()

	spec := &model.HostSpec{}
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(spec); err != nil {
		return nil, fmt.Errorf("Failed to parse host document %s, err: %v", path, err)
	}
	return spec, nil
}
