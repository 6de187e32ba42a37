package types

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/palantir/go-githubapp/githubapp"
	"gopkg.in/yaml.v3"
)

const (
	SigningKeyEnv           = "REPL_DEPLOY_KEY"
	SigningKeyPassphraseEnv = "REPL_DEPLOY_KEY_PASSPHRASE"

	DefaultServerAddress = ":3000"
	DefaultConfigHost    = "https://raw.githubusercontent.com"
	DefaultCheckName     = "Deploying to Repl.it"
	DefaultMetricsPrefix = "repldeploy"
)

type AppConfig struct {
	Github  githubapp.Config
	Server  ServerConfig  `yaml:"server"`
	Deploy  DeployConfig  `yaml:"deploy"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`

	// Signing is only ever populated from the environment.
	Signing SigningConfig `yaml:"-"`
}

type ServerConfig struct {
	Address string `yaml:"address"`
}

type DeployConfig struct {
	ConfigHost string `yaml:"config_host"`
	CheckName  string `yaml:"check_name"`
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Prefix  string `yaml:"prefix"`
}

func (c MetricsConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// SigningConfig holds the key used to sign redeploy requests. Key is either
// an inline PEM block, a base64 encoded PEM block or an s3:// object URI.
type SigningConfig struct {
	Key        string
	Passphrase string
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = DefaultServerAddress
	}

	if c.Deploy.ConfigHost == "" {
		c.Deploy.ConfigHost = DefaultConfigHost
	}

	if c.Deploy.CheckName == "" {
		c.Deploy.CheckName = DefaultCheckName
	}

	if c.Metrics.Prefix == "" {
		c.Metrics.Prefix = DefaultMetricsPrefix
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func ParseAppConfig(path string) (AppConfig, error) {
	file, err := os.ReadFile(path)

	if err != nil {
		return AppConfig{}, fmt.Errorf("failed to read config: %w", err)
	}

	var config AppConfig
	if err := yaml.Unmarshal(file, &config); err != nil {
		return AppConfig{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyDefaults()
	config.Github.SetValuesFromEnv("")

	if decodedGithubKey, err := base64.StdEncoding.DecodeString(config.Github.App.PrivateKey); err == nil {
		config.Github.App.PrivateKey = string(decodedGithubKey)
	} else {
		return AppConfig{}, fmt.Errorf("failed to decode github app private key: %w", err)
	}

	config.Signing.Key = os.Getenv(SigningKeyEnv)
	config.Signing.Passphrase = os.Getenv(SigningKeyPassphraseEnv)

	if config.Signing.Key == "" {
		return AppConfig{}, fmt.Errorf("%s is not set", SigningKeyEnv)
	}

	if config.Signing.Passphrase == "" {
		return AppConfig{}, fmt.Errorf("%s is not set", SigningKeyPassphraseEnv)
	}

	return config, nil
}
