package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all orchestrator settings. Every knob has a default and an
// ORCH_* environment override; a YAML config file is optional.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	API        APIConfig        `mapstructure:"api"`
	Deploy     DeployConfig     `mapstructure:"deploy"`
	Cloud      CloudConfig      `mapstructure:"cloud"`
	Instances  InstancesConfig  `mapstructure:"instances"`
	Operations OperationsConfig `mapstructure:"operations"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type APIConfig struct {
	Token          string `mapstructure:"token"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type DeployConfig struct {
	Mode          string `mapstructure:"mode"` // mock | cloud
	MockAPIURL    string `mapstructure:"mock_api_url"`
	Script        string `mapstructure:"script"`
	GoldenImageID string `mapstructure:"golden_image_id"`
	InfoDir       string `mapstructure:"info_dir"`
}

type CloudConfig struct {
	CLI        string `mapstructure:"cli"`
	Profile    string `mapstructure:"profile"`
	ConfigFile string `mapstructure:"config_file"`
	Auth       string `mapstructure:"auth"`
}

type InstancesConfig struct {
	NamePrefix string `mapstructure:"name_prefix"`
	Max        int    `mapstructure:"max"`
}

type OperationsConfig struct {
	MaxWorkers int64 `mapstructure:"max_workers"`
}

// Load reads configuration from the given file (optional), the standard
// lookup locations, and ORCH_* environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("orchestrator")
		v.AddConfigPath(".")
		home, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(home, ".orchestrator"))
	}

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("api.token", "")
	v.SetDefault("api.timeout_seconds", 30)
	v.SetDefault("deploy.mode", "mock")
	v.SetDefault("deploy.mock_api_url", "http://127.0.0.1:8080")
	v.SetDefault("deploy.script", "./scripts/deploy-from-golden.sh")
	v.SetDefault("deploy.golden_image_id", "")
	v.SetDefault("deploy.info_dir", "/tmp")
	v.SetDefault("cloud.cli", "oci")
	v.SetDefault("cloud.profile", "redroid-cloud-phone")
	home, _ := os.UserHomeDir()
	v.SetDefault("cloud.config_file", filepath.Join(home, ".oci", "config"))
	v.SetDefault("cloud.auth", "security_token")
	v.SetDefault("instances.name_prefix", "orchestrated-phone")
	v.SetDefault("instances.max", 3)
	v.SetDefault("operations.max_workers", 32)

	v.AutomaticEnv()
	v.SetEnvPrefix("ORCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file is fine, defaults and env apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}
