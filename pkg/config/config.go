// Package config provides a reusable loader for a node's configuration file
// and environment variables. It is versioned so that applications can depend
// on a stable API contract.
//
// Version: v0.1.0
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"inferex/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified configuration for an inferex node. It mirrors the
// structure of the YAML files under cmd/config.
type Config struct {
	Node struct {
		Role       string `mapstructure:"role" json:"role"` // "client", "provider" or "miner"
		KeyFile    string `mapstructure:"key_file" json:"key_file"`
		Difficulty int    `mapstructure:"difficulty" json:"difficulty"`
	} `mapstructure:"node" json:"node"`

	Network struct {
		ListenAddr     string   `mapstructure:"listen_addr" json:"listen_addr"`
		DialAddr       string   `mapstructure:"dial_addr" json:"dial_addr"`
		RPCAddr        string   `mapstructure:"rpc_addr" json:"rpc_addr"`
		DiscoveryTag   string   `mapstructure:"discovery_tag" json:"discovery_tag"`
		BootstrapPeers []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
	} `mapstructure:"network" json:"network"`

	Provider struct {
		Model     string  `mapstructure:"model" json:"model"`
		MinBid    float64 `mapstructure:"min_bid" json:"min_bid"`
	} `mapstructure:"provider" json:"provider"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // environment variables override file values

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the INFEREX_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("INFEREX_ENV", ""))
}
