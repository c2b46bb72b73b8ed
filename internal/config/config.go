package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL             string
	PGDSN              string
	Source             string
	AgentEndpoints     map[string]string
	ExecuteURL         string
	ExecuteAPIKey      string
	VaultAddress       string
	InventoryAmount0   string
	InventoryAmount1   string
	ArtifactDir        string
	CheckpointBlocks   uint64
	QueryTimeout       time.Duration
	PollInterval       time.Duration
	MinTickWidth       int
	MaxRebalances      int
	MaxImpermanentLoss float64
	BatchSize          uint64
	RetryAttempts      int
	RetryBackoff       time.Duration
	LogLevel           string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("EVALUATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("source", "evm")
	v.SetDefault("artifact-dir", "./data/artifacts")
	v.SetDefault("checkpoint-blocks", uint64(100))
	v.SetDefault("query-timeout", 5*time.Second)
	v.SetDefault("poll-interval", time.Second)
	v.SetDefault("min-tick-width", 60)
	v.SetDefault("max-rebalances", 4)
	v.SetDefault("max-impermanent-loss", 0.10)
	v.SetDefault("batch-size", uint64(2000))
	v.SetDefault("retry-attempts", 3)
	v.SetDefault("retry-backoff", time.Second)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:             v.GetString("rpc"),
		PGDSN:              v.GetString("pg-dsn"),
		Source:             v.GetString("source"),
		AgentEndpoints:     getStringMap(v, "agents"),
		ExecuteURL:         v.GetString("execute-url"),
		ExecuteAPIKey:      v.GetString("execute-api-key"),
		VaultAddress:       v.GetString("vault"),
		InventoryAmount0:   v.GetString("inventory-amount0"),
		InventoryAmount1:   v.GetString("inventory-amount1"),
		ArtifactDir:        v.GetString("artifact-dir"),
		CheckpointBlocks:   v.GetUint64("checkpoint-blocks"),
		QueryTimeout:       v.GetDuration("query-timeout"),
		PollInterval:       v.GetDuration("poll-interval"),
		MinTickWidth:       v.GetInt("min-tick-width"),
		MaxRebalances:      v.GetInt("max-rebalances"),
		MaxImpermanentLoss: v.GetFloat64("max-impermanent-loss"),
		BatchSize:          v.GetUint64("batch-size"),
		RetryAttempts:      v.GetInt("retry-attempts"),
		RetryBackoff:       v.GetDuration("retry-backoff"),
		LogLevel:           v.GetString("log-level"),
	}

	return cfg, nil
}
