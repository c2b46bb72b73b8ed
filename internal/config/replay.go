package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ReplayConfig holds configuration for re-simulating a stored round.
type ReplayConfig struct {
	RPCURL        string
	PGDSN         string
	Source        string
	RoundID       string
	EndBlock      uint64
	BatchSize     uint64
	RetryAttempts int
	RetryBackoff  time.Duration
	LogLevel      string
}

// LoadReplay merges config file, environment variables, and flags into
// ReplayConfig.
func LoadReplay(cfgFile string, flags *pflag.FlagSet) (ReplayConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("EVALUATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("source", "evm")
	v.SetDefault("batch-size", uint64(2000))
	v.SetDefault("retry-attempts", 3)
	v.SetDefault("retry-backoff", time.Second)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return ReplayConfig{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return ReplayConfig{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return ReplayConfig{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := ReplayConfig{
		RPCURL:        v.GetString("rpc"),
		PGDSN:         v.GetString("pg-dsn"),
		Source:        v.GetString("source"),
		RoundID:       v.GetString("round-id"),
		EndBlock:      v.GetUint64("end-block"),
		BatchSize:     v.GetUint64("batch-size"),
		RetryAttempts: v.GetInt("retry-attempts"),
		RetryBackoff:  v.GetDuration("retry-backoff"),
		LogLevel:      v.GetString("log-level"),
	}

	return cfg, nil
}
