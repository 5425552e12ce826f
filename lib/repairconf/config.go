// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package repairconf merges the repair tool's settings from command
// line flags, XFSREC_* environment variables, and an optional YAML or
// TOML file.
package repairconf

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/datawire/dlib/dlog"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"git.lukeshu.com/xfs-progs-ng/lib/textui"
)

// EnvPrefix is prepended to upper-cased keys to form environment
// variable names; "progress-interval" is XFSREC_PROGRESS_INTERVAL.
const EnvPrefix = "XFSREC"

// Config keys are the long flag names.
type Config struct {
	Verbosity        string        `mapstructure:"verbosity" validate:"omitempty,oneof=error warn warning info debug trace"`
	Prefetch         bool          `mapstructure:"prefetch"`
	Workers          int           `mapstructure:"workers" validate:"gte=0,lte=4096"`
	ProgressInterval time.Duration `mapstructure:"progress-interval" validate:"gte=0"`
	Records          string        `mapstructure:"records"`
	MetricsTextfile  string        `mapstructure:"metrics-textfile"`
	// Orphanage overrides the lost+found inode named in the
	// records file; 0 means use the records file's.
	Orphanage uint64 `mapstructure:"orphanage"`
}

var validate = validator.New()

// Load reads configFile (if not empty), then the environment, then
// any flags in flags that were set explicitly, later sources winning.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{"verbosity", "prefetch", "workers", "progress-interval", "records", "metrics-textfile", "orphanage"} {
		// AutomaticEnv only applies to keys viper already knows.
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config file %q: %w", configFile, err)
		}
	}
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func ApplyDefaults(cfg *Config) {
	if cfg.Verbosity == "" {
		cfg.Verbosity = "info"
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.ProgressInterval == 0 {
		cfg.ProgressInterval = textui.DefaultProgressInterval
	}
}

func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			return fmt.Errorf("config: %s: failed %q check (value: %v)", e.Namespace(), e.Tag(), e.Value())
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// LogLevel parses Verbosity.
func (cfg *Config) LogLevel() (dlog.LogLevel, error) {
	var lvl textui.LogLevelFlag
	if err := lvl.Set(cfg.Verbosity); err != nil {
		return 0, err
	}
	return lvl.Level, nil
}
