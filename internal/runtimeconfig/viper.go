package runtimeconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ult/internal/rtlog"
)

// parameterSource tracks where each parameter value came from.
type parameterSource struct {
	Key    string
	Value  interface{}
	Source string
}

var flagNames = map[string]string{
	"app.log_format":     "log-format",
	"app.log_level":      "log-level",
	"runtime.streams":    "streams",
	"runtime.scheduler":  "scheduler",
	"runtime.pools":      "pools",
	"stencil.width":      "width",
	"stencil.height":     "height",
	"stencil.iterations": "iterations",
	"stencil.check":      "check",
}

// getParameterSource determines where a parameter value came from (config
// file, env var, flag, or default).
func getParameterSource(key string, cmd *cobra.Command) parameterSource {
	flagValue := viper.Get(key)
	envKey := "ULT_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))

	flagName := flagNames[key]
	if flagName == "" {
		flagName = strings.Replace(key, ".", "-", -1)
	}

	if cmd != nil {
		if f := cmd.Flags().Lookup(flagName); f != nil && f.Changed {
			return parameterSource{key, flagValue, "command line flag"}
		}
		current := cmd
		for current != nil {
			if f := current.PersistentFlags().Lookup(flagName); f != nil && f.Changed {
				return parameterSource{key, flagValue, "command line flag"}
			}
			current = current.Parent()
		}
	}

	if _, exists := os.LookupEnv(envKey); exists {
		return parameterSource{key, flagValue, "environment variable"}
	}
	if viper.GetViper().InConfig(key) {
		return parameterSource{key, flagValue, "config file"}
	}
	return parameterSource{key, flagValue, "default value"}
}

// LogConfigurationSources logs the source of each configuration parameter.
func LogConfigurationSources(shouldLog bool, cmd *cobra.Command) {
	if !shouldLog {
		return
	}
	rtlog.Debug("Configuration parameter sources:")
	for key := range flagNames {
		source := getParameterSource(key, cmd)
		rtlog.Debug(fmt.Sprintf("  %s = %v (from %s)", source.Key, source.Value, source.Source))
	}
}

// InitConfig initializes the Viper configuration: search path, env prefix,
// defaults, and an optional config.yaml.
func InitConfig(shouldLog bool, cmd *cobra.Command) error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("ULT")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	viper.SetDefault("app.log_format", Config.LogFormat)
	viper.SetDefault("app.log_level", Config.LogLevel)
	viper.SetDefault("runtime.streams", Config.ExecutionStreams)
	viper.SetDefault("runtime.scheduler", Config.SchedulerKind)
	viper.SetDefault("runtime.pools", Config.PoolsPerStream)
	viper.SetDefault("stencil.width", Config.GridWidth)
	viper.SetDefault("stencil.height", Config.GridHeight)
	viper.SetDefault("stencil.iterations", Config.Iterations)
	viper.SetDefault("stencil.check", Config.CheckAgainstSerial)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		if shouldLog {
			rtlog.Debug("No config file found, using defaults and environment variables")
		}
	} else if shouldLog {
		rtlog.Debug("Loaded config file", map[string]interface{}{"path": viper.ConfigFileUsed()})
	}

	return nil
}

// SetConfigFile sets a custom config file path and reloads the
// configuration.
func SetConfigFile(configFile string) error {
	viper.SetConfigFile(configFile)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// CreateDefaultConfig writes a default config.yaml under the user's home
// directory if one doesn't already exist.
func CreateDefaultConfig() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("error getting home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".ult")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		defaultConfig := []byte(`# ult runtime configuration file

app:
  log_format: text  # text or json
  log_level: INFO   # DEBUG, INFO, WARN, ERROR

runtime:
  streams: 4      # execution streams (primary + secondaries)
  scheduler: basic  # basic or priority
  pools: 1        # pools attached per stream's scheduler

stencil:
  width: 256
  height: 256
  iterations: 100
  check: false    # compare against a serial reference solver
`)
		if err := os.WriteFile(configPath, defaultConfig, 0644); err != nil {
			return fmt.Errorf("error writing default config file: %w", err)
		}
	}

	return nil
}
