package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Runtime holds process options merged from flags and INDEXKIT_* environment variables.
type Runtime struct {
	ConfigPath  string
	LogLevel    string
	HealthAddr  string
	MetricsAddr string
	Input       string
	DryRun      bool
}

// LoadRuntime merges environment variables and flags into Runtime. Flags win over env.
func LoadRuntime(flags *pflag.FlagSet) (Runtime, error) {
	v := viper.New()
	v.SetEnvPrefix("INDEXKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("config", "config.yaml")
	v.SetDefault("log-level", "info")
	v.SetDefault("health-addr", "")
	v.SetDefault("metrics-addr", "")
	v.SetDefault("in", "")
	v.SetDefault("dry-run", false)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Runtime{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	return Runtime{
		ConfigPath:  v.GetString("config"),
		LogLevel:    v.GetString("log-level"),
		HealthAddr:  v.GetString("health-addr"),
		MetricsAddr: v.GetString("metrics-addr"),
		Input:       v.GetString("in"),
		DryRun:      v.GetBool("dry-run"),
	}, nil
}
