package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/elb-pr/claudikins-tool-executor/backend"
	"github.com/elb-pr/claudikins-tool-executor/code"
)

const (
	configKey         = "config"
	workspaceKey      = "workspace"
	registryKey       = "registry"
	logLevelKey       = "log-level"
	metricsListenKey  = "metrics-listen"
	idleTimeoutKey    = "idle-timeout"
	sweepIntervalKey  = "sweep-interval"
	connectTimeoutKey = "connect-timeout"
	maxLogCharsKey    = "max-log-chars"
	maxResultCharsKey = "max-result-chars"
)

// settings are the process options after flag, env and default resolution.
type settings struct {
	ConfigPath     string
	Workspace      string
	Registry       string
	LogLevel       string
	MetricsListen  string
	IdleTimeout    time.Duration
	SweepInterval  time.Duration
	ConnectTimeout time.Duration
	MaxLogChars    int
	MaxResultChars int
}

func settingsFromViper(v *viper.Viper) settings {
	return settings{
		ConfigPath:     v.GetString(configKey),
		Workspace:      v.GetString(workspaceKey),
		Registry:       v.GetString(registryKey),
		LogLevel:       v.GetString(logLevelKey),
		MetricsListen:  v.GetString(metricsListenKey),
		IdleTimeout:    v.GetDuration(idleTimeoutKey),
		SweepInterval:  v.GetDuration(sweepIntervalKey),
		ConnectTimeout: v.GetDuration(connectTimeoutKey),
		MaxLogChars:    v.GetInt(maxLogCharsKey),
		MaxResultChars: v.GetInt(maxResultCharsKey),
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "tool-executor",
		Short:         "tool-executor wraps MCP servers behind search, schema and code execution tools",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), settingsFromViper(v))
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringP(configKey, "c", "", "server config file (default: discover tool-executor.config.json, .tool-executorrc.json, ~/.tool-executor.config.json)")
	flags.String(workspaceKey, "./workspace", "directory scripts and oversized results are stored in")
	flags.String(registryKey, "./registry", "directory of YAML tool definitions used by search_tools and get_tool_schema")
	flags.String(logLevelKey, "info", "log level (debug, info, warn, error)")
	flags.String(metricsListenKey, "", "serve Prometheus metrics on this address (disabled when empty)")
	flags.Duration(idleTimeoutKey, backend.DefaultIdleTimeout, "close service connections unused for this long")
	flags.Duration(sweepIntervalKey, backend.DefaultSweepInterval, "how often idle connections are swept")
	flags.Duration(connectTimeoutKey, backend.DefaultConnectTimeout, "bound on one service connection attempt")
	flags.Int(maxLogCharsKey, code.DefaultMaxLogChars, "serialized log size above which script logs are summarized")
	flags.Int(maxResultCharsKey, code.DefaultMaxResultChars, "serialized capability result size above which results are saved to the workspace")

	v.SetEnvPrefix("TOOL_EXECUTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for _, name := range []string{
		configKey, workspaceKey, registryKey, logLevelKey, metricsListenKey,
		idleTimeoutKey, sweepIntervalKey, connectTimeoutKey, maxLogCharsKey, maxResultCharsKey,
	} {
		mustBindFlag(v, name, flags.Lookup(name))
	}

	cmd.AddCommand(
		newServeCommand(v),
		newServersCommand(v),
		newSearchCommand(v),
		newSchemaCommand(v),
		newToolsCommand(v),
		newRunCommand(v),
	)
	return cmd
}

func mustBindFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if flag == nil {
		panic(fmt.Sprintf("flag for key %s not found", key))
	}
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}
