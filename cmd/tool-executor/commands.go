package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jonwraymond/toolfoundation/model"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/elb-pr/claudikins-tool-executor/backend"
	"github.com/elb-pr/claudikins-tool-executor/catalog"
	"github.com/elb-pr/claudikins-tool-executor/code"
	"github.com/elb-pr/claudikins-tool-executor/server"
)

func newServeCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve search_tools, get_tool_schema and execute_code over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), settingsFromViper(v))
		},
	}
}

func runServe(ctx context.Context, s settings) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(s)
	if err != nil {
		return err
	}
	defer func() { _ = a.close() }()

	srv, err := server.New(server.Options{Exec: a.exec, Version: version, Logger: a.logger})
	if err != nil {
		return err
	}
	a.start(ctx, s.MetricsListen)
	a.logger.Info("tool-executor running",
		zap.String("config", configSource(a)),
		zap.Int("services", len(a.config.Servers)),
		zap.Int("tools", a.exec.Catalog().Len()))
	err = srv.Run(ctx, &mcp.StdioTransport{})
	a.logger.Info("client disconnected, shutting down")
	return err
}

func configSource(a *app) string {
	if a.config.Defaults() {
		return "defaults"
	}
	return a.config.Path
}

func newServersCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "servers",
		Short: "List the configured services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := settingsFromViper(v)
			logger, err := newLogger(s.LogLevel)
			if err != nil {
				return err
			}
			cfg, err := loadServers(s, logger)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDISPLAY NAME\tCOMMAND")
			for _, d := range cfg.Servers {
				fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, d.DisplayName, strings.Join(append([]string{d.Command}, d.Args...), " "))
			}
			return w.Flush()
		},
	}
}

func newSearchCommand(v *viper.Viper) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the tool registry",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(settingsFromViper(v))
			if err != nil {
				return err
			}
			defer func() { _ = a.close() }()
			resp, err := a.exec.SearchTools(cmd.Context(), catalog.SearchParams{
				Query:  strings.Join(args, " "),
				Limit:  limit,
				Offset: offset,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", catalog.DefaultLimit, "maximum results to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "ranked results to skip")
	return cmd
}

func newSchemaCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "schema <name>",
		Short: "Print the full definition of one tool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(settingsFromViper(v))
			if err != nil {
				return err
			}
			defer func() { _ = a.close() }()
			def, err := a.exec.GetToolSchema(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), def)
		},
	}
}

func newToolsCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "tools [service...]",
		Short: "Connect to services and list the capabilities they advertise",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(settingsFromViper(v))
			if err != nil {
				return err
			}
			defer func() { _ = a.close() }()

			agg := backend.NewAggregator(a.exec.Broker())
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDESCRIPTION")
			list := func(tools []model.Tool) {
				for _, t := range tools {
					fmt.Fprintf(w, "%s\t%s\n", backend.FormatToolID(t.Namespace, t.Name), firstLine(t.Description))
				}
			}
			if len(args) == 0 {
				tools, failed := agg.ListAllTools(cmd.Context())
				list(tools)
				for name, err := range failed {
					a.logger.Warn("service unavailable", zap.String("service", name), zap.Error(err))
				}
				return w.Flush()
			}
			for _, name := range args {
				tools, err := agg.ListTools(cmd.Context(), name)
				if err != nil {
					return err
				}
				list(tools)
			}
			return w.Flush()
		},
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func newRunCommand(v *viper.Viper) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Execute a script file against the configured services and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readScript(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			s := settingsFromViper(v)
			a, err := newApp(s)
			if err != nil {
				return err
			}
			defer func() { _ = a.close() }()
			a.start(cmd.Context(), s.MetricsListen)

			res, err := a.exec.ExecuteCode(cmd.Context(), code.ExecuteParams{Code: src, Timeout: timeout})
			if err != nil {
				return err
			}
			if res.Logs == nil {
				res.Logs = []any{}
			}
			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.OK() {
				return fmt.Errorf("script failed: %s", res.Error)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", code.DefaultTimeout, "execution deadline")
	return cmd
}

// readScript reads path, or stdin when path is "-".
func readScript(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read script: %w", err)
	}
	return string(data), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
