// Package main is the entry point for the recall CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/recall/internal/config"
	"github.com/flemzord/recall/internal/core"
	"github.com/flemzord/recall/internal/security"
	"github.com/flemzord/recall/pkg/app"

	// Compiled modules.
	_ "github.com/flemzord/recall/internal/gateway"
	_ "github.com/flemzord/recall/modules/index/chromem"
	_ "github.com/flemzord/recall/modules/memory/sqlite"
	_ "github.com/flemzord/recall/modules/provider/anthropic"
	_ "github.com/flemzord/recall/modules/provider/openai"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "recall",
		Short:         "Personal memory with grounded, cited answers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	root.PersistentFlags().String("data-dir", "", "Data directory (default $XDG_DATA_HOME/recall)")
	root.PersistentFlags().String("log-level", os.Getenv("RECALL_LOG_LEVEL"), "Log level: debug, info, warn or error")

	root.AddCommand(
		versionCmd(),
		startCmd(),
		configCmd(),
		askCmd(),
		rememberCmd(),
		historyCmd(),
		mcpCmd(),
		initCmd(),
		serviceCmd(),
	)
	return root
}

// runParams builds app parameters from the persistent flags. fallbackLevel
// applies when --log-level is unset.
func runParams(cmd *cobra.Command, fallbackLevel slog.Level) (app.RunParams, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	levelName, _ := cmd.Flags().GetString("log-level")

	level := fallbackLevel
	if levelName != "" {
		parsed, err := app.ParseLogLevel(levelName)
		if err != nil {
			return app.RunParams{}, err
		}
		level = parsed
	}
	return app.RunParams{
		ConfigPath: cfgPath,
		DataDir:    dataDir,
		LogLevel:   level,
		Version:    version,
		Commit:     commit,
		Date:       date,
	}, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "recall %s (commit: %s, built: %s)\n", version, commit, date)
			fmt.Fprintln(out, "\nCompiled modules:")
			for _, mod := range core.GetModules() {
				fmt.Fprintf(out, "  %s\n", mod.ID)
			}
		},
	}
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start recall with all configured modules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			params, err := runParams(cmd, slog.LevelInfo)
			if err != nil {
				return err
			}
			return app.Run(params)
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration and print it with secrets redacted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := runParams(cmd, slog.LevelWarn)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				params.ConfigPath = args[0]
			}
			params.NoMaintenance = true

			// Provisioning catches what the schema cannot: missing API
			// keys, unreadable databases, bad module settings.
			rt, err := app.Open(params)
			if err != nil {
				return err
			}
			defer rt.Close()

			out := cmd.OutOrStdout()
			ids := config.Resolve(rt.Config)
			fmt.Fprintf(out, "Configuration OK (%d modules)\n", len(ids))
			redactor := security.NewRedactor()
			for _, id := range ids {
				node := rt.Config.Modules[id]
				var body map[string]any
				if err := node.Decode(&body); err != nil || len(body) == 0 {
					fmt.Fprintf(out, "  %s\n", id)
					continue
				}
				redactor.RedactMap(body)
				rendered, err := yaml.Marshal(body)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "  %s:\n%s", id, indent(string(rendered), "    "))
			}
			return nil
		},
	})
	return cmd
}

func indent(s, prefix string) string {
	lines := strings.SplitAfter(s, "\n")
	var b strings.Builder
	for _, l := range lines {
		if l != "" {
			b.WriteString(prefix + l)
		}
	}
	return b.String()
}
