package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/flemzord/recall/internal/config"
	"github.com/flemzord/recall/pkg/app"
)

func initCmd() *cobra.Command {
	var (
		opts    config.SampleOptions
		force   bool
		noInput bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		Long: `Write a starter configuration file. Without --no-input, a short form asks
where memories are stored, which embedder and provider to use, and whether
to serve the HTTP API.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				path = app.ConfigCandidates()[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			if !noInput {
				if err := askSampleOptions(&opts); err != nil {
					if errors.Is(err, huh.ErrUserAborted) {
						return nil
					}
					return err
				}
			}

			data, err := config.Sample(opts)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
				return err
			}
			if err := os.WriteFile(path, data, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Storage, "storage", config.StorageSQLite, "Where memories live: sqlite or memory")
	cmd.Flags().StringVar(&opts.Embedder, "embedder", config.EmbedderHash, "Embedder: hash (offline) or openai")
	cmd.Flags().StringVar(&opts.Provider, "provider", config.ProviderNone, "LLM provider: none, anthropic or openai")
	cmd.Flags().StringVar(&opts.Bind, "bind", "", "Serve the HTTP API on this address")
	cmd.Flags().StringVar(&opts.TokenEnv, "token-env", "", "Environment variable holding the API bearer token")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	cmd.Flags().BoolVarP(&noInput, "no-input", "y", false, "Use the flag values without asking")
	return cmd
}

// askSampleOptions fills opts from a form, using the current values as
// defaults.
func askSampleOptions(opts *config.SampleOptions) error {
	serveAPI := opts.Bind != ""
	if opts.Bind == "" {
		opts.Bind = "127.0.0.1:8080"
	}

	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where should memories be stored?").
				Options(
					huh.NewOption("SQLite file in the data directory", config.StorageSQLite),
					huh.NewOption("In memory (lost on exit)", config.StorageMemory),
				).
				Value(&opts.Storage),
			huh.NewSelect[string]().
				Title("How should text be embedded?").
				Options(
					huh.NewOption("Hashed terms (offline, no API key)", config.EmbedderHash),
					huh.NewOption("OpenAI embeddings (needs OPENAI_API_KEY)", config.EmbedderOpenAI),
				).
				Value(&opts.Embedder),
			huh.NewSelect[string]().
				Title("Which model should phrase answers?").
				Options(
					huh.NewOption("None: template answers with citations", config.ProviderNone),
					huh.NewOption("Anthropic (needs ANTHROPIC_API_KEY)", config.ProviderAnthropic),
					huh.NewOption("OpenAI (needs OPENAI_API_KEY)", config.ProviderOpenAI),
				).
				Value(&opts.Provider),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Serve the HTTP API?").
				Value(&serveAPI),
			huh.NewInput().
				Title("Listen address").
				Value(&opts.Bind).
				Validate(func(s string) error {
					return config.SampleOptions{
						Storage: config.StorageMemory, Embedder: config.EmbedderHash, Provider: config.ProviderNone, Bind: s,
					}.Validate()
				}),
			huh.NewInput().
				Title("Environment variable with the API token (empty: no auth)").
				Value(&opts.TokenEnv),
		),
	).Run()
	if err != nil {
		return err
	}
	if !serveAPI {
		opts.Bind = ""
		opts.TokenEnv = ""
	}
	return nil
}
