package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"os/user"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/flemzord/recall/internal/mcpserver"
)

// defaultOwner scopes memories when no owner is given: $RECALL_OWNER, else
// the login name.
func defaultOwner() string {
	if owner := os.Getenv("RECALL_OWNER"); owner != "" {
		return owner
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "me"
}

func mcpCmd() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the memory tools over MCP on stdin and stdout",
		Long: `Serve the memory tools to an MCP client such as a desktop assistant.
Logs go to stderr; stdout carries only protocol messages. The HTTP gateway
is not started.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openLocal(cmd)
			if err != nil {
				return err
			}
			defer rt.Stop()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := mcpserver.New(rt.Facade, mcpserver.Config{
				Version:      version,
				DefaultOwner: owner,
				Logger:       rt.Logger.With("component", "mcp"),
			})
			rt.Logger.Info("serving mcp on stdio")
			err = srv.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&owner, "owner", defaultOwner(), "Owner used when a tool call names none")
	return cmd
}
