package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/flemzord/recall/pkg/app"
)

// program runs recall under the OS service manager.
type program struct {
	params app.RunParams
	rt     *app.Runtime
	cancel context.CancelFunc
}

// Start implements service.Interface.
func (p *program) Start(service.Service) error {
	rt, err := app.Open(p.params)
	if err != nil {
		return err
	}
	if err := rt.Start(); err != nil {
		return err
	}
	p.rt = rt

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go rt.Watch(ctx, p.params.ReloadInterval)
	return nil
}

// Stop implements service.Interface.
func (p *program) Stop(service.Service) error {
	if p.cancel != nil {
		p.cancel()
	}
	if p.rt != nil {
		p.rt.Stop()
		p.rt.Logger.Info("shutdown complete")
	}
	return nil
}

func newService(cmd *cobra.Command) (service.Service, *program, error) {
	params, err := runParams(cmd, slog.LevelInfo)
	if err != nil {
		return nil, nil, err
	}

	// The service manager starts the binary from an arbitrary directory,
	// so paths are made absolute before they are baked into the unit.
	args := []string{"service", "run"}
	if params.ConfigPath != "" {
		abs, err := filepath.Abs(params.ConfigPath)
		if err != nil {
			return nil, nil, err
		}
		params.ConfigPath = abs
		args = append(args, "--config", abs)
	}
	if params.DataDir != "" {
		abs, err := filepath.Abs(params.DataDir)
		if err != nil {
			return nil, nil, err
		}
		params.DataDir = abs
		args = append(args, "--data-dir", abs)
	}

	prg := &program{params: params}
	svc, err := service.New(prg, &service.Config{
		Name:        "recall",
		DisplayName: "recall",
		Description: "Personal memory with grounded, cited answers.",
		Arguments:   args,
		Option:      service.KeyValue{"UserService": true},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("service: %w", err)
	}
	return svc, prg, nil
}

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Install and control recall as a background service",
	}

	for _, action := range service.ControlAction {
		cmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: fmt.Sprintf("%s the recall service", action),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				svc, _, err := newService(cmd)
				if err != nil {
					return err
				}
				if err := service.Control(svc, action); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "recall service: %s done\n", action)
				return nil
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the service status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, _, err := newService(cmd)
			if err != nil {
				return err
			}
			status, err := svc.Status()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), statusName(status))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:    "run",
		Short:  "Run under the service manager (used by the installed unit)",
		Args:   cobra.NoArgs,
		Hidden: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, _, err := newService(cmd)
			if err != nil {
				return err
			}
			return svc.Run()
		},
	})
	return cmd
}

func statusName(s service.Status) string {
	switch s {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	}
	return "unknown"
}
