package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"docportal/handler"
)

func newSandboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sandbox",
		Short: "Local sandbox backend",
	}

	cmd.AddCommand(newSandboxServeCmd())
	return cmd
}

func newSandboxServeCmd() *cobra.Command {
	var (
		addr     string
		fixtures string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the sandbox backend over HTTP",
		Long:  "Runs an in-memory backend with fixture journals so the portal can be used without the real API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, sb, err := buildSandbox(fixtures)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			fmt.Fprintf(cmd.OutOrStdout(), "Sandbox listening on %s (code %s)\n", addr, sb.OTP())
			return handler.Serve(ctx, addr, h)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&fixtures, "fixtures", "", "path to a fixtures YAML file (default: built-in fixtures)")
	return cmd
}

func buildSandbox(path string) (*handler.Handler, *handler.Sandbox, error) {
	var (
		fx  handler.Fixtures
		err error
	)
	if path == "" {
		fx, err = handler.DefaultFixtures()
	} else {
		fx, err = handler.LoadFixtures(path)
	}
	if err != nil {
		return nil, nil, err
	}
	sb, err := handler.NewSandbox(fx, handler.WithLogger(slog.Default()))
	if err != nil {
		return nil, nil, err
	}
	h, err := handler.NewHandler(sb)
	if err != nil {
		return nil, nil, err
	}
	return h, sb, nil
}
