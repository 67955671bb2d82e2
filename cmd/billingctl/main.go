package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"license-billing/internal/application"
	"license-billing/internal/config"
	"license-billing/internal/infra/logging"
)

var Version = "dev"

type globalFlags struct {
	configPath string
	dev        bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "billingctl",
		Short:         "Operator tooling for the license billing service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "config.yaml", "path to YAML config file")
	root.PersistentFlags().BoolVar(&g.dev, "dev", false, "developer mode")

	root.AddCommand(orderCmd(g))
	root.AddCommand(reconcileCmd(g))
	root.AddCommand(promoCmd(g))
	root.AddCommand(keygenCmd())
	root.AddCommand(tokenCmd(g))
	return root
}

func (g *globalFlags) load() (*config.Config, *zerolog.Logger, error) {
	cfg, err := config.LoadConfig(g.configPath, g.dev)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	// keep stdout for command output
	logger := logging.NewWithWriter(cfg.Log, cfg.Runtime.Dev, os.Stderr)
	return cfg, logger, nil
}

func (g *globalFlags) container(ctx context.Context) (*application.Container, error) {
	cfg, logger, err := g.load()
	if err != nil {
		return nil, err
	}
	return application.Build(ctx, cfg, logger)
}
