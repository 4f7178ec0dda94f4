package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/scans"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		addr       string
		policyPath string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the audit HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			if policyPath == "" {
				policyPath = a.cfg.Policy
			}
			pol, err := loadPolicy(policyPath)
			if err != nil {
				return err
			}
			eng, err := a.newEngine(a.cfg, pol)
			if err != nil {
				return err
			}

			store := scans.NewFileStore(a.cfg.Output.Dir)
			runner := &scans.Runner{Validator: a.newValidator(), Engine: eng, Policy: pol, Store: store}

			api := server.NewWebAPI(a.logger, server.Config{
				Addr:            addr,
				ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
				Dependencies:    server.Dependencies{Runner: runner, Store: store},
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a.logger.Info().Str("scans_dir", store.Dir()).Msg("scan store ready")
			return api.Start(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: config server.addr)")
	cmd.Flags().StringVar(&policyPath, "policy", "", "Policy file (default: config policy)")
	return cmd
}
