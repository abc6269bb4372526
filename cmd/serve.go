package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/claims-cli/internal/monitoring"
	"github.com/sells-group/claims-cli/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort > 0 {
			cfg.Server.Port = servePort
		}

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		if _, created, err := env.Prompts.SeedDefault(ctx); err != nil {
			return err
		} else if created {
			fmt.Println("seeded default prompt template")
		}

		collector := monitoring.NewCollector(env.Breakers)
		if cfg.Monitoring.WebhookURL != "" {
			checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
		}

		srv := server.New(server.Deps{
			Layout:         env.Layout,
			Store:          env.Store,
			Prompts:        env.Prompts,
			NewProcessor:   env.newProcessor,
			NewAnalyzer:    env.newAnalyzer,
			Breakers:       env.Breakers,
			Monitor:        collector,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			MaxUploadBytes: cfg.Server.MaxUploadMB << 20,
		})
		return srv.ListenAndServe(ctx, fmt.Sprintf(":%d", cfg.Server.Port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "HTTP port (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}
