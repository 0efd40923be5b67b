package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-pipeline/internal/server"
)

var (
	servePort    int
	serveWorkers bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve", true)
		if err != nil {
			return err
		}
		defer env.Close()

		srv := server.New(server.Config{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			BatchSize:      cfg.Pipeline.BatchSize,
			ReprocessLimit: cfg.Quarantine.ReprocessLimit,
		}, env.Dispatcher, env.Dispatcher.Quarantine(), env.Scheduler, env.Store, env.Registry)

		if serveWorkers {
			go func() {
				if err := runWorkers(ctx, env); err != nil {
					zap.L().Error("workers exited", zap.Error(err))
				}
			}()
		}

		return srv.ListenAndServe(ctx, resolvePort(servePort, cfg.Server.Port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "HTTP port (default: server.port)")
	serveCmd.Flags().BoolVar(&serveWorkers, "with-workers", false, "also run the scheduled workers")
	rootCmd.AddCommand(serveCmd)
}

// resolvePort returns the flag port when set, else the configured port.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}
