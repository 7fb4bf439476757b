package main

import (
	"github.com/fyrsmithlabs/repoindex/internal/http"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveHost string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve /health and /metrics for the vector store",
	Long: `Open the vector store and serve its health report and Prometheus
metrics until interrupted. The port comes from server.port.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "localhost", "listen address")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	store, err := a.store()
	if err != nil {
		return err
	}

	srv, err := http.NewServer(store, a.logger.Underlying().Named("http"), &http.Config{
		Host:            serveHost,
		Port:            a.cfg.Server.Port,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout.Duration(),
	})
	if err != nil {
		return err
	}

	a.logger.Info(ctx, "serving",
		zap.String("host", serveHost),
		zap.Int("port", a.cfg.Server.Port),
		zap.String("engine", store.Engine()),
	)
	return srv.Run(ctx)
}
