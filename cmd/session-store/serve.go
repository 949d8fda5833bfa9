package main

import (
	"context"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/spf13/cobra"

	"github.com/streamhive/mqtt-session-store/internal/config"
	"github.com/streamhive/mqtt-session-store/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Ensure the session-state schema and expose metrics",
	Long: `Connects to the replica set, creates the session-state collections and
indexes if they do not exist yet, then serves Prometheus metrics until
interrupted. Run once per broker node at startup.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := setup()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		// Schema must be replicated before the node serves clients.
		if err := store.EnsureCollections(ctx); err != nil {
			logger.FatalF("Error occured while ensuring collections, details: %v", err)
			return err
		}
		logger.InfoF("Session-state schema ready")

		cfg, _ := config.GetConfig()
		addr := cfg.MetricsAddr
		if addr == "" {
			addr = ":9464"
		}
		http.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
			metrics.WritePrometheus(w, true)
		})
		logger.InfoF("Serving metrics on %s", addr)
		return http.ListenAndServe(addr, nil)
	},
}
