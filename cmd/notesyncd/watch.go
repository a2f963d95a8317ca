package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/inkleaf/notesync/pkg/metrics"
	"github.com/inkleaf/notesync/pkg/types"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the sync daemon until interrupted",
	Long: `Starts the full pipeline -- live filesystem watch, live server push
feed, upload worker, periodic drift scan -- and serves Prometheus
metrics plus health/readiness/liveness endpoints until SIGINT/SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configDir, err := resolveConfigDir(cmd)
		if err != nil {
			return err
		}
		localPath, err := resolveLocalPath(cmd)
		if err != nil {
			return err
		}
		server, _ := cmd.Flags().GetString("server")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		metrics.SetVersion(Version)
		metrics.RegisterComponent("encryption", false, "locked")
		metrics.RegisterComponent("index", false, "opening")
		metrics.RegisterComponent("remote", false, "not connected")
		metrics.RegisterComponent("sync", false, "starting")

		a, err := newApp(configDir, localPath, server)
		if err != nil {
			return err
		}
		defer a.Close()
		metrics.RegisterComponent("index", true, "open")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if a.crypto.Locked() {
			password, err := promptPassword("Password: ")
			if err != nil {
				return err
			}
			a.orch.Passwords().Set(password)
		}

		if err := a.orch.Start(ctx); err != nil {
			if errors.Is(err, types.ErrNotUnlocked) {
				return fmt.Errorf("encryption is locked and no password was provided")
			}
			return fmt.Errorf("start sync: %w", err)
		}
		metrics.RegisterComponent("encryption", true, "unlocked")
		metrics.RegisterComponent("remote", true, "connected")
		metrics.RegisterComponent("sync", true, "running")

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/health", metrics.HealthHandler())
		mux.Handle("/ready", metrics.ReadyHandler())
		mux.Handle("/live", metrics.LivenessHandler())
		srv := &http.Server{Addr: metricsAddr, Handler: mux}

		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
			}
		}()
		fmt.Printf("Syncing %s\n", localPath)
		fmt.Printf("Metrics: http://%s/metrics\n", metricsAddr)
		fmt.Printf("Health:  http://%s/health\n", metricsAddr)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		fmt.Println("\nShutting down...")

		cancel()
		_ = srv.Close()
		if err := a.orch.Stop(); err != nil {
			return fmt.Errorf("stop sync: %w", err)
		}
		fmt.Println("Shutdown complete.")
		return nil
	},
}

func init() {
	watchCmd.Flags().String("server", "", "Server base URL (only needed if never logged in before)")
	watchCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for the metrics/health HTTP server")
}
