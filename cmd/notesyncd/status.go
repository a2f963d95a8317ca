package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show link, encryption, and pending-upload status",
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

		a, err := newApp(configDir, localPath, server)
		if err != nil {
			return err
		}
		defer a.Close()

		cfg, err := a.cfgStore.Load()
		if err != nil {
			return err
		}

		fmt.Printf("Server:        %s\n", cfg.ServerURL)
		fmt.Printf("Authenticated: %v\n", a.tokStore.Authenticated())
		fmt.Printf("Encryption:    %s\n", lockState(a))
		fmt.Printf("Device ID:     %s\n", display(cfg.DeviceID))
		fmt.Printf("Workspace:     %s\n", display(cfg.CurrentWorkspaceID))
		fmt.Printf("Linked paths:\n")
		for _, l := range cfg.WorkspaceLinks {
			fmt.Printf("  %s -> %s (linked %s)\n", l.LocalPath, l.RemoteWorkspaceID, l.LinkedAt.Format("2006-01-02 15:04"))
		}

		mappings, err := a.index.ListMappings()
		if err != nil {
			return fmt.Errorf("list mappings: %w", err)
		}
		fmt.Printf("Tracked notes: %d\n", len(mappings))
		fmt.Printf("Pending queue: %d\n", len(a.queue.Pending()))
		return nil
	},
}

func lockState(a *app) string {
	if a.crypto.Locked() {
		return "locked"
	}
	return "unlocked"
}

func display(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func init() {
	statusCmd.Flags().String("server", "", "Server base URL (only needed if never logged in before)")
}
