package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/inkleaf/notesync/pkg/types"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one reconciliation cycle and exit",
	Long: `Brings the pipeline up just long enough to run the same startup
reconciliation 'watch' runs -- manifest diff, write plan, uploads,
conflict resolution, orphan cleanup, draining the upload queue -- then
tears it back down. Useful for scripts and for "sync now" before
closing a laptop lid.`,
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

		ctx := context.Background()
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
		if err := a.orch.Stop(); err != nil {
			return fmt.Errorf("stop sync: %w", err)
		}

		fmt.Println("Sync complete.")
		return nil
	},
}

func init() {
	syncCmd.Flags().String("server", "", "Server base URL (only needed if never logged in before)")
}
