package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Set up end-to-end encryption for this account",
	Long: `Derives a fresh workspace master key from a password, wraps it, and
pushes the wrapped key material to the server so other devices can
unlock with the same password. Run once per account, on its first
device; other devices unlock automatically via restore_from_password
once the daemon has a cached password.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configDir, err := resolveConfigDir(cmd)
		if err != nil {
			return err
		}
		server, _ := cmd.Flags().GetString("server")

		a, err := newApp(configDir, ".", server)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
		defer cancel()

		token, err := requireToken(ctx, a)
		if err != nil {
			return err
		}

		password, err := promptPassword("New workspace password: ")
		if err != nil {
			return err
		}
		confirm, err := promptPassword("Confirm password: ")
		if err != nil {
			return err
		}
		if password != confirm {
			return fmt.Errorf("passwords do not match")
		}

		result, err := a.crypto.Setup(password)
		if err != nil {
			return fmt.Errorf("derive master key: %w", err)
		}

		if err := a.api.SetupKeys(ctx, token, result.KeyMaterial); err != nil {
			return fmt.Errorf("upload key material: %w", err)
		}

		raw, err := json.Marshal(result.KeyMaterial)
		if err != nil {
			return fmt.Errorf("marshal key material: %w", err)
		}
		if err := a.index.PutMeta("key_material", string(raw)); err != nil {
			return fmt.Errorf("cache key material: %w", err)
		}

		cfg, err := a.cfgStore.Load()
		if err != nil {
			return err
		}
		cfg.OnboardingCompleted = true
		if err := a.cfgStore.Save(cfg); err != nil {
			return err
		}

		fmt.Println("Encryption set up. Keep this password safe -- it cannot be recovered.")
		fmt.Println("Run 'notesyncd watch' to start syncing; it will ask for this password once.")
		return nil
	},
}

func init() {
	setupCmd.Flags().String("server", "", "Server base URL (only needed if never logged in before)")
}
