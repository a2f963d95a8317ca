package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate against a notesync server",
	Long: `Logs in (or registers, with --register) against the server, storing
the resulting access/refresh token pair in the local index so later
commands don't need to ask again.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configDir, err := resolveConfigDir(cmd)
		if err != nil {
			return err
		}
		server, _ := cmd.Flags().GetString("server")
		email, _ := cmd.Flags().GetString("email")
		register, _ := cmd.Flags().GetBool("register")

		if server == "" {
			return fmt.Errorf("--server is required")
		}
		if email == "" {
			email, err = promptLine("Email: ")
			if err != nil {
				return err
			}
		}
		password, err := promptPassword("Password: ")
		if err != nil {
			return err
		}

		a, err := newApp(configDir, ".", server)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
		defer cancel()

		var result struct {
			AccessToken, RefreshToken string
			ExpiresAt                 time.Time
		}
		if register {
			r, err := a.api.Register(ctx, email, password)
			if err != nil {
				return fmt.Errorf("register: %w", err)
			}
			result.AccessToken, result.RefreshToken, result.ExpiresAt = r.AccessToken, r.RefreshToken, r.ExpiresAt
		} else {
			r, err := a.api.Login(ctx, email, password)
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}
			result.AccessToken, result.RefreshToken, result.ExpiresAt = r.AccessToken, r.RefreshToken, r.ExpiresAt
		}

		if err := a.tokStore.Set(result.AccessToken, result.RefreshToken, result.ExpiresAt); err != nil {
			return fmt.Errorf("store tokens: %w", err)
		}

		cfg, err := a.cfgStore.Load()
		if err != nil {
			return err
		}
		cfg.ServerURL = server
		if err := a.cfgStore.Save(cfg); err != nil {
			return err
		}

		fmt.Println("Logged in.")
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear stored credentials",
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

		if err := a.refresh.Logout(); err != nil {
			return fmt.Errorf("logout: %w", err)
		}
		a.orch.Passwords().Clear()
		fmt.Println("Logged out.")
		return nil
	},
}

func init() {
	loginCmd.Flags().String("server", "", "Server base URL, e.g. https://notes.example.com (required)")
	loginCmd.Flags().String("email", "", "Account email (prompted if omitted)")
	loginCmd.Flags().Bool("register", false, "Create a new account instead of logging into an existing one")

	logoutCmd.Flags().String("server", "", "Server base URL (only needed if never logged in before)")
}
