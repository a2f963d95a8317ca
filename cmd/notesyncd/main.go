package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/inkleaf/notesync/pkg/log"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "notesyncd",
	Short: "notesyncd - end-to-end encrypted Markdown note sync",
	Long: `notesyncd keeps a local directory of Markdown notes synced with a
notes server across devices, end-to-end encrypted, with offline edits
queued and retried once the connection returns.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"notesyncd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config-dir", "", "Config and local index directory (default: ~/.notesync)")
	rootCmd.PersistentFlags().String("path", "", "Local notes directory (default: current directory)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// resolveConfigDir returns the --config-dir flag value, defaulting to
// ~/.notesync the way the teacher's cert helpers default under the
// user's home directory.
func resolveConfigDir(cmd *cobra.Command) (string, error) {
	dir, _ := cmd.Flags().GetString("config-dir")
	if dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".notesync"), nil
}

// resolveLocalPath returns the --path flag value, defaulting to the
// current working directory.
func resolveLocalPath(cmd *cobra.Command) (string, error) {
	path, _ := cmd.Flags().GetString("path")
	if path != "" {
		return path, nil
	}
	return os.Getwd()
}

func deviceName() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "unknown-device"
}
