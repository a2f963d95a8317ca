package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var linkCmd = &cobra.Command{
	Use:   "link <workspace-name>",
	Short: "Link the local notes directory to a remote workspace",
	Long: `Looks up a workspace by name, creating it with --create if it
doesn't exist yet, and links the local directory (--path, default the
current directory) to it as the current workspace.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		configDir, err := resolveConfigDir(cmd)
		if err != nil {
			return err
		}
		localPath, err := resolveLocalPath(cmd)
		if err != nil {
			return err
		}
		server, _ := cmd.Flags().GetString("server")
		create, _ := cmd.Flags().GetBool("create")

		a, err := newApp(configDir, localPath, server)
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

		workspaces, err := a.api.ListWorkspaces(ctx, token)
		if err != nil {
			return fmt.Errorf("list workspaces: %w", err)
		}

		var workspaceID string
		for _, w := range workspaces {
			if w.Name == name {
				workspaceID = w.ID
				break
			}
		}
		if workspaceID == "" {
			if !create {
				return fmt.Errorf("workspace %q not found; pass --create to create it", name)
			}
			w, err := a.api.CreateWorkspace(ctx, token, name)
			if err != nil {
				return fmt.Errorf("create workspace: %w", err)
			}
			workspaceID = w.ID
		}

		if err := a.orch.Link(localPath, workspaceID); err != nil {
			return fmt.Errorf("link workspace: %w", err)
		}
		if err := a.orch.SetCurrentWorkspace(workspaceID); err != nil {
			return fmt.Errorf("select workspace: %w", err)
		}

		fmt.Printf("Linked %s to workspace %q (%s)\n", localPath, name, workspaceID)
		return nil
	},
}

var unlinkCmd = &cobra.Command{
	Use:   "unlink",
	Short: "Remove the workspace link for the local notes directory",
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

		if err := a.orch.Unlink(localPath); err != nil {
			return fmt.Errorf("unlink workspace: %w", err)
		}
		fmt.Printf("Unlinked %s\n", localPath)
		return nil
	},
}

func init() {
	linkCmd.Flags().String("server", "", "Server base URL (only needed if never logged in before)")
	linkCmd.Flags().Bool("create", false, "Create the workspace if it doesn't already exist")
	rootCmd.AddCommand(unlinkCmd)
	unlinkCmd.Flags().String("server", "", "Server base URL (only needed if never logged in before)")
}
