package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"buildrelay/internal/engine"
)

var triggerReq engine.BuildRequest

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Dispatch a single build and print its reference.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, client, _, err := loadClient()
		if err != nil {
			return err
		}

		ref, dispatched, err := client.Run(cmd.Context(), triggerReq)
		if err != nil {
			return err
		}
		if !dispatched {
			fmt.Fprintln(cmd.OutOrStdout(), "skipped")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), ref)
		return nil
	},
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	flags := triggerCmd.Flags()
	flags.StringVar(&triggerReq.RepoName, "repo", "", "Repository name, e.g. org/app")
	flags.StringVar(&triggerReq.BranchName, "branch", "", "Branch to build")
	flags.StringVar(&triggerReq.SHA1, "sha1", "", "Commit to build")
	flags.StringVar(&triggerReq.CommitMessage, "message", "", "Commit message, checked for the skip marker")
	flags.StringVar(&triggerReq.RoomID, "room", "", "Chat room for announcements")
	_ = triggerCmd.MarkFlagRequired("repo")
	_ = triggerCmd.MarkFlagRequired("branch")
}
