package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var setupTemplate string

var setupCmd = &cobra.Command{
	Use:   "setup NAME REPO_URI",
	Short: "Create or update the Jenkins job for a repository.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, client, _, err := loadClient()
		if err != nil {
			return err
		}

		templatePath := cfg.Jenkins.TemplatePath
		if setupTemplate != "" {
			templatePath = setupTemplate
		}

		if err := client.Setup(cmd.Context(), args[0], args[1], templatePath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Job %s is up to date\n", args[0])
		return nil
	},
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	setupCmd.Flags().StringVar(&setupTemplate, "template", "", "Job template path (defaults to jenkins.template_path)")
}
