package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"buildrelay/internal/engine"
)

var outputCmd = &cobra.Command{
	Use:   "output REFERENCE",
	Short: "Print the console output of a dispatched build.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, client, _, err := loadClient()
		if err != nil {
			return err
		}

		output, err := client.Output(cmd.Context(), engine.BuildReference(args[0]))
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), output)
		return nil
	},
}
