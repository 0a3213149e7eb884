package cmd

import "github.com/spf13/cobra"

var consumerCmd = &cobra.Command{
	Use:   "consumer",
	Short: "Manage registered consumers",
}

func init() {
	rootCmd.AddCommand(consumerCmd)
}
