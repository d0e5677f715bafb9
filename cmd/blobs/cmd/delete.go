package cmd

import (
	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <store> <key>...",
	Short: "Delete blobs",
	Long:  "Delete one or more blobs. Missing keys are not an error.",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	store, err := openStore(args[0])
	if err != nil {
		return err
	}
	for _, key := range args[1:] {
		if err := store.Delete(cmd.Context(), key); err != nil {
			return err
		}
	}
	return nil
}
