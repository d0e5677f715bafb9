package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aweris/blobs"
)

var storesCmd = &cobra.Command{
	Use:   "stores",
	Short: "List the site's named stores",
	Args:  cobra.NoArgs,
	RunE:  runStores,
}

func init() {
	rootCmd.AddCommand(storesCmd)
}

func runStores(cmd *cobra.Command, args []string) error {
	names, err := blobs.ListStores(cmd.Context(), storeOptions()...)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Println(name)
	}
	if len(names) == 0 {
		fmt.Println("(no stores)")
	}
	return nil
}
