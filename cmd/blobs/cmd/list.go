package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aweris/blobs"
)

var listCmd = &cobra.Command{
	Use:   "list <store> [prefix]",
	Short: "List blobs in a store",
	Long:  "List blobs in a store, optionally filtered by prefix. With --directories, keys are grouped at the next \"/\".",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runList,
}

func init() {
	listCmd.Flags().Bool("directories", false, "group keys by directory")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	store, err := openStore(args[0])
	if err != nil {
		return err
	}

	opts := blobs.ListOptions{}
	if len(args) > 1 {
		opts.Prefix = args[1]
	}
	opts.Directories, _ = cmd.Flags().GetBool("directories")

	count := 0
	for page, err := range store.ListPages(cmd.Context(), opts) {
		if err != nil {
			return err
		}
		for _, dir := range page.Directories {
			fmt.Printf("%s/\n", dir)
			count++
		}
		for _, b := range page.Blobs {
			fmt.Printf("%s\t%s\n", b.Key, b.ETag)
			count++
		}
	}

	if count == 0 {
		fmt.Println("(no entries)")
	}
	return nil
}
