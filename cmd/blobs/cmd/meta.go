package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var metaCmd = &cobra.Command{
	Use:   "meta <store> <key>",
	Short: "Show etag and metadata of a blob",
	Args:  cobra.ExactArgs(2),
	RunE:  runMeta,
}

func init() {
	rootCmd.AddCommand(metaCmd)
}

func runMeta(cmd *cobra.Command, args []string) error {
	store, err := openStore(args[0])
	if err != nil {
		return err
	}

	info, err := store.GetMetadata(cmd.Context(), args[1])
	if err != nil {
		return err
	}
	if info == nil {
		return fmt.Errorf("%s: not found", args[1])
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		ETag     string         `json:"etag"`
		Metadata map[string]any `json:"metadata"`
	}{info.ETag, info.Metadata})
}
