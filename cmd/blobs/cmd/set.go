package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/aweris/blobs"
)

var setCmd = &cobra.Command{
	Use:   "set <store> <key> [file|-]",
	Short: "Write a blob",
	Long:  "Write a blob from a file, or from stdin when the file is omitted or \"-\".",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runSet,
}

func init() {
	setCmd.Flags().String("metadata", "", "metadata as a JSON object")
	setCmd.Flags().Bool("only-if-new", false, "fail if the key already exists")
	setCmd.Flags().String("only-if-match", "", "fail unless the current etag matches")
	rootCmd.AddCommand(setCmd)
}

func runSet(cmd *cobra.Command, args []string) error {
	store, err := openStore(args[0])
	if err != nil {
		return err
	}

	var opts []blobs.SetOption
	if raw, _ := cmd.Flags().GetString("metadata"); raw != "" {
		var meta map[string]any
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			return fmt.Errorf("parse --metadata: %w", err)
		}
		opts = append(opts, blobs.WithMetadata(meta))
	}
	if ok, _ := cmd.Flags().GetBool("only-if-new"); ok {
		opts = append(opts, blobs.OnlyIfNew())
	}
	if cmd.Flags().Changed("only-if-match") {
		etag, _ := cmd.Flags().GetString("only-if-match")
		opts = append(opts, blobs.OnlyIfMatch(etag))
	}

	var in io.Reader = os.Stdin
	if len(args) == 3 && args[2] != "-" {
		f, err := os.Open(args[2])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	res, err := store.SetStream(cmd.Context(), args[1], in, opts...)
	if err != nil {
		return err
	}
	if !res.Modified {
		return fmt.Errorf("%s: write condition not met", args[1])
	}
	fmt.Fprintln(os.Stderr, res.ETag)
	return nil
}
