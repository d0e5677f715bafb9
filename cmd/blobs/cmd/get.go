package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <store> <key>",
	Short: "Print a blob",
	Long:  "Write the content of a blob to stdout. Exits with an error if the key does not exist.",
	Args:  cobra.ExactArgs(2),
	RunE:  runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	store, err := openStore(args[0])
	if err != nil {
		return err
	}

	rc, err := store.GetStream(cmd.Context(), args[1])
	if err != nil {
		return err
	}
	if rc == nil {
		return fmt.Errorf("%s: not found", args[1])
	}
	defer rc.Close()

	_, err = io.Copy(os.Stdout, rc)
	return err
}
