package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"github.com/aweris/blobs"
	"github.com/aweris/blobs/internal/archive"
)

var importCmd = &cobra.Command{
	Use:   "import <store> <file.zst>",
	Short: "Import an archive into a store",
	Long:  "Upload every blob of an archive created by export. Existing keys are overwritten unless --only-if-new is set.",
	Args:  cobra.ExactArgs(2),
	RunE:  runImport,
}

func init() {
	importCmd.Flags().Bool("only-if-new", false, "skip keys that already exist")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	store, err := openStore(args[0])
	if err != nil {
		return err
	}
	onlyIfNew, _ := cmd.Flags().GetBool("only-if-new")

	f, err := os.Open(args[1])
	if err != nil {
		return err
	}
	defer f.Close()

	r, err := archive.NewReader(f)
	if err != nil {
		return err
	}
	defer r.Close()

	var (
		written, skipped atomic.Int64
		readErr          error
	)
	p := pool.New().WithMaxGoroutines(concurrency()).WithContext(cmd.Context()).WithCancelOnError()
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			readErr = err
			break
		}

		p.Go(func(ctx context.Context) error {
			opts := []blobs.SetOption{blobs.WithMetadata(rec.Metadata)}
			if onlyIfNew {
				opts = append(opts, blobs.OnlyIfNew())
			}
			res, err := store.Set(ctx, rec.Key, rec.Data, opts...)
			if err != nil {
				return fmt.Errorf("set %s: %w", rec.Key, err)
			}
			if res.Modified {
				written.Add(1)
			} else {
				skipped.Add(1)
			}
			return nil
		})
	}
	if err := errors.Join(p.Wait(), readErr); err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Imported %d blobs into %s (%d skipped)\n", written.Load(), store.Name(), skipped.Load())
	return nil
}
