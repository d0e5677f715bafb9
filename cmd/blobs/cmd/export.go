package cmd

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"github.com/aweris/blobs"
	"github.com/aweris/blobs/internal/archive"
	"github.com/aweris/blobs/internal/compression"
)

var exportCmd = &cobra.Command{
	Use:   "export <store> <file.zst>",
	Short: "Export a store to an archive",
	Long:  "Download every blob of a store, with its metadata, into a compressed archive.",
	Args:  cobra.ExactArgs(2),
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().String("prefix", "", "only export keys with this prefix")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) (err error) {
	store, err := openStore(args[0])
	if err != nil {
		return err
	}
	prefix, _ := cmd.Flags().GetString("prefix")

	listing, err := store.List(cmd.Context(), blobs.ListOptions{Prefix: prefix})
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}

	f, err := os.Create(args[1])
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	w, err := archive.NewWriter(f, compression.LevelBetter)
	if err != nil {
		return err
	}

	var (
		mu      sync.Mutex
		written atomic.Int64
	)
	p := pool.New().WithMaxGoroutines(concurrency()).WithContext(cmd.Context()).WithCancelOnError()
	for _, b := range listing.Blobs {
		p.Go(func(ctx context.Context) error {
			entry, err := store.GetWithMetadata(ctx, b.Key)
			if err != nil {
				return fmt.Errorf("get %s: %w", b.Key, err)
			}
			if entry == nil {
				logrus.WithField("key", b.Key).Debug("deleted during export")
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			if err := w.Write(archive.Record{Key: b.Key, Metadata: entry.Metadata, Data: entry.Data}); err != nil {
				return err
			}
			written.Add(1)
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d blobs from %s\n", written.Load(), store.Name())
	return nil
}
