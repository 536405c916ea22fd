// grove-inspect reads a grove index file and reports what is inside,
// either as summary statistics or as a GraphViz rendering of one index.
// It opens the file read-mostly and assumes no live writers.
package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"grove"
	"grove/internal/base"
	"grove/internal/buffer"
	"grove/internal/storage"
	"grove/logger"
)

func main() {
	root := &cobra.Command{
		Use:           "grove-inspect",
		Short:         "Inspect grove index files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(statsCmd(), dotCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openPool(path string) (*buffer.PoolManager, error) {
	disk, err := storage.Open(path)
	if err != nil {
		return nil, err
	}
	return buffer.NewPoolManager(buffer.DefaultPoolSize, buffer.DefaultK, disk), nil
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <file>",
		Short: "Print file and index summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := openPool(args[0])
			if err != nil {
				return err
			}
			defer pool.Close()

			size, err := pool.Disk().Size()
			if err != nil {
				return err
			}
			fmt.Printf("file:       %s (%s)\n", args[0], humanize.Bytes(uint64(size)))
			fmt.Printf("pages:      %s allocated, %s free\n",
				humanize.Comma(int64(pool.Disk().NumPages())),
				humanize.Comma(int64(pool.Disk().FreePages())))

			hp, err := pool.FetchPage(base.HeaderPageID)
			if err != nil {
				return err
			}
			defer pool.UnpinPage(base.HeaderPageID, false)

			records := base.AsHeader(hp).Records()
			fmt.Printf("indexes:    %d\n", len(records))
			for _, rec := range records {
				fmt.Printf("  %-32s root page %d\n", rec.Name, rec.Root)
			}
			return nil
		},
	}
}

func dotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dot <file> <index>",
		Short: "Write a GraphViz rendering of one index to stdout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			zl, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer zl.Sync()

			pool, err := openPool(args[0])
			if err != nil {
				return err
			}
			defer pool.Close()

			tree, err := grove.New(args[1], pool, grove.CompareBytes, 0, 0,
				grove.WithLogger(logger.NewZap(zl)))
			if err != nil {
				return err
			}
			if tree.IsEmpty() {
				return fmt.Errorf("index %q is empty or unknown", args[1])
			}
			return tree.Draw(os.Stdout)
		},
	}
}
