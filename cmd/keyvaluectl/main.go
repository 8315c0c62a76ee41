// Command keyvaluectl is the client CLI: a port of
// _examples/original_source/src/client/client.c's --connect/--put/--get/
// --delete surface (spec.md §1 treats the client as "out of core but
// contracted" via §6), plus the snapshot export/import and info
// subcommands that supplement the original's feature set, per
// SPEC_FULL.md.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Disant-codes/keystore-filesystem/internal/client"
	"github.com/Disant-codes/keystore-filesystem/internal/directory"
	"github.com/Disant-codes/keystore-filesystem/internal/job"
	"github.com/Disant-codes/keystore-filesystem/internal/snapshot"
	"github.com/Disant-codes/keystore-filesystem/internal/store"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var connect string

	root := &cobra.Command{
		Use:   "keyvaluectl",
		Short: "Client for a keyvalued instance",
	}
	root.PersistentFlags().StringVar(&connect, "connect", "127.0.0.1:5000", "server address, IP:PORT")

	root.AddCommand(putCommand(&connect))
	root.AddCommand(getCommand(&connect))
	root.AddCommand(deleteCommand(&connect))
	root.AddCommand(snapshotCommand())
	root.AddCommand(infoCommand())
	return root
}

func putCommand(connect *string) *cobra.Command {
	return &cobra.Command{
		Use:   "put <key> <value>",
		Short: "Store a key/value pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(*connect, job.Put, []byte(args[0]), []byte(args[1]))
		},
	}
}

func getCommand(connect *string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Fetch a value by key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(*connect, job.Get, []byte(args[0]), nil)
		},
	}
}

func deleteCommand(connect *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(*connect, job.Delete, []byte(args[0]), nil)
		},
	}
}

// runRequest mirrors client.c's send-then-read-until-terminal loop,
// printing each intermediate response the way print_job_response did.
func runRequest(addr string, typ job.Type, key, value []byte) error {
	c, err := client.Dial(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	responseCount := 0
	terminal, err := c.Do(&job.Request{Type: typ, Key: key, Value: value}, func(resp *job.Response) {
		responseCount++
		fmt.Printf("Job Response %d:\n", responseCount)
		fmt.Printf("  Type: %s\n", resp.Type)
		fmt.Printf("  Status: %s\n", resp.Status)
		fmt.Printf("  Error: %s\n", resp.Error)
		if len(resp.Data) > 0 {
			fmt.Printf("  Data: %s\n", resp.Data)
		}
	})
	if err != nil {
		return err
	}
	if terminal.Status == job.Failed {
		return fmt.Errorf("job failed: %s", terminal.Error)
	}
	return nil
}

func snapshotCommand() *cobra.Command {
	var imagePath string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Export or import a store image to/from a portable snapshot file",
	}
	cmd.PersistentFlags().StringVar(&imagePath, "image", "/tmp/keystored.img", "path to the on-disk block image")

	exportCmd := &cobra.Command{
		Use:   "export <snapshot-file>",
		Short: "Export every key/value pair into a portable snapshot file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, closeFn, err := openDirectory(imagePath)
			if err != nil {
				return err
			}
			defer closeFn()
			n, err := snapshot.Export(dir, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("exported %d records to %s\n", n, args[0])
			return nil
		},
	}

	importCmd := &cobra.Command{
		Use:   "import <snapshot-file>",
		Short: "Import every key/value pair from a portable snapshot file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, closeFn, err := openDirectory(imagePath)
			if err != nil {
				return err
			}
			defer closeFn()
			n, err := snapshot.Import(args[0], dir)
			if err != nil {
				return err
			}
			fmt.Printf("imported %d records from %s\n", n, args[0])
			return nil
		},
	}

	cmd.AddCommand(exportCmd, importCmd)
	return cmd
}

func infoCommand() *cobra.Command {
	var imagePath string
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print the superblock of an on-disk image",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(imagePath); err != nil {
				return err
			}
			bs, err := store.OpenOrCreate(imagePath, 0, 0)
			if err != nil {
				return err
			}
			defer bs.Close()
			fmt.Printf("image:             %s\n", imagePath)
			fmt.Printf("block_size:        %d\n", bs.BlockSize())
			fmt.Printf("num_blocks:        %d\n", bs.NumBlocks())
			fmt.Printf("hash_bucket_count: %d\n", bs.HashBucketCount())
			fmt.Printf("hash_buckets_block:%d\n", bs.HashBucketsBlock())
			fmt.Printf("free_block_count:  %d\n", bs.FreeBlockCount())
			fmt.Printf("free_list_head:    %d\n", bs.FreeListHead())
			return nil
		},
	}
	cmd.Flags().StringVar(&imagePath, "image", "/tmp/keystored.img", "path to the on-disk block image")
	return cmd
}

func openDirectory(path string) (*directory.Directory, func(), error) {
	bs, err := store.OpenOrCreate(path, 0, 0)
	if err != nil {
		return nil, nil, err
	}
	dir := directory.New(bs)
	if err := dir.EnsureBucketBlock(); err != nil {
		_ = bs.Close()
		return nil, nil, err
	}
	return dir, func() { _ = bs.Close() }, nil
}
