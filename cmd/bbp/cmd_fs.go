package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/binaryphile/bbplayer/internal/bbfs"
	"github.com/binaryphile/bbplayer/internal/player"
)

func newDumpFSCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dump-fs FILE",
		Short: "Save the current filesystem block to FILE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.session(cmd.Context(), func(c *player.Conn) error {
				raw, err := c.DumpCurrentFS()
				if err != nil {
					return err
				}
				return os.WriteFile(args[0], raw, 0o644)
			})
		},
	}
}

func newLsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List files on the player",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.session(cmd.Context(), func(c *player.Conn) error {
				files, err := c.ListFiles()
				if err != nil {
					return err
				}
				s, err := c.Stats()
				if err != nil {
					return err
				}
				printFiles(cmd.OutOrStdout(), files)
				fmt.Fprintf(cmd.OutOrStdout(), "\n%d files, %d blocks free, %d used, %d bad\n",
					len(files), s.Free, s.Used, s.Bad)
				return nil
			})
		},
	}
}

func printFiles(w io.Writer, files []player.FileInfo) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSIZE\tBLOCK")
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", f.Name, f.Size, f.Start)
	}
	tw.Flush()
}

func newBlocksCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "blocks NAME",
		Short: "List the blocks holding a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.session(cmd.Context(), func(c *player.Conn) error {
				blocks, ok, err := c.ListFileBlocks(args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%s: file not found", args[0])
				}
				for _, b := range blocks {
					fmt.Fprintf(cmd.OutOrStdout(), "%d\n", b)
				}
				return nil
			})
		},
	}
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get NAME [FILE]",
		Short: "Copy a file from the player (default FILE: NAME)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, path := args[0], args[0]
			if len(args) == 2 {
				path = args[1]
			}
			ctx := cmd.Context()
			return a.session(ctx, func(c *player.Conn) error {
				data, ok, err := c.ReadFile(ctx, name)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%s: file not found", name)
				}
				if err := os.WriteFile(path, data, 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%d bytes)\n", name, path, len(data))
				return nil
			})
		},
	}
}

func newPutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "put FILE [NAME]",
		Short: "Copy a file to the player",
		Long:  "Copy FILE to the player as NAME. Without NAME the host file name is converted to an 8.3 device name.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			var name string
			if len(args) == 2 {
				name = args[1]
			} else {
				var err error
				if name, err = bbfs.ToDeviceName(filepath.Base(path)); err != nil {
					return err
				}
			}
			if err := player.CheckFileName(name); err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return a.session(ctx, func(c *player.Conn) error {
				if err := c.WriteFile(ctx, name, data); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%d bytes)\n", path, name, len(data))
				return nil
			})
		},
	}
}

func newRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm NAME",
		Short: "Delete a file from the player",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.session(ctx, func(c *player.Conn) error {
				return c.DeleteFile(ctx, args[0])
			})
		},
	}
}
