package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/binaryphile/bbplayer/internal/dump"
	"github.com/binaryphile/bbplayer/internal/nand"
	"github.com/binaryphile/bbplayer/internal/player"
)

func newDumpNANDCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dump-nand DIR",
		Short: "Dump every NAND block and spare to DIR",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			ctx := cmd.Context()
			p := a.newProgress("dumping")
			defer p.finish()

			start := time.Now()
			return a.session(ctx, func(c *player.Conn) error {
				id, err := c.BBID(ctx)
				if err != nil {
					return err
				}
				data, err := c.DumpNAND(ctx)
				if err != nil {
					return err
				}
				d, err := dump.New(id, a.cfg.NAND, data, time.Now())
				if err != nil {
					return err
				}
				if err := dump.Write(dir, d); err != nil {
					return err
				}
				p.finish()
				fmt.Fprintf(cmd.OutOrStdout(), "Dumped %d blocks (%d bad) in %s\n",
					d.Manifest.Blocks, len(d.Manifest.BadBlocks), time.Since(start).Round(time.Second))
				fmt.Fprintf(cmd.OutOrStdout(), "Fingerprint: %s\n", d.Manifest.Fingerprint)
				return nil
			}, player.WithProgress(p.update))
		},
	}
}

func newRestoreNANDCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "restore-nand DIR",
		Short: "Write a dump from DIR back to the NAND",
		Long:  "Write every good block of a dump back to the player. Blocks marked bad in the dump are skipped.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("restore overwrites the whole NAND; pass --yes to confirm")
			}
			d, err := dump.Read(args[0])
			if err != nil {
				return err
			}
			if d.Manifest.Geometry != a.cfg.NAND {
				return fmt.Errorf("dump geometry %+v does not match configured %+v", d.Manifest.Geometry, a.cfg.NAND)
			}
			ctx := cmd.Context()
			p := a.newProgress("restoring")
			defer p.finish()

			return a.session(ctx, func(c *player.Conn) error {
				n, err := c.NumBlocks(ctx)
				if err != nil {
					return err
				}
				if n != d.Manifest.Blocks {
					return fmt.Errorf("dump has %d blocks, device has %d", d.Manifest.Blocks, n)
				}
				id, err := c.BBID(ctx)
				if err != nil {
					return err
				}
				if id != d.Manifest.BBID {
					a.log.Warn("restoring a dump from another console", "dump", fmt.Sprintf("%08X", d.Manifest.BBID), "device", fmt.Sprintf("%08X", id))
				}
				return dump.Restore(ctx, c, d, p.update)
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm overwriting the NAND")
	return cmd
}

func newReadBlockCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "read-block N FILE",
		Short: "Read block N to FILE and its spare to FILE.spare",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseNumber(args[0])
			if err != nil {
				return err
			}
			path := args[1]
			ctx := cmd.Context()
			return a.session(ctx, func(c *player.Conn) error {
				bs, err := c.ReadBlock(ctx, n)
				if err != nil {
					return err
				}
				if err := os.WriteFile(path, bs.Block, 0o644); err != nil {
					return err
				}
				if nand.IsBad(bs.Spare) {
					a.log.Warn("block is marked bad", "block", n)
				}
				return os.WriteFile(spareFile(path), bs.Spare, 0o644)
			})
		},
	}
}

func newWriteBlockCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "write-block N FILE",
		Short: "Write FILE to block N, with FILE.spare if present",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseNumber(args[0])
			if err != nil {
				return err
			}
			bs, err := readBlockFiles(args[1], a.cfg.NAND)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return a.session(ctx, func(c *player.Conn) error {
				if nand.IsBad(bs.Spare) {
					a.log.Warn("spare marks the block bad; nothing will be written", "block", n)
				}
				return c.WriteBlock(ctx, n, bs.Block, bs.Spare)
			})
		},
	}
}

// readBlockFiles loads a block written by read-block. A missing spare file
// means a good spare.
func readBlockFiles(path string, g nand.Geometry) (nand.BlockSpare, error) {
	block, err := os.ReadFile(path)
	if err != nil {
		return nand.BlockSpare{}, err
	}
	spare, err := os.ReadFile(spareFile(path))
	switch {
	case errors.Is(err, os.ErrNotExist):
		spare = nand.GoodSpare(g.SpareSize)
	case err != nil:
		return nand.BlockSpare{}, err
	}
	bs := nand.BlockSpare{Block: block, Spare: spare}
	if err := bs.Check(g); err != nil {
		return nand.BlockSpare{}, fmt.Errorf("%s: %w", path, err)
	}
	return bs, nil
}
