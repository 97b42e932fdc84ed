package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/binaryphile/bbplayer/internal/config"
	"github.com/binaryphile/bbplayer/internal/player"
	"github.com/binaryphile/bbplayer/internal/transport"
)

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List attached players",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			found, err := transport.List(a.transportOptions())
			if err != nil {
				return err
			}
			if len(found) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no players found")
				return nil
			}
			for _, info := range found {
				fmt.Fprintln(cmd.OutOrStdout(), info)
			}
			return nil
		},
	}
}

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show console ID, block count and filesystem usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.session(ctx, func(c *player.Conn) error {
				id, err := c.BBID(ctx)
				if err != nil {
					return err
				}
				n, err := c.NumBlocks(ctx)
				if err != nil {
					return err
				}
				s, err := c.Stats()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "BBID:       %08X\n", id)
				fmt.Fprintf(out, "Blocks:     %d (%d MiB)\n", n, int(n)*a.cfg.NAND.BlockSize>>20)
				fmt.Fprintf(out, "Free:       %d\n", s.Free)
				fmt.Fprintf(out, "Used:       %d\n", s.Used)
				fmt.Fprintf(out, "Bad:        %d\n", s.Bad)
				fmt.Fprintf(out, "FS seqno:   %d\n", s.SeqNo)
				return nil
			})
		},
	}
}

func newLEDCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "led VALUE",
		Short: "Set the LED state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseNumber(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return a.session(ctx, func(c *player.Conn) error {
				return c.SetLED(ctx, v)
			})
		},
	}
}

func newSetTimeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-time [RFC3339]",
		Short: "Set the console clock (default: now)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var s string
			if len(args) == 1 {
				s = args[0]
			}
			t, err := parseTime(s, time.Now())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return a.session(ctx, func(c *player.Conn) error {
				if err := c.SetTime(ctx, t); err != nil {
					return err
				}
				a.log.Info("clock set", "time", t.Format(time.DateTime))
				return nil
			})
		},
	}
}

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.Encode(cmd.OutOrStdout(), a.cfg)
		},
	}
}
