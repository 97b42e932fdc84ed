// Command bbp talks to a BB Player over USB: NAND dumps and restores,
// single block access, and file management on the player's filesystem.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/binaryphile/bbplayer/internal/config"
	"github.com/binaryphile/bbplayer/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{stderr: os.Stderr}
	var configPath, logLevel, logFormat string

	root := &cobra.Command{
		Use:          "bbp",
		Short:        "BB Player USB tool",
		Long:         "Dump, restore and manage the NAND and filesystem of a BB Player attached over USB.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Logging.Level = logLevel
			}
			if cmd.Flags().Changed("log-format") {
				cfg.Logging.Format = logFormat
			}
			log, err := logging.Setup(a.stderr, cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				return err
			}
			a.cfg, a.log = cfg, log
			if path != "" {
				log.Debug("configuration loaded", "path", path)
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configPath, "config", "", fmt.Sprintf("configuration file (default: first %s on the search path)", config.FileName))
	flags.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flags.StringVar(&logFormat, "log-format", "text", "log format: text or json")
	flags.IntVar(&a.bus, "bus", 0, "USB bus of the player to use (0: any)")
	flags.IntVar(&a.address, "address", 0, "USB address of the player to use (0: any)")

	root.AddCommand(
		newListCmd(a),
		newInfoCmd(a),
		newLEDCmd(a),
		newSetTimeCmd(a),
		newConfigCmd(a),
		newDumpNANDCmd(a),
		newRestoreNANDCmd(a),
		newReadBlockCmd(a),
		newWriteBlockCmd(a),
		newDumpFSCmd(a),
		newLsCmd(a),
		newBlocksCmd(a),
		newGetCmd(a),
		newPutCmd(a),
		newRmCmd(a),
	)
	return root
}
