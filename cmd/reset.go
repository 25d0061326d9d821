/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/allbin/avrflash"
)

// resetCmd represents the reset command
var resetCmd = &cobra.Command{
	Use:   "reset <port>",
	Short: "Reset a board into its bootloader",
	Long: `Perform the 1200 baud touch on a port: the port is opened at the reset
baud rate, DTR is dropped and the port is closed again. Caterina boards
answer by detaching and re-enumerating as the bootloader for a few
seconds.

With --wait the command polls enumeration until the bootloader port shows
up and prints its path.

Examples:
  avrflash reset /dev/ttyACM0
  avrflash reset /dev/ttyACM0 --wait`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settle, _ := cmd.Flags().GetDuration("settle")
		wait, _ := cmd.Flags().GetBool("wait")
		path := args[0]

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		opts, err := flasherOptions()
		if err != nil {
			return err
		}
		f, err := avrflash.New(opts...)
		if err != nil {
			return err
		}

		before, err := avrflash.ListPorts()
		if err != nil {
			logger.Warn().Err(err).Msg("port snapshot before reset failed")
		}

		seq := &avrflash.ResetSequencer{
			Baud:   viper.GetInt("reset-baud"),
			Settle: settle,
			Logger: logger,
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Resetting %s\n", path)
		if err := seq.Reset(ctx, path); err != nil {
			return err
		}

		if !wait {
			return nil
		}

		port, err := f.Matcher().FindNewPort(ctx, avrflash.RoleUpload, before)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Bootloader on %s (%s)\n", port.Path, usbID(port))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)

	resetCmd.Flags().Duration("settle", avrflash.DefaultResetSettle, "Time to hold the port open after dropping DTR")
	resetCmd.Flags().BoolP("wait", "w", false, "Wait for the bootloader port to appear")
}
