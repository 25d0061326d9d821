/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/allbin/avrflash"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info <port>",
	Short: "Display detailed information about a serial port",
	Long: `Display detailed information about a serial port including USB metadata
and whether the port is accepted as a reset or upload port.

Examples:
  avrflash info /dev/ttyACM0
  avrflash info COM4`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := avrflash.GetPortInfo(args[0])
		if err != nil {
			return fmt.Errorf("getting port info: %w", err)
		}

		opts, err := flasherOptions()
		if err != nil {
			return err
		}
		f, err := avrflash.New(opts...)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Port Information: %s\n\n", info.Path)
		fmt.Fprintf(out, "  Name:        %s\n", info.Name)
		fmt.Fprintf(out, "  Type:        %s\n", getPortType(info.Name))
		fmt.Fprintf(out, "  Description: %s\n", info.Description)

		if info.IsUSB {
			fmt.Fprintln(out, "\nUSB Device Information:")
			fmt.Fprintf(out, "  Vendor ID:    %s\n", info.VendorID)
			fmt.Fprintf(out, "  Product ID:   %s\n", info.ProductID)
			if info.SerialNumber != "" {
				fmt.Fprintf(out, "  Serial:       %s\n", info.SerialNumber)
			}
			if info.Product != "" {
				fmt.Fprintf(out, "  Product:      %s\n", info.Product)
			}
		}

		fmt.Fprintln(out, "\nRoles:")
		for _, role := range []avrflash.Role{avrflash.RoleReset, avrflash.RoleUpload} {
			ok := len(f.Matcher().Match([]avrflash.PortInfo{*info}, role)) > 0
			fmt.Fprintf(out, "  %-7s %s\n", role.String()+":", yesNo(ok))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
