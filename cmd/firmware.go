/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/allbin/avrflash/catalog"
	"github.com/allbin/avrflash/internal/tui/components"
)

// firmwareCmd groups the catalog commands
var firmwareCmd = &cobra.Command{
	Use:   "firmware",
	Short: "Inspect the firmware catalog",
	Long: `Inspect the catalog of firmware images known for each board.

The built-in catalog can be replaced with a TOML file through --catalog
or the "catalog" config key. "firmware export" prints the built-in
catalog as a starting point.`,
}

var firmwareListCmd = &cobra.Command{
	Use:   "list",
	Short: "List boards and their firmware images",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadCatalog(appFs)
		if err != nil {
			return err
		}

		if board, _ := cmd.Flags().GetString("board"); board != "" {
			b, err := c.Board(board)
			if err != nil {
				return err
			}
			c = &catalog.Catalog{Boards: []catalog.Board{*b}}
		}

		fmt.Fprintln(cmd.OutOrStdout(), components.FirmwareTable(c).View())
		return nil
	},
}

var firmwareExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the catalog as TOML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadCatalog(appFs)
		if err != nil {
			return err
		}
		data, err := c.Encode()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var firmwarePathCmd = &cobra.Command{
	Use:   "path <board> [version]",
	Short: "Print the file a catalog entry resolves to",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		version := ""
		if len(args) == 2 {
			version = args[1]
		}
		path, _, err := selectImage(appFs, nil, args[0], version)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(firmwareCmd)
	firmwareCmd.AddCommand(firmwareListCmd, firmwareExportCmd, firmwarePathCmd)

	firmwareCmd.PersistentFlags().String("catalog", "", "TOML catalog replacing the built-in one")
	firmwareCmd.PersistentFlags().String("hexs", "hexs", "Directory holding catalog firmware files")
	firmwareListCmd.Flags().StringP("board", "b", "", "Only show this board")
}
