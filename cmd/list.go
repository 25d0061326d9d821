/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/allbin/avrflash"
	"github.com/allbin/avrflash/internal/tui/colors"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available serial ports",
	Long: `List the serial ports found on the system.

With --match the list is narrowed to ports whose USB vendor and product ID
are on the allow-list of a role:
  reset   the application port that receives the 1200 baud touch
  upload  the bootloader port that is programmed

Examples:
  avrflash list
  avrflash list --table
  avrflash list --match upload --table`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filterType, _ := cmd.Flags().GetString("filter")
		tableFormat, _ := cmd.Flags().GetBool("table")
		match, _ := cmd.Flags().GetString("match")

		ports, err := avrflash.ListPorts()
		if err != nil {
			return fmt.Errorf("listing ports: %w", err)
		}

		ports = filterPorts(ports, filterType)

		if match != "" {
			role, err := parseRole(match)
			if err != nil {
				return err
			}
			opts, err := flasherOptions()
			if err != nil {
				return err
			}
			f, err := avrflash.New(opts...)
			if err != nil {
				return err
			}
			ports = f.Matcher().Match(ports, role)
		}

		out := cmd.OutOrStdout()
		if len(ports) == 0 {
			fmt.Fprintln(out, "No serial ports found")
			return nil
		}

		if tableFormat {
			renderTable(out, ports)
		} else {
			renderSimple(out, ports)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringP("filter", "f", "", "Filter by port type: usb, standard, arm, all")
	listCmd.Flags().BoolP("table", "t", false, "Display output in a styled table format")
	listCmd.Flags().StringP("match", "m", "", "Only show ports allowed for a role: reset, upload")
}

func parseRole(s string) (avrflash.Role, error) {
	switch strings.ToLower(s) {
	case "reset", "app", "application":
		return avrflash.RoleReset, nil
	case "upload", "bootloader":
		return avrflash.RoleUpload, nil
	}
	return 0, fmt.Errorf("unknown role %q (valid: reset, upload)", s)
}

// filterPorts filters the port list based on the specified filter type
func filterPorts(ports []avrflash.PortInfo, filterType string) []avrflash.PortInfo {
	if filterType == "" || filterType == "all" {
		return ports
	}

	var filtered []avrflash.PortInfo
	for _, p := range ports {
		name := strings.ToLower(p.Name)
		switch strings.ToLower(filterType) {
		case "usb":
			if p.IsUSB || strings.HasPrefix(name, "ttyusb") || strings.HasPrefix(name, "ttyacm") {
				filtered = append(filtered, p)
			}
		case "standard":
			if strings.HasPrefix(name, "ttys") {
				filtered = append(filtered, p)
			}
		case "arm":
			if strings.HasPrefix(name, "ttyama") {
				filtered = append(filtered, p)
			}
		}
	}
	return filtered
}

func usbID(p avrflash.PortInfo) string {
	if p.VendorID == "" {
		return "-"
	}
	return p.VendorID + ":" + p.ProductID
}

func renderTable(out io.Writer, ports []avrflash.PortInfo) {
	fmt.Fprintf(out, "Found %d serial port(s):\n\n", len(ports))

	portWidth := 20
	typeWidth := 16
	idWidth := 11
	descWidth := 30

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(colors.Mauve).
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(colors.Surface2)

	cellStyle := lipgloss.NewStyle().
		PaddingRight(2)

	header := fmt.Sprintf("%-*s %-*s %-*s %-*s",
		portWidth, "Port",
		typeWidth, "Type",
		idWidth, "USB ID",
		descWidth, "Description")
	fmt.Fprintln(out, headerStyle.Render(header))

	for _, p := range ports {
		desc := p.Description
		if p.Product != "" {
			desc = p.Product
		}
		row := fmt.Sprintf("%-*s %-*s %-*s %-*s",
			portWidth, p.Path,
			typeWidth, getPortType(p.Name),
			idWidth, usbID(p),
			descWidth, desc)
		fmt.Fprintln(out, cellStyle.Render(row))
	}
}

func renderSimple(out io.Writer, ports []avrflash.PortInfo) {
	for _, p := range ports {
		fmt.Fprintln(out, p.Path)
	}
}

// getPortType returns a more specific type classification for the port
func getPortType(name string) string {
	name = strings.ToLower(name)
	switch {
	case strings.HasPrefix(name, "ttyusb"), strings.Contains(name, "usbserial"):
		return "USB Serial"
	case strings.HasPrefix(name, "ttyacm"), strings.Contains(name, "usbmodem"):
		return "USB CDC/ACM"
	case strings.HasPrefix(name, "ttyama"):
		return "ARM Serial"
	case strings.HasPrefix(name, "ttys"):
		return "Standard Serial"
	case strings.HasPrefix(name, "com"):
		return "COM Port"
	default:
		return "Serial Port"
	}
}
