package components

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/evertras/bubble-table/table"

	"github.com/allbin/avrflash/catalog"
	"github.com/allbin/avrflash/internal/tui/colors"
)

const (
	columnKeyBoard       = "board"
	columnKeyVersion     = "version"
	columnKeyName        = "name"
	columnKeyFile        = "file"
	columnKeyDescription = "description"
)

// FirmwareTable renders the boards of c as a static table. The first
// firmware of each board is marked as recommended.
func FirmwareTable(c *catalog.Catalog) table.Model {
	columns := []table.Column{
		table.NewColumn(columnKeyBoard, "Board", 10),
		table.NewColumn(columnKeyVersion, "Version", 10),
		table.NewColumn(columnKeyName, "Firmware", 20),
		table.NewColumn(columnKeyFile, "File", 24),
		table.NewFlexColumn(columnKeyDescription, "Description", 1),
	}

	recommended := lipgloss.NewStyle().Foreground(colors.Green).Bold(true)

	var rows []table.Row
	for _, b := range c.Boards {
		for i, fw := range b.Firmwares {
			row := table.NewRow(table.RowData{
				columnKeyBoard:       b.Name,
				columnKeyVersion:     fw.Version,
				columnKeyName:        fw.Name,
				columnKeyFile:        fw.File,
				columnKeyDescription: fw.Description,
			})
			if i == 0 {
				row = row.WithStyle(recommended)
			}
			rows = append(rows, row)
		}
	}

	return table.New(columns).
		WithRows(rows).
		WithTargetWidth(100).
		BorderRounded().
		HeaderStyle(lipgloss.NewStyle().Foreground(colors.Mauve).Bold(true)).
		WithBaseStyle(lipgloss.NewStyle().
			BorderForeground(colors.Surface2).
			Foreground(colors.Text).
			Align(lipgloss.Left))
}
