// Package catalog lists the firmware images shipped for each N32B board
// revision and resolves them to files under a hexs directory.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
)

var (
	ErrBoardNotFound    = errors.New("board not found")
	ErrFirmwareNotFound = errors.New("firmware not found")
	ErrInvalidCatalog   = errors.New("invalid firmware catalog")
)

// Firmware is one selectable image.
type Firmware struct {
	Name        string `toml:"name"`
	Version     string `toml:"version"`
	File        string `toml:"file"`
	Description string `toml:"description"`
}

func (f Firmware) String() string {
	return fmt.Sprintf("%s %s", f.Name, f.Version)
}

// Board is a hardware revision and the images available for it, newest
// first.
type Board struct {
	Name      string     `toml:"name"`
	Dir       string     `toml:"dir"`
	Firmwares []Firmware `toml:"firmware"`
}

// Catalog is the full list of boards.
type Catalog struct {
	Boards []Board `toml:"board"`
}

// Default returns the built-in catalog.
func Default() *Catalog {
	macros := []Firmware{
		{Name: "Advanced Macros+", Version: "4.5.4", File: "firmware_v4.5.4.hex", Description: "Bug fixes"},
		{Name: "Advanced Macros", Version: "4.5.2", File: "firmware_v4.5.2.hex", Description: "Advanced macros"},
	}

	v2 := append([]Firmware{}, macros...)
	v2 = append(v2,
		Firmware{Name: "Standard CC", Version: "4.0.2", File: "firmware_v4.0.2.hex", Description: "Fix precision issues"},
		Firmware{Name: "Standard CC", Version: "4.0.1", File: "firmware_v4.0.1.hex", Description: "Extensive macro options"},
		Firmware{Name: "Standard CC", Version: "3.6.1", File: "firmware_v3.6.1.hex", Description: "The old classic firmware"},
		Firmware{Name: "SysEx Beta", Version: "30.1.1", File: "firmware_v30.1.1.hex", Description: "SysEx only messages"},
	)

	return &Catalog{
		Boards: []Board{
			{Name: "N32B V2", Dir: "v2", Firmwares: v2},
			{Name: "N32B V3", Dir: "v3", Firmwares: append([]Firmware{}, macros...)},
		},
	}
}

// Load reads a TOML catalog from path.
func Load(fs afero.Fs, path string) (*Catalog, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a TOML catalog.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Encode writes the catalog as TOML.
func (c *Catalog) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("failed to encode catalog: %w", err)
	}
	return buf.Bytes(), nil
}

// Validate checks that every board and firmware is usable.
func (c *Catalog) Validate() error {
	if len(c.Boards) == 0 {
		return fmt.Errorf("%w: no boards", ErrInvalidCatalog)
	}

	names := make(map[string]bool, len(c.Boards))
	for _, b := range c.Boards {
		key := strings.ToLower(b.Name)
		if b.Name == "" {
			return fmt.Errorf("%w: board without a name", ErrInvalidCatalog)
		}
		if names[key] {
			return fmt.Errorf("%w: duplicate board %q", ErrInvalidCatalog, b.Name)
		}
		names[key] = true

		versions := make(map[string]bool, len(b.Firmwares))
		for _, fw := range b.Firmwares {
			if fw.Version == "" || fw.File == "" {
				return fmt.Errorf("%w: %s: firmware %q needs a version and a file",
					ErrInvalidCatalog, b.Name, fw.Name)
			}
			if versions[fw.Version] {
				return fmt.Errorf("%w: %s: duplicate version %s", ErrInvalidCatalog, b.Name, fw.Version)
			}
			versions[fw.Version] = true
		}
	}
	return nil
}

// Board looks up a board by name, ignoring case. "v2" style short names
// match the board's directory.
func (c *Catalog) Board(name string) (*Board, error) {
	for i := range c.Boards {
		b := &c.Boards[i]
		if strings.EqualFold(b.Name, name) || (b.Dir != "" && strings.EqualFold(b.Dir, name)) {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrBoardNotFound, name)
}

// Firmware looks up an image by version or file name.
func (b *Board) Firmware(version string) (Firmware, error) {
	v := strings.TrimPrefix(strings.ToLower(version), "v")
	for _, fw := range b.Firmwares {
		if fw.Version == v || strings.EqualFold(fw.File, version) {
			return fw, nil
		}
	}
	return Firmware{}, fmt.Errorf("%w: %s has no version %q", ErrFirmwareNotFound, b.Name, version)
}

// Latest returns the first listed image, which is the recommended one.
func (b *Board) Latest() (Firmware, error) {
	if len(b.Firmwares) == 0 {
		return Firmware{}, fmt.Errorf("%w: %s lists no firmware", ErrFirmwareNotFound, b.Name)
	}
	return b.Firmwares[0], nil
}
