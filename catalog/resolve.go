package catalog

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// ResolvePath maps a firmware reference onto root. Absolute paths are kept.
// Anything up to and including a "hexs/" component is stripped so that
// references written relative to a packaged resources directory still work.
func ResolvePath(root, p string) string {
	if filepath.IsAbs(p) {
		return p
	}

	slashed := filepath.ToSlash(p)
	if i := strings.LastIndex(slashed, "hexs/"); i >= 0 && (i == 0 || slashed[i-1] == '/') {
		slashed = slashed[i+len("hexs/"):]
	}
	return filepath.Join(root, filepath.FromSlash(slashed))
}

// Resolver locates firmware files below Root.
type Resolver struct {
	Fs   afero.Fs
	Root string
}

// Resolve returns the path of fw for board b. It looks in the board's
// directory first and falls back to Root itself.
func (r Resolver) Resolve(b *Board, fw Firmware) (string, error) {
	var candidates []string
	if b != nil && b.Dir != "" {
		candidates = append(candidates, ResolvePath(r.Root, path.Join(b.Dir, filepath.ToSlash(fw.File))))
	}
	candidates = append(candidates, ResolvePath(r.Root, fw.File))

	for _, c := range candidates {
		ok, err := afero.Exists(r.Fs, c)
		if err != nil {
			return "", fmt.Errorf("failed to stat %s: %w", c, err)
		}
		if ok {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %s not found under %s", ErrFirmwareNotFound, fw.File, r.Root)
}
