/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/allbin/avrflash"
	"github.com/allbin/avrflash/catalog"
	"github.com/allbin/avrflash/internal/tui/components"
	"github.com/allbin/avrflash/internal/tui/models"
)

// appFs is where firmware and catalog files are read from.
var appFs = afero.NewOsFs()

// flashCmd represents the flash command
var flashCmd = &cobra.Command{
	Use:   "flash [file]",
	Short: "Flash an Intel HEX image to a board",
	Long: `Flash an Intel HEX image to a board running the Caterina bootloader.

The image is either given as a file or picked from the firmware catalog
with --board and --version. Catalog files are looked up below the hexs
directory, first in the board's own subdirectory.

Examples:
  avrflash flash firmware.hex
  avrflash flash --board "N32B V3"
  avrflash flash --board v2 --version 3.6.1 --hexs ./resources/hexs
  avrflash flash firmware.hex --tui`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		board, _ := cmd.Flags().GetString("board")
		version, _ := cmd.Flags().GetString("version")
		useTUI, _ := cmd.Flags().GetBool("tui")

		path, title, err := selectImage(appFs, args, board, version)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var res avrflash.Result
		if useTUI {
			res, err = runFlashTUI(ctx, path, title)
		} else {
			res, err = runFlash(ctx, cmd.OutOrStdout(), path, title)
		}
		if err != nil {
			return err
		}
		if !res.OK() {
			return errors.New(res.Message())
		}
		if !useTUI {
			fmt.Fprintln(cmd.OutOrStdout(), res.Message())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(flashCmd)

	flashCmd.Flags().StringP("board", "b", "", "Flash a catalog image for this board (name or dir, e.g. v3)")
	flashCmd.Flags().StringP("version", "v", "", "Catalog firmware version (default: recommended)")
	flashCmd.Flags().Bool("tui", false, "Show an interactive progress view")
	flashCmd.Flags().String("hexs", "hexs", "Directory holding catalog firmware files")
	flashCmd.Flags().String("catalog", "", "TOML catalog replacing the built-in one")
}

// loadCatalog returns the configured catalog or the built-in one.
func loadCatalog(fs afero.Fs) (*catalog.Catalog, error) {
	if p := viper.GetString("catalog"); p != "" {
		return catalog.Load(fs, p)
	}
	return catalog.Default(), nil
}

// selectImage returns the HEX file to flash and a title for it.
func selectImage(fs afero.Fs, args []string, board, version string) (string, string, error) {
	switch {
	case len(args) == 1 && board != "":
		return "", "", errors.New("give either a file or --board, not both")
	case len(args) == 1:
		return args[0], filepath.Base(args[0]), nil
	case board == "":
		return "", "", errors.New("requires a file argument or --board")
	}

	c, err := loadCatalog(fs)
	if err != nil {
		return "", "", err
	}
	b, err := c.Board(board)
	if err != nil {
		return "", "", err
	}

	var fw catalog.Firmware
	if version == "" {
		fw, err = b.Latest()
	} else {
		fw, err = b.Firmware(version)
	}
	if err != nil {
		return "", "", err
	}

	root := viper.GetString("hexs")
	if root == "" {
		root = "hexs"
	}
	path, err := catalog.Resolver{Fs: fs, Root: root}.Resolve(b, fw)
	if err != nil {
		return "", "", err
	}
	return path, fmt.Sprintf("%s %s", b.Name, fw), nil
}

func runFlash(ctx context.Context, out io.Writer, path, title string) (avrflash.Result, error) {
	opts, err := flasherOptions()
	if err != nil {
		return avrflash.Result{}, err
	}

	last := avrflash.Phase(-1)
	opts = append(opts, avrflash.WithProgress(func(p avrflash.Progress) {
		if p.Phase == last {
			return
		}
		last = p.Phase
		if p.Port != "" {
			fmt.Fprintf(out, "==> %s (%s)\n", p.Phase, p.Port)
		} else {
			fmt.Fprintf(out, "==> %s\n", p.Phase)
		}
	}))

	f, err := avrflash.New(opts...)
	if err != nil {
		return avrflash.Result{}, err
	}

	fmt.Fprintf(out, "Flashing %s\n", title)
	return f.Flash(ctx, path), nil
}

// runFlashTUI runs the flash and the progress view side by side. Quitting
// the view cancels the flash until the device is erased; the flash finishing
// ends the view.
func runFlashTUI(ctx context.Context, path, title string) (avrflash.Result, error) {
	if err := setupLogging(io.Discard); err != nil {
		return avrflash.Result{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := models.NewFlashModel(title, path, cancel)
	m.SetLinkInfo(&components.LinkInfo{
		ResetBaud:  viper.GetInt("reset-baud"),
		UploadBaud: viper.GetInt("upload-baud"),
	})
	p := tea.NewProgram(m)

	opts, err := flasherOptions()
	if err != nil {
		return avrflash.Result{}, err
	}
	opts = append(opts, avrflash.WithProgress(func(pr avrflash.Progress) {
		p.Send(models.ProgressMsg(pr))
	}))
	f, err := avrflash.New(opts...)
	if err != nil {
		return avrflash.Result{}, err
	}

	var res avrflash.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res = f.Flash(gctx, path)
		p.Send(models.DoneMsg{Result: res})
		return nil
	})
	g.Go(func() error {
		_, err := p.Run()
		cancel()
		return err
	})

	if err := g.Wait(); err != nil {
		return res, fmt.Errorf("progress view: %w", err)
	}
	return res, nil
}
