/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/allbin/avrflash"
	"github.com/allbin/avrflash/internal/logging"
)

var (
	cfgFile   string
	logger    = zerolog.Nop()
	logCloser io.Closer
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "avrflash",
	Short: "Flash Intel HEX firmware to Caterina (AVR109) boards",
	Long: `avrflash uploads firmware to ATmega32U4 boards running the Caterina
bootloader, such as the N32B MIDI controller.

The board is reset into its bootloader with a 1200 baud touch, the
bootloader port is discovered by USB vendor and product ID, and the image
is programmed and verified over the AVR109 protocol.

Settings can be given as flags, in $HOME/.avrflash.yaml or as AVRFLASH_*
environment variables (for example AVRFLASH_UPLOAD_BAUD=57600).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := bindCatalogFlags(cmd); err != nil {
			return err
		}
		return setupLogging(os.Stderr)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.avrflash.yaml)")
	flags.String("log-level", "warn", "Log level: trace, debug, info, warn, error")
	flags.String("log-file", "", "Also write JSON logs to this file (rotated)")
	flags.Int("reset-baud", avrflash.DefaultResetBaud, "Baud rate of the bootloader reset touch")
	flags.Int("upload-baud", avrflash.DefaultUploadBaud, "Baud rate used to talk to the bootloader")
	flags.String("signature", avrflash.DefaultSignature, "Expected bootloader software identifier")
	flags.Int("discovery-attempts", avrflash.DefaultDiscoveryAttempts, "Enumeration attempts when looking for a port")
	flags.Duration("discovery-interval", avrflash.DefaultDiscoveryInterval, "Delay between enumeration attempts")
	flags.StringSlice("reset-id", nil, "Allowed vid[:pid] of the application port (repeatable)")
	flags.StringSlice("upload-id", nil, "Allowed vid[:pid] of the bootloader port (repeatable)")

	for _, name := range []string{
		"log-level", "log-file", "reset-baud", "upload-baud", "signature",
		"discovery-attempts", "discovery-interval", "reset-id", "upload-id",
	} {
		cobra.CheckErr(viper.BindPFlag(name, flags.Lookup(name)))
	}
}

// flash and firmware both define the catalog flags, so they are bound to
// their keys only for the command that runs.
func bindCatalogFlags(cmd *cobra.Command) error {
	for _, name := range []string{"catalog", "hexs"} {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := viper.BindPFlag(name, f); err != nil {
				return err
			}
		}
	}
	return nil
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".avrflash")
	}

	viper.SetEnvPrefix("AVRFLASH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setupLogging replaces the package logger. console receives the human
// readable output; the TUI passes io.Discard so log lines do not tear the
// screen.
func setupLogging(console io.Writer) error {
	if logCloser != nil {
		logCloser.Close()
	}

	l, closer, err := logging.New(logging.Options{
		Level:   viper.GetString("log-level"),
		File:    viper.GetString("log-file"),
		Console: console,
	})
	if err != nil {
		return err
	}
	logger = l
	logCloser = closer
	return nil
}

// flasherOptions builds the flasher configuration from flags, config file
// and environment.
func flasherOptions() ([]avrflash.Option, error) {
	opts := []avrflash.Option{
		avrflash.WithLogger(logger),
		avrflash.WithResetBaud(viper.GetInt("reset-baud")),
		avrflash.WithUploadBaud(viper.GetInt("upload-baud")),
		avrflash.WithSignature(viper.GetString("signature")),
		avrflash.WithDiscovery(
			viper.GetInt("discovery-attempts"),
			viper.GetDuration("discovery-interval"),
			avrflash.DefaultEnumerationTimeout,
		),
	}

	for _, r := range []struct {
		key  string
		role avrflash.Role
	}{
		{"reset-id", avrflash.RoleReset},
		{"upload-id", avrflash.RoleUpload},
	} {
		ids, err := parseIdentities(viper.GetStringSlice(r.key))
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", r.key, err)
		}
		if len(ids) > 0 {
			opts = append(opts, avrflash.WithIdentities(r.role, ids...))
		}
	}
	return opts, nil
}

func parseIdentities(values []string) ([]avrflash.Identity, error) {
	var ids []avrflash.Identity
	for _, v := range values {
		id, err := avrflash.ParseIdentity(v)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
