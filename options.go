package avrflash

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Defaults used by DefaultConfig.
const (
	DefaultResetBaud          = 1200
	DefaultUploadBaud         = 57600
	DefaultResetSettle        = 250 * time.Millisecond
	DefaultBootloaderDelay    = time.Second
	DefaultReadTimeout        = 100 * time.Millisecond
	DefaultCommandTimeout     = time.Second
	DefaultEraseTimeout       = 10 * time.Second
	DefaultDiscoveryAttempts  = 5
	DefaultDiscoveryInterval  = 500 * time.Millisecond
	DefaultEnumerationTimeout = 10 * time.Second
	DefaultSignature          = "CATERIN"
)

// Config holds the settings for a Flasher.
type Config struct {
	ResetBaud          int
	UploadBaud         int
	ResetSettle        time.Duration
	BootloaderDelay    time.Duration
	ReadTimeout        time.Duration
	CommandTimeout     time.Duration
	EraseTimeout       time.Duration
	DiscoveryAttempts  int
	DiscoveryInterval  time.Duration
	EnumerationTimeout time.Duration
	Signature          string

	ResetIdentities  []Identity
	UploadIdentities []Identity

	Logger   zerolog.Logger
	Progress ProgressFunc
	Clock    clockwork.Clock
	Fs       afero.Fs
	Lister   ListFunc
	Opener   OpenFunc
}

// Option is a functional option for configuring a Flasher
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		ResetBaud:          DefaultResetBaud,
		UploadBaud:         DefaultUploadBaud,
		ResetSettle:        DefaultResetSettle,
		BootloaderDelay:    DefaultBootloaderDelay,
		ReadTimeout:        DefaultReadTimeout,
		CommandTimeout:     DefaultCommandTimeout,
		EraseTimeout:       DefaultEraseTimeout,
		DiscoveryAttempts:  DefaultDiscoveryAttempts,
		DiscoveryInterval:  DefaultDiscoveryInterval,
		EnumerationTimeout: DefaultEnumerationTimeout,
		Signature:          DefaultSignature,
		ResetIdentities:    DefaultResetIdentities(),
		UploadIdentities:   DefaultUploadIdentities(),
		Logger:             zerolog.Nop(),
		Clock:              clockwork.NewRealClock(),
		Fs:                 afero.NewOsFs(),
		Lister:             ListPorts,
		Opener:             Open,
	}
}

// WithResetBaud sets the baud rate used for the reset touch
func WithResetBaud(rate int) Option {
	return func(c *Config) error {
		if !validBaudRates[rate] {
			return fmt.Errorf("reset baud %d: %w", rate, ErrInvalidBaudRate)
		}
		c.ResetBaud = rate
		return nil
	}
}

// WithUploadBaud sets the baud rate used to talk to the bootloader
func WithUploadBaud(rate int) Option {
	return func(c *Config) error {
		if !validBaudRates[rate] {
			return fmt.Errorf("upload baud %d: %w", rate, ErrInvalidBaudRate)
		}
		c.UploadBaud = rate
		return nil
	}
}

// WithResetSettle sets how long DTR is held low during the reset touch
func WithResetSettle(d time.Duration) Option {
	return func(c *Config) error {
		if d < 0 {
			return ErrInvalidConfig
		}
		c.ResetSettle = d
		return nil
	}
}

// WithBootloaderDelay sets the wait between reset and upload port discovery
func WithBootloaderDelay(d time.Duration) Option {
	return func(c *Config) error {
		if d < 0 {
			return ErrInvalidConfig
		}
		c.BootloaderDelay = d
		return nil
	}
}

// WithTimeouts sets the port read timeout and the per-command and erase
// response timeouts
func WithTimeouts(read, command, erase time.Duration) Option {
	return func(c *Config) error {
		if read <= 0 || command <= 0 || erase <= 0 {
			return ErrInvalidConfig
		}
		c.ReadTimeout = read
		c.CommandTimeout = command
		c.EraseTimeout = erase
		return nil
	}
}

// WithDiscovery sets the enumeration polling budget
func WithDiscovery(attempts int, interval, timeout time.Duration) Option {
	return func(c *Config) error {
		if attempts < 1 || interval <= 0 || timeout < 0 {
			return ErrInvalidConfig
		}
		c.DiscoveryAttempts = attempts
		c.DiscoveryInterval = interval
		c.EnumerationTimeout = timeout
		return nil
	}
}

// WithSignature sets the expected bootloader software identifier
func WithSignature(sig string) Option {
	return func(c *Config) error {
		if sig == "" {
			return fmt.Errorf("%w: empty signature", ErrInvalidConfig)
		}
		c.Signature = sig
		return nil
	}
}

// WithIdentities replaces the allow-list for a role
func WithIdentities(role Role, ids ...Identity) Option {
	return func(c *Config) error {
		if len(ids) == 0 {
			return fmt.Errorf("%w: empty %s allow-list", ErrInvalidConfig, role)
		}
		if role == RoleReset {
			c.ResetIdentities = ids
		} else {
			c.UploadIdentities = ids
		}
		return nil
	}
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(c *Config) error {
		c.Logger = l
		return nil
	}
}

// WithProgress sets the progress callback
func WithProgress(fn ProgressFunc) Option {
	return func(c *Config) error {
		c.Progress = fn
		return nil
	}
}

// WithClock sets the clock used for delays and timeouts
func WithClock(clock clockwork.Clock) Option {
	return func(c *Config) error {
		if clock == nil {
			return ErrInvalidConfig
		}
		c.Clock = clock
		return nil
	}
}

// WithFs sets the filesystem HEX files are read from
func WithFs(fs afero.Fs) Option {
	return func(c *Config) error {
		if fs == nil {
			return ErrInvalidConfig
		}
		c.Fs = fs
		return nil
	}
}

// WithLister sets the port enumerator
func WithLister(fn ListFunc) Option {
	return func(c *Config) error {
		if fn == nil {
			return ErrInvalidConfig
		}
		c.Lister = fn
		return nil
	}
}

// WithOpener sets the function used to open ports
func WithOpener(fn OpenFunc) Option {
	return func(c *Config) error {
		if fn == nil {
			return ErrInvalidConfig
		}
		c.Opener = fn
		return nil
	}
}
