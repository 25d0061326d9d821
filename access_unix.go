//go:build unix

package avrflash

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// checkAccess reports a missing device or missing permissions before the
// open call, which on some platforms only returns a generic error.
func checkAccess(path string) error {
	err := unix.Access(path, unix.R_OK|unix.W_OK)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.ENOENT):
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, path)
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return fmt.Errorf("%w: %s", ErrPermissionDenied, path)
	default:
		// Let the open itself report anything else.
		return nil
	}
}
