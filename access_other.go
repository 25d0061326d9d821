//go:build !unix

package avrflash

// Windows COM names are not filesystem paths; open reports failures itself.
func checkAccess(string) error {
	return nil
}
