// Package avrflash flashes firmware onto USB boards that run the Caterina
// (AVR109) bootloader, such as Arduino Leonardo/Micro derivatives and the
// N32B MIDI controllers, without an external programmer.
//
// # Basic Usage
//
// Flash an Intel HEX file onto the first matching board:
//
//	f, err := avrflash.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res := f.Flash(ctx, "firmware.hex")
//	if !res.OK() {
//	    log.Fatal(res.Message())
//	}
//
// A flash decodes the image, finds the board by USB vendor identifier,
// resets it into the bootloader with a 1200-baud touch, waits for the
// bootloader port to appear, then erases, programs and verifies flash
// before starting the new application.
//
// # Configuration Options
//
// Use functional options for custom configuration:
//
//	f, err := avrflash.New(
//	    avrflash.WithUploadBaud(57600),
//	    avrflash.WithDiscovery(10, 250*time.Millisecond, 10*time.Second),
//	    avrflash.WithIdentities(avrflash.RoleUpload, avrflash.Identity{VendorID: "2341", ProductID: "0036"}),
//	    avrflash.WithLogger(logger),
//	    avrflash.WithProgress(func(p avrflash.Progress) {
//	        fmt.Printf("%s %.0f%%\n", p.Phase, p.Fraction()*100)
//	    }),
//	)
//
// # Port Discovery
//
// List available serial ports with their USB identity:
//
//	ports, err := avrflash.ListPorts()
//	for _, p := range ports {
//	    fmt.Printf("%s: %s (VID=%s PID=%s Serial=%s)\n",
//	        p.Path, p.Description, p.VendorID, p.ProductID, p.SerialNumber)
//	}
//
// # Error Handling
//
// Flash never panics or returns a bare error; failures are reported in the
// Result with a Kind:
//
//	res := f.Flash(ctx, path)
//	switch res.Kind {
//	case avrflash.KindPortNotFound:
//	    // no board plugged in
//	case avrflash.KindVerificationFailed:
//	    off, _ := res.Offset()
//	    fmt.Printf("read-back differs at 0x%04X\n", off)
//	}
//
// Errors also match the package sentinels with errors.Is.
//
// # Default Configuration
//
//   - ResetBaud: 1200
//   - UploadBaud: 57600
//   - ResetSettle: 250ms
//   - BootloaderDelay: 1s
//   - ReadTimeout: 100ms
//   - CommandTimeout: 1s (erase: 10s)
//   - Discovery: 5 attempts, 500ms apart, 10s overall
//   - Signature: "CATERIN"
package avrflash
