// Package avr109 implements the host side of the AVR109 self-programming
// protocol as spoken by the Caterina USB bootloader.
//
// A Pipeline sends one command at a time and accumulates the response until
// its Completion rule is satisfied. A Session uses a Pipeline to walk the
// bootloader through negotiation, chip erase, block programming, read-back
// verification and exit:
//
//	sess := avr109.NewSession(port,
//	    avr109.WithLogger(logger),
//	    avr109.WithProgress(func(p avr109.Progress) {
//	        fmt.Printf("%s %d/%d\n", p.State, p.Done, p.Total)
//	    }),
//	)
//	if err := sess.Run(ctx, image); err != nil {
//	    var verr *avr109.VerificationError
//	    if errors.As(err, &verr) {
//	        fmt.Printf("mismatch at 0x%04X\n", verr.Offset)
//	    }
//	}
package avr109
