// Package ihex decodes and encodes Intel HEX firmware images.
//
// # Overview
//
// An Intel HEX file is a sequence of ASCII records, one per line:
//
//	:LLAAAATT[DD...]CC
//
// where LL is the data length, AAAA the 16-bit load offset, TT the record type,
// DD the data bytes and CC a two's complement checksum over every preceding
// byte of the record.
//
// Decode flattens the data records of a file into a zero-based Image that
// mirrors the target flash contents:
//
//	img, err := ihex.DecodeFile(afero.NewOsFs(), "firmware_v4.5.4.hex")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%d bytes\n", img.Len())
//
// Gaps between records are filled with 0xFF, the value of erased flash.
//
// # Errors
//
// Every structural problem (bad start marker, odd digit count, length or
// checksum mismatch, unknown record type, missing end-of-file record) is
// reported as a *RecordError that wraps ErrMalformedRecord:
//
//	if errors.Is(err, ihex.ErrMalformedRecord) {
//	    // reject the file
//	}
package ihex
