package ihex

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// DefaultRecordSize is the number of data bytes per record written by Encode.
const DefaultRecordSize = 16

// Encode writes data as Intel HEX text starting at address 0. An extended
// linear address record is emitted whenever the output crosses a 64 KiB
// boundary, and the output is terminated by an end-of-file record.
func Encode(w io.Writer, data []byte) error {
	if len(data) > MaxImageSize {
		return fmt.Errorf("image of %d bytes exceeds maximum size", len(data))
	}

	bw := bufio.NewWriter(w)
	var upper uint32

	for off := 0; off < len(data); {
		addr := uint32(off)
		if hi := addr >> 16; hi != upper {
			upper = hi
			if err := writeRecord(bw, RecordExtendedLinearAddress, 0,
				[]byte{byte(hi >> 8), byte(hi)}); err != nil {
				return err
			}
		}

		// A record never straddles a 64 KiB segment.
		n := min(DefaultRecordSize, len(data)-off, int(0x10000-(addr&0xFFFF)))
		if err := writeRecord(bw, RecordData, uint16(addr), data[off:off+n]); err != nil {
			return err
		}
		off += n
	}

	if err := writeRecord(bw, RecordEOF, 0, nil); err != nil {
		return err
	}
	return bw.Flush()
}

// EncodeString is a convenience wrapper around Encode.
func EncodeString(data []byte) (string, error) {
	var sb strings.Builder
	if err := Encode(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// FormatRecord renders a single record, including the start code and checksum.
func FormatRecord(t RecordType, addr uint16, data []byte) string {
	raw := make([]byte, 0, len(data)+recordOverhead)
	raw = append(raw, byte(len(data)), byte(addr>>8), byte(addr), byte(t))
	raw = append(raw, data...)
	raw = append(raw, checksum(raw))
	return ":" + strings.ToUpper(hex.EncodeToString(raw))
}

func writeRecord(w *bufio.Writer, t RecordType, addr uint16, data []byte) error {
	if _, err := w.WriteString(FormatRecord(t, addr, data) + "\n"); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}
