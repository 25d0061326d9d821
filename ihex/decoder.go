package ihex

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"
)

// RecordType identifies the kind of an Intel HEX record.
type RecordType byte

const (
	RecordData                   RecordType = 0x00
	RecordEOF                    RecordType = 0x01
	RecordExtendedSegmentAddress RecordType = 0x02
	RecordStartSegmentAddress    RecordType = 0x03
	RecordExtendedLinearAddress  RecordType = 0x04
	RecordStartLinearAddress     RecordType = 0x05
)

const (
	// MaxImageSize bounds the decoded image so a stray extended address record
	// cannot trigger a huge allocation.
	MaxImageSize = 16 << 20

	// recordOverhead is length + address(2) + type + checksum
	recordOverhead = 5

	// minRecordChars is ':' plus the overhead in hex digits
	minRecordChars = 1 + recordOverhead*2

	// maxRecordChars is the longest valid record, with slack for a trailing
	// CR and whitespace.
	maxRecordChars = minRecordChars + 255*2 + 8

	erasedByte = 0xFF
)

// Record is a single decoded line of an Intel HEX file.
type Record struct {
	Type    RecordType
	Address uint16
	Data    []byte
}

// Image is a flat, zero-based flash image. It is immutable once decoded.
type Image struct {
	data []byte

	// StartAddress is the entry point from a type 03/05 record, if present
	StartAddress uint32
	HasStart     bool
}

// Len returns the number of bytes in the image.
func (img *Image) Len() int {
	return len(img.data)
}

// Bytes returns a copy of the image contents.
func (img *Image) Bytes() []byte {
	out := make([]byte, len(img.data))
	copy(out, img.data)
	return out
}

// DecodeFile reads and decodes the Intel HEX file at path.
func DecodeFile(fs afero.Fs, path string) (*Image, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open hex file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Decode(f)
}

// DecodeBytes decodes an in-memory Intel HEX image.
func DecodeBytes(data []byte) (*Image, error) {
	return Decode(bytes.NewReader(data))
}

// Decode parses Intel HEX text from r. Decoding stops at the end-of-file
// record; anything after it is ignored.
func Decode(r io.Reader) (*Image, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 256), maxRecordChars)

	img := &Image{}
	var base uint32
	lineNum := 0
	sawEOF := false

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		rec, err := ParseRecord(line)
		if err != nil {
			return nil, &RecordError{Line: lineNum, Reason: err.Error()}
		}

		switch rec.Type {
		case RecordData:
			addr := base + uint32(rec.Address)
			if err := img.write(addr, rec.Data); err != nil {
				return nil, &RecordError{Line: lineNum, Reason: err.Error()}
			}
		case RecordEOF:
			sawEOF = true
		case RecordExtendedSegmentAddress:
			base = uint32(rec.Data[0])<<12 | uint32(rec.Data[1])<<4
		case RecordExtendedLinearAddress:
			base = uint32(rec.Data[0])<<24 | uint32(rec.Data[1])<<16
		case RecordStartSegmentAddress, RecordStartLinearAddress:
			img.StartAddress = uint32(rec.Data[0])<<24 | uint32(rec.Data[1])<<16 |
				uint32(rec.Data[2])<<8 | uint32(rec.Data[3])
			img.HasStart = true
		}

		if sawEOF {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, &RecordError{Line: lineNum + 1, Reason: "record too long"}
		}
		return nil, fmt.Errorf("failed to read hex image: %w", err)
	}

	if !sawEOF {
		return nil, &RecordError{Line: lineNum, Reason: "missing end-of-file record"}
	}

	return img, nil
}

// ParseRecord decodes and validates a single record line (with leading ':').
func ParseRecord(line string) (*Record, error) {
	if len(line) == 0 || line[0] != ':' {
		return nil, fmt.Errorf("missing start code ':'")
	}
	if len(line) < minRecordChars {
		return nil, fmt.Errorf("record too short: %d characters", len(line))
	}
	if (len(line)-1)%2 != 0 {
		return nil, fmt.Errorf("odd number of hex digits")
	}

	raw, err := hex.DecodeString(line[1:])
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %v", err)
	}

	declared := int(raw[0])
	if len(raw) != declared+recordOverhead {
		return nil, fmt.Errorf("declared length %d does not match payload length %d",
			declared, len(raw)-recordOverhead)
	}

	if sum := checksum(raw[:len(raw)-1]); sum != raw[len(raw)-1] {
		return nil, fmt.Errorf("checksum mismatch: expected 0x%02X, got 0x%02X",
			sum, raw[len(raw)-1])
	}

	rec := &Record{
		Type:    RecordType(raw[3]),
		Address: uint16(raw[1])<<8 | uint16(raw[2]),
		Data:    raw[4 : 4+declared],
	}

	if want, fixed := fixedLength(rec.Type); fixed && declared != want {
		return nil, fmt.Errorf("record type 0x%02X requires length %d, got %d",
			byte(rec.Type), want, declared)
	}
	if rec.Type > RecordStartLinearAddress {
		return nil, fmt.Errorf("unknown record type 0x%02X", byte(rec.Type))
	}

	return rec, nil
}

// fixedLength returns the mandatory data length for non-data record types.
func fixedLength(t RecordType) (int, bool) {
	switch t {
	case RecordEOF:
		return 0, true
	case RecordExtendedSegmentAddress, RecordExtendedLinearAddress:
		return 2, true
	case RecordStartSegmentAddress, RecordStartLinearAddress:
		return 4, true
	default:
		return 0, false
	}
}

// checksum returns the two's complement of the byte sum.
func checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return -sum
}

func (img *Image) write(addr uint32, data []byte) error {
	end := uint64(addr) + uint64(len(data))
	if end > MaxImageSize {
		return fmt.Errorf("address 0x%X exceeds maximum image size", end)
	}

	if n := int(end); n > len(img.data) {
		old := len(img.data)
		if n > cap(img.data) {
			grown := make([]byte, old, max(n, 2*cap(img.data)))
			copy(grown, img.data)
			img.data = grown
		}
		img.data = img.data[:n]
		for i := old; i < n; i++ {
			img.data[i] = erasedByte
		}
	}

	copy(img.data[addr:], data)
	return nil
}
