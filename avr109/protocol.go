package avr109

// AVR109 command bytes as implemented by the Caterina bootloader.
const (
	CmdSoftwareID       byte = 'S' // 7-character programmer identifier
	CmdSoftwareVersion  byte = 'V' // two ASCII digits
	CmdHardwareVersion  byte = 'v' // answered with '?' by Caterina
	CmdProgrammerType   byte = 'p' // 'S' for serial programmer
	CmdAutoIncrement    byte = 'a' // 'Y' if addresses auto-increment
	CmdBlockSupport     byte = 'b' // 'Y' followed by the 16-bit block size
	CmdDeviceCodes      byte = 't' // supported device codes, 0x00 terminated
	CmdSetDeviceType    byte = 'T'
	CmdEnterProgramMode byte = 'P'
	CmdLeaveProgramMode byte = 'L'
	CmdReadLowFuse      byte = 'F'
	CmdReadHighFuse     byte = 'N'
	CmdReadExtendedFuse byte = 'Q'
	CmdReadLockBits     byte = 'r'
	CmdReadSignature    byte = 's'
	CmdChipErase        byte = 'e'
	CmdSetAddress       byte = 'A'
	CmdBlockWrite       byte = 'B'
	CmdBlockRead        byte = 'g'
	CmdExitBootloader   byte = 'E'
)

// MemoryFlash selects flash memory in block commands.
const MemoryFlash byte = 'F'

// Response bytes.
const (
	Ack         byte = '\r'
	Yes         byte = 'Y'
	Unsupported byte = '?'
)

const (
	// DefaultSignature is the software identifier reported by Caterina.
	DefaultSignature = "CATERIN"

	// DefaultDeviceCode is used when the device code list is empty.
	DefaultDeviceCode byte = 0x44

	// MaxBlockSize is the largest size expressible in a block command.
	MaxBlockSize = 0xFFFF

	// MaxFlashSize is the flash range reachable with a 16-bit word address.
	MaxFlashSize = 0x20000
)

// BuildSetAddress returns the 'A' command for a word address.
func BuildSetAddress(wordAddr uint16) []byte {
	return []byte{CmdSetAddress, byte(wordAddr >> 8), byte(wordAddr)}
}

// BuildBlockWrite returns the 'B' command carrying data for the given memory.
func BuildBlockWrite(memory byte, data []byte) []byte {
	n := len(data)
	cmd := make([]byte, 0, 4+n)
	cmd = append(cmd, CmdBlockWrite, byte(n>>8), byte(n), memory)
	return append(cmd, data...)
}

// BuildBlockRead returns the 'g' command reading n bytes of the given memory.
func BuildBlockRead(memory byte, n int) []byte {
	return []byte{CmdBlockRead, byte(n >> 8), byte(n), memory}
}

// BuildSetDeviceType returns the 'T' command selecting a device code.
func BuildSetDeviceType(code byte) []byte {
	return []byte{CmdSetDeviceType, code}
}
