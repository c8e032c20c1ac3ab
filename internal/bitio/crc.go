package bitio

import (
	"errors"
	"fmt"
)

// ErrCRC is returned when a section's trailing CRC32 does not match.
var ErrCRC = errors.New("CRC32 mismatch")

// MPEG-2 CRC32, polynomial 0x04C11DB7, no reflection.
var crcTable [256]uint32

func init() {
	for i := 0; i < 256; i++ {
		crc := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if crc&0x80000000 != 0 {
				crc = (crc << 1) ^ 0x04C11DB7
			} else {
				crc <<= 1
			}
		}
		crcTable[i] = crc
	}
}

// CRC32 computes the MPEG-2 CRC32 of data. Running it over a section that
// includes its own trailing CRC yields zero.
func CRC32(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc = (crc << 8) ^ crcTable[byte(crc>>24)^b]
	}
	return crc
}

// AppendCRC32 appends the big-endian CRC32 of section to it.
func AppendCRC32(section []byte) []byte {
	crc := CRC32(section)
	return append(section, byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))
}

// VerifyCRC32 checks the trailing 4-byte CRC32 of a section.
func VerifyCRC32(section []byte) error {
	if len(section) < 4 {
		return fmt.Errorf("%d bytes too short for CRC32: %w", len(section), ErrCRC)
	}
	if CRC32(section) != 0 {
		return ErrCRC
	}
	return nil
}
