// Package ztable implements the generic table operations (print_table,
// scan_table, copy_table) shared across several opcodes, operating directly
// on a zcore.Core's bounds-checked memory.
package ztable

import (
	"strings"

	"github.com/zcodeworks/zgo/zcore"
)

// PrintTable renders a rectangular block of text starting at baddr: width
// characters per row, stopping after height rows or once as many bytes as
// the byte at baddr gives have been read, skipping skip bytes between the
// end of one row and the start of the next.
func PrintTable(core *zcore.Core, baddr uint32, width uint16, height uint16, skip uint16) (string, error) {
	numBytes, err := core.ReadByte(baddr)
	if err != nil {
		return "", err
	}
	s := strings.Builder{}

	for i := uint16(0); i < uint16(numBytes); i++ {
		row := i / width
		col := i % width

		if col == 0 && row != 0 {
			s.WriteByte('\n')
			if row == height {
				break
			}
		}

		b, err := core.ReadByte(baddr + uint32(i) + uint32(skip*row))
		if err != nil {
			return "", err
		}
		s.WriteByte(b)
	}

	return s.String(), nil
}

// ScanTable searches an array of length entries of form&0x7f bytes (or, if
// form's top bit is set, words) for test, returning the address of the
// first match or 0.
func ScanTable(core *zcore.Core, test uint16, baddr uint32, length uint16, form uint16) (uint32, error) {
	ptr := baddr
	fieldSize := form & 0b0111_1111
	checkWord := form&0b1000_0000 != 0
	if fieldSize == 0 {
		return 0, nil
	}

	for i := uint16(0); i < length; i++ {
		if !checkWord {
			b, err := core.ReadByte(ptr)
			if err != nil {
				return 0, err
			}
			if uint16(b) == test {
				return ptr, nil
			}
		} else {
			w, err := core.ReadWord(ptr)
			if err != nil {
				return 0, err
			}
			if w == test {
				return ptr, nil
			}
		}

		ptr += uint32(fieldSize)
	}

	return 0, nil
}

// CopyTable copies |size| bytes from first to second. A second of 0 zeroes
// |size| bytes of first instead. A positive size forbids overlap-induced
// corruption (copies via a temporary buffer); a negative size explicitly
// permits it (byte-by-byte, low to high).
func CopyTable(core *zcore.Core, first uint16, second uint16, size int16) error {
	sizeAbs := uint16(size)
	if size < 0 {
		sizeAbs = uint16(-size)
	}

	switch {
	case second == 0:
		for i := uint16(0); i < sizeAbs; i++ {
			if err := core.WriteByte(uint32(first)+uint32(i), 0); err != nil {
				return err
			}
		}

	case size >= 0:
		tmp, err := core.ReadBytes(uint32(first), uint32(sizeAbs))
		if err != nil {
			return err
		}
		buf := make([]byte, len(tmp))
		copy(buf, tmp)
		for i, b := range buf {
			if err := core.WriteByte(uint32(second)+uint32(i), b); err != nil {
				return err
			}
		}

	default:
		for i := uint16(0); i < sizeAbs; i++ {
			b, err := core.ReadByte(uint32(first) + uint32(i))
			if err != nil {
				return err
			}
			if err := core.WriteByte(uint32(second)+uint32(i), b); err != nil {
				return err
			}
		}
	}

	return nil
}
