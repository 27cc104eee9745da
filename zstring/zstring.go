// Package zstring implements the Z-machine's Z-character text encoding:
// packing/unpacking 5-bit codes three to a word, the three standard
// alphabets (with V5+ custom alphabet tables), abbreviations and the
// 10-bit ZSCII escape.
package zstring

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrTruncatedString is returned when a Z-string runs off the end of memory
// without ever setting the end-of-string bit on a word.
var ErrTruncatedString = errors.New("zstring: truncated string (no terminating word)")

var a0Default = [26]byte{'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h', 'i', 'j', 'k', 'l', 'm', 'n', 'o', 'p', 'q', 'r', 's', 't', 'u', 'v', 'w', 'x', 'y', 'z'}
var a1Default = [26]byte{'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H', 'I', 'J', 'K', 'L', 'M', 'N', 'O', 'P', 'Q', 'R', 'S', 'T', 'U', 'V', 'W', 'X', 'Y', 'Z'}
var a2V1 = [26]byte{0 /* unused, escape handled separately */, '0', '1', '2', '3', '4', '5', '6', '7', '8', '9', '.', ',', '!', '?', '_', '#', '\'', '"', '/', '\\', '<', '-', ':', '(', ')'}
var a2Default = [26]byte{0, '\n', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9', '.', ',', '!', '?', '_', '#', '\'', '"', '/', '\\', '-', ':', '(', ')'}

// Alphabets holds the three 26-entry alphabet tables used to decode/encode
// Z-characters 6-31. V5+ story files may supply a custom table at
// header.AlphabetTableBase (3*26 bytes); everything else falls back to the
// version-appropriate default table.
type Alphabets struct {
	A0, A1, A2 [26]byte
}

// LoadAlphabets builds the alphabet set for a story, consulting its custom
// alphabet table (V5+, when present) and falling back to the standard
// tables defined by the Z-machine spec for the given version otherwise.
func LoadAlphabets(version uint8, memory []uint8, alphabetTableBase uint16) *Alphabets {
	a := &Alphabets{A0: a0Default, A1: a1Default}
	if version == 1 {
		a.A2 = a2V1
	} else {
		a.A2 = a2Default
	}

	if version >= 5 && alphabetTableBase != 0 {
		base := uint32(alphabetTableBase)
		if int(base)+78 <= len(memory) {
			copy(a.A0[:], memory[base:base+26])
			copy(a.A1[:], memory[base+26:base+52])
			copy(a.A2[:], memory[base+52:base+78])
			// Slot 0 of A2 (Z-character 6) is the ZSCII escape and slot 1
			// (Z-character 7) is newline, even in a custom table.
			a.A2[0] = 0
			a.A2[1] = '\n'
		}
	}

	return a
}

func (a *Alphabets) lookup(alphabet int, zchr uint8) byte {
	table := &a.A0
	switch alphabet {
	case 1:
		table = &a.A1
	case 2:
		table = &a.A2
	}
	idx := int(zchr) - 6
	if idx < 0 || idx >= len(table) {
		return '?'
	}
	return table[idx]
}

// zcharStream unpacks the 5-bit codes from a run of big-endian words,
// stopping at the first word with its high bit set (the end-of-string
// marker), per the Z-machine encoding.
func zcharStream(memory []uint8, addr uint32) ([]uint8, uint32, error) {
	var stream []uint8
	ptr := addr

	for {
		if int(ptr)+2 > len(memory) {
			return nil, 0, fmt.Errorf("%w: at 0x%x", ErrTruncatedString, addr)
		}
		w := binary.BigEndian.Uint16(memory[ptr : ptr+2])
		ptr += 2

		stream = append(stream, uint8((w>>10)&0b11111), uint8((w>>5)&0b11111), uint8(w&0b11111))

		if w>>15 == 1 {
			break
		}
	}

	return stream, ptr - addr, nil
}

// Decode reads a Z-string starting at addr and returns its text plus the
// number of bytes consumed (always a multiple of 2). Abbreviation
// references are expanded recursively; an abbreviation string may not
// itself contain an abbreviation reference (non-nesting, per spec).
func Decode(memory []uint8, addr uint32, version uint8, alphabets *Alphabets, abbreviationTableBase uint16) (string, uint32, error) {
	return decode(memory, addr, version, alphabets, abbreviationTableBase, true)
}

func decode(memory []uint8, addr uint32, version uint8, alphabets *Alphabets, abbreviationTableBase uint16, allowAbbreviations bool) (string, uint32, error) {
	zchrStream, bytesRead, err := zcharStream(memory, addr)
	if err != nil {
		return "", 0, err
	}

	var out []rune
	baseAlphabet := 0
	currentAlphabet := 0
	nextAlphabet := 0

	for i := 0; i < len(zchrStream); i++ {
		zchr := zchrStream[i]
		currentAlphabet = nextAlphabet
		nextAlphabet = baseAlphabet

		switch zchr {
		case 0:
			out = append(out, ' ')

		case 1:
			if version == 1 {
				out = append(out, '\n')
			} else if allowAbbreviations && i+1 < len(zchrStream) {
				i++
				out = append(out, []rune(expandAbbreviation(memory, version, alphabets, abbreviationTableBase, 1, zchrStream[i]))...)
			}

		case 2, 3:
			if version >= 3 {
				if allowAbbreviations && i+1 < len(zchrStream) {
					i++
					out = append(out, []rune(expandAbbreviation(memory, version, alphabets, abbreviationTableBase, zchr, zchrStream[i]))...)
				}
			} else if zchr == 2 {
				nextAlphabet = (nextAlphabet + 1) % 3
			} else {
				nextAlphabet = (nextAlphabet + 2) % 3
			}

		case 4, 5:
			shift := 1
			if zchr == 5 {
				shift = 2
			}
			if version >= 3 {
				nextAlphabet = (currentAlphabet + shift) % 3
			} else {
				baseAlphabet = (baseAlphabet + shift) % 3
				nextAlphabet = baseAlphabet
				currentAlphabet = baseAlphabet
			}

		default:
			if currentAlphabet == 2 && zchr == 6 {
				if i+2 < len(zchrStream) {
					zscii := uint16(zchrStream[i+1])<<5 | uint16(zchrStream[i+2])
					i += 2
					out = append(out, rune(zscii))
				}
			} else {
				out = append(out, rune(alphabets.lookup(currentAlphabet, zchr)))
			}
		}
	}

	return string(out), bytesRead, nil
}

func expandAbbreviation(memory []uint8, version uint8, alphabets *Alphabets, abbreviationTableBase uint16, z uint8, x uint8) string {
	if abbreviationTableBase == 0 {
		return ""
	}
	abbrIx := 32*(uint16(z)-1) + uint16(x)
	entryAddr := uint32(abbreviationTableBase) + 2*uint32(abbrIx)
	if int(entryAddr)+2 > len(memory) {
		return ""
	}
	wordAddr := uint32(binary.BigEndian.Uint16(memory[entryAddr:entryAddr+2])) * 2

	str, _, err := decode(memory, wordAddr, version, alphabets, abbreviationTableBase, false)
	if err != nil {
		return ""
	}
	return str
}

// Encode converts runes into packed Z-characters, used to build dictionary
// lookup keys for parsing input. The result is always word-aligned: 4 bytes
// (2 words) pre-V4, 6 bytes (3 words) on V4+, padded with the shift-5 filler
// character and terminated with the end-of-string bit.
func Encode(runes []rune, version uint8, alphabets *Alphabets) []uint8 {
	wordCount := 2
	if version >= 4 {
		wordCount = 3
	}
	maxZchars := wordCount * 3

	zchars := make([]uint8, 0, maxZchars)
	for _, r := range runes {
		if len(zchars) >= maxZchars {
			break
		}
		zchars = append(zchars, encodeRune(r, version, alphabets)...)
	}
	for len(zchars) < maxZchars {
		zchars = append(zchars, 5)
	}
	zchars = zchars[:maxZchars]

	out := make([]uint8, wordCount*2)
	for w := 0; w < wordCount; w++ {
		word := uint16(zchars[w*3])<<10 | uint16(zchars[w*3+1])<<5 | uint16(zchars[w*3+2])
		if w == wordCount-1 {
			word |= 1 << 15
		}
		binary.BigEndian.PutUint16(out[w*2:w*2+2], word)
	}

	return out
}

func encodeRune(r rune, version uint8, alphabets *Alphabets) []uint8 {
	if r == ' ' {
		return []uint8{0}
	}

	// V1-2 shift to A1/A2 for one character with Z-characters 2/3; V3+ use 4/5.
	shiftA1, shiftA2 := uint8(4), uint8(5)
	if version <= 2 {
		shiftA1, shiftA2 = 2, 3
	}

	if idx := indexOf(alphabets.A0, byte(r)); idx >= 0 {
		return []uint8{uint8(idx + 6)}
	}
	if idx := indexOf(alphabets.A2, byte(r)); idx >= 1 {
		return []uint8{shiftA2, uint8(idx + 6)}
	}
	if idx := indexOf(alphabets.A1, byte(r)); idx >= 0 {
		return []uint8{shiftA1, uint8(idx + 6)}
	}

	// Not representable in any alphabet: fall back to the 10-bit ZSCII escape.
	return []uint8{shiftA2, 6, uint8(r >> 5), uint8(r & 0b11111)}
}

func indexOf(table [26]byte, b byte) int {
	for i, c := range table {
		if c == b {
			return i
		}
	}
	return -1
}
