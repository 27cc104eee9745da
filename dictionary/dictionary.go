// Package dictionary implements the Z-machine word dictionary (C7): header
// parsing (separators, entry length/count) and entry lookup for parsing
// player input.
package dictionary

import (
	"bytes"

	"github.com/zcodeworks/zgo/zcore"
	"github.com/zcodeworks/zgo/zstring"
)

// Header describes a dictionary's word-separator set and entry layout.
// A negative Count means the entries are unsorted (linear, not binary,
// search) — ParseDictionary still builds an in-memory slice either way,
// Find always does a linear scan over it.
type Header struct {
	InputCodes []uint8
	EntryBytes uint8
	Count      int16
}

type entry struct {
	address     uint16
	encodedWord []uint8
	decodedWord string
}

type Dictionary struct {
	Header  Header
	entries []entry
}

// ParseDictionary reads the dictionary table rooted at baseAddress.
func ParseDictionary(core *zcore.Core, baseAddress uint32, alphabets *zstring.Alphabets) (*Dictionary, error) {
	memory := core.Raw()

	numInputCodes, err := core.ReadByte(baseAddress)
	if err != nil {
		return nil, err
	}

	inputCodes, err := core.ReadBytes(baseAddress+1, uint32(numInputCodes))
	if err != nil {
		return nil, err
	}
	entryBytes, err := core.ReadByte(baseAddress + 1 + uint32(numInputCodes))
	if err != nil {
		return nil, err
	}
	rawCount, err := core.ReadWord(uint32(baseAddress) + 2 + uint32(numInputCodes))
	if err != nil {
		return nil, err
	}
	count := int16(rawCount)

	header := Header{
		InputCodes: append([]uint8{}, inputCodes...),
		EntryBytes: entryBytes,
		Count:      count,
	}

	absCount := int(count)
	if absCount < 0 {
		absCount = -absCount
	}

	encodedWordLength := 4
	if core.Version > 3 {
		encodedWordLength = 6
	}

	entryPtr := baseAddress + 4 + uint32(numInputCodes)
	entries := make([]entry, absCount)

	for ix := 0; ix < absCount; ix++ {
		encodedWord, err := core.ReadBytes(entryPtr, uint32(encodedWordLength))
		if err != nil {
			return nil, err
		}
		decodedWord, _, err := zstring.Decode(memory, entryPtr, core.Version, alphabets, core.AbbreviationTableBase)
		if err != nil {
			return nil, err
		}

		entries[ix] = entry{
			address:     uint16(entryPtr),
			encodedWord: append([]uint8{}, encodedWord...),
			decodedWord: decodedWord,
		}

		entryPtr += uint32(header.EntryBytes)
	}

	return &Dictionary{Header: header, entries: entries}, nil
}

// Find returns the dictionary address of zstr's entry, or 0 if the word
// isn't in the dictionary (a perfectly normal outcome: unrecognised words
// are a parser concern, not an interpreter error).
func (d *Dictionary) Find(zstr []uint8) uint16 {
	for _, e := range d.entries {
		if bytes.Equal(e.encodedWord, zstr) {
			return e.address
		}
	}
	return 0
}
