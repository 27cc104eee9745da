package dictionary

import (
	"encoding/binary"
	"testing"

	"github.com/zcodeworks/zgo/zcore"
	"github.com/zcodeworks/zgo/zstring"
)

// buildDictionaryStory assembles a minimal v3 header plus a two-separator,
// two-entry dictionary table ("north", "south") so ParseDictionary
// and Find can be exercised without an external story file.
func buildDictionaryStory(t *testing.T) (*zcore.Core, *dictionaryFixture) {
	t.Helper()

	const dictionaryBase = 0x40

	mem := make([]uint8, dictionaryBase)
	mem[0] = 3
	binary.BigEndian.PutUint16(mem[0x08:0x0a], dictionaryBase)

	alphabets := zstring.LoadAlphabets(3, mem, 0)

	north := zstring.Encode([]rune("north"), 3, alphabets)
	south := zstring.Encode([]rune("south"), 3, alphabets)

	dict := []uint8{2, '.', ','} // 2 input codes
	dict = append(dict, 4)       // entry length (v3: 4 bytes/entry)
	dict = append(dict, 0, 2)    // 2 entries, sorted
	dict = append(dict, north...)
	dict = append(dict, south...)

	mem = append(mem, dict...)
	for len(mem) < 128 {
		mem = append(mem, 0)
	}
	binary.BigEndian.PutUint16(mem[0x0e:0x10], uint16(len(mem)))

	core, err := zcore.LoadCore(mem)
	if err != nil {
		t.Fatalf("LoadCore: %v", err)
	}
	return core, &dictionaryFixture{alphabets: alphabets, north: north, south: south, base: dictionaryBase}
}

type dictionaryFixture struct {
	alphabets    *zstring.Alphabets
	north, south []uint8
	base         uint32
}

func TestParseDictionaryHeader(t *testing.T) {
	core, fx := buildDictionaryStory(t)

	dict, err := ParseDictionary(core, fx.base, fx.alphabets)
	if err != nil {
		t.Fatalf("ParseDictionary: %v", err)
	}

	if len(dict.Header.InputCodes) != 2 || dict.Header.InputCodes[0] != '.' || dict.Header.InputCodes[1] != ',' {
		t.Errorf("unexpected input codes %v", dict.Header.InputCodes)
	}
	if dict.Header.EntryBytes != 4 {
		t.Errorf("expected entry length 4, got %d", dict.Header.EntryBytes)
	}
	if dict.Header.Count != 2 {
		t.Errorf("expected 2 entries, got %d", dict.Header.Count)
	}
}

func TestDictionaryFind(t *testing.T) {
	core, fx := buildDictionaryStory(t)

	dict, err := ParseDictionary(core, fx.base, fx.alphabets)
	if err != nil {
		t.Fatalf("ParseDictionary: %v", err)
	}

	if addr := dict.Find(fx.north); addr == 0 {
		t.Error("expected to find \"north\" in the dictionary")
	}
	if addr := dict.Find(fx.south); addr == 0 {
		t.Error("expected to find \"south\" in the dictionary")
	}

	unknown := zstring.Encode([]rune("xyzzy"), 3, fx.alphabets)
	if addr := dict.Find(unknown); addr != 0 {
		t.Errorf("expected \"xyzzy\" to be absent, got address 0x%x", addr)
	}
}
