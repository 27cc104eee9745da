// Package zcore implements the Z-machine's memory model (dynamic/static/high
// partitions, paged big-endian addressing) and header parsing.
package zcore

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrBounds is returned when an address falls outside the loaded image.
var ErrBounds = errors.New("address out of bounds")

// ErrStaticWrite is returned when a write targets static or high memory.
var ErrStaticWrite = errors.New("write to static or high memory")

// Core holds the flat story-file image plus the header fields parsed from it
// at load time. Header fields are cached copies of the bytes at construction;
// the handful of mutators below (SetFlag2, SetScreenDimensions, ...) keep
// them in sync with the few header slots the interpreter itself may write.
type Core struct {
	bytes                            []uint8
	dynamicSnapshot                  []uint8
	Version                          uint8
	FlagByte1                        uint8
	StatusBarTimeBased               bool
	ReleaseNumber                    uint16
	HighMemoryBase                   uint16
	FirstInstruction                 uint16
	DictionaryBase                   uint16
	ObjectTableBase                  uint16
	GlobalVariableBase               uint16
	StaticMemoryBase                 uint16
	AbbreviationTableBase            uint16
	Serial                           [6]byte
	FileChecksum                     uint16
	InterpreterNumber                uint8
	InterpreterVersion               uint8
	ScreenHeightLines                uint8
	ScreenWidthChars                 uint8
	ScreenWidthUnits                 uint16
	ScreenHeightUnits                uint16
	FontHeight                       uint8
	FontWidth                        uint8
	RoutinesOffset                   uint16
	StringOffset                     uint16
	DefaultBackgroundColorNumber     uint8
	DefaultForegroundColorNumber     uint8
	TerminatingCharTableBase         uint16
	OutputStream3Width               uint16
	StandardRevisionNumber           uint16
	AlphabetTableBase                uint16
	ExtensionTableBaseAddress        uint16
	UnicodeExtensionTableBaseAddress uint16
}

// LoadCore parses the header out of a story-file image and writes back the
// interpreter-capability fields the Z-machine spec expects a host to claim.
// The returned Core owns bytes; callers must not alias the slice afterwards.
func LoadCore(bytes []uint8) (*Core, error) {
	if len(bytes) < 64 {
		return nil, fmt.Errorf("zcore: story file too small (%d bytes)", len(bytes))
	}

	bytes[0x1e] = 0x6 // Interpreter number - IBM PC chosen as closest match
	bytes[0x1f] = 0x1 // Interpreter version

	// Typical terminal dimensions (80x25 characters, 1x1 units per char)
	bytes[0x20] = 25
	bytes[0x21] = 80
	bytes[0x22] = 0
	bytes[0x23] = 80
	bytes[0x24] = 0
	bytes[0x25] = 25
	bytes[0x26] = 1
	bytes[0x27] = 1

	bytes[0x32] = 0x1
	bytes[0x33] = 0x2

	version := bytes[0]
	if version <= 3 {
		bytes[1] |= 0b0010_0000 // split screen available
	} else {
		// colours (0x01), bold (0x04), italic (0x08), split screen (0x20)
		bytes[1] |= 0b0010_1101
	}

	extensionTableBaseAddress := binary.BigEndian.Uint16(bytes[0x36:0x38])
	unicodeExtensionTableBaseAddress := uint16(0)
	if extensionTableBaseAddress != 0 && int(extensionTableBaseAddress)+8 <= len(bytes) {
		unicodeExtensionTableBaseAddress = binary.BigEndian.Uint16(bytes[extensionTableBaseAddress+6 : extensionTableBaseAddress+8])
	}

	var serial [6]byte
	copy(serial[:], bytes[0x12:0x18])

	dynamicBase := binary.BigEndian.Uint16(bytes[0x0e:0x10])
	snapshot := make([]uint8, dynamicBase)
	copy(snapshot, bytes[:dynamicBase])

	core := &Core{
		bytes:                            bytes,
		dynamicSnapshot:                  snapshot,
		Version:                          version,
		FlagByte1:                        bytes[0x01],
		StatusBarTimeBased:               bytes[0x01]&0b0000_0010 == 0b0000_0010,
		ReleaseNumber:                    binary.BigEndian.Uint16(bytes[0x02:0x04]),
		HighMemoryBase:                   binary.BigEndian.Uint16(bytes[0x04:0x06]),
		FirstInstruction:                 binary.BigEndian.Uint16(bytes[0x06:0x08]),
		DictionaryBase:                   binary.BigEndian.Uint16(bytes[0x08:0x0a]),
		ObjectTableBase:                  binary.BigEndian.Uint16(bytes[0x0a:0x0c]),
		GlobalVariableBase:               binary.BigEndian.Uint16(bytes[0x0c:0x0e]),
		StaticMemoryBase:                 dynamicBase,
		AbbreviationTableBase:            binary.BigEndian.Uint16(bytes[0x18:0x1a]),
		Serial:                           serial,
		FileChecksum:                     binary.BigEndian.Uint16(bytes[0x1c:0x1e]),
		InterpreterNumber:                bytes[0x1e],
		InterpreterVersion:               bytes[0x1f],
		ScreenHeightLines:                bytes[0x20],
		ScreenWidthChars:                 bytes[0x21],
		ScreenWidthUnits:                 binary.BigEndian.Uint16(bytes[0x22:0x24]),
		ScreenHeightUnits:                binary.BigEndian.Uint16(bytes[0x24:0x26]),
		FontHeight:                       bytes[0x26],
		FontWidth:                        bytes[0x27],
		RoutinesOffset:                   binary.BigEndian.Uint16(bytes[0x28:0x2a]),
		StringOffset:                     binary.BigEndian.Uint16(bytes[0x2a:0x2c]),
		DefaultBackgroundColorNumber:     bytes[0x2c],
		DefaultForegroundColorNumber:     bytes[0x2d],
		TerminatingCharTableBase:         binary.BigEndian.Uint16(bytes[0x2e:0x30]),
		OutputStream3Width:               binary.BigEndian.Uint16(bytes[0x30:0x32]),
		StandardRevisionNumber:           binary.BigEndian.Uint16(bytes[0x32:0x34]),
		AlphabetTableBase:                binary.BigEndian.Uint16(bytes[0x34:0x36]),
		ExtensionTableBaseAddress:        extensionTableBaseAddress,
		UnicodeExtensionTableBaseAddress: unicodeExtensionTableBaseAddress,
	}

	return core, nil
}

// FileLength returns the story file's declared length in bytes, scaled per
// version (the header stores it divided by 2, 4 or 8).
func (c *Core) FileLength() uint32 {
	var divisor uint32
	switch {
	case c.Version <= 3:
		divisor = 2
	case c.Version <= 5:
		divisor = 4
	default:
		divisor = 8
	}
	return uint32(binary.BigEndian.Uint16(c.bytes[0x1a:0x1c])) * divisor
}

// SetFlag2 persists a flags2 bit (transcript, fixed-pitch, ...) into memory;
// flags2 is writeable by the interpreter per spec.md S2.
func (c *Core) SetFlag2(bit uint8, value bool) {
	if value {
		c.bytes[0x11] |= 1 << bit
	} else {
		c.bytes[0x11] &^= 1 << bit
	}
}

func (c *Core) Flag2(bit uint8) bool {
	return c.bytes[0x11]&(1<<bit) != 0
}

func (c *Core) SetDefaultColors(background, foreground uint8) {
	c.bytes[0x2c] = background
	c.bytes[0x2d] = foreground
	c.DefaultBackgroundColorNumber = background
	c.DefaultForegroundColorNumber = foreground
}

func (c *Core) SetScreenDimensions(widthChars, heightLines uint8, widthUnits, heightUnits uint16) {
	c.bytes[0x20] = heightLines
	c.bytes[0x21] = widthChars
	binary.BigEndian.PutUint16(c.bytes[0x22:0x24], widthUnits)
	binary.BigEndian.PutUint16(c.bytes[0x24:0x26], heightUnits)
	c.ScreenHeightLines = heightLines
	c.ScreenWidthChars = widthChars
	c.ScreenWidthUnits = widthUnits
	c.ScreenHeightUnits = heightUnits
}

func (c *Core) SetInterpreterInfo(number, version uint8) {
	c.bytes[0x1e] = number
	c.bytes[0x1f] = version
	c.InterpreterNumber = number
	c.InterpreterVersion = version
}

// Size returns the total length of the loaded image.
func (c *Core) Size() uint32 {
	return uint32(len(c.bytes))
}

// Raw exposes the underlying image for packages (zstring, zobject,
// dictionary, ztable) whose algorithms are naturally expressed over a flat
// byte slice. Callers must still respect the bounds/static-write rules
// enforced by the Read*/Write* methods below when mutating it directly.
func (c *Core) Raw() []uint8 {
	return c.bytes
}

func (c *Core) bounds(a uint32, width uint32) error {
	if uint64(a)+uint64(width) > uint64(len(c.bytes)) {
		return fmt.Errorf("%w: address 0x%x width %d (size 0x%x)", ErrBounds, a, width, len(c.bytes))
	}
	return nil
}

func (c *Core) ReadByte(a uint32) (uint8, error) {
	if err := c.bounds(a, 1); err != nil {
		return 0, err
	}
	return c.bytes[a], nil
}

// MustReadByte panics on out-of-bounds; reserved for call sites where the
// address is already known valid (e.g. derived straight from the header).
func (c *Core) MustReadByte(a uint32) uint8 {
	b, err := c.ReadByte(a)
	if err != nil {
		panic(err)
	}
	return b
}

func (c *Core) ReadWord(a uint32) (uint16, error) {
	if err := c.bounds(a, 2); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(c.bytes[a : a+2]), nil
}

func (c *Core) MustReadWord(a uint32) uint16 {
	w, err := c.ReadWord(a)
	if err != nil {
		panic(err)
	}
	return w
}

func (c *Core) ReadBytes(a uint32, n uint32) ([]uint8, error) {
	if err := c.bounds(a, n); err != nil {
		return nil, err
	}
	return c.bytes[a : a+n], nil
}

func (c *Core) WriteByte(a uint32, v uint8) error {
	if err := c.bounds(a, 1); err != nil {
		return err
	}
	if a >= uint32(c.StaticMemoryBase) {
		return fmt.Errorf("%w: byte at 0x%x", ErrStaticWrite, a)
	}
	c.bytes[a] = v
	return nil
}

func (c *Core) WriteWord(a uint32, v uint16) error {
	if err := c.bounds(a, 2); err != nil {
		return err
	}
	// A word write whose second byte lands in static memory must also fail.
	if a+1 >= uint32(c.StaticMemoryBase) {
		return fmt.Errorf("%w: word at 0x%x", ErrStaticWrite, a)
	}
	binary.BigEndian.PutUint16(c.bytes[a:a+2], v)
	return nil
}

// Restart copies the preserved dynamic-memory snapshot back over the live
// image, leaving static/high memory untouched, per spec.md S3 lifecycle.
func (c *Core) Restart() {
	copy(c.bytes[:len(c.dynamicSnapshot)], c.dynamicSnapshot)
}

// UnpackRoutine resolves a packed routine address into a byte address.
func (c *Core) UnpackRoutine(pa uint32) uint32 { return c.unpack(pa, false) }

// UnpackString resolves a packed string address into a byte address.
func (c *Core) UnpackString(pa uint32) uint32 { return c.unpack(pa, true) }

func (c *Core) unpack(pa uint32, isString bool) uint32 {
	switch {
	case c.Version <= 3:
		return 2 * pa
	case c.Version <= 5:
		return 4 * pa
	case c.Version <= 7:
		offset := uint32(c.RoutinesOffset)
		if isString {
			offset = uint32(c.StringOffset)
		}
		return 4*pa + 8*offset
	default: // V8
		return 8 * pa
	}
}
