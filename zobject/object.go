// Package zobject implements the Z-machine object tree: the version-gated
// object record layout, attribute flags, parent/sibling/child links and
// property tables (see package zobject/property.go).
package zobject

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/zcodeworks/zgo/zcore"
	"github.com/zcodeworks/zgo/zstring"
)

// ErrZeroObject is returned whenever an opcode resolves object number 0,
// which never denotes a real object.
var ErrZeroObject = errors.New("zobject: object 0 does not exist")

// Object is a decoded view over one entry of the object table. Mutators
// write straight back through to Core's dynamic memory and keep the struct
// fields in sync with what was just written.
type Object struct {
	BaseAddress     uint32
	Id              uint16
	Name            string
	Attributes      uint64 // Bytes 0-3 valid on every version; 4-5 populated V4+ only.
	Parent          uint16 // uint8 on V1-3
	Sibling         uint16 // uint8 on V1-3
	Child           uint16 // uint8 on V1-3
	PropertyPointer uint16
}

// GetObject decodes object objId out of the object table rooted at
// core.ObjectTableBase.
func GetObject(objId uint16, core *zcore.Core, alphabets *zstring.Alphabets) (Object, error) {
	if objId == 0 {
		return Object{}, ErrZeroObject
	}

	base := uint32(core.ObjectTableBase)

	if core.Version >= 4 {
		objectBase := base + 63*2 + uint32(objId-1)*14
		record, err := core.ReadBytes(objectBase, 14)
		if err != nil {
			return Object{}, fmt.Errorf("zobject: reading object %d: %w", objId, err)
		}
		propertyPtr := binary.BigEndian.Uint16(record[12:14])
		name, _, _ := zstring.Decode(core.Raw(), uint32(propertyPtr)+1, core.Version, alphabets, core.AbbreviationTableBase)

		return Object{
			Id:              objId,
			Name:            name,
			Attributes:      binary.BigEndian.Uint64(append(append([]byte{}, record[0:6]...), 0, 0)),
			Parent:          binary.BigEndian.Uint16(record[6:8]),
			Sibling:         binary.BigEndian.Uint16(record[8:10]),
			Child:           binary.BigEndian.Uint16(record[10:12]),
			PropertyPointer: propertyPtr,
			BaseAddress:     objectBase,
		}, nil
	}

	objectBase := base + 31*2 + uint32(objId-1)*9
	record, err := core.ReadBytes(objectBase, 9)
	if err != nil {
		return Object{}, fmt.Errorf("zobject: reading object %d: %w", objId, err)
	}
	propertyPtr := binary.BigEndian.Uint16(record[7:9])
	name, _, _ := zstring.Decode(core.Raw(), uint32(propertyPtr)+1, core.Version, alphabets, core.AbbreviationTableBase)

	return Object{
		Id:              objId,
		Name:            name,
		Attributes:      binary.BigEndian.Uint64(append(append([]byte{}, record[0:4]...), 0, 0, 0, 0)),
		Parent:          uint16(record[4]),
		Sibling:         uint16(record[5]),
		Child:           uint16(record[6]),
		PropertyPointer: propertyPtr,
		BaseAddress:     objectBase,
	}, nil
}

func (o *Object) TestAttribute(attribute uint16) bool {
	mask := uint64(1) << (63 - attribute)
	return o.Attributes&mask == mask
}

func (o *Object) SetAttribute(attribute uint16, core *zcore.Core) error {
	mask := uint64(1) << (63 - attribute)
	o.Attributes |= mask
	return o.writeAttributes(core)
}

func (o *Object) ClearAttribute(attribute uint16, core *zcore.Core) error {
	mask := uint64(1) << (63 - attribute)
	o.Attributes &^= mask
	return o.writeAttributes(core)
}

func (o *Object) writeAttributes(core *zcore.Core) error {
	if err := core.WriteWord(o.BaseAddress, uint16(o.Attributes>>48)); err != nil {
		return err
	}
	if err := core.WriteWord(o.BaseAddress+2, uint16(o.Attributes>>32)); err != nil {
		return err
	}
	if core.Version >= 4 {
		return core.WriteWord(o.BaseAddress+4, uint16(o.Attributes>>16))
	}
	return nil
}

func (o *Object) SetParent(parent uint16, core *zcore.Core) error {
	o.Parent = parent
	if core.Version >= 4 {
		return core.WriteWord(o.BaseAddress+6, parent)
	}
	return core.WriteByte(o.BaseAddress+4, uint8(parent))
}

func (o *Object) SetSibling(sibling uint16, core *zcore.Core) error {
	o.Sibling = sibling
	if core.Version >= 4 {
		return core.WriteWord(o.BaseAddress+8, sibling)
	}
	return core.WriteByte(o.BaseAddress+5, uint8(sibling))
}

func (o *Object) SetChild(child uint16, core *zcore.Core) error {
	o.Child = child
	if core.Version >= 4 {
		return core.WriteWord(o.BaseAddress+10, child)
	}
	return core.WriteByte(o.BaseAddress+6, uint8(child))
}
