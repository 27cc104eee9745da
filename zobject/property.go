package zobject

import (
	"errors"
	"fmt"

	"github.com/zcodeworks/zgo/zcore"
)

// ErrInvalidPropertySet is returned when put_prop targets a property whose
// stored length isn't 1 or 2 bytes, or a property absent from the object.
var ErrInvalidPropertySet = errors.New("zobject: property cannot be set")

type Property struct {
	Id                   uint8
	Length               uint8
	Data                 []uint8
	PropertyHeaderLength uint8
	Address              uint32
	DataAddress          uint32
}

// GetPropertyLength returns the length of the property whose data starts at
// addr, working back to read the size byte(s) immediately before it. A
// zero address is the documented special case meaning "length 0".
func GetPropertyLength(core *zcore.Core, addr uint32) (uint16, error) {
	if addr == 0 {
		return 0, nil
	}

	prevByte, err := core.ReadByte(addr - 1)
	if err != nil {
		return 0, err
	}

	if core.Version <= 3 {
		return uint16(prevByte>>5) + 1, nil
	}
	if prevByte&0b1000_0000 != 0 {
		if prevByte&0b11_1111 == 0 {
			return 64, nil
		}
		return uint16(prevByte & 0b11_1111), nil
	}
	return uint16(((prevByte >> 6) & 1) + 1), nil
}

func (o *Object) propertyTableStart(core *zcore.Core) (uint32, error) {
	nameLength, err := core.ReadByte(uint32(o.PropertyPointer))
	if err != nil {
		return 0, err
	}
	return uint32(o.PropertyPointer) + 1 + uint32(nameLength)*2, nil
}

// SetProperty overwrites an existing 1- or 2-byte property's value in
// place. put_prop on a property absent from the object, or one whose
// stored width isn't 1 or 2 bytes, is an error per spec.
func (o *Object) SetProperty(propertyId uint8, value uint16, core *zcore.Core) error {
	currentPtr, err := o.propertyTableStart(core)
	if err != nil {
		return err
	}

	for {
		b, err := core.ReadByte(currentPtr)
		if err != nil {
			return err
		}
		if b == 0 {
			break
		}

		property, err := o.getPropertyByAddress(currentPtr, core)
		if err != nil {
			return err
		}

		if property.Id == propertyId {
			switch property.Length {
			case 1:
				return core.WriteByte(property.DataAddress, uint8(value))
			case 2:
				return core.WriteWord(property.DataAddress, value)
			default:
				return fmt.Errorf("%w: property %d on object %d has length %d", ErrInvalidPropertySet, propertyId, o.Id, property.Length)
			}
		}

		currentPtr += uint32(property.Length) + uint32(property.PropertyHeaderLength)
	}

	return fmt.Errorf("%w: object %d has no property %d", ErrInvalidPropertySet, o.Id, propertyId)
}

// GetProperty returns the named property, or the story's table default
// (two bytes at objectTableBase+2*(propertyId-1)) when the object doesn't
// define it.
func (o *Object) GetProperty(propertyId uint8, core *zcore.Core) (Property, error) {
	currentPtr, err := o.propertyTableStart(core)
	if err != nil {
		return Property{}, err
	}

	for {
		b, err := core.ReadByte(currentPtr)
		if err != nil {
			return Property{}, err
		}
		if b == 0 {
			break
		}

		property, err := o.getPropertyByAddress(currentPtr, core)
		if err != nil {
			return Property{}, err
		}
		if property.Id == propertyId {
			return property, nil
		}
		// Properties are strictly descending in id, so once we've passed it it's absent.
		if property.Id < propertyId {
			break
		}

		currentPtr += uint32(property.Length) + uint32(property.PropertyHeaderLength)
	}

	defaultAddr := uint32(core.ObjectTableBase) + 2*uint32(propertyId-1)
	data, err := core.ReadBytes(defaultAddr, 2)
	if err != nil {
		return Property{}, err
	}
	return Property{Id: propertyId, Data: data}, nil
}

func (o *Object) getPropertyByAddress(propertyAddr uint32, core *zcore.Core) (Property, error) {
	sizeByte, err := core.ReadByte(propertyAddr)
	if err != nil {
		return Property{}, err
	}

	length := (sizeByte >> 5) + 1
	id := sizeByte & 0b1_1111
	headerLength := uint8(1)

	if core.Version >= 4 {
		if sizeByte>>7 == 1 {
			secondByte, err := core.ReadByte(propertyAddr + 1)
			if err != nil {
				return Property{}, err
			}
			length = secondByte & 0b11_1111
			if length == 0 {
				length = 64 // 12.4.2.1.1 - a declared length of 0 means 64.
			}
			id = sizeByte & 0b11_1111
			headerLength = 2
		} else {
			length = ((sizeByte >> 6) & 1) + 1
			id = sizeByte & 0b11_1111
		}
	}

	dataAddress := propertyAddr + uint32(headerLength)
	data, err := core.ReadBytes(dataAddress, uint32(length))
	if err != nil {
		return Property{}, err
	}

	return Property{
		Id:                   id,
		Length:               length,
		Data:                 data,
		PropertyHeaderLength: headerLength,
		Address:              propertyAddr,
		DataAddress:          dataAddress,
	}, nil
}

// GetNextProperty implements get_next_prop: propertyId 0 means "return the
// id of the first property"; otherwise return the id of the property after
// propertyId, or 0 if propertyId was the last.
func (o *Object) GetNextProperty(propertyId uint8, core *zcore.Core) (uint8, error) {
	if propertyId == 0 {
		start, err := o.propertyTableStart(core)
		if err != nil {
			return 0, err
		}
		b, err := core.ReadByte(start)
		if err != nil {
			return 0, err
		}
		if b == 0 {
			return 0, nil
		}
		prop, err := o.getPropertyByAddress(start, core)
		if err != nil {
			return 0, err
		}
		return prop.Id, nil
	}

	property, err := o.GetProperty(propertyId, core)
	if err != nil {
		return 0, err
	}
	if property.DataAddress == 0 {
		return 0, fmt.Errorf("zobject: get_next_prop on absent property %d (object %d)", propertyId, o.Id)
	}

	nextPtr := property.DataAddress + uint32(property.Length)
	b, err := core.ReadByte(nextPtr)
	if err != nil {
		return 0, err
	}
	if b == 0 {
		return 0, nil
	}
	next, err := o.getPropertyByAddress(nextPtr, core)
	if err != nil {
		return 0, err
	}
	return next.Id, nil
}
