package zobject_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/zcodeworks/zgo/zcore"
	"github.com/zcodeworks/zgo/zobject"
	"github.com/zcodeworks/zgo/zstring"
)

// buildTestCore assembles a minimal, self-contained v3 story image with a
// two-object tree (object 2 is object 1's child) and two properties on
// object 1, so the decoders can be exercised without an external story file.
func buildTestCore(t *testing.T) (*zcore.Core, *zstring.Alphabets) {
	t.Helper()

	const objectTableBase = 0x40

	header := make([]uint8, objectTableBase)
	header[0] = 3 // version 3
	binary.BigEndian.PutUint16(header[0x0a:0x0c], objectTableBase)

	alphabets := zstring.LoadAlphabets(3, header, 0)

	mem := append([]uint8{}, header...)
	mem = append(mem, make([]uint8, 31*2)...) // default property table, unused here

	obj1Addr := uint32(len(mem))
	mem = append(mem, make([]uint8, 9)...)
	obj2Addr := uint32(len(mem))
	mem = append(mem, make([]uint8, 9)...)

	// Object 2's property table: empty short name, no properties.
	obj2PropAddr := uint32(len(mem))
	mem = append(mem, 0, 0)

	// Object 1's property table: a short name plus properties 11 and 6
	// (descending id order, as the spec requires).
	obj1PropAddr := uint32(len(mem))
	name := zstring.Encode([]rune("loft"), 3, alphabets)
	mem = append(mem, uint8(len(name)/2))
	mem = append(mem, name...)
	mem = append(mem, (2-1)<<5|11, 0x88, 0xe5) // property 11, length 2
	mem = append(mem, (1-1)<<5|6, 0x85)         // property 6, length 1
	mem = append(mem, 0)                        // terminator

	mem[obj1Addr] = 0x10 // attribute 3 set
	mem[obj1Addr+4] = 0  // parent
	mem[obj1Addr+5] = 0  // sibling
	mem[obj1Addr+6] = 2  // child
	binary.BigEndian.PutUint16(mem[obj1Addr+7:obj1Addr+9], uint16(obj1PropAddr))

	mem[obj2Addr] = 0
	mem[obj2Addr+4] = 1 // parent
	mem[obj2Addr+5] = 0
	mem[obj2Addr+6] = 0
	binary.BigEndian.PutUint16(mem[obj2Addr+7:obj2Addr+9], uint16(obj2PropAddr))

	for len(mem) < 128 {
		mem = append(mem, 0)
	}
	binary.BigEndian.PutUint16(mem[0x0e:0x10], uint16(len(mem))) // static base past everything: all dynamic

	core, err := zcore.LoadCore(mem)
	if err != nil {
		t.Fatalf("LoadCore: %v", err)
	}
	return core, alphabets
}

func TestObjectZeroIsInvalid(t *testing.T) {
	core, alphabets := buildTestCore(t)

	_, err := zobject.GetObject(0, core, alphabets)
	if !errors.Is(err, zobject.ErrZeroObject) {
		t.Errorf("expected ErrZeroObject, got %v", err)
	}
}

func TestGetObjectDecodesLinksAndName(t *testing.T) {
	core, alphabets := buildTestCore(t)

	obj, err := zobject.GetObject(1, core, alphabets)
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}

	if obj.Name != "loft" {
		t.Errorf("incorrect name %q", obj.Name)
	}
	if obj.Child != 2 {
		t.Errorf("incorrect child %d", obj.Child)
	}
	if obj.Parent != 0 || obj.Sibling != 0 {
		t.Errorf("expected no parent/sibling, got parent=%d sibling=%d", obj.Parent, obj.Sibling)
	}

	child, err := zobject.GetObject(obj.Child, core, alphabets)
	if err != nil {
		t.Fatalf("GetObject(child): %v", err)
	}
	if child.Parent != 1 {
		t.Errorf("child's parent should be 1, got %d", child.Parent)
	}
}

func TestObjectAttributes(t *testing.T) {
	core, alphabets := buildTestCore(t)

	obj, err := zobject.GetObject(1, core, alphabets)
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}

	if !obj.TestAttribute(3) {
		t.Error("attribute 3 should be set")
	}
	if obj.TestAttribute(2) || obj.TestAttribute(10) {
		t.Error("attributes 2 and 10 should not be set")
	}

	if err := obj.SetAttribute(10, core); err != nil {
		t.Fatalf("SetAttribute: %v", err)
	}
	if !obj.TestAttribute(10) {
		t.Error("setting attribute 10 didn't take")
	}

	if err := obj.ClearAttribute(10, core); err != nil {
		t.Fatalf("ClearAttribute: %v", err)
	}
	if obj.TestAttribute(10) {
		t.Error("clearing attribute 10 didn't take")
	}
	if !obj.TestAttribute(3) {
		t.Error("clearing attribute 10 should not disturb attribute 3")
	}
}

func TestObjectRelinking(t *testing.T) {
	core, alphabets := buildTestCore(t)

	obj, err := zobject.GetObject(2, core, alphabets)
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}

	if err := obj.SetParent(0, core); err != nil {
		t.Fatalf("SetParent: %v", err)
	}
	if err := obj.SetSibling(5, core); err != nil {
		t.Fatalf("SetSibling: %v", err)
	}
	if err := obj.SetChild(9, core); err != nil {
		t.Fatalf("SetChild: %v", err)
	}

	reloaded, err := zobject.GetObject(2, core, alphabets)
	if err != nil {
		t.Fatalf("GetObject(reloaded): %v", err)
	}
	if reloaded.Parent != 0 || reloaded.Sibling != 5 || reloaded.Child != 9 {
		t.Errorf("relink didn't persist: parent=%d sibling=%d child=%d", reloaded.Parent, reloaded.Sibling, reloaded.Child)
	}
}

func TestGetPropertyAndDefaults(t *testing.T) {
	core, alphabets := buildTestCore(t)

	obj, err := zobject.GetObject(1, core, alphabets)
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}

	prop6, err := obj.GetProperty(6, core)
	if err != nil {
		t.Fatalf("GetProperty(6): %v", err)
	}
	if prop6.Length != 1 || prop6.Data[0] != 0x85 {
		t.Errorf("incorrect property 6: length=%d data=%v", prop6.Length, prop6.Data)
	}

	prop11, err := obj.GetProperty(11, core)
	if err != nil {
		t.Fatalf("GetProperty(11): %v", err)
	}
	if prop11.Length != 2 || prop11.Data[0] != 0x88 || prop11.Data[1] != 0xe5 {
		t.Errorf("incorrect property 11: length=%d data=%v", prop11.Length, prop11.Data)
	}

	// Absent property falls back to the object table's default value, which
	// is all zero in this fixture.
	prop1, err := obj.GetProperty(1, core)
	if err != nil {
		t.Fatalf("GetProperty(1): %v", err)
	}
	if prop1.DataAddress != 0 {
		t.Error("property 1 shouldn't exist on object 1")
	}
	if prop1.Data[0] != 0 || prop1.Data[1] != 0 {
		t.Errorf("expected zeroed default, got %v", prop1.Data)
	}
}

func TestSetPropertyInPlace(t *testing.T) {
	core, alphabets := buildTestCore(t)

	obj, err := zobject.GetObject(1, core, alphabets)
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}

	if err := obj.SetProperty(11, 0x1234, core); err != nil {
		t.Fatalf("SetProperty: %v", err)
	}

	prop, err := obj.GetProperty(11, core)
	if err != nil {
		t.Fatalf("GetProperty: %v", err)
	}
	if prop.Data[0] != 0x12 || prop.Data[1] != 0x34 {
		t.Errorf("SetProperty didn't persist: %v", prop.Data)
	}

	if err := obj.SetProperty(1, 0xffff, core); !errors.Is(err, zobject.ErrInvalidPropertySet) {
		t.Errorf("expected ErrInvalidPropertySet for absent property, got %v", err)
	}
}

func TestGetNextProperty(t *testing.T) {
	core, alphabets := buildTestCore(t)

	obj, err := zobject.GetObject(1, core, alphabets)
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}

	first, err := obj.GetNextProperty(0, core)
	if err != nil {
		t.Fatalf("GetNextProperty(0): %v", err)
	}
	if first != 11 {
		t.Errorf("expected property 11 first (descending id order), got %d", first)
	}

	second, err := obj.GetNextProperty(11, core)
	if err != nil {
		t.Fatalf("GetNextProperty(11): %v", err)
	}
	if second != 6 {
		t.Errorf("expected property 6 after 11, got %d", second)
	}

	last, err := obj.GetNextProperty(6, core)
	if err != nil {
		t.Fatalf("GetNextProperty(6): %v", err)
	}
	if last != 0 {
		t.Errorf("expected 0 after the last property, got %d", last)
	}
}
