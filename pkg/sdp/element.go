package sdp

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/muxable/btsocket/pkg/btuuid"
	"github.com/pkg/errors"
)

// Core Specification Vol 3, Part B, Section 3.

type ElementType uint8

const (
	TypeNil  ElementType = 0
	TypeUint ElementType = 1
	TypeInt  ElementType = 2
	TypeUUID ElementType = 3
	TypeText ElementType = 4
	TypeBool ElementType = 5
	TypeSeq  ElementType = 6
	TypeAlt  ElementType = 7
	TypeURL  ElementType = 8
)

func (t ElementType) String() string {
	switch t {
	case TypeNil:
		return "nil"
	case TypeUint:
		return "uint"
	case TypeInt:
		return "int"
	case TypeUUID:
		return "uuid"
	case TypeText:
		return "text"
	case TypeBool:
		return "bool"
	case TypeSeq:
		return "sequence"
	case TypeAlt:
		return "alternate"
	case TypeURL:
		return "url"
	}
	return fmt.Sprintf("type %d", uint8(t))
}

var errMalformed = errors.New("malformed data element")

// Element is an SDP data element. Which fields are meaningful depends on Type.
type Element struct {
	Type ElementType
	// Size is the width in bytes of an integer: 1, 2, 4, 8 or 16.
	Size int

	Uint  uint64
	Int   int64
	UUID  btuuid.UUID
	Text  string
	Bool  bool
	Items []Element
	// Wide holds 16 byte integers, big endian.
	Wide []byte
}

func Nil() Element                 { return Element{Type: TypeNil} }
func Uint8(v uint8) Element        { return Element{Type: TypeUint, Size: 1, Uint: uint64(v)} }
func Uint16(v uint16) Element      { return Element{Type: TypeUint, Size: 2, Uint: uint64(v)} }
func Uint32(v uint32) Element      { return Element{Type: TypeUint, Size: 4, Uint: uint64(v)} }
func Uint64(v uint64) Element      { return Element{Type: TypeUint, Size: 8, Uint: v} }
func Int8(v int8) Element          { return Element{Type: TypeInt, Size: 1, Int: int64(v)} }
func Int16(v int16) Element        { return Element{Type: TypeInt, Size: 2, Int: int64(v)} }
func Int32(v int32) Element        { return Element{Type: TypeInt, Size: 4, Int: int64(v)} }
func Int64(v int64) Element        { return Element{Type: TypeInt, Size: 8, Int: v} }
func UUID(u btuuid.UUID) Element   { return Element{Type: TypeUUID, UUID: u} }
func Text(s string) Element        { return Element{Type: TypeText, Text: s} }
func URL(s string) Element         { return Element{Type: TypeURL, Text: s} }
func Bool(b bool) Element          { return Element{Type: TypeBool, Bool: b} }
func Seq(items ...Element) Element { return Element{Type: TypeSeq, Items: items} }
func Alt(items ...Element) Element { return Element{Type: TypeAlt, Items: items} }

var sizeIndex = map[int]byte{1: 0, 2: 1, 4: 2, 8: 3, 16: 4}

func (e Element) header(index byte) byte {
	return byte(e.Type)<<3 | index
}

// AppendBinary appends the encoding of e to buf.
func (e Element) AppendBinary(buf []byte) ([]byte, error) {
	switch e.Type {
	case TypeNil:
		return append(buf, e.header(0)), nil
	case TypeUint, TypeInt:
		idx, ok := sizeIndex[e.Size]
		if !ok {
			return nil, errors.Wrapf(errMalformed, "%v of %d bytes", e.Type, e.Size)
		}
		buf = append(buf, e.header(idx))
		if e.Size == 16 {
			if len(e.Wide) != 16 {
				return nil, errors.Wrap(errMalformed, "16 byte integer")
			}
			return append(buf, e.Wide...), nil
		}
		v := e.Uint
		if e.Type == TypeInt {
			v = uint64(e.Int)
		}
		for i := e.Size - 1; i >= 0; i-- {
			buf = append(buf, byte(v>>(8*i)))
		}
		return buf, nil
	case TypeUUID:
		b := e.UUID.Bytes()
		idx, ok := sizeIndex[len(b)]
		if !ok || e.UUID.IsZero() {
			return nil, errors.Wrap(errMalformed, "empty uuid")
		}
		return append(append(buf, e.header(idx)), b...), nil
	case TypeBool:
		v := byte(0)
		if e.Bool {
			v = 1
		}
		return append(buf, e.header(0), v), nil
	case TypeText, TypeURL:
		return e.appendVariable(buf, []byte(e.Text))
	case TypeSeq, TypeAlt:
		var body []byte
		for _, item := range e.Items {
			var err error
			if body, err = item.AppendBinary(body); err != nil {
				return nil, err
			}
		}
		return e.appendVariable(buf, body)
	}
	return nil, errors.Wrapf(errMalformed, "%v", e.Type)
}

// appendVariable writes a length prefixed element using the smallest prefix.
func (e Element) appendVariable(buf, body []byte) ([]byte, error) {
	switch n := len(body); {
	case n <= math.MaxUint8:
		buf = append(buf, e.header(5), byte(n))
	case n <= math.MaxUint16:
		buf = append(buf, e.header(6))
		buf = binary.BigEndian.AppendUint16(buf, uint16(n))
	case uint64(n) <= math.MaxUint32:
		buf = append(buf, e.header(7))
		buf = binary.BigEndian.AppendUint32(buf, uint32(n))
	default:
		return nil, errors.Wrap(errMalformed, "element too long")
	}
	return append(buf, body...), nil
}

func (e Element) MarshalBinary() ([]byte, error) {
	return e.AppendBinary(nil)
}

func (e *Element) UnmarshalBinary(buf []byte) error {
	n, err := e.decode(buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return errors.Wrapf(errMalformed, "%d trailing bytes", len(buf)-n)
	}
	return nil
}

// decode reads one element from the front of buf and returns its length.
func (e *Element) decode(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, io.ErrUnexpectedEOF
	}
	*e = Element{Type: ElementType(buf[0] >> 3)}
	idx := buf[0] & 0x07
	body := buf[1:]

	switch e.Type {
	case TypeNil:
		return 1, nil
	case TypeUint, TypeInt:
		if idx > 4 {
			return 0, errors.Wrapf(errMalformed, "%v size index %d", e.Type, idx)
		}
		e.Size = 1 << idx
		if len(body) < e.Size {
			return 0, io.ErrUnexpectedEOF
		}
		if e.Size == 16 {
			e.Wide = append([]byte(nil), body[:16]...)
			return 17, nil
		}
		var v uint64
		for _, b := range body[:e.Size] {
			v = v<<8 | uint64(b)
		}
		if e.Type == TypeUint {
			e.Uint = v
		} else {
			shift := 64 - 8*e.Size
			e.Int = int64(v<<shift) >> shift
		}
		return 1 + e.Size, nil
	case TypeUUID:
		var size int
		switch idx {
		case 1:
			size = 2
		case 2:
			size = 4
		case 4:
			size = 16
		default:
			return 0, errors.Wrapf(errMalformed, "uuid size index %d", idx)
		}
		if len(body) < size {
			return 0, io.ErrUnexpectedEOF
		}
		u, err := btuuid.FromBytes(body[:size])
		if err != nil {
			return 0, err
		}
		e.UUID = u
		return 1 + size, nil
	case TypeBool:
		if len(body) < 1 {
			return 0, io.ErrUnexpectedEOF
		}
		e.Bool = body[0] != 0
		return 2, nil
	case TypeText, TypeURL, TypeSeq, TypeAlt:
		var n, hdr int
		switch idx {
		case 5:
			if len(body) < 1 {
				return 0, io.ErrUnexpectedEOF
			}
			n, hdr = int(body[0]), 2
		case 6:
			if len(body) < 2 {
				return 0, io.ErrUnexpectedEOF
			}
			n, hdr = int(binary.BigEndian.Uint16(body)), 3
		case 7:
			if len(body) < 4 {
				return 0, io.ErrUnexpectedEOF
			}
			n, hdr = int(binary.BigEndian.Uint32(body)), 5
		default:
			return 0, errors.Wrapf(errMalformed, "%v size index %d", e.Type, idx)
		}
		if len(buf) < hdr+n {
			return 0, io.ErrUnexpectedEOF
		}
		data := buf[hdr : hdr+n]
		if e.Type == TypeText || e.Type == TypeURL {
			e.Text = string(data)
			return hdr + n, nil
		}
		for len(data) > 0 {
			var item Element
			m, err := item.decode(data)
			if err != nil {
				return 0, err
			}
			e.Items = append(e.Items, item)
			data = data[m:]
		}
		return hdr + n, nil
	}
	return 0, errors.Wrapf(errMalformed, "%v", e.Type)
}

func (e Element) String() string {
	switch e.Type {
	case TypeNil:
		return "nil"
	case TypeUint:
		return fmt.Sprintf("uint%d(0x%x)", e.Size*8, e.Uint)
	case TypeInt:
		return fmt.Sprintf("int%d(%d)", e.Size*8, e.Int)
	case TypeUUID:
		return "uuid(" + e.UUID.String() + ")"
	case TypeText:
		return fmt.Sprintf("%q", e.Text)
	case TypeURL:
		return "url(" + e.Text + ")"
	case TypeBool:
		return fmt.Sprint(e.Bool)
	}
	s := "["
	if e.Type == TypeAlt {
		s = "alt["
	}
	for i, item := range e.Items {
		if i > 0 {
			s += " "
		}
		s += item.String()
	}
	return s + "]"
}
