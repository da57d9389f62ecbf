package sdp

import (
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"strconv"
	"unicode"
	"unicode/utf8"

	"github.com/muxable/btsocket/pkg/btuuid"
)

// The XML form is the one BlueZ accepts as a ServiceRecord profile option.

type xmlRecord struct {
	XMLName    xml.Name       `xml:"record"`
	Attributes []xmlAttribute `xml:"attribute"`
}

type xmlAttribute struct {
	ID    string `xml:"id,attr"`
	Value Element
}

// MarshalXML writes e as a BlueZ record element, ignoring start.
func (e Element) MarshalXML(enc *xml.Encoder, _ xml.StartElement) error {
	start := xml.StartElement{Name: xml.Name{Local: e.xmlName()}}
	switch e.Type {
	case TypeSeq, TypeAlt, TypeNil:
	case TypeText:
		if printable(e.Text) {
			start.Attr = []xml.Attr{{Name: xml.Name{Local: "value"}, Value: e.Text}}
		} else {
			start.Attr = []xml.Attr{
				{Name: xml.Name{Local: "encoding"}, Value: "hex"},
				{Name: xml.Name{Local: "value"}, Value: hex.EncodeToString([]byte(e.Text))},
			}
		}
	default:
		start.Attr = []xml.Attr{{Name: xml.Name{Local: "value"}, Value: e.xmlValue()}}
	}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	for _, item := range e.Items {
		if err := item.MarshalXML(enc, xml.StartElement{}); err != nil {
			return err
		}
	}
	return enc.EncodeToken(start.End())
}

func (e Element) xmlName() string {
	switch e.Type {
	case TypeUint:
		return "uint" + strconv.Itoa(e.Size*8)
	case TypeInt:
		return "int" + strconv.Itoa(e.Size*8)
	case TypeBool:
		return "boolean"
	case TypeSeq:
		return "sequence"
	case TypeAlt:
		return "alternate"
	}
	return e.Type.String()
}

func (e Element) xmlValue() string {
	switch e.Type {
	case TypeUint:
		if e.Size == 16 {
			return "0x" + hex.EncodeToString(e.Wide)
		}
		return fmt.Sprintf("0x%0*x", e.Size*2, e.Uint)
	case TypeInt:
		if e.Size == 16 {
			return "0x" + hex.EncodeToString(e.Wide)
		}
		return strconv.FormatInt(e.Int, 10)
	case TypeUUID:
		if e.UUID.Width() == btuuid.Width128 {
			return e.UUID.String()
		}
		return "0x" + e.UUID.String()
	case TypeBool:
		return strconv.FormatBool(e.Bool)
	case TypeURL:
		return e.Text
	}
	return ""
}

func printable(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

// ServiceRecordXML renders the record as a BlueZ XML service record.
func (r *Record) ServiceRecordXML() ([]byte, error) {
	attrs := r.Attributes()
	x := xmlRecord{Attributes: make([]xmlAttribute, len(attrs))}
	for i, a := range attrs {
		x.Attributes[i] = xmlAttribute{ID: fmt.Sprintf("0x%04x", a.ID), Value: a.Value}
	}
	body, err := xml.MarshalIndent(x, "", "\t")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}
