package sdp

import (
	"sort"

	"github.com/muxable/btsocket/pkg/btuuid"
	"github.com/pkg/errors"
)

// Universal attribute IDs.
const (
	AttrRecordHandle           uint16 = 0x0000
	AttrServiceClassIDList     uint16 = 0x0001
	AttrServiceRecordState     uint16 = 0x0002
	AttrServiceID              uint16 = 0x0003
	AttrProtocolDescriptorList uint16 = 0x0004
	AttrBrowseGroupList        uint16 = 0x0005
	AttrLanguageBaseList       uint16 = 0x0006
	AttrProfileDescriptorList  uint16 = 0x0009

	// Offsets from the primary language base.
	AttrServiceName        uint16 = 0x0100
	AttrServiceDescription uint16 = 0x0101
	AttrProviderName       uint16 = 0x0102
)

type Attribute struct {
	ID    uint16
	Value Element
}

// ProtocolDescriptor is one layer of a protocol stack: the protocol UUID and
// its parameters, such as a PSM or an RFCOMM channel.
type ProtocolDescriptor struct {
	UUID   btuuid.UUID
	Params []Element
}

type Profile struct {
	UUID    btuuid.UUID
	Version uint16
}

// Record is a service record. Lists keep the order they were built in;
// Protocols runs from the lowest layer up.
type Record struct {
	Handle         uint32
	ServiceClasses []btuuid.UUID
	ServiceID      btuuid.UUID
	Protocols      []ProtocolDescriptor
	BrowseGroups   []btuuid.UUID
	Profiles       []Profile

	Name        string
	Description string
	Provider    string
}

// Attributes returns the record's attributes in ascending ID order. Empty
// lists and strings are left out, as is a zero handle.
func (r *Record) Attributes() []Attribute {
	var attrs []Attribute
	add := func(id uint16, v Element) {
		attrs = append(attrs, Attribute{ID: id, Value: v})
	}
	uuids := func(us []btuuid.UUID) Element {
		items := make([]Element, len(us))
		for i, u := range us {
			items[i] = UUID(u)
		}
		return Seq(items...)
	}

	if r.Handle != 0 {
		add(AttrRecordHandle, Uint32(r.Handle))
	}
	if len(r.ServiceClasses) > 0 {
		add(AttrServiceClassIDList, uuids(r.ServiceClasses))
	}
	if !r.ServiceID.IsZero() {
		add(AttrServiceID, UUID(r.ServiceID))
	}
	if len(r.Protocols) > 0 {
		layers := make([]Element, len(r.Protocols))
		for i, p := range r.Protocols {
			layers[i] = Seq(append([]Element{UUID(p.UUID)}, p.Params...)...)
		}
		add(AttrProtocolDescriptorList, Seq(layers...))
	}
	if len(r.BrowseGroups) > 0 {
		add(AttrBrowseGroupList, uuids(r.BrowseGroups))
	}
	if len(r.Profiles) > 0 {
		profiles := make([]Element, len(r.Profiles))
		for i, p := range r.Profiles {
			profiles[i] = Seq(UUID(p.UUID), Uint16(p.Version))
		}
		add(AttrProfileDescriptorList, Seq(profiles...))
	}
	if r.Name != "" {
		add(AttrServiceName, Text(r.Name))
	}
	if r.Description != "" {
		add(AttrServiceDescription, Text(r.Description))
	}
	if r.Provider != "" {
		add(AttrProviderName, Text(r.Provider))
	}

	sort.SliceStable(attrs, func(i, j int) bool { return attrs[i].ID < attrs[j].ID })
	return attrs
}

// Element returns the record as a sequence of attribute ID and value pairs.
func (r *Record) Element() Element {
	attrs := r.Attributes()
	items := make([]Element, 0, 2*len(attrs))
	for _, a := range attrs {
		items = append(items, Uint16(a.ID), a.Value)
	}
	return Seq(items...)
}

func (r *Record) MarshalBinary() ([]byte, error) {
	return r.Element().MarshalBinary()
}

// ParseAttributes decodes an encoded record into its attributes.
func ParseAttributes(buf []byte) ([]Attribute, error) {
	var e Element
	if err := e.UnmarshalBinary(buf); err != nil {
		return nil, err
	}
	if e.Type != TypeSeq || len(e.Items)%2 != 0 {
		return nil, errors.Wrap(errMalformed, "record is not a sequence of pairs")
	}
	attrs := make([]Attribute, 0, len(e.Items)/2)
	for i := 0; i < len(e.Items); i += 2 {
		id := e.Items[i]
		if id.Type != TypeUint || id.Size != 2 {
			return nil, errors.Wrapf(errMalformed, "attribute id %v", id)
		}
		attrs = append(attrs, Attribute{ID: uint16(id.Uint), Value: e.Items[i+1]})
	}
	return attrs, nil
}

// Channel returns the RFCOMM channel the record advertises.
func (r *Record) Channel() (uint8, bool) {
	for _, p := range r.Protocols {
		if p.UUID.Equivalent(btuuid.RFCOMM) && len(p.Params) > 0 && p.Params[0].Type == TypeUint {
			return uint8(p.Params[0].Uint), true
		}
	}
	return 0, false
}

// PSM returns the L2CAP PSM the record advertises.
func (r *Record) PSM() (uint16, bool) {
	for _, p := range r.Protocols {
		if p.UUID.Equivalent(btuuid.L2CAP) && len(p.Params) > 0 && p.Params[0].Type == TypeUint {
			return uint16(p.Params[0].Uint), true
		}
	}
	return 0, false
}
