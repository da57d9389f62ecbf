package sdp

import (
	"strings"
	"testing"

	"github.com/muxable/btsocket/pkg/btuuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serialRecord() *Record {
	return &Record{
		ServiceClasses: []btuuid.UUID{btuuid.SerialPort},
		Protocols: []ProtocolDescriptor{
			{UUID: btuuid.L2CAP},
			{UUID: btuuid.RFCOMM, Params: []Element{Uint8(3)}},
		},
		BrowseGroups: []btuuid.UUID{btuuid.PublicBrowseGroup},
		Profiles:     []Profile{{UUID: btuuid.SerialPort, Version: 0x0102}},
		Name:         "test",
	}
}

func ids(attrs []Attribute) []uint16 {
	out := make([]uint16, len(attrs))
	for i, a := range attrs {
		out[i] = a.ID
	}
	return out
}

func TestRecordAttributesOrder(t *testing.T) {
	rec := serialRecord()
	assert.Equal(t, []uint16{
		AttrServiceClassIDList,
		AttrProtocolDescriptorList,
		AttrBrowseGroupList,
		AttrProfileDescriptorList,
		AttrServiceName,
	}, ids(rec.Attributes()))

	rec.Handle = 0x10001
	rec.ServiceID = btuuid.MustParse("6e4b2b8a-10c1-4a6b-8f1d-2b3c4d5e6f70")
	rec.Provider = "muxable"
	rec.Description = "echo"
	assert.Equal(t, []uint16{
		AttrRecordHandle,
		AttrServiceClassIDList,
		AttrServiceID,
		AttrProtocolDescriptorList,
		AttrBrowseGroupList,
		AttrProfileDescriptorList,
		AttrServiceName,
		AttrServiceDescription,
		AttrProviderName,
	}, ids(rec.Attributes()))
}

func TestRecordServiceClassOrder(t *testing.T) {
	rec := &Record{
		Name:           "multi",
		ServiceClasses: []btuuid.UUID{btuuid.From16(0x1112), btuuid.From16(0x1203), btuuid.From16(0x1108)},
	}
	attrs := rec.Attributes()
	require.Equal(t, AttrServiceClassIDList, attrs[0].ID)
	classes := attrs[0].Value.Items
	require.Len(t, classes, 3)
	assert.Equal(t, "1112", classes[0].UUID.String())
	assert.Equal(t, "1203", classes[1].UUID.String())
	assert.Equal(t, "1108", classes[2].UUID.String())
}

func TestRecordBinary(t *testing.T) {
	rec := serialRecord()
	b, err := rec.MarshalBinary()
	require.NoError(t, err)

	attrs, err := ParseAttributes(b)
	require.NoError(t, err)
	assert.Equal(t, ids(rec.Attributes()), ids(attrs))

	protocols := attrs[1].Value
	assert.Equal(t, "[[uuid(0100)] [uuid(0003) uint8(0x3)]]", protocols.String())
	assert.Equal(t, `"test"`, attrs[4].Value.String())

	_, err = ParseAttributes([]byte{0x35, 0x02, 0x08, 0x01})
	assert.Error(t, err)
}

func TestRecordChannelAndPSM(t *testing.T) {
	rec := serialRecord()
	ch, ok := rec.Channel()
	assert.True(t, ok)
	assert.Equal(t, uint8(3), ch)
	_, ok = rec.PSM()
	assert.False(t, ok)

	rec.Protocols = []ProtocolDescriptor{{UUID: btuuid.L2CAP, Params: []Element{Uint16(0x1001)}}}
	psm, ok := rec.PSM()
	assert.True(t, ok)
	assert.Equal(t, uint16(0x1001), psm)
	_, ok = rec.Channel()
	assert.False(t, ok)
}

func TestRecordXML(t *testing.T) {
	rec := serialRecord()
	rec.Handle = 0x10001
	rec.Description = "\x01\x02"
	out, err := rec.ServiceRecordXML()
	require.NoError(t, err)
	s := string(out)

	assert.True(t, strings.HasPrefix(s, `<?xml version="1.0" encoding="UTF-8"?>`))
	for _, want := range []string{
		`<record>`,
		`<attribute id="0x0000">`,
		`<uint32 value="0x00010001">`,
		`<attribute id="0x0001">`,
		`<uuid value="0x1101">`,
		`<sequence>`,
		`<uint8 value="0x03">`,
		`<uint16 value="0x0102">`,
		`<text value="test">`,
		`<text encoding="hex" value="0102">`,
	} {
		assert.Contains(t, s, want)
	}
	assert.Less(t, strings.Index(s, `id="0x0001"`), strings.Index(s, `id="0x0004"`))
}
