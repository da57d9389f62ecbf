package hci

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/muxable/btsocket/pkg/btaddr"
	"github.com/pkg/errors"
)

var (
	errIncorrectPacket   = errors.New("incorrect packet")
	errUnsupportedPacket = errors.New("unsupported packet type")
)

type Packet interface {
	Marshal() ([]byte, error)
	Unmarshal([]byte) error
}

type CommandPacket interface {
	Packet
	Opcode() Opcode
}

func Unmarshal(buf []byte) (Packet, error) {
	if len(buf) == 0 {
		return nil, io.ErrShortBuffer
	}
	var p Packet
	switch PacketType(buf[0]) {
	case PacketTypeCommand:
		p = &GenericCommandPacket{}
	case PacketTypeEvent:
		if len(buf) < 3 || len(buf) != int(buf[2])+3 {
			return nil, io.ErrShortBuffer
		}
		switch EventCode(buf[1]) {
		case EventCodeCommandComplete:
			p = &CommandCompleteEventPacket{}
		case EventCodeCommandStatus:
			p = &CommandStatusEventPacket{}
		case EventCodeInquiryComplete:
			p = &InquiryCompleteEventPacket{}
		case EventCodeInquiryResult, EventCodeInquiryResultWithRSSI, EventCodeExtendedInquiryResult:
			p = &InquiryResultEventPacket{}
		case EventCodeRemoteNameRequestComplete:
			p = &RemoteNameRequestCompleteEventPacket{}
		default:
			p = &GenericEventPacket{}
		}
	default:
		return nil, errors.Wrapf(errUnsupportedPacket, "0x%02x", buf[0])
	}
	if err := p.Unmarshal(buf); err != nil {
		return nil, err
	}
	return p, nil
}

// GenericCommandPacket carries any command as an opcode and raw parameters.
type GenericCommandPacket struct {
	opcode Opcode
	Params []byte
}

func NewGenericCommandPacket(opcode Opcode, params ...byte) *GenericCommandPacket {
	return &GenericCommandPacket{opcode: opcode, Params: params}
}

func (p *GenericCommandPacket) Marshal() ([]byte, error) {
	if len(p.Params) > math.MaxUint8 {
		return nil, io.ErrShortWrite
	}
	buf := make([]byte, 4, 4+len(p.Params))
	buf[0] = uint8(PacketTypeCommand)
	binary.LittleEndian.PutUint16(buf[1:], uint16(p.opcode))
	buf[3] = uint8(len(p.Params))
	return append(buf, p.Params...), nil
}

func (p *GenericCommandPacket) Unmarshal(buf []byte) error {
	if len(buf) < 4 || buf[0] != byte(PacketTypeCommand) {
		return errIncorrectPacket
	}
	if len(buf) != int(buf[3])+4 {
		return io.ErrShortBuffer
	}
	p.opcode = Opcode(binary.LittleEndian.Uint16(buf[1:3]))
	p.Params = buf[4:]
	return nil
}

func (p *GenericCommandPacket) Opcode() Opcode {
	return p.opcode
}

// marshalEvent frames params as an event packet.
func marshalEvent(code EventCode, params []byte) ([]byte, error) {
	if len(params) > math.MaxUint8 {
		return nil, io.ErrShortWrite
	}
	buf := make([]byte, 3, 3+len(params))
	buf[0] = byte(PacketTypeEvent)
	buf[1] = byte(code)
	buf[2] = byte(len(params))
	return append(buf, params...), nil
}

// eventParams checks the event header and returns the parameters.
func eventParams(buf []byte, codes ...EventCode) ([]byte, error) {
	if len(buf) < 3 || buf[0] != byte(PacketTypeEvent) {
		return nil, errIncorrectPacket
	}
	match := false
	for _, c := range codes {
		if buf[1] == byte(c) {
			match = true
		}
	}
	if !match {
		return nil, errIncorrectPacket
	}
	if len(buf) != int(buf[2])+3 {
		return nil, io.ErrShortBuffer
	}
	return buf[3:], nil
}

// GenericEventPacket holds events that are not decoded further.
type GenericEventPacket struct {
	Code   EventCode
	Params []byte
}

func (p *GenericEventPacket) Marshal() ([]byte, error) {
	return marshalEvent(p.Code, p.Params)
}

func (p *GenericEventPacket) Unmarshal(buf []byte) error {
	if len(buf) < 3 || buf[0] != byte(PacketTypeEvent) {
		return errIncorrectPacket
	}
	params, err := eventParams(buf, EventCode(buf[1]))
	if err != nil {
		return err
	}
	p.Code = EventCode(buf[1])
	p.Params = params
	return nil
}

type CommandCompleteEventPacket struct {
	NumCommandPackets uint8
	CommandOpcode     Opcode
	ReturnParameters  []byte
}

func (p *CommandCompleteEventPacket) Unmarshal(buf []byte) error {
	params, err := eventParams(buf, EventCodeCommandComplete)
	if err != nil {
		return err
	}
	if len(params) < 3 {
		return io.ErrShortBuffer
	}
	p.NumCommandPackets = params[0]
	p.CommandOpcode = Opcode(binary.LittleEndian.Uint16(params[1:]))
	p.ReturnParameters = params[3:]
	return nil
}

func (p *CommandCompleteEventPacket) Marshal() ([]byte, error) {
	params := make([]byte, 3, 3+len(p.ReturnParameters))
	params[0] = p.NumCommandPackets
	binary.LittleEndian.PutUint16(params[1:], uint16(p.CommandOpcode))
	return marshalEvent(EventCodeCommandComplete, append(params, p.ReturnParameters...))
}

type CommandStatusEventPacket struct {
	Status            uint8
	NumCommandPackets uint8
	CommandOpcode     Opcode
}

func (p *CommandStatusEventPacket) Unmarshal(buf []byte) error {
	params, err := eventParams(buf, EventCodeCommandStatus)
	if err != nil {
		return err
	}
	if len(params) != 4 {
		return io.ErrShortBuffer
	}
	p.Status = params[0]
	p.NumCommandPackets = params[1]
	p.CommandOpcode = Opcode(binary.LittleEndian.Uint16(params[2:]))
	return nil
}

func (p *CommandStatusEventPacket) Marshal() ([]byte, error) {
	params := make([]byte, 4)
	params[0] = p.Status
	params[1] = p.NumCommandPackets
	binary.LittleEndian.PutUint16(params[2:], uint16(p.CommandOpcode))
	return marshalEvent(EventCodeCommandStatus, params)
}

type InquiryCompleteEventPacket struct {
	Status uint8
}

func (p *InquiryCompleteEventPacket) Unmarshal(buf []byte) error {
	params, err := eventParams(buf, EventCodeInquiryComplete)
	if err != nil {
		return err
	}
	if len(params) != 1 {
		return io.ErrShortBuffer
	}
	p.Status = params[0]
	return nil
}

func (p *InquiryCompleteEventPacket) Marshal() ([]byte, error) {
	return marshalEvent(EventCodeInquiryComplete, []byte{p.Status})
}

// InquiryResponse is one peer reported by an inquiry result event.
type InquiryResponse struct {
	Addr                   btaddr.BDAddr
	PageScanRepetitionMode PageScanRepetitionMode
	Class                  uint32
	ClockOffset            uint16
	// RSSI is only reported by the RSSI and extended result events.
	RSSI    int8
	HasRSSI bool
	// EIR is the extended inquiry response data, if any.
	EIR []byte
}

// InquiryResultEventPacket decodes the three inquiry result events. The
// parameters are laid out as arrays, one field for all responses at a time.
type InquiryResultEventPacket struct {
	Code      EventCode
	Responses []InquiryResponse
}

func (p *InquiryResultEventPacket) Unmarshal(buf []byte) error {
	params, err := eventParams(buf, EventCodeInquiryResult, EventCodeInquiryResultWithRSSI, EventCodeExtendedInquiryResult)
	if err != nil {
		return err
	}
	if len(params) < 1 {
		return io.ErrShortBuffer
	}
	p.Code = EventCode(buf[1])
	n := int(params[0])
	if len(params) < 1+n*14 {
		return io.ErrShortBuffer
	}

	off := 1
	take := func(w int) []byte {
		b := params[off : off+n*w]
		off += n * w
		return b
	}
	addrs := take(6)
	modes := take(1)
	if p.Code == EventCodeInquiryResult {
		take(2) // reserved
	} else {
		take(1) // reserved
	}
	classes := take(3)
	offsets := take(2)
	var rssi []byte
	if p.Code != EventCodeInquiryResult {
		rssi = take(1)
	}

	p.Responses = make([]InquiryResponse, n)
	for i := range p.Responses {
		r := &p.Responses[i]
		copy(r.Addr[:], addrs[i*6:])
		r.PageScanRepetitionMode = PageScanRepetitionMode(modes[i])
		c := classes[i*3:]
		r.Class = uint32(c[2])<<16 | uint32(c[1])<<8 | uint32(c[0])
		r.ClockOffset = binary.LittleEndian.Uint16(offsets[i*2:])
		if rssi != nil {
			r.RSSI = int8(rssi[i])
			r.HasRSSI = true
		}
	}
	if p.Code == EventCodeExtendedInquiryResult && n == 1 {
		p.Responses[0].EIR = params[off:]
	}
	return nil
}

func (p *InquiryResultEventPacket) Marshal() ([]byte, error) {
	n := len(p.Responses)
	params := []byte{byte(n)}
	for _, r := range p.Responses {
		params = append(params, r.Addr[:]...)
	}
	for _, r := range p.Responses {
		params = append(params, byte(r.PageScanRepetitionMode))
	}
	reserved := n
	if p.Code == EventCodeInquiryResult {
		reserved = 2 * n
	}
	params = append(params, make([]byte, reserved)...)
	for _, r := range p.Responses {
		params = append(params, byte(r.Class), byte(r.Class>>8), byte(r.Class>>16))
	}
	for _, r := range p.Responses {
		params = binary.LittleEndian.AppendUint16(params, r.ClockOffset)
	}
	if p.Code != EventCodeInquiryResult {
		for _, r := range p.Responses {
			params = append(params, byte(r.RSSI))
		}
	}
	if p.Code == EventCodeExtendedInquiryResult && n == 1 {
		params = append(params, p.Responses[0].EIR...)
	}
	return marshalEvent(p.Code, params)
}

type RemoteNameRequestCompleteEventPacket struct {
	Status uint8
	Addr   btaddr.BDAddr
	Name   string
}

func (p *RemoteNameRequestCompleteEventPacket) Unmarshal(buf []byte) error {
	params, err := eventParams(buf, EventCodeRemoteNameRequestComplete)
	if err != nil {
		return err
	}
	if len(params) < 7 {
		return io.ErrShortBuffer
	}
	p.Status = params[0]
	copy(p.Addr[:], params[1:7])
	p.Name = cString(params[7:])
	return nil
}

func (p *RemoteNameRequestCompleteEventPacket) Marshal() ([]byte, error) {
	params := make([]byte, 7+248)
	params[0] = p.Status
	copy(params[1:], p.Addr[:])
	copy(params[7:], p.Name)
	return marshalEvent(EventCodeRemoteNameRequestComplete, params)
}

// cString returns b up to the first NUL.
func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
