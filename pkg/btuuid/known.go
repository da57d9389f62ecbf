package btuuid

// Protocol identifiers.
var (
	SDP    = From16(0x0001)
	RFCOMM = From16(0x0003)
	OBEX   = From16(0x0008)
	BNEP   = From16(0x000F)
	HIDP   = From16(0x0011)
	AVCTP  = From16(0x0017)
	AVDTP  = From16(0x0019)
	L2CAP  = From16(0x0100)
)

// Service classes and profiles.
var (
	PublicBrowseGroup   = From16(0x1002)
	SerialPort          = From16(0x1101)
	LANAccessUsingPPP   = From16(0x1102)
	DialupNetworking    = From16(0x1103)
	OBEXObjectPush      = From16(0x1105)
	OBEXFileTransfer    = From16(0x1106)
	Headset             = From16(0x1108)
	AudioSource         = From16(0x110A)
	AudioSink           = From16(0x110B)
	AVRemoteControl     = From16(0x110E)
	Handsfree           = From16(0x111E)
	HandsfreeAudioGW    = From16(0x111F)
	HumanInterface      = From16(0x1124)
	PANU                = From16(0x1115)
	NAP                 = From16(0x1116)
	GN                  = From16(0x1117)
	PnPInformation      = From16(0x1200)
	GenericNetworking   = From16(0x1201)
	GenericFileTransfer = From16(0x1202)
	GenericAudio        = From16(0x1203)
)

var names = map[uint32]string{
	0x0001: "SDP",
	0x0003: "RFCOMM",
	0x0008: "OBEX",
	0x000F: "BNEP",
	0x0011: "HIDP",
	0x0017: "AVCTP",
	0x0019: "AVDTP",
	0x0100: "L2CAP",
	0x1002: "Public Browse Group",
	0x1101: "Serial Port",
	0x1102: "LAN Access Using PPP",
	0x1103: "Dialup Networking",
	0x1105: "OBEX Object Push",
	0x1106: "OBEX File Transfer",
	0x1108: "Headset",
	0x110A: "Audio Source",
	0x110B: "Audio Sink",
	0x110E: "A/V Remote Control",
	0x111E: "Handsfree",
	0x111F: "Handsfree Audio Gateway",
	0x1124: "Human Interface Device",
	0x1115: "PAN User",
	0x1116: "Network Access Point",
	0x1117: "Group Network",
	0x1200: "PnP Information",
	0x1201: "Generic Networking",
	0x1202: "Generic File Transfer",
	0x1203: "Generic Audio",
}

// Name returns a human readable name for UUIDs derived from the base UUID.
func Name(u UUID) (string, bool) {
	l := u.Long()
	if string(l[4:]) != string(Base[4:]) {
		return "", false
	}
	n, ok := names[uint32(l[0])<<24|uint32(l[1])<<16|uint32(l[2])<<8|uint32(l[3])]
	return n, ok
}
