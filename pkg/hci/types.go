package hci

type PageScanRepetitionMode uint8

const (
	PageScanRepetitionModeR0 PageScanRepetitionMode = 0x00
	PageScanRepetitionModeR1 PageScanRepetitionMode = 0x01
	PageScanRepetitionModeR2 PageScanRepetitionMode = 0x02
)

type InquiryMode uint8

const (
	InquiryModeStandard InquiryMode = 0x00
	InquiryModeRSSI     InquiryMode = 0x01
	InquiryModeExtended InquiryMode = 0x02
)

func (m InquiryMode) String() string {
	switch m {
	case InquiryModeStandard:
		return "standard"
	case InquiryModeRSSI:
		return "rssi"
	case InquiryModeExtended:
		return "extended"
	}
	return "unknown"
}

// LAPGeneral is the general inquiry access code (GIAC).
const (
	LAPGeneral uint32 = 0x9e8b33
	LAPLimited uint32 = 0x9e8b00
)
