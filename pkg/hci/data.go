package hci

// Extended inquiry response data, Core Specification Supplement Part A.
type DataType interface {
	Marshal() ([]byte, error)
}

const (
	eirShortLocalName    = 0x08
	eirCompleteLocalName = 0x09
)

type CompleteLocalName string

func (l CompleteLocalName) Marshal() ([]byte, error) {
	return append([]byte{byte(len(l) + 1), eirCompleteLocalName}, []byte(l)...), nil
}

type ShortLocalName string

func (l ShortLocalName) Marshal() ([]byte, error) {
	return append([]byte{byte(len(l) + 1), eirShortLocalName}, []byte(l)...), nil
}

// MarshalEIR concatenates data structures into an EIR block.
func MarshalEIR(data ...DataType) ([]byte, error) {
	var buf []byte
	for _, d := range data {
		b, err := d.Marshal()
		if err != nil {
			return nil, err
		}
		buf = append(buf, b...)
	}
	return buf, nil
}

// EIRName returns the local name carried in eir, preferring the complete name
// over the shortened one. Parsing stops at the first zero length field.
func EIRName(eir []byte) string {
	var short string
	for len(eir) > 1 {
		n := int(eir[0])
		if n == 0 || n+1 > len(eir) {
			break
		}
		switch eir[1] {
		case eirCompleteLocalName:
			return string(eir[2 : n+1])
		case eirShortLocalName:
			short = string(eir[2 : n+1])
		}
		eir = eir[n+1:]
	}
	return short
}
