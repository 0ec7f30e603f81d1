package rtltcp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

var HeaderMagic = [4]uint8{'H', 'F', 'P', '0'}

// HeaderMaxSize is the 16 byte form. 8-bit streams send only the first 12.
const HeaderMaxSize = 16

// Header is sent once, right after accept. Info carries two ASCII '0's, the
// supported rate count and the sample bit depth, each offset by '0'.
type Header struct {
	Magic   [4]uint8
	Info    [4]uint8
	Trailer [2]uint32
}

func MakeHeader(numRates, bits int) Header {
	if numRates < 0 {
		numRates = 0
	}
	if numRates > 255-'0' {
		numRates = 255 - '0'
	}
	return Header{
		Magic:   HeaderMagic,
		Info:    [4]uint8{'0', '0', uint8('0' + numRates), uint8('0' + bits)},
		Trailer: [2]uint32{1, 2},
	}
}

func (h Header) NumSampleRates() int {
	return int(h.Info[2]) - '0'
}

func (h Header) SampleBits() int {
	return int(h.Info[3]) - '0'
}

func (h Header) Valid() bool {
	return h.Magic == HeaderMagic
}

// Size is 12 for 8-bit streams and 16 otherwise.
func (h Header) Size() int {
	if h.SampleBits() == 8 {
		return 12
	}
	return HeaderMaxSize
}

func (h Header) MarshalBinary() ([]byte, error) {
	buffer := &bytes.Buffer{}
	if err := binary.Write(buffer, binary.BigEndian, &h); err != nil {
		return nil, err
	}
	return buffer.Bytes()[:h.Size()], nil
}

func (h Header) String() string {
	return fmt.Sprintf("{Magic:%q Rates:%d Bits:%d}", h.Magic, h.NumSampleRates(), h.SampleBits())
}

// ReadHeader reads a 12 or 16 byte header, deciding the length from the bit
// depth field.
func ReadHeader(r io.Reader) (Header, error) {
	var h Header
	buffer := make([]byte, HeaderMaxSize)
	if _, err := io.ReadFull(r, buffer[:12]); err != nil {
		return h, fmt.Errorf("reading header: %w", err)
	}
	copy(h.Magic[:], buffer[0:4])
	copy(h.Info[:], buffer[4:8])
	if !h.Valid() {
		return h, fmt.Errorf("invalid magic number: expected %q received %q", HeaderMagic, h.Magic)
	}
	h.Trailer[0] = binary.BigEndian.Uint32(buffer[8:12])
	// the 12 byte form leaves out the second word, which is always 2
	h.Trailer[1] = 2
	if h.Size() > 12 {
		if _, err := io.ReadFull(r, buffer[12:16]); err != nil {
			return h, fmt.Errorf("reading header trailer: %w", err)
		}
		h.Trailer[1] = binary.BigEndian.Uint32(buffer[12:16])
	}
	return h, nil
}
