// Package rtp parses and serializes RTP packets per RFC 3550.
package rtp

import (
	"encoding/binary"

	"github.com/vdkio/vdkio/internal/vdkerrors"
)

const (
	version        = 2
	headerMinSize  = 12
	maxCSRC        = 15
)

// Packet is a single RTP packet (RFC 3550 §5.1).
type Packet struct {
	Version        uint8
	Padding        bool
	Extension      bool
	Marker         bool
	PayloadType    uint8
	SequenceNumber uint16
	Timestamp      uint32
	SSRC           uint32
	CSRC           []uint32

	ExtensionProfile uint16
	ExtensionPayload []byte

	Payload []byte
}

// Unmarshal parses buf into a Packet.
func Unmarshal(buf []byte) (*Packet, error) {
	if len(buf) < headerMinSize {
		return nil, vdkerrors.New(vdkerrors.ProtocolError, "RTP packet too short (%d bytes)", len(buf))
	}

	v := buf[0] >> 6
	if v != version {
		return nil, vdkerrors.New(vdkerrors.ProtocolError, "invalid RTP version %d", v)
	}

	padding := (buf[0]>>5)&0x01 == 1
	extension := (buf[0]>>4)&0x01 == 1
	cc := int(buf[0] & 0x0F)
	if cc > maxCSRC {
		return nil, vdkerrors.New(vdkerrors.ProtocolError, "invalid RTP CSRC count %d", cc)
	}

	marker := (buf[1]>>7)&0x01 == 1
	pt := buf[1] & 0x7F

	seq := binary.BigEndian.Uint16(buf[2:4])
	ts := binary.BigEndian.Uint32(buf[4:8])
	ssrc := binary.BigEndian.Uint32(buf[8:12])

	pos := headerMinSize
	if len(buf) < pos+cc*4 {
		return nil, vdkerrors.New(vdkerrors.ProtocolError, "RTP packet truncated before CSRC list")
	}

	csrcs := make([]uint32, cc)
	for i := 0; i < cc; i++ {
		csrcs[i] = binary.BigEndian.Uint32(buf[pos : pos+4])
		pos += 4
	}

	p := &Packet{
		Version:        v,
		Padding:        padding,
		Extension:      extension,
		Marker:         marker,
		PayloadType:    pt,
		SequenceNumber: seq,
		Timestamp:      ts,
		SSRC:           ssrc,
		CSRC:           csrcs,
	}

	if extension {
		if len(buf) < pos+4 {
			return nil, vdkerrors.New(vdkerrors.ProtocolError, "RTP packet truncated before extension header")
		}
		p.ExtensionProfile = binary.BigEndian.Uint16(buf[pos : pos+2])
		extLenWords := int(binary.BigEndian.Uint16(buf[pos+2 : pos+4]))
		pos += 4
		extLen := extLenWords * 4
		if len(buf) < pos+extLen {
			return nil, vdkerrors.New(vdkerrors.ProtocolError, "RTP packet truncated inside extension")
		}
		p.ExtensionPayload = buf[pos : pos+extLen]
		pos += extLen
	}

	end := len(buf)
	if padding {
		if end == pos {
			return nil, vdkerrors.New(vdkerrors.ProtocolError, "RTP padding flag set but no payload")
		}
		padLen := int(buf[end-1])
		if padLen == 0 || padLen > end-pos {
			return nil, vdkerrors.New(vdkerrors.ProtocolError, "invalid RTP padding length %d", padLen)
		}
		end -= padLen
	}

	p.Payload = buf[pos:end]

	return p, nil
}

// MarshalSize returns the number of bytes Marshal will produce.
func (p *Packet) MarshalSize() int {
	size := headerMinSize + 4*len(p.CSRC) + len(p.Payload)
	if p.Extension {
		size += 4 + len(p.ExtensionPayload)
	}
	return size
}

// Marshal serializes the packet to wire format.
func (p *Packet) Marshal() ([]byte, error) {
	if len(p.CSRC) > maxCSRC {
		return nil, vdkerrors.New(vdkerrors.InvalidInput, "too many CSRCs (%d)", len(p.CSRC))
	}

	buf := make([]byte, p.MarshalSize())

	buf[0] = version << 6
	if p.Padding {
		buf[0] |= 1 << 5
	}
	if p.Extension {
		buf[0] |= 1 << 4
	}
	buf[0] |= byte(len(p.CSRC))

	if p.Marker {
		buf[1] = 1 << 7
	}
	buf[1] |= p.PayloadType & 0x7F

	binary.BigEndian.PutUint16(buf[2:4], p.SequenceNumber)
	binary.BigEndian.PutUint32(buf[4:8], p.Timestamp)
	binary.BigEndian.PutUint32(buf[8:12], p.SSRC)

	pos := headerMinSize
	for _, c := range p.CSRC {
		binary.BigEndian.PutUint32(buf[pos:pos+4], c)
		pos += 4
	}

	if p.Extension {
		binary.BigEndian.PutUint16(buf[pos:pos+2], p.ExtensionProfile)
		binary.BigEndian.PutUint16(buf[pos+2:pos+4], uint16(len(p.ExtensionPayload)/4))
		pos += 4
		copy(buf[pos:], p.ExtensionPayload)
		pos += len(p.ExtensionPayload)
	}

	copy(buf[pos:], p.Payload)

	return buf, nil
}

// SequenceLess compares two 16-bit wrapping sequence numbers: it reports
// whether a comes strictly before b (Δ = (a-b) mod 2^16; a < b
// iff Δ > 2^15).
func SequenceLess(a, b uint16) bool {
	delta := uint16(a - b)
	return delta > 1<<15
}

// SequenceDistance returns the forward wrapping distance from a to b,
// i.e. how many steps forward from a reach b.
func SequenceDistance(a, b uint16) uint16 {
	return b - a
}

// TimestampDiff returns b-a as a signed offset, resolving the 32-bit
// wraparound by treating the difference as two's-complement: a session
// that started near the top of the u32 space and wrapped produces the
// same result as one that never did.
func TimestampDiff(a, b uint32) int64 {
	return int64(int32(b - a))
}
