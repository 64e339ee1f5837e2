// Package rtcp parses and serializes RTCP compound packets per RFC 3550.
package rtcp

import (
	"encoding/binary"

	"github.com/vdkio/vdkio/internal/vdkerrors"
)

// packet type bytes (RFC 3550 §6.1 / RFC 3551).
const (
	TypeSR   = 200
	TypeRR   = 201
	TypeSDES = 202
	TypeBye  = 203
	TypeApp  = 204
)

const rtcpVersion = 2

// Header is the common 4-byte RTCP header.
type Header struct {
	Version byte
	Padding bool
	Count   uint8 // reception report count / SC / subtype, depending on packet type
	Type    uint8
	Length  uint16 // in 32-bit words, minus one
}

// ReportBlock is a reception report block, carried by SR and RR.
type ReportBlock struct {
	SSRC             uint32
	FractionLost     uint8
	PacketsLost      int32 // 24-bit signed, sign-extended
	HighestSeqNumber uint32
	Jitter           uint32
	LastSR           uint32
	DelaySinceLastSR uint32
}

// SenderReport is an RTCP SR packet (type=200).
type SenderReport struct {
	SSRC          uint32
	NTPSeconds    uint32
	NTPFraction   uint32
	RTPTimestamp  uint32
	PacketCount   uint32
	OctetCount    uint32
	ReportBlocks  []ReportBlock
}

// ReceiverReport is an RTCP RR packet (type=201).
type ReceiverReport struct {
	SSRC         uint32
	ReportBlocks []ReportBlock
}

// SourceDescription is an RTCP SDES packet (type=202).
type SourceDescription struct {
	Chunks []SDESChunk
}

// SDESChunk is one per-source chunk of an SDES packet.
type SDESChunk struct {
	SSRC  uint32
	Items []SDESItem
}

// SDESItem is a single SDES item (CNAME, NAME, ...).
type SDESItem struct {
	Type byte
	Text string
}

// Bye is an RTCP BYE packet (type=203).
type Bye struct {
	Sources []uint32
	Reason  string
}

// App is an RTCP APP packet (type=204).
type App struct {
	SSRC    uint32
	Name    [4]byte
	SubType uint8
	Data    []byte
}

// Packet is the sum type of all RTCP sub-packets carried in a compound
// packet.
type Packet struct {
	SR    *SenderReport
	RR    *ReceiverReport
	SDES  *SourceDescription
	Bye   *Bye
	App   *App
}

// ParseCompound demultiplexes an RTCP compound packet into its individual
// sub-packets, keyed off the type byte of each sub-header.
func ParseCompound(buf []byte) ([]Packet, error) {
	var out []Packet

	for len(buf) > 0 {
		if len(buf) < 4 {
			return nil, vdkerrors.New(vdkerrors.ProtocolError, "RTCP packet truncated before header")
		}

		v := buf[0] >> 6
		if v != rtcpVersion {
			return nil, vdkerrors.New(vdkerrors.ProtocolError, "invalid RTCP version %d", v)
		}
		padding := (buf[0]>>5)&0x01 == 1
		count := buf[0] & 0x1F
		typ := buf[1]
		lengthWords := binary.BigEndian.Uint16(buf[2:4])
		bodyLen := (int(lengthWords) + 1) * 4

		if len(buf) < bodyLen {
			return nil, vdkerrors.New(vdkerrors.ProtocolError, "RTCP packet truncated (declared %d, have %d)", bodyLen, len(buf))
		}

		body := buf[4:bodyLen]
		if padding && len(body) > 0 {
			padLen := int(body[len(body)-1])
			if padLen == 0 || padLen > len(body) {
				return nil, vdkerrors.New(vdkerrors.ProtocolError, "invalid RTCP padding length %d", padLen)
			}
			body = body[:len(body)-padLen]
		}

		pkt, err := parseOne(typ, count, body)
		if err != nil {
			return nil, err
		}
		out = append(out, pkt)

		buf = buf[bodyLen:]
	}

	return out, nil
}

func parseOne(typ byte, count uint8, body []byte) (Packet, error) {
	switch typ {
	case TypeSR:
		return parseSR(count, body)
	case TypeRR:
		return parseRR(count, body)
	case TypeSDES:
		return parseSDES(count, body)
	case TypeBye:
		return parseBye(count, body)
	case TypeApp:
		return parseApp(body)
	default:
		return Packet{}, vdkerrors.New(vdkerrors.ProtocolError, "unknown RTCP packet type %d", typ)
	}
}

func parseReportBlocks(body []byte, count uint8) ([]ReportBlock, []byte, error) {
	blocks := make([]ReportBlock, count)
	for i := 0; i < int(count); i++ {
		if len(body) < 24 {
			return nil, nil, vdkerrors.New(vdkerrors.ProtocolError, "RTCP report block truncated")
		}
		lost := int32(body[5])<<16 | int32(body[6])<<8 | int32(body[7])
		if lost&0x800000 != 0 {
			lost |= ^0xFFFFFF // sign-extend 24 bits
		}
		blocks[i] = ReportBlock{
			SSRC:         binary.BigEndian.Uint32(body[0:4]),
			FractionLost: body[4],
		}
		blocks[i].PacketsLost = lost
		blocks[i].HighestSeqNumber = binary.BigEndian.Uint32(body[8:12])
		blocks[i].Jitter = binary.BigEndian.Uint32(body[12:16])
		blocks[i].LastSR = binary.BigEndian.Uint32(body[16:20])
		blocks[i].DelaySinceLastSR = binary.BigEndian.Uint32(body[20:24])
		body = body[24:]
	}
	return blocks, body, nil
}

func parseSR(count uint8, body []byte) (Packet, error) {
	if len(body) < 24 {
		return Packet{}, vdkerrors.New(vdkerrors.ProtocolError, "RTCP SR truncated")
	}
	sr := &SenderReport{
		SSRC:         binary.BigEndian.Uint32(body[0:4]),
		NTPSeconds:   binary.BigEndian.Uint32(body[4:8]),
		NTPFraction:  binary.BigEndian.Uint32(body[8:12]),
		RTPTimestamp: binary.BigEndian.Uint32(body[12:16]),
		PacketCount:  binary.BigEndian.Uint32(body[16:20]),
		OctetCount:   binary.BigEndian.Uint32(body[20:24]),
	}
	blocks, _, err := parseReportBlocks(body[24:], count)
	if err != nil {
		return Packet{}, err
	}
	sr.ReportBlocks = blocks
	return Packet{SR: sr}, nil
}

func parseRR(count uint8, body []byte) (Packet, error) {
	if len(body) < 4 {
		return Packet{}, vdkerrors.New(vdkerrors.ProtocolError, "RTCP RR truncated")
	}
	rr := &ReceiverReport{SSRC: binary.BigEndian.Uint32(body[0:4])}
	blocks, _, err := parseReportBlocks(body[4:], count)
	if err != nil {
		return Packet{}, err
	}
	rr.ReportBlocks = blocks
	return Packet{RR: rr}, nil
}

func parseSDES(count uint8, body []byte) (Packet, error) {
	sdes := &SourceDescription{}
	for i := 0; i < int(count); i++ {
		if len(body) < 4 {
			return Packet{}, vdkerrors.New(vdkerrors.ProtocolError, "RTCP SDES chunk truncated")
		}
		chunkStart := len(body)
		chunk := SDESChunk{SSRC: binary.BigEndian.Uint32(body[0:4])}
		body = body[4:]

		for len(body) > 0 && body[0] != 0 {
			itemType := body[0]
			if len(body) < 2 {
				return Packet{}, vdkerrors.New(vdkerrors.ProtocolError, "RTCP SDES item truncated")
			}
			itemLen := int(body[1])
			if len(body) < 2+itemLen {
				return Packet{}, vdkerrors.New(vdkerrors.ProtocolError, "RTCP SDES item truncated")
			}
			chunk.Items = append(chunk.Items, SDESItem{Type: itemType, Text: string(body[2 : 2+itemLen])})
			body = body[2+itemLen:]
		}

		// skip null terminator and pad to a 32-bit boundary
		pad := 4 - (chunkStart-len(body))%4
		if pad > len(body) {
			pad = len(body)
		}
		body = body[pad:]

		sdes.Chunks = append(sdes.Chunks, chunk)
	}
	return Packet{SDES: sdes}, nil
}

func parseBye(count uint8, body []byte) (Packet, error) {
	bye := &Bye{}
	for i := 0; i < int(count); i++ {
		if len(body) < 4 {
			return Packet{}, vdkerrors.New(vdkerrors.ProtocolError, "RTCP BYE truncated")
		}
		bye.Sources = append(bye.Sources, binary.BigEndian.Uint32(body[0:4]))
		body = body[4:]
	}
	if len(body) > 0 {
		reasonLen := int(body[0])
		if len(body) >= 1+reasonLen {
			bye.Reason = string(body[1 : 1+reasonLen])
		}
	}
	return Packet{Bye: bye}, nil
}

func parseApp(body []byte) (Packet, error) {
	if len(body) < 8 {
		return Packet{}, vdkerrors.New(vdkerrors.ProtocolError, "RTCP APP truncated")
	}
	app := &App{SSRC: binary.BigEndian.Uint32(body[0:4])}
	copy(app.Name[:], body[4:8])
	app.Data = body[8:]
	return Packet{App: app}, nil
}

// MarshalReceiverReport serializes a client-side RR (the only RTCP packet
// this module emits).
func MarshalReceiverReport(rr *ReceiverReport, ssrc uint32) []byte {
	buf := make([]byte, 8+24*len(rr.ReportBlocks))
	buf[0] = rtcpVersion<<6 | byte(len(rr.ReportBlocks))
	buf[1] = TypeRR
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(buf)/4-1))
	binary.BigEndian.PutUint32(buf[4:8], ssrc)

	pos := 8
	for _, b := range rr.ReportBlocks {
		binary.BigEndian.PutUint32(buf[pos:pos+4], b.SSRC)
		buf[pos+4] = b.FractionLost
		lost := uint32(b.PacketsLost) & 0xFFFFFF
		buf[pos+5] = byte(lost >> 16)
		buf[pos+6] = byte(lost >> 8)
		buf[pos+7] = byte(lost)
		binary.BigEndian.PutUint32(buf[pos+8:pos+12], b.HighestSeqNumber)
		binary.BigEndian.PutUint32(buf[pos+12:pos+16], b.Jitter)
		binary.BigEndian.PutUint32(buf[pos+16:pos+20], b.LastSR)
		binary.BigEndian.PutUint32(buf[pos+20:pos+24], b.DelaySinceLastSR)
		pos += 24
	}

	return buf
}
