package depacketizer

import (
	"github.com/vdkio/vdkio/internal/aac"
	"github.com/vdkio/vdkio/internal/rtp"
	"github.com/vdkio/vdkio/internal/vdkerrors"
)

// AAC reassembles access units from RFC 3640 AAC-hbr RTP payloads: a
// 16-bit AU-headers-length, one or more (size, index-delta) AU-headers,
// then the concatenated AU payloads. Each AU becomes one
// Packet.
type AAC struct {
	SizeLength  int
	IndexLength int
}

// AU is one reassembled AAC access unit.
type AU struct {
	Data      []byte
	Timestamp uint32
}

// Feed consumes one RTP packet and returns the access units it carries.
func (d *AAC) Feed(pkt *rtp.Packet) ([]AU, error) {
	sizeLength := d.SizeLength
	if sizeLength == 0 {
		sizeLength = 13
	}
	indexLength := d.IndexLength
	if indexLength == 0 {
		indexLength = 3
	}

	headers, rest, err := aac.ParseAUHeaders(pkt.Payload, sizeLength, indexLength)
	if err != nil {
		return nil, err
	}

	aus := make([]AU, 0, len(headers))
	for _, h := range headers {
		if int(h.Size) > len(rest) {
			return nil, vdkerrors.New(vdkerrors.InvalidBitstream, "AAC AU size exceeds remaining payload")
		}
		aus = append(aus, AU{Data: rest[:h.Size], Timestamp: pkt.Timestamp})
		rest = rest[h.Size:]
	}

	return aus, nil
}
