package depacketizer

import (
	"github.com/vdkio/vdkio/internal/rtp"
	"github.com/vdkio/vdkio/internal/vdkerrors"
)

const (
	h265TypeAggregation   = 48
	h265TypeFragmentation = 49
)

// H265 reassembles H.265 access units from RTP packets (RFC 7798).
// Single NAL units pass through unchanged; Aggregation (48) is split;
// Fragmentation (49) is reassembled by S/E bits analogous to H.264 FU-A.
type H265 struct {
	fuFragments   [][]byte
	fuSize        int
	fuInProgress  bool
	lastTimestamp uint32
	haveTimestamp bool

	auNALUs [][]byte
	pending []pendingAU // access units completed but not yet returned
}

// Feed consumes one RTP packet and returns a completed access unit's
// NALUs and the RTP timestamp it was sent under, when a boundary is
// reached, or (nil, 0) if more packets are needed. If a packet both
// closes a stale access unit (new timestamp) and completes its own (e.g.
// a single NALU with the marker bit set), only one access unit is
// returned per call; the other is returned on the next Feed call.
func (d *H265) Feed(pkt *rtp.Packet) ([][]byte, uint32, error) {
	if len(pkt.Payload) < 2 {
		d.fuInProgress = false
		return nil, 0, vdkerrors.New(vdkerrors.InvalidBitstream, "H.265 RTP payload too short")
	}

	newAU := d.haveTimestamp && pkt.Timestamp != d.lastTimestamp
	staleTimestamp := d.lastTimestamp
	d.lastTimestamp = pkt.Timestamp
	d.haveTimestamp = true

	if newAU && len(d.auNALUs) > 0 {
		d.pending = append(d.pending, pendingAU{nalus: d.auNALUs, timestamp: staleTimestamp})
		d.auNALUs = nil
	}

	au, err := d.feedLocked(pkt)
	if err != nil {
		return nil, 0, err
	}
	if au != nil {
		d.pending = append(d.pending, pendingAU{nalus: au, timestamp: pkt.Timestamp})
	}
	if len(d.pending) == 0 {
		return nil, 0, nil
	}

	out := d.pending[0]
	d.pending = d.pending[1:]
	return out.nalus, out.timestamp, nil
}

func (d *H265) feedLocked(pkt *rtp.Packet) ([][]byte, error) {
	typ := (pkt.Payload[0] >> 1) & 0x3F

	switch typ {
	case h265TypeFragmentation:
		nalu, err := d.feedFragmentation(pkt.Payload)
		if err != nil {
			d.fuInProgress = false
			return nil, err
		}
		if nalu == nil {
			return nil, nil
		}
		d.auNALUs = append(d.auNALUs, nalu)

	case h265TypeAggregation:
		d.fuInProgress = false
		nalus, err := splitAggregation(pkt.Payload[2:])
		if err != nil {
			return nil, err
		}
		d.auNALUs = append(d.auNALUs, nalus...)

	default:
		d.fuInProgress = false
		d.auNALUs = append(d.auNALUs, pkt.Payload)
	}

	if pkt.Marker {
		au := d.auNALUs
		d.auNALUs = nil
		return au, nil
	}
	return nil, nil
}

func (d *H265) feedFragmentation(payload []byte) ([]byte, error) {
	if len(payload) < 3 {
		return nil, vdkerrors.New(vdkerrors.InvalidBitstream, "invalid fragmentation unit (too short)")
	}

	start := payload[2]>>7 == 1
	end := (payload[2]>>6)&0x01 == 1

	if start {
		nalType := payload[2] & 0x3F
		head := uint16(payload[0]&0x81)<<8 | uint16(nalType)<<9 | uint16(payload[1])
		d.fuFragments = [][]byte{{byte(head >> 8), byte(head)}, payload[3:]}
		d.fuSize = 2 + len(payload[3:])
		d.fuInProgress = true
		if end {
			return nil, vdkerrors.New(vdkerrors.InvalidBitstream, "fragmentation unit has both start and end bits")
		}
		return nil, nil
	}

	if !d.fuInProgress {
		return nil, vdkerrors.New(vdkerrors.InvalidBitstream, "fragmentation unit continuation without a start fragment")
	}

	d.fuSize += len(payload[3:])
	if d.fuSize > maxNALUSize {
		d.fuInProgress = false
		return nil, vdkerrors.New(vdkerrors.InvalidBitstream, "fragmentation reassembly exceeds maximum NALU size")
	}
	d.fuFragments = append(d.fuFragments, payload[3:])

	if !end {
		return nil, nil
	}

	nalu := make([]byte, d.fuSize)
	n := 0
	for _, f := range d.fuFragments {
		n += copy(nalu[n:], f)
	}
	d.fuFragments = nil
	d.fuInProgress = false
	return nalu, nil
}

func splitAggregation(payload []byte) ([][]byte, error) {
	var nalus [][]byte
	for len(payload) > 0 {
		if len(payload) < 2 {
			return nil, vdkerrors.New(vdkerrors.InvalidBitstream, "invalid aggregation unit (truncated size)")
		}
		size := int(payload[0])<<8 | int(payload[1])
		payload = payload[2:]
		if size == 0 {
			break
		}
		if size > len(payload) {
			return nil, vdkerrors.New(vdkerrors.InvalidBitstream, "invalid aggregation unit (size exceeds payload)")
		}
		nalus = append(nalus, payload[:size])
		payload = payload[size:]
	}
	if len(nalus) == 0 {
		return nil, vdkerrors.New(vdkerrors.InvalidBitstream, "aggregation unit contains no NALUs")
	}
	return nalus, nil
}
