// Package depacketizer reassembles access units from RTP payloads for
// H.264, H.265 and AAC
package depacketizer

import (
	"github.com/vdkio/vdkio/internal/rtp"
	"github.com/vdkio/vdkio/internal/vdkerrors"
)

const (
	h264TypeSTAPA = 24
	h264TypeFUA   = 28
)

const maxNALUSize = 4 * 1024 * 1024

// H264 reassembles H.264 access units from RTP packets (RFC 6184).
// Single NAL units (types 1-23) pass through unchanged; STAP-A (24) is
// split; FU-A (28) is reassembled by S/E bits. An access unit boundary is
// a new RTP timestamp or the marker bit.
type H264 struct {
	fuFragments   [][]byte
	fuSize        int
	fuInProgress  bool
	lastTimestamp uint32
	haveTimestamp bool

	auNALUs [][]byte
	pending []pendingAU // access units completed but not yet returned
}

type pendingAU struct {
	nalus     [][]byte
	timestamp uint32
}

// Feed consumes one RTP packet and returns a completed access unit's
// NALUs and the RTP timestamp it was sent under, when a boundary is
// reached, or (nil, 0) if more packets are needed. If a packet both
// closes a stale access unit (new timestamp) and completes its own (e.g.
// a single NALU with the marker bit set), only one access unit is
// returned per call; the other is returned on the next Feed call.
func (d *H264) Feed(pkt *rtp.Packet) ([][]byte, uint32, error) {
	if len(pkt.Payload) < 1 {
		d.fuInProgress = false
		return nil, 0, vdkerrors.New(vdkerrors.InvalidBitstream, "H.264 RTP payload too short")
	}

	newAU := d.haveTimestamp && pkt.Timestamp != d.lastTimestamp
	staleTimestamp := d.lastTimestamp
	d.lastTimestamp = pkt.Timestamp
	d.haveTimestamp = true

	if newAU && len(d.auNALUs) > 0 {
		// a new timestamp arrived before a marker closed the previous
		// access unit: queue what was gathered and start fresh.
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

func (d *H264) feedLocked(pkt *rtp.Packet) ([][]byte, error) {
	typ := pkt.Payload[0] & 0x1F

	switch typ {
	case h264TypeFUA:
		nalu, err := d.feedFUA(pkt.Payload)
		if err != nil {
			d.fuInProgress = false
			return nil, err
		}
		if nalu == nil {
			return nil, nil
		}
		d.auNALUs = append(d.auNALUs, nalu)

	case h264TypeSTAPA:
		d.fuInProgress = false
		nalus, err := splitSTAPA(pkt.Payload[1:])
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

func (d *H264) feedFUA(payload []byte) ([]byte, error) {
	if len(payload) < 2 {
		return nil, vdkerrors.New(vdkerrors.InvalidBitstream, "invalid FU-A packet (too short)")
	}

	start := payload[1]>>7 == 1
	end := (payload[1]>>6)&0x01 == 1

	if start {
		nri := (payload[0] >> 5) & 0x03
		nalType := payload[1] & 0x1F
		d.fuFragments = [][]byte{{(nri << 5) | nalType}, payload[2:]}
		d.fuSize = 1 + len(payload[2:])
		d.fuInProgress = true
		if end {
			return nil, vdkerrors.New(vdkerrors.InvalidBitstream, "FU-A packet has both start and end bits")
		}
		return nil, nil
	}

	if !d.fuInProgress {
		return nil, vdkerrors.New(vdkerrors.InvalidBitstream, "FU-A continuation without a start fragment")
	}

	d.fuSize += len(payload[2:])
	if d.fuSize > maxNALUSize {
		d.fuInProgress = false
		return nil, vdkerrors.New(vdkerrors.InvalidBitstream, "FU-A reassembly exceeds maximum NALU size")
	}
	d.fuFragments = append(d.fuFragments, payload[2:])

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

func splitSTAPA(payload []byte) ([][]byte, error) {
	var nalus [][]byte
	for len(payload) > 0 {
		if len(payload) < 2 {
			return nil, vdkerrors.New(vdkerrors.InvalidBitstream, "invalid STAP-A packet (truncated size)")
		}
		size := int(payload[0])<<8 | int(payload[1])
		payload = payload[2:]
		if size == 0 {
			break
		}
		if size > len(payload) {
			return nil, vdkerrors.New(vdkerrors.InvalidBitstream, "invalid STAP-A packet (size exceeds payload)")
		}
		nalus = append(nalus, payload[:size])
		payload = payload[size:]
	}
	if len(nalus) == 0 {
		return nil, vdkerrors.New(vdkerrors.InvalidBitstream, "STAP-A packet contains no NALUs")
	}
	return nalus, nil
}
