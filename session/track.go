package session

import (
	"sync"
	"time"

	"github.com/vdkio/vdkio"
	"github.com/vdkio/vdkio/internal/aac"
	"github.com/vdkio/vdkio/internal/bitreader"
	"github.com/vdkio/vdkio/internal/depacketizer"
	"github.com/vdkio/vdkio/internal/h264"
	"github.com/vdkio/vdkio/internal/h265"
	"github.com/vdkio/vdkio/internal/jitter"
	"github.com/vdkio/vdkio/internal/rtp"
	"github.com/vdkio/vdkio/internal/sdp"
	"github.com/vdkio/vdkio/rtsp"
)

// Codec identifies which depacketizer and parameter-set parser a track
// uses. AAC is the only audio codec this module depacketizes; Opus is
// recognized by vdkio.CodecData but has no RTP depacketizer here (it
// passes through systems that already hand it access units).
type Codec int

// supported codecs.
const (
	CodecH264 Codec = iota
	CodecH265
	CodecAAC
)

// track owns everything needed to turn one SDP media's RTP stream into a
// sequence of vdkio.Packet: the per-track jitter buffer, the RTP
// depacketizer for its codec, and PTS/DTS rebasing state.
type track struct {
	index     int
	rtsp      *rtsp.Track
	media     sdp.Media
	codec     Codec
	clockRate uint32

	jitter *jitter.Buffer

	h264dep *depacketizer.H264
	h265dep *depacketizer.H265
	aacdep  *depacketizer.AAC

	// dts is the reordering-based DTS estimator shared by H.264 and
	// H.265: this module does not decode POC, so DTS is reconstructed
	// from presentation order the way the teacher's h264.DTSEstimator
	// does, per spec.md §4.F's "otherwise DTS=PTS" fallback generalized
	// to a best-effort estimate rather than a flat PTS==DTS equality.
	dts *h264.DTSEstimator

	mutex     sync.Mutex
	haveEpoch bool
	epochTS   uint32

	codecData vdkio.CodecData
	sawSPS    bool
	sawPPS    bool
	sawVPS    bool
}

func newTrack(index int, rtspTrack *rtsp.Track, media sdp.Media, pt int, codec Codec, clockRate uint32) *track {
	t := &track{
		index:     index,
		rtsp:      rtspTrack,
		media:     media,
		codec:     codec,
		clockRate: clockRate,
		jitter:    jitter.New(jitter.DefaultCapacity, jitter.DefaultMaxDelay, jitter.DefaultReorderWindow, clockRate),
		codecData: initialCodecData(media, pt, codec),
	}
	switch codec {
	case CodecH264:
		t.h264dep = &depacketizer.H264{}
		t.dts = h264.NewDTSEstimator()
	case CodecH265:
		t.h265dep = &depacketizer.H265{}
		t.dts = h264.NewDTSEstimator()
	case CodecAAC:
		t.aacdep = &depacketizer.AAC{}
	}
	return t
}

// insert feeds one received RTP packet into the track's jitter buffer.
func (t *track) insert(pkt *rtp.Packet, arrival time.Time) {
	t.jitter.Insert(pkt, arrival)
}

// drain pops every packet currently deliverable from the jitter buffer and
// turns completed access units into Packets, in the jitter buffer's
// delivery order.
func (t *track) drain(now time.Time) ([]vdkio.Packet, error) {
	var out []vdkio.Packet
	for {
		pkt := t.jitter.Pop(now)
		if pkt == nil {
			return out, nil
		}
		pkts, err := t.feed(pkt)
		if err != nil {
			return out, err
		}
		out = append(out, pkts...)
	}
}

func (t *track) feed(pkt *rtp.Packet) ([]vdkio.Packet, error) {
	switch t.codec {
	case CodecH264:
		return t.feedH264(pkt)
	case CodecH265:
		return t.feedH265(pkt)
	case CodecAAC:
		return t.feedAAC(pkt)
	default:
		return nil, nil
	}
}

func (t *track) feedH264(pkt *rtp.Packet) ([]vdkio.Packet, error) {
	nalus, ts, err := t.h264dep.Feed(pkt)
	if err != nil || nalus == nil {
		return nil, err
	}

	for _, nalu := range nalus {
		switch h264.NALUHeaderType(nalu) {
		case h264.NALUTypeSPS:
			if !t.sawSPS {
				t.sawSPS = true
				t.updateH264Dimensions(nalu)
			}
		case h264.NALUTypePPS:
			t.sawPPS = true
		}
	}

	isKey := h264.ContainsKeyframe(nalus)
	payload, err := h264.EncodeAnnexB(nalus)
	if err != nil {
		return nil, err
	}

	pts, dts := t.rebase(ts)
	return []vdkio.Packet{{
		StreamID: uint8(t.index),
		PTS:      &pts,
		DTS:      &dts,
		IsKey:    isKey,
		Payload:  payload,
		Kind:     vdkio.Video,
	}}, nil
}

func (t *track) feedH265(pkt *rtp.Packet) ([]vdkio.Packet, error) {
	nalus, ts, err := t.h265dep.Feed(pkt)
	if err != nil || nalus == nil {
		return nil, err
	}

	for _, nalu := range nalus {
		switch h265.Type(nalu) {
		case h265.NALUTypeVPS:
			t.sawVPS = true
		case h265.NALUTypeSPS:
			if !t.sawSPS {
				t.sawSPS = true
				t.updateH265Dimensions(nalu)
			}
		case h265.NALUTypePPS:
			t.sawPPS = true
		}
	}

	isKey := h265.ContainsKeyframe(nalus)
	payload, err := h265.EncodeAnnexB(nalus)
	if err != nil {
		return nil, err
	}

	pts, dts := t.rebase(ts)
	return []vdkio.Packet{{
		StreamID: uint8(t.index),
		PTS:      &pts,
		DTS:      &dts,
		IsKey:    isKey,
		Payload:  payload,
		Kind:     vdkio.Video,
	}}, nil
}

func (t *track) feedAAC(pkt *rtp.Packet) ([]vdkio.Packet, error) {
	aus, err := t.aacdep.Feed(pkt)
	if err != nil {
		return nil, err
	}

	out := make([]vdkio.Packet, 0, len(aus))
	for _, au := range aus {
		pts, _ := t.rebase(au.Timestamp)
		out = append(out, vdkio.Packet{
			StreamID: uint8(t.index),
			PTS:      &pts,
			DTS:      &pts, // audio access units are never reordered
			IsKey:    false,
			Payload:  au.Data,
			Kind:     vdkio.Audio,
		})
	}
	return out, nil
}

// rebase converts an RTP timestamp into PTS/DTS ticks in the track's
// declared clock rate, relative to the first timestamp seen on this
// track (the session-start epoch), resolving u32 wraparound. For video
// codecs DTS is reconstructed by the reordering heuristic; the caller
// overrides it for codecs that need no reordering.
func (t *track) rebase(ts uint32) (pts int64, dts int64) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if !t.haveEpoch {
		t.haveEpoch = true
		t.epochTS = ts
	}

	pts = rtp.TimestampDiff(t.epochTS, ts)
	dts = pts
	if t.dts != nil {
		ptsDuration := time.Duration(pts) * time.Second / time.Duration(t.clockRate)
		dtsDuration := t.dts.Feed(ptsDuration)
		dts = int64(dtsDuration * time.Duration(t.clockRate) / time.Second)
	}
	return pts, dts
}

func (t *track) updateH264Dimensions(spsNALU []byte) {
	if len(spsNALU) < 1 {
		return
	}
	rbsp := bitreader.RemoveEmulationPrevention(spsNALU[1:])
	sps, err := h264.ParseSPS(rbsp)
	if err != nil {
		return
	}
	t.codecData.Width = sps.Width
	t.codecData.Height = sps.Height
}

func (t *track) updateH265Dimensions(spsNALU []byte) {
	if len(spsNALU) < 2 {
		return
	}
	rbsp := bitreader.RemoveEmulationPrevention(spsNALU[2:])
	sps, err := h265.ParseSPS(rbsp)
	if err != nil {
		return
	}
	t.codecData.Width = sps.Width
	t.codecData.Height = sps.Height
}

// CodecData returns a snapshot of this track's codec descriptor, updated
// as parameter sets are seen on the wire.
func (t *track) CodecData() vdkio.CodecData {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.codecData
}

// ClockRate returns the RTP timebase this track's Packet PTS/DTS values
// are expressed in: 90 kHz for H.264/H.265, the SDP rtpmap sample rate
// for AAC.
func (t *track) ClockRate() uint32 {
	return t.clockRate
}

// StreamID returns the index used to tag this track's Packets, matching
// vdkio.Packet.StreamID.
func (t *track) StreamID() uint8 {
	return uint8(t.index)
}

// AACConfig returns the parsed AudioSpecificConfig for an AAC track, if
// one has been established from the SDP fmtp config= attribute.
func (t *track) AACConfig() (*aac.MPEG4AudioConfig, error) {
	if t.codec != CodecAAC || len(t.codecData.ExtraData) == 0 {
		return nil, nil
	}
	return aac.ParseMPEG4AudioConfig(t.codecData.ExtraData)
}
