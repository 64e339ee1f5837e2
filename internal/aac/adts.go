package aac

import (
	"github.com/vdkio/vdkio/internal/vdkerrors"
)

// adtsSampleRates indexes ADTS's 4-bit sampling_frequency_index field
// (ISO/IEC 13818-7 Table 35).
var adtsSampleRates = [13]int{96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050, 16000, 12000, 11025, 8000, 7350}

const adtsFullness = 0x7FF // buffer fullness value that signals a variable-bit-rate stream

// ADTSFrame is one ADTS-framed AAC access unit, extracted from or destined
// for a raw .aac elementary stream. RTP delivers AAC as bare AudioMuxElement
// payloads (internal/depacketizer); the pipeline wraps each of them in an
// ADTS header before muxing, since MPEG-TS carries AAC in ADTS framing.
type ADTSFrame struct {
	SampleRate   int
	ChannelCount int
	Payload      []byte
}

// DecodeADTS splits an ADTS byte stream into its constituent frames. Only
// the common case this module needs is supported: AAC-LC, no CRC, single
// frame per ADTS header, constant fullness.
func DecodeADTS(data []byte) ([]*ADTSFrame, error) {
	var frames []*ADTSFrame

	for len(data) > 0 {
		hdr, err := parseADTSHeader(data)
		if err != nil {
			return nil, err
		}
		if len(data[7:]) < hdr.frameLen {
			return nil, vdkerrors.New(vdkerrors.InvalidBitstream, "ADTS frame length %d exceeds remaining %d bytes", hdr.frameLen, len(data[7:]))
		}

		frames = append(frames, &ADTSFrame{
			SampleRate:   hdr.sampleRate,
			ChannelCount: hdr.channelCount,
			Payload:      data[7 : 7+hdr.frameLen],
		})
		data = data[7+hdr.frameLen:]
	}

	return frames, nil
}

type adtsHeader struct {
	sampleRate   int
	channelCount int
	frameLen     int
}

func parseADTSHeader(data []byte) (adtsHeader, error) {
	if len(data) < 7 {
		return adtsHeader{}, vdkerrors.New(vdkerrors.InvalidBitstream, "ADTS header truncated")
	}

	syncWord := (uint16(data[0]) << 4) | (uint16(data[1]) >> 4)
	if syncWord != 0xfff {
		return adtsHeader{}, vdkerrors.New(vdkerrors.InvalidBitstream, "bad ADTS sync word 0x%03x", syncWord)
	}
	if data[1]&0x01 != 1 {
		return adtsHeader{}, vdkerrors.New(vdkerrors.Unsupported, "ADTS streams with CRC are not supported")
	}
	if data[2]>>6 != 1 { // profile = audio object type - 1; AAC-LC is 2
		return adtsHeader{}, vdkerrors.New(vdkerrors.Unsupported, "only the AAC-LC profile is supported")
	}

	rateIdx := (data[2] >> 2) & 0x0F
	if int(rateIdx) >= len(adtsSampleRates) {
		return adtsHeader{}, vdkerrors.New(vdkerrors.InvalidBitstream, "invalid ADTS sampling_frequency_index %d", rateIdx)
	}

	channelConfig := ((data[2] & 0x01) << 2) | ((data[3] >> 6) & 0x03)
	channelCount, ok := adtsChannelCount(channelConfig)
	if !ok {
		return adtsHeader{}, vdkerrors.New(vdkerrors.InvalidBitstream, "invalid ADTS channel_configuration %d", channelConfig)
	}

	frameLen := int(((uint16(data[3])&0x03)<<11)|
		(uint16(data[4])<<3)|
		((uint16(data[5])>>5)&0x07)) - 7

	fullness := ((uint16(data[5]) & 0x1F) << 6) | ((uint16(data[6]) >> 2) & 0x3F)
	if fullness != adtsFullness {
		return adtsHeader{}, vdkerrors.New(vdkerrors.Unsupported, "non-constant ADTS buffer fullness is not supported")
	}
	if data[6]&0x03 != 0 {
		return adtsHeader{}, vdkerrors.New(vdkerrors.Unsupported, "ADTS with more than one AAC frame per header is not supported")
	}

	return adtsHeader{sampleRate: adtsSampleRates[rateIdx], channelCount: channelCount, frameLen: frameLen}, nil
}

func adtsChannelCount(config uint8) (int, bool) {
	// channel_configuration 7 maps to 8 channels; everything else is 1:1.
	switch config {
	case 1, 2, 3, 4, 5, 6:
		return int(config), true
	case 7:
		return 8, true
	default:
		return 0, false
	}
}

func adtsSampleRateIndex(rate int) (uint8, bool) {
	for i, r := range adtsSampleRates {
		if r == rate {
			return uint8(i), true
		}
	}
	return 0, false
}

func adtsChannelConfig(count int) (uint8, bool) {
	switch count {
	case 1, 2, 3, 4, 5, 6:
		return uint8(count), true
	case 8:
		return 7, true
	default:
		return 0, false
	}
}

// EncodeADTS serializes frames back into an ADTS byte stream, the inverse
// of DecodeADTS.
func EncodeADTS(frames []*ADTSFrame) ([]byte, error) {
	var out []byte

	for _, f := range frames {
		rateIdx, ok := adtsSampleRateIndex(f.SampleRate)
		if !ok {
			return nil, vdkerrors.New(vdkerrors.Unsupported, "unsupported AAC sample rate %d", f.SampleRate)
		}
		channelConf, ok := adtsChannelConfig(f.ChannelCount)
		if !ok {
			return nil, vdkerrors.New(vdkerrors.Unsupported, "unsupported AAC channel count %d", f.ChannelCount)
		}

		frameLen := len(f.Payload) + 7

		hdr := make([]byte, 7)
		hdr[0] = 0xFF
		hdr[1] = 0xF1
		hdr[2] = (1 << 6) | (rateIdx << 2) | ((channelConf >> 2) & 0x01) // profile 1: AAC-LC
		hdr[3] = (channelConf&0x03)<<6 | uint8((frameLen>>11)&0x03)
		hdr[4] = uint8((frameLen >> 3) & 0xFF)
		hdr[5] = uint8((frameLen&0x07)<<5 | ((adtsFullness >> 6) & 0x1F))
		hdr[6] = uint8((adtsFullness & 0x3F) << 2)

		out = append(out, hdr...)
		out = append(out, f.Payload...)
	}

	return out, nil
}
