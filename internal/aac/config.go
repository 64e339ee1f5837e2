package aac

import (
	"github.com/vdkio/vdkio/internal/bitreader"
	"github.com/vdkio/vdkio/internal/vdkerrors"
)

// sample rate table shared with ADTS (ISO/IEC 14496-3 Table 1.16).
var sampleRateTable = [...]int{
	96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050,
	16000, 12000, 11025, 8000, 7350,
}

// MPEG4AudioConfig holds the fields of an AudioSpecificConfig (ISO/IEC
// 14496-3 §1.6.2) needed by this module: the parameters an RTSP SDP
// fmtp config= attribute carries for an AAC track.
type MPEG4AudioConfig struct {
	ObjectType   int
	SampleRate   int
	ChannelCount int
}

// ParseMPEG4AudioConfig parses an AudioSpecificConfig, as carried base64
// / hex-encoded in an SDP fmtp "config" attribute.
func ParseMPEG4AudioConfig(byts []byte) (*MPEG4AudioConfig, error) {
	r := bitreader.New(byts)

	objectType, err := r.ReadBits(5)
	if err != nil {
		return nil, err
	}
	if objectType == 31 {
		ext, err := r.ReadBits(6)
		if err != nil {
			return nil, err
		}
		objectType = 32 + ext
	}

	sampleRateIndex, err := r.ReadBits(4)
	if err != nil {
		return nil, err
	}
	var sampleRate int
	if sampleRateIndex == 0x0F {
		v, err := r.ReadBits(24)
		if err != nil {
			return nil, err
		}
		sampleRate = int(v)
	} else {
		if int(sampleRateIndex) >= len(sampleRateTable) {
			return nil, vdkerrors.New(vdkerrors.InvalidBitstream, "invalid AAC sample rate index %d", sampleRateIndex)
		}
		sampleRate = sampleRateTable[sampleRateIndex]
	}

	channelConfig, err := r.ReadBits(4)
	if err != nil {
		return nil, err
	}

	return &MPEG4AudioConfig{
		ObjectType:   int(objectType),
		SampleRate:   sampleRate,
		ChannelCount: int(channelConfig),
	}, nil
}

// AUHeader is a single RTP AU-header, as carried by the AU-headers-length
// section of an RFC 3640 AAC-hbr payload.
type AUHeader struct {
	Size       uint16
	IndexDelta uint16
}

// ParseAUHeaders parses the AU-headers section of an RFC 3640 payload:
// a 16-bit AU-headers-length in bits, followed by that many bits of
// packed (size, index-delta) pairs, sizeLength/indexLength bits wide.
func ParseAUHeaders(payload []byte, sizeLength, indexLength int) ([]AUHeader, []byte, error) {
	if len(payload) < 2 {
		return nil, nil, vdkerrors.New(vdkerrors.ProtocolError, "AU-headers section truncated")
	}

	headersLengthBits := int(payload[0])<<8 | int(payload[1])
	headersLengthBytes := (headersLengthBits + 7) / 8
	if len(payload) < 2+headersLengthBytes {
		return nil, nil, vdkerrors.New(vdkerrors.ProtocolError, "AU-headers section truncated")
	}

	r := bitreader.New(payload[2 : 2+headersLengthBytes])
	headerBits := sizeLength + indexLength
	if headerBits == 0 {
		return nil, nil, vdkerrors.New(vdkerrors.InvalidInput, "invalid AU-header bit widths")
	}
	count := headersLengthBits / headerBits

	headers := make([]AUHeader, count)
	for i := 0; i < count; i++ {
		size, err := r.ReadBits(sizeLength)
		if err != nil {
			return nil, nil, err
		}
		idx, err := r.ReadBits(indexLength)
		if err != nil {
			return nil, nil, err
		}
		headers[i] = AUHeader{Size: uint16(size), IndexDelta: uint16(idx)}
	}

	return headers, payload[2+headersLengthBytes:], nil
}
