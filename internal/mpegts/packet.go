// Package mpegts implements an MPEG-TS (ISO/IEC 13818-1) muxer: 188-byte
// packetization, PAT/PMT, PES framing, PCR insertion and continuity
// counters.
package mpegts

import (
	"encoding/binary"

	"github.com/vdkio/vdkio/internal/vdkerrors"
)

// PacketSize is the fixed size of every emitted TS packet.
const PacketSize = 188

// well-known PIDs; the PMT PID is configurable but defaults as below.
const (
	PIDPAT          = 0x0000
	DefaultPIDPMT   = 4096
	DefaultPIDVideo = 256
	DefaultPIDAudio = 257
)

// Stream types (ISO/IEC 13818-1 Table 2-34 plus H.265/AAC amendments).
const (
	StreamTypeH264 = 0x1B
	StreamTypeH265 = 0x24
	StreamTypeAAC  = 0x0F
)

// Writer emits a continuous MPEG-TS stream to an output sink.
type Writer struct {
	PIDPMT   uint16
	PIDVideo uint16
	PIDAudio uint16
	HasAudio bool
	VideoStreamType uint8
	AudioStreamType uint8

	out func([]byte)

	ccByPID map[uint16]uint8

	lastPCR         int64
	havePCR         bool
	lastSourceClock int64
	haveSourceClock bool
	discontinuity   bool
}

// NewWriter allocates a Writer. out is called once per 188-byte packet.
func NewWriter(out func([]byte), pidPMT, pidVideo, pidAudio uint16, hasAudio bool, videoStreamType, audioStreamType uint8) *Writer {
	return &Writer{
		PIDPMT:          pidPMT,
		PIDVideo:        pidVideo,
		PIDAudio:        pidAudio,
		HasAudio:        hasAudio,
		VideoStreamType: videoStreamType,
		AudioStreamType: audioStreamType,
		out:             out,
		ccByPID:         map[uint16]uint8{},
	}
}

// WriteTables emits a fresh PAT/PMT pair. Call it at session start and
// before every segment-opening IDR.
func (w *Writer) WriteTables() {
	w.writePAT()
	w.writePMT()
}

func (w *Writer) writePAT() {
	section := make([]byte, 0, 16)
	section = append(section, 0x00)             // table_id
	section = append(section, 0, 0)             // section_length placeholder
	section = append(section, 0x00, 0x01)       // transport_stream_id
	section = append(section, 0xC1)             // version=0, current_next=1
	section = append(section, 0x00, 0x00)       // section_number, last_section_number
	section = append(section, 0x00, 0x01)       // program_number=1
	section = append(section, byte(0xE0|(w.PIDPMT>>8)), byte(w.PIDPMT))

	sectionLength := len(section) - 3 + 4 // +4 for CRC, -3 for the 3 header bytes not counted
	section[1] = 0x80 | byte(sectionLength>>8&0x0F)
	section[2] = byte(sectionLength)

	crc := crc32MPEG2(section)
	section = appendUint32(section, crc)

	w.writeSection(PIDPAT, section)
}

func (w *Writer) writePMT() {
	section := make([]byte, 0, 32)
	section = append(section, 0x02)       // table_id
	section = append(section, 0, 0)       // section_length placeholder
	section = append(section, 0x00, 0x01) // program_number
	section = append(section, 0xC1)       // version=0, current_next=1
	section = append(section, 0x00, 0x00) // section_number, last_section_number
	section = append(section, byte(0xE0|(w.PIDVideo>>8)), byte(w.PIDVideo)) // PCR_PID = video
	section = append(section, 0xF0, 0x00)                                  // program_info_length=0

	section = append(section, w.VideoStreamType, byte(0xE0|(w.PIDVideo>>8)), byte(w.PIDVideo), 0xF0, 0x00)
	if w.HasAudio {
		section = append(section, w.AudioStreamType, byte(0xE0|(w.PIDAudio>>8)), byte(w.PIDAudio), 0xF0, 0x00)
	}

	sectionLength := len(section) - 3 + 4
	section[1] = 0x80 | byte(sectionLength>>8&0x0F)
	section[2] = byte(sectionLength)

	crc := crc32MPEG2(section)
	section = appendUint32(section, crc)

	w.writeSection(w.PIDPMT, section)
}

func appendUint32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

// writeSection packetizes one PSI section (PAT/PMT) into 188-byte
// packets, pointer_field-prefixed and stuffed to the packet boundary.
func (w *Writer) writeSection(pid uint16, section []byte) {
	payload := append([]byte{0x00}, section...) // pointer_field=0

	pkt := make([]byte, PacketSize)
	pkt[0] = 0x47
	pkt[1] = 0x40 | byte(pid>>8) // PUSI=1
	pkt[2] = byte(pid)
	cc := w.nextCC(pid)
	pkt[3] = 0x10 | cc // no adaptation field, payload only

	n := copy(pkt[4:], payload)
	for i := 4 + n; i < PacketSize; i++ {
		pkt[i] = 0xFF
	}
	w.out(pkt)
}

func (w *Writer) nextCC(pid uint16) byte {
	cc := w.ccByPID[pid]
	w.ccByPID[pid] = (cc + 1) % 16
	return cc
}

// WritePES writes one access unit as a PES packet on the given PID,
// splitting it across as many 188-byte TS packets as needed.
//
// isVideo controls whether a PCR is considered for insertion (video PID
// only). ptsTicks/dtsTicks are 90 kHz timestamps; dtsTicks
// is ignored (PTS==DTS assumed) when equal to ptsTicks.
func (w *Writer) WritePES(pid uint16, isVideo bool, ptsTicks, dtsTicks int64, payload []byte) error {
	streamID := byte(0xE0)
	if !isVideo {
		streamID = 0xC0
	}
	pes, err := marshalPES(streamID, ptsTicks, dtsTicks, payload)
	if err != nil {
		return err
	}

	first := true
	for len(pes) > 0 {
		n := PacketSize - 4
		var adaptation []byte

		if first {
			pcr, insertPCR := w.pcrToInsert(isVideo, ptsTicks)
			if insertPCR {
				adaptation = buildAdaptationField(pcr, w.discontinuity, 0)
				w.discontinuity = false
			}
		}

		available := n - len(adaptation)

		chunk := pes
		if len(chunk) > available {
			chunk = chunk[:available]
		} else if len(chunk) < available {
			// last packet of the PES: pad with adaptation-field stuffing
			// rather than raw bytes, since a payload-bearing TS packet
			// must fill exactly 188 bytes.
			stuffing := available - len(chunk)
			if len(adaptation) == 0 {
				// length, flags (no PCR, no discontinuity); a single byte of
				// stuffing is just the zero length byte.
				adaptation = []byte{0x00, 0x00}[:min(stuffing, 2)]
				stuffing -= len(adaptation)
			}
			pad := make([]byte, stuffing)
			for i := range pad {
				pad[i] = 0xFF
			}
			adaptation = append(adaptation, pad...)
			adaptation[0] = byte(len(adaptation) - 1)
		}
		pes = pes[len(chunk):]

		hasAdaptation := len(adaptation) > 0
		w.writeTSPacket(pid, first, hasAdaptation, adaptation, chunk)
		first = false
	}

	return nil
}

func (w *Writer) pcrToInsert(isVideo bool, ptsTicks int64) (int64, bool) {
	if !isVideo {
		return 0, false
	}

	pcr := ptsTicks * 300

	sourceClockTicks := ptsTicks
	if w.haveSourceClock {
		if sourceClockTicks < w.lastSourceClock ||
			(sourceClockTicks-w.lastSourceClock) > int64(0.7*90000) {
			w.discontinuity = true
		}
	}
	w.lastSourceClock = sourceClockTicks
	w.haveSourceClock = true

	if !w.havePCR || pcr-w.lastPCR > int64(0.04*27000000) || w.discontinuity {
		w.lastPCR = pcr
		w.havePCR = true
		return pcr, true
	}
	return 0, false
}

func (w *Writer) writeTSPacket(pid uint16, pusi bool, hasAdaptation bool, adaptation, payload []byte) {
	pkt := make([]byte, PacketSize)
	pkt[0] = 0x47
	flags := byte(0)
	if pusi {
		flags |= 0x40
	}
	pkt[1] = flags | byte(pid>>8)
	pkt[2] = byte(pid)

	hasPayload := len(payload) > 0
	afc := byte(0)
	switch {
	case hasAdaptation && hasPayload:
		afc = 0x30
	case hasAdaptation && !hasPayload:
		afc = 0x20
	case !hasAdaptation && hasPayload:
		afc = 0x10
	}

	cc := byte(0)
	if hasPayload {
		cc = w.nextCC(pid)
	}
	pkt[3] = afc | cc

	pos := 4
	if hasAdaptation {
		pos += copy(pkt[pos:], adaptation)
	}
	if hasPayload {
		n := copy(pkt[pos:], payload)
		pos += n
	}
	for ; pos < PacketSize; pos++ {
		pkt[pos] = 0xFF
	}

	w.out(pkt)
}

// buildAdaptationField builds an adaptation field. pcr27MHz < 0 means no
// PCR is carried; stuffingLen pads the field to consume stuffingLen extra
// bytes beyond its natural length.
func buildAdaptationField(pcr27MHz int64, discontinuity bool, stuffingLen int) []byte {
	hasPCR := pcr27MHz >= 0
	length := 1 // flags byte
	if hasPCR {
		length += 6
	}
	length += stuffingLen

	field := make([]byte, 1+length)
	field[0] = byte(length)

	flags := byte(0)
	if discontinuity {
		flags |= 0x80
	}
	if hasPCR {
		flags |= 0x10
	}
	field[1] = flags

	pos := 2
	if hasPCR {
		base := pcr27MHz / 300
		ext := pcr27MHz % 300
		field[pos] = byte(base >> 25)
		field[pos+1] = byte(base >> 17)
		field[pos+2] = byte(base >> 9)
		field[pos+3] = byte(base >> 1)
		field[pos+4] = byte(base<<7) | 0x7E | byte(ext>>8)
		field[pos+5] = byte(ext)
		pos += 6
	}
	for ; pos < len(field); pos++ {
		field[pos] = 0xFF
	}

	return field
}

// marshalPES builds a PES packet carrying PTS (and DTS when it differs)
// in the standard 33-bit split timestamp layout.
func marshalPES(streamID byte, ptsTicks, dtsTicks int64, payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, vdkerrors.New(vdkerrors.InvalidInput, "PES payload is empty")
	}

	hasDTS := dtsTicks != ptsTicks
	ptsDTSFlags := byte(0x80)
	headerDataLen := 5
	if hasDTS {
		ptsDTSFlags = 0xC0
		headerDataLen = 10
	}

	pesPacketLength := 3 + headerDataLen + len(payload)
	if pesPacketLength > 0xFFFF {
		pesPacketLength = 0
	}

	pes := make([]byte, 0, 9+headerDataLen+len(payload))
	pes = append(pes, 0x00, 0x00, 0x01, streamID) // start code + stream id
	pes = append(pes, byte(pesPacketLength>>8), byte(pesPacketLength))
	pes = append(pes, 0x80, ptsDTSFlags, byte(headerDataLen))

	pes = appendTimestamp(pes, ptsDTSFlags>>6, ptsTicks)
	if hasDTS {
		pes = appendTimestamp(pes, 0x01, dtsTicks)
	}

	pes = append(pes, payload...)
	return pes, nil
}

func appendTimestamp(b []byte, marker byte, ticks int64) []byte {
	v := uint64(ticks)
	b0 := byte(marker<<4) | byte((v>>29)&0x0E) | 0x01
	b1 := byte(v >> 22)
	b2 := byte((v>>14)&0xFE) | 0x01
	b3 := byte(v >> 7)
	b4 := byte((v<<1)&0xFE) | 0x01
	return append(b, b0, b1, b2, b3, b4)
}
