// Package pipeline is the multi-variant driver (spec.md §4.I): it fans
// out one source's Packets to N downstream MPEG-TS muxer + HLS segmenter
// pairs, each producing its own sliding-window media playlist, and keeps
// a master playlist over all of them up to date.
package pipeline

import (
	"os"
	"path/filepath"

	"github.com/vdkio/vdkio"
	"github.com/vdkio/vdkio/hls"
	"github.com/vdkio/vdkio/internal/aac"
	"github.com/vdkio/vdkio/internal/logger"
	"github.com/vdkio/vdkio/internal/mpegts"
	"github.com/vdkio/vdkio/internal/vdkerrors"
)

// discontinuityGapSeconds, together with treating any backward PTS step as
// a discontinuity, mirrors the mpegts.Writer's own PCR-discontinuity
// thresholds (spec.md §4.G) so the
// HLS playlist's EXT-X-DISCONTINUITY tag and the TS adaptation field's
// discontinuity_indicator are raised by the same underlying event.
const discontinuityGapSeconds = 0.7

// VariantSpec configures one downstream rendition of the source.
type VariantSpec struct {
	// Name is the subdirectory under the driver's output directory and
	// the master playlist's variant URI prefix.
	Name string
	// BandwidthB is the EXT-X-STREAM-INF BANDWIDTH value, in bits/sec.
	BandwidthB int
	// KeyframesOnly applies the rate-adaptive drop policy described in
	// spec.md §4.I: non-key video access units are never muxed into this
	// variant. It does not re-encode anything.
	KeyframesOnly bool
	// TargetDurationSecs, Window and VOD configure this variant's
	// hls.Segmenter; zero values fall back to hls package defaults.
	TargetDurationSecs float64
	Window             int
	VOD                bool
	// MaxDiskUsageBytes additionally caps retained segment bytes for this
	// variant; zero disables the byte budget. See hls.Segmenter.MaxDiskUsageBytes.
	MaxDiskUsageBytes uint64
}

// Source describes the upstream media this driver reads: the stream IDs
// (matching vdkio.Packet.StreamID) of the single video and optional
// audio track, and their codec descriptors as known at driver
// construction time (width/height may still be zero if no parameter set
// has been seen yet; the driver does not block waiting for one).
type Source struct {
	VideoStreamID uint8
	VideoCodec    vdkio.CodecData

	HasAudio      bool
	AudioStreamID uint8
	AudioCodec    vdkio.CodecData
}

// Driver owns one variant fan-out: N independent mpegts.Writer + hls.Segmenter
// pairs consuming a single upstream vdkio.Packet stream.
type Driver struct {
	outDir string
	source Source
	log    logger.Writer

	variants []*variant
}

type variant struct {
	spec VariantSpec
	dir  string

	segmenter *hls.Segmenter
	muxer     *mpegts.Writer
	writeErr  error

	haveLastVideoPTS bool
	lastVideoPTS     float64

	// audioSampleRate/audioChannelCount back the ADTS header handleAudio
	// wraps every AAC access unit in: MPEG-TS stream_type 0x0F (StreamTypeAAC)
	// carries ADTS-framed AAC, not bare AudioMuxElement payloads.
	audioSampleRate   int
	audioChannelCount int
}

// NewDriver creates outDir/<variant>/ for every spec, wires a muxer and
// segmenter per variant, and, when there is more than one variant, writes
// the top-level master playlist. Every
// VariantSpec.Name must be unique and non-empty.
func NewDriver(outDir string, source Source, specs []VariantSpec, log logger.Writer) (*Driver, error) {
	if len(specs) == 0 {
		return nil, vdkerrors.New(vdkerrors.InvalidInput, "pipeline: at least one variant is required")
	}
	if log == nil {
		log = nopWriter{}
	}

	d := &Driver{outDir: outDir, source: source, log: log}

	seen := map[string]bool{}
	var masterVariants []hls.Variant
	for _, spec := range specs {
		if spec.Name == "" || seen[spec.Name] {
			return nil, vdkerrors.New(vdkerrors.InvalidInput, "pipeline: duplicate or empty variant name %q", spec.Name)
		}
		seen[spec.Name] = true

		v, err := newVariant(outDir, source, spec)
		if err != nil {
			return nil, err
		}
		d.variants = append(d.variants, v)

		codecs := codecsString(source.VideoCodec)
		if source.HasAudio {
			if audio := codecsString(source.AudioCodec); audio != "" {
				codecs += "," + audio
			}
		}
		masterVariants = append(masterVariants, hls.Variant{
			Name:       spec.Name,
			BandwidthB: spec.BandwidthB,
			Width:      source.VideoCodec.Width,
			Height:     source.VideoCodec.Height,
			Codecs:     codecs,
		})
	}

	if len(masterVariants) > 1 {
		if err := hls.WriteMasterPlaylist(outDir, masterVariants); err != nil {
			return nil, err
		}
	}

	return d, nil
}

func newVariant(outDir string, source Source, spec VariantSpec) (*variant, error) {
	dir := filepath.Join(outDir, spec.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, vdkerrors.Wrap(vdkerrors.IO, err, "creating variant directory %s", dir)
	}

	v := &variant{
		spec: spec,
		dir:  dir,
	}
	v.segmenter = hls.NewSegmenter(dir, spec.TargetDurationSecs, spec.Window, spec.VOD)
	v.segmenter.MaxDiskUsageBytes = spec.MaxDiskUsageBytes

	videoStreamType := streamTypeOf(source.VideoCodec)
	audioStreamType := uint8(0)
	if source.HasAudio {
		audioStreamType = streamTypeOf(source.AudioCodec)
	}

	v.muxer = mpegts.NewWriter(v.write, mpegts.DefaultPIDPMT, mpegts.DefaultPIDVideo, mpegts.DefaultPIDAudio,
		source.HasAudio, videoStreamType, audioStreamType)

	if source.HasAudio {
		if cfg, err := aac.ParseMPEG4AudioConfig(source.AudioCodec.ExtraData); err == nil {
			v.audioSampleRate = cfg.SampleRate
			v.audioChannelCount = cfg.ChannelCount
		}
	}

	return v, nil
}

func streamTypeOf(cd vdkio.CodecData) uint8 {
	switch cd.Type {
	case vdkio.H265:
		return mpegts.StreamTypeH265
	case vdkio.AAC:
		return mpegts.StreamTypeAAC
	default:
		return mpegts.StreamTypeH264
	}
}

// write is the mpegts.Writer output sink: every 188-byte TS packet is
// appended to the variant's currently open segment file. mpegts.Writer's
// sink signature can't return an error, so failures are latched and
// surfaced by the next call into handleVideo/handleAudio.
func (v *variant) write(p []byte) {
	if _, err := v.segmenter.Write(p); err != nil && v.writeErr == nil {
		v.writeErr = err
	}
}

func (v *variant) takeWriteErr() error {
	err := v.writeErr
	v.writeErr = nil
	return err
}

// handleVideo feeds one video access unit through this variant's policy,
// segmenter and muxer. The KeyframesOnly policy (spec.md §4.I's
// rate-adaptive drop) silently discards non-key access units rather than
// treating the drop as an error.
func (v *variant) handleVideo(pkt vdkio.Packet, clockRate uint32) error {
	if v.spec.KeyframesOnly && !pkt.IsKey {
		return nil
	}
	if pkt.PTS == nil {
		return nil // no timebase established yet; can't place this AU
	}

	ptsSeconds := float64(*pkt.PTS) / float64(clockRate)

	discontinuity := false
	if v.haveLastVideoPTS {
		delta := ptsSeconds - v.lastVideoPTS
		if delta < 0 || delta > discontinuityGapSeconds {
			discontinuity = true
		}
	}
	v.haveLastVideoPTS = true
	v.lastVideoPTS = ptsSeconds

	if err := v.segmenter.OnAccessUnitStart(pkt.IsKey, ptsSeconds, discontinuity); err != nil {
		return err
	}
	if v.segmenter.SegmentJustOpened() {
		v.muxer.WriteTables()
	}

	dts := *pkt.PTS
	if pkt.DTS != nil {
		dts = *pkt.DTS
	}
	if err := v.muxer.WritePES(mpegts.DefaultPIDVideo, true, *pkt.PTS, dts, pkt.Payload); err != nil {
		return err
	}
	return v.takeWriteErr()
}

// handleAudio feeds one AAC access unit through this variant's muxer.
// Audio is always passed through regardless of KeyframesOnly: that
// policy names only the video drop behavior spec.md §4.I describes. The
// access unit is ADTS-framed before muxing, since stream_type 0x0F
// (StreamTypeAAC) specifies ADTS transport syntax, not bare AudioMuxElements.
func (v *variant) handleAudio(pkt vdkio.Packet) error {
	if pkt.PTS == nil {
		return nil
	}
	if v.audioSampleRate == 0 {
		return vdkerrors.New(vdkerrors.Unsupported, "no AudioSpecificConfig known for this variant's audio track")
	}

	framed, err := aac.EncodeADTS([]*aac.ADTSFrame{{
		SampleRate:   v.audioSampleRate,
		ChannelCount: v.audioChannelCount,
		Payload:      pkt.Payload,
	}})
	if err != nil {
		return err
	}

	if err := v.muxer.WritePES(mpegts.DefaultPIDAudio, false, *pkt.PTS, *pkt.PTS, framed); err != nil {
		return err
	}
	return v.takeWriteErr()
}

// Run drains in until it is closed, feeding every packet to every
// variant, and finalizes each variant's segmenter when done. A per-packet
// error is logged against that variant but does not stop the
// driver: spec.md §7 treats depacketizer/segmenter-input faults as
// non-fatal to the session as a whole.
func (d *Driver) Run(in <-chan vdkio.Packet) error {
	for pkt := range in {
		switch pkt.StreamID {
		case d.source.VideoStreamID:
			for _, v := range d.variants {
				if err := v.handleVideo(pkt, videoClockRate(d.source.VideoCodec)); err != nil {
					d.log.Log(logger.Warn, "variant %s: dropping video access unit: %v", v.spec.Name, err)
				}
			}
		case d.source.AudioStreamID:
			if !d.source.HasAudio {
				continue
			}
			for _, v := range d.variants {
				if err := v.handleAudio(pkt); err != nil {
					d.log.Log(logger.Warn, "variant %s: dropping audio access unit: %v", v.spec.Name, err)
				}
			}
		}
	}
	return d.Close()
}

// videoClockRate is always 90 kHz for H.264/H.265 per spec.md §3; kept
// as a function (rather than a bare constant at call sites) so a future
// video codec with a different timebase only needs a change here.
func videoClockRate(vdkio.CodecData) uint32 {
	return 90000
}

// Reload applies a new target duration and window size to every
// variant's segmenter, without interrupting an in-flight session. Used
// by the config.Watcher hot-reload path.
func (d *Driver) Reload(targetDurationSecs float64, window int) {
	for _, v := range d.variants {
		v.segmenter.SetTuning(targetDurationSecs, window)
	}
}

// Close finalizes every variant's current segment and, for VOD
// segmenters, writes the terminal EXT-X-ENDLIST. It is safe to call more
// than once.
func (d *Driver) Close() error {
	var first error
	for _, v := range d.variants {
		if err := v.segmenter.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type nopWriter struct{}

func (nopWriter) Log(logger.Level, string, ...interface{}) {}
