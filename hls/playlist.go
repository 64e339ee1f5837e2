// Package hls implements a GOP-aligned TS segmenter and the sliding-window
// playlist writer that tracks it, producing plain-TS HLS output (RFC 8216).
package hls

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vdkio/vdkio/internal/vdkerrors"
)

// Segment is one emitted media segment.
type Segment struct {
	Index         int
	Name          string
	Duration      float64
	Discontinuity bool
	SizeBytes     uint64
}

// mediaPlaylist renders the EXTM3U media playlist body.
func mediaPlaylist(segments []Segment, firstIndex int, endlist bool) string {
	target := 0.0
	for _, s := range segments {
		if s.Duration > target {
			target = s.Duration
		}
	}

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", int(math.Ceil(target)))
	fmt.Fprintf(&b, "#EXT-X-MEDIA-SEQUENCE:%d\n", firstIndex)

	for _, s := range segments {
		if s.Discontinuity {
			b.WriteString("#EXT-X-DISCONTINUITY\n")
		}
		fmt.Fprintf(&b, "#EXTINF:%.3f,\n%s\n", s.Duration, s.Name)
	}

	if endlist {
		b.WriteString("#EXT-X-ENDLIST\n")
	}

	return b.String()
}

// writePlaylistAtomic writes body to <dir>/index.m3u8 by writing a
// temporary file and renaming it over the target, so readers never
// observe a partially-written playlist.
func writePlaylistAtomic(dir, body string) error {
	tmp := filepath.Join(dir, "index.m3u8.tmp")
	final := filepath.Join(dir, "index.m3u8")

	if err := os.WriteFile(tmp, []byte(body), 0o644); err != nil {
		return vdkerrors.Wrap(vdkerrors.IO, err, "writing temporary playlist")
	}
	if err := os.Rename(tmp, final); err != nil {
		return vdkerrors.Wrap(vdkerrors.IO, err, "renaming playlist into place")
	}
	return nil
}

// Variant describes one rendition for the master playlist.
type Variant struct {
	Name       string
	BandwidthB int
	Width      int
	Height     int
	Codecs     string
}

// masterPlaylist renders the multi-variant master playlist body.
func masterPlaylist(variants []Variant) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")

	for _, v := range variants {
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d,CODECS=\"%s\"\n",
			v.BandwidthB, v.Width, v.Height, v.Codecs)
		b.WriteString(v.Name + "/index.m3u8\n")
	}

	return b.String()
}

// WriteMasterPlaylist writes the top-level master playlist to
// <outDir>/index.m3u8.
func WriteMasterPlaylist(outDir string, variants []Variant) error {
	return writePlaylistAtomic(outDir, masterPlaylist(variants))
}

func segmentName(index int) string {
	return "seg_" + strconv.Itoa(index) + ".ts"
}
