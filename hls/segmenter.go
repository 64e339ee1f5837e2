package hls

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/vdkio/vdkio/internal/vdkerrors"
)

// DefaultTargetDuration is the default segment target.
const DefaultTargetDuration = 6.0

// DefaultWindow is the default sliding-window segment count.
const DefaultWindow = 5

// Segmenter writes a GOP-aligned sequence of MPEG-TS segment files and
// maintains the variant's sliding-window media playlist.
//
// The caller drives it with OnAccessUnitStart before feeding each video
// access unit's TS packets into Write; Write is used directly as the
// mpegts.Writer output sink.
type Segmenter struct {
	Dir            string
	TargetDuration float64
	Window         int
	VOD            bool

	// MaxDiskUsageBytes, when non-zero, additionally bounds the total size
	// of retained segment files: the oldest segment is evicted first once
	// the sum exceeds it, on top of the Window segment-count bound.
	MaxDiskUsageBytes uint64

	mutex sync.Mutex

	nextIndex  int
	firstIndex int
	segments   []Segment
	totalBytes uint64

	curFile              *os.File
	curStartPTS          float64
	curElapsed           float64
	havePTS              bool
	lastPTS              float64
	pendingDiscontinuity bool
	closed               bool
	justOpened           bool
}

// NewSegmenter allocates a Segmenter writing into dir, which must already
// exist.
func NewSegmenter(dir string, targetDuration float64, window int, vod bool) *Segmenter {
	if targetDuration <= 0 {
		targetDuration = DefaultTargetDuration
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Segmenter{Dir: dir, TargetDuration: targetDuration, Window: window, VOD: vod}
}

// SetTuning updates the target segment duration and sliding-window size
// while the segmenter is in flight, for config.Watcher-driven hot-reload
// (spec.md §5's cancellation/shutdown model keeps the session itself
// running across a tuning change; only these two knobs are reloadable).
// A non-positive value leaves that field unchanged. The new window takes
// effect starting with the next segment closed; it does not retroactively
// evict already-retained segments beyond the old window.
func (s *Segmenter) SetTuning(targetDuration float64, window int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if targetDuration > 0 {
		s.TargetDuration = targetDuration
	}
	if window > 0 {
		s.Window = window
	}
}

// SetMaxDiskUsageBytes sets the sliding-window's additional byte budget;
// zero disables it. See MaxDiskUsageBytes.
func (s *Segmenter) SetMaxDiskUsageBytes(n uint64) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.MaxDiskUsageBytes = n
}

// OnAccessUnitStart is called once per video access unit, before its TS
// packets are written, with whether it is a key frame and its PTS in
// seconds. It opens a new segment on the first key frame, and closes the
// current segment at the first key frame once duration_elapsed reaches
// the target.
func (s *Segmenter) OnAccessUnitStart(isKeyframe bool, ptsSeconds float64, discontinuity bool) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.justOpened = false

	if discontinuity {
		s.pendingDiscontinuity = true
	}

	if s.havePTS {
		s.curElapsed = ptsSeconds - s.curStartPTS
	}

	if !isKeyframe {
		s.lastPTS = ptsSeconds
		return nil
	}

	switch {
	case s.curFile == nil:
		if err := s.openSegment(ptsSeconds); err != nil {
			return err
		}
	case s.curElapsed >= s.TargetDuration:
		if err := s.closeSegment(ptsSeconds); err != nil {
			return err
		}
		if err := s.openSegment(ptsSeconds); err != nil {
			return err
		}
	}

	// curStartPTS/curElapsed reset only inside openSegment: a keyframe that
	// neither opens nor closes a segment must keep curElapsed measured
	// since the segment's start, not since this keyframe, so sub-target
	// inter-keyframe gaps still accumulate toward TargetDuration.
	s.havePTS = true
	s.lastPTS = ptsSeconds
	return nil
}

func (s *Segmenter) openSegment(ptsSeconds float64) error {
	name := segmentName(s.nextIndex)
	f, err := os.Create(filepath.Join(s.Dir, name))
	if err != nil {
		return vdkerrors.Wrap(vdkerrors.IO, err, "creating segment file %s", name)
	}
	s.curFile = f
	s.curStartPTS = ptsSeconds
	s.curElapsed = 0
	s.havePTS = true
	s.justOpened = true
	return nil
}

// SegmentJustOpened reports whether the most recent OnAccessUnitStart call
// opened a new segment file. A muxer writing into this segmenter's Write
// sink uses this to know when to emit a fresh PAT/PMT pair, since every
// segment must begin with its own program tables.
func (s *Segmenter) SegmentJustOpened() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.justOpened
}

// closeSegment finalizes the open segment file. endPTS is the PTS at
// which the segment's coverage ends — the next segment's first key
// frame, or (on shutdown) the last access unit seen — so the reported
// duration spans the full time the segment covers, not just the span
// between sample timestamps within it.
func (s *Segmenter) closeSegment(endPTS float64) error {
	if s.curFile == nil {
		return nil
	}

	name := filepath.Base(s.curFile.Name())
	duration := endPTS - s.curStartPTS
	if duration <= 0 {
		duration = s.TargetDuration
	}

	info, err := s.curFile.Stat()
	if err != nil {
		return vdkerrors.Wrap(vdkerrors.IO, err, "stat segment file %s", name)
	}
	if err := s.curFile.Close(); err != nil {
		return vdkerrors.Wrap(vdkerrors.IO, err, "closing segment file %s", name)
	}

	seg := Segment{Index: s.nextIndex, Name: name, Duration: duration, Discontinuity: s.pendingDiscontinuity, SizeBytes: uint64(info.Size())}
	s.pendingDiscontinuity = false
	s.nextIndex++
	s.curFile = nil

	s.segments = append(s.segments, seg)
	s.totalBytes += seg.SizeBytes
	for len(s.segments) > 1 && (len(s.segments) > s.Window || (s.MaxDiskUsageBytes > 0 && s.totalBytes > s.MaxDiskUsageBytes)) {
		old := s.segments[0]
		s.segments = s.segments[1:]
		s.firstIndex++
		s.totalBytes -= old.SizeBytes
		_ = os.Remove(filepath.Join(s.Dir, old.Name))
	}

	return s.writePlaylist(false)
}

func (s *Segmenter) writePlaylist(endlist bool) error {
	body := mediaPlaylist(s.segments, s.firstIndex, endlist)
	return writePlaylistAtomic(s.Dir, body)
}

// Write implements io.Writer, appending TS packets to the currently open
// segment file. Packets that arrive before the first key frame is seen
// are discarded.
func (s *Segmenter) Write(p []byte) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.curFile == nil {
		return len(p), nil
	}
	n, err := s.curFile.Write(p)
	if err != nil {
		return n, vdkerrors.Wrap(vdkerrors.IO, err, "writing segment data")
	}
	return n, nil
}

// Close finalizes the current segment (if it holds at least one second
// of media) and, in VOD mode, rewrites the playlist with #EXT-X-ENDLIST.
func (s *Segmenter) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.curFile != nil {
		if s.curElapsed >= 1.0 {
			if err := s.closeSegment(s.lastPTS); err != nil {
				return err
			}
		} else {
			name := s.curFile.Name()
			_ = s.curFile.Close()
			_ = os.Remove(name)
			s.curFile = nil
		}
	}

	if s.VOD {
		return s.writePlaylist(true)
	}
	return nil
}
