package hls

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSegmenterOpensOnFirstKeyframe(t *testing.T) {
	dir := t.TempDir()
	s := NewSegmenter(dir, 6, 5, false)

	require.NoError(t, s.OnAccessUnitStart(false, 0, false))
	require.Nil(t, s.curFile)

	require.NoError(t, s.OnAccessUnitStart(true, 0, false))
	require.NotNil(t, s.curFile)
}

func TestSegmenterClosesAtTargetDuration(t *testing.T) {
	dir := t.TempDir()
	s := NewSegmenter(dir, 2, 5, false)

	require.NoError(t, s.OnAccessUnitStart(true, 0, false))
	_, err := s.Write([]byte("first-segment-data"))
	require.NoError(t, err)

	require.NoError(t, s.OnAccessUnitStart(false, 1, false))
	require.NoError(t, s.OnAccessUnitStart(true, 2.5, false))
	_, err = s.Write([]byte("second-segment-data"))
	require.NoError(t, err)

	require.Len(t, s.segments, 1)
	require.Equal(t, "seg_0.ts", s.segments[0].Name)
	require.InDelta(t, 2.5, s.segments[0].Duration, 0.001)

	data, err := os.ReadFile(filepath.Join(dir, "seg_0.ts"))
	require.NoError(t, err)
	require.Equal(t, "first-segment-data", string(data))

	_, err = os.Stat(filepath.Join(dir, "index.m3u8"))
	require.NoError(t, err)
}

func TestSegmenterAccumulatesSubTargetGapsAcrossInteriorKeyframes(t *testing.T) {
	dir := t.TempDir()
	s := NewSegmenter(dir, 6, 5, false)

	// keyframes at 0, 2, 5, 7, 13s: no single gap reaches the 6s target,
	// but 0->7 (7s) and 7->13 (6s) each do once accumulated.
	require.NoError(t, s.OnAccessUnitStart(true, 0, false))
	require.NoError(t, s.OnAccessUnitStart(true, 2, false))
	require.NoError(t, s.OnAccessUnitStart(true, 5, false))
	require.NoError(t, s.OnAccessUnitStart(true, 7, false))
	require.NoError(t, s.OnAccessUnitStart(true, 13, false))

	require.Len(t, s.segments, 2)
	require.InDelta(t, 7.0, s.segments[0].Duration, 0.001)
	require.InDelta(t, 6.0, s.segments[1].Duration, 0.001)
}

func TestSegmenterSlidingWindowEvictsOldest(t *testing.T) {
	dir := t.TempDir()
	s := NewSegmenter(dir, 1, 2, false)

	pts := 0.0
	for i := 0; i < 5; i++ {
		require.NoError(t, s.OnAccessUnitStart(true, pts, false))
		_, err := s.Write([]byte("seg"))
		require.NoError(t, err)
		pts += 1.5
	}

	// 5 key frames close 4 segments (the 5th stays open); with a window
	// of 2, segments 0 and 1 are evicted, leaving 2 and 3.
	require.Len(t, s.segments, 2)
	require.Equal(t, 2, s.firstIndex)

	for i := 0; i < 2; i++ {
		_, err := os.Stat(filepath.Join(dir, segmentName(i)))
		require.Error(t, err, "evicted segment file should be removed")
	}
	for i := 2; i < 4; i++ {
		_, err := os.Stat(filepath.Join(dir, segmentName(i)))
		require.NoError(t, err)
	}
}

func TestSegmenterMaxDiskUsageEvictsOldestBeforeWindow(t *testing.T) {
	dir := t.TempDir()
	s := NewSegmenter(dir, 1, 10, false)
	s.MaxDiskUsageBytes = 12

	pts := 0.0
	for i := 0; i < 4; i++ {
		require.NoError(t, s.OnAccessUnitStart(true, pts, false))
		_, err := s.Write([]byte("123456")) // 6 bytes/segment
		require.NoError(t, err)
		pts += 1.5
	}

	// window of 10 never triggers; once a 3rd 6-byte segment closes the
	// running total (18) exceeds the 12-byte budget, evicting segment 0.
	require.Len(t, s.segments, 2)
	require.Equal(t, 1, s.firstIndex)
	require.LessOrEqual(t, s.totalBytes, uint64(12))
}

func TestSegmenterCloseFinalizesAndWritesEndlist(t *testing.T) {
	dir := t.TempDir()
	s := NewSegmenter(dir, 6, 5, true)

	require.NoError(t, s.OnAccessUnitStart(true, 0, false))
	_, err := s.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, s.OnAccessUnitStart(false, 3, false))

	require.NoError(t, s.Close())

	data, err := os.ReadFile(filepath.Join(dir, "index.m3u8"))
	require.NoError(t, err)
	require.Contains(t, string(data), "#EXT-X-ENDLIST")
	require.Len(t, s.segments, 1)
}

func TestSegmenterDiscardsShortTrailingSegmentOnClose(t *testing.T) {
	dir := t.TempDir()
	s := NewSegmenter(dir, 6, 5, false)

	require.NoError(t, s.OnAccessUnitStart(true, 0, false))
	require.NoError(t, s.OnAccessUnitStart(false, 0.2, false))

	require.NoError(t, s.Close())
	require.Empty(t, s.segments)

	_, err := os.Stat(filepath.Join(dir, "seg_0.ts"))
	require.Error(t, err)
}
