package jitter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vdkio/vdkio/internal/rtp"
)

func pkt(seq uint16) *rtp.Packet {
	return &rtp.Packet{SequenceNumber: seq, Timestamp: uint32(seq) * 3000}
}

// TestBufferReordersWithinMaxDelay covers spec.md's jitter-reorder
// scenario (S3): inserting [100, 102, 101, 103] within 50ms with
// max_delay=200ms must drain in strictly increasing order with one
// out-of-order arrival counted and nothing lost.
func TestBufferReordersWithinMaxDelay(t *testing.T) {
	b := New(DefaultCapacity, 200*time.Millisecond, DefaultReorderWindow, 90000)

	base := time.Now()
	b.Insert(pkt(100), base)
	b.Insert(pkt(102), base.Add(20*time.Millisecond))
	b.Insert(pkt(101), base.Add(35*time.Millisecond))
	b.Insert(pkt(103), base.Add(50*time.Millisecond))

	var drained []uint16
	for {
		p := b.Pop(base.Add(50 * time.Millisecond))
		if p == nil {
			break
		}
		drained = append(drained, p.SequenceNumber)
	}

	require.Equal(t, []uint16{100, 101, 102, 103}, drained)

	stats := b.Stats()
	require.Equal(t, uint64(0), stats.Lost)
	require.Equal(t, uint64(1), stats.OutOfOrder)
}

// TestBufferGapFlushAfterMaxDelay covers spec.md's gap-flush scenario
// (S4): packet 101 never arrives; once the oldest buffered entry (102)
// has waited MaxDelay, it is emitted as a gap flush and the missing
// sequence number is counted as loss.
func TestBufferGapFlushAfterMaxDelay(t *testing.T) {
	b := New(DefaultCapacity, 200*time.Millisecond, DefaultReorderWindow, 90000)

	base := time.Now()
	b.Insert(pkt(100), base)
	b.Insert(pkt(102), base.Add(10*time.Millisecond))

	p := b.Pop(base.Add(210 * time.Millisecond))
	require.NotNil(t, p)
	require.Equal(t, uint16(100), p.SequenceNumber)

	p = b.Pop(base.Add(210 * time.Millisecond))
	require.NotNil(t, p)
	require.Equal(t, uint16(102), p.SequenceNumber)

	require.Equal(t, uint64(1), b.Stats().Lost)
}

// TestBufferInsertEvictsFurthestOnOverCapacity exercises the eviction
// path Insert takes once the buffer holds more than Capacity entries:
// the entry with the greatest forward sequence distance from
// next_expected must be the one dropped, regardless of insertion order
// or where it happens to land in the backing heap array.
func TestBufferInsertEvictsFurthestOnOverCapacity(t *testing.T) {
	b := New(3, 200*time.Millisecond, DefaultReorderWindow, 90000)

	base := time.Now()
	// next_expected is pinned to 100 by this first insert.
	b.Insert(pkt(100), base)
	b.Insert(pkt(101), base)
	b.Insert(pkt(105), base) // distance 5 from next_expected: the furthest entry
	require.Equal(t, 3, b.heap.Len())

	// a 4th entry, closer than 105, pushes the buffer over capacity; 105
	// must be the one evicted regardless of where it landed in the
	// min-heap's backing array after heap.Push/heap.Init.
	b.Insert(pkt(102), base)
	require.Equal(t, 3, b.heap.Len())

	seqs := map[uint16]bool{}
	for _, e := range b.heap.items {
		seqs[e.seq] = true
	}
	require.False(t, seqs[105], "the furthest entry (105) must be evicted")
	require.True(t, seqs[100])
	require.True(t, seqs[101])
	require.True(t, seqs[102])
}
