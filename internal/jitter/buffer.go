// Package jitter implements an RTP jitter buffer: it reorders packets by
// 16-bit wrapping sequence number, drops duplicates and stale arrivals,
// and emits packets in order within a bounded delay.
package jitter

import (
	"container/heap"
	"sync"
	"time"

	"github.com/vdkio/vdkio/internal/rtp"
)

// DefaultCapacity is the default number of entries the buffer can hold.
const DefaultCapacity = 128

// DefaultMaxDelay is the default bound on how long an out-of-order packet
// waits before a gap flush occurs.
const DefaultMaxDelay = 200 * time.Millisecond

// DefaultReorderWindow bounds how far behind next_expected a sequence
// number may be before it's considered stale rather than merely reordered.
const DefaultReorderWindow = 100

// resyncJump is the forward sequence jump that is treated as a stream
// restart rather than ordinary loss.
const resyncJump = 1 << 15

// Stats are the buffer's cumulative reception statistics.
type Stats struct {
	Received    uint64
	Lost        uint64
	Duplicated  uint64
	OutOfOrder  uint64
	JitterTicks float64 // RFC 3550 §A.8 estimate, in RTP timestamp units
}

type entry struct {
	seq     uint16
	arrival time.Time
	pkt     *rtp.Packet
}

// entryHeap is a min-heap ordered by forward sequence distance from a
// reference point captured at push time.
type entryHeap struct {
	items []entry
	from  uint16
}

func (h *entryHeap) Len() int { return len(h.items) }
func (h *entryHeap) Less(i, j int) bool {
	return rtp.SequenceDistance(h.from, h.items[i].seq) < rtp.SequenceDistance(h.from, h.items[j].seq)
}
func (h *entryHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *entryHeap) Push(x interface{}) { h.items = append(h.items, x.(entry)) }
func (h *entryHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	it := old[n-1]
	h.items = old[:n-1]
	return it
}

// Buffer is a single-producer, single-consumer RTP jitter buffer.
type Buffer struct {
	Capacity      int
	MaxDelay      time.Duration
	ReorderWindow uint16
	ClockRate     uint32 // RTP clock rate, used for jitter estimation

	mutex sync.Mutex
	stats Stats

	initialized  bool
	nextExpected uint16
	maxSeenDelta int32
	haveMaxSeen  bool

	heap *entryHeap

	// jitter estimation state (RFC 3550 §A.8)
	haveLast  bool
	lastSeq   uint16
	lastRecv  time.Time // arrival time of the previous packet, wall/monotonic
	lastTS    uint32    // RTP timestamp of the previous packet
}

// New allocates a Buffer with the given tuning, or the package defaults
// when zero values are passed.
func New(capacity int, maxDelay time.Duration, reorderWindow uint16, clockRate uint32) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	if reorderWindow == 0 {
		reorderWindow = DefaultReorderWindow
	}
	if clockRate == 0 {
		clockRate = 90000
	}
	b := &Buffer{
		Capacity:      capacity,
		MaxDelay:      maxDelay,
		ReorderWindow: reorderWindow,
		ClockRate:     clockRate,
		heap:          &entryHeap{},
	}
	return b
}

// Stats returns a snapshot of the buffer's cumulative statistics.
func (b *Buffer) Stats() Stats {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.stats
}

// Insert inserts a received RTP packet into the buffer at the given
// monotonic arrival time.
func (b *Buffer) Insert(pkt *rtp.Packet, arrival time.Time) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.stats.Received++
	b.updateJitter(pkt, arrival)

	if !b.initialized {
		b.initialized = true
		b.nextExpected = pkt.SequenceNumber
	}

	delta := int32(int16(pkt.SequenceNumber - b.nextExpected))

	// a delta at the extreme negative boundary is bit-identical to a
	// 2^15 forward jump; treat it as a stream restart.
	if delta <= -resyncJump {
		b.flushLocked()
		b.nextExpected = pkt.SequenceNumber
		b.haveMaxSeen = false
		delta = 0
	} else if delta < -int32(b.ReorderWindow) {
		// stale: older than the reorder window, drop silently.
		return
	} else if delta < 0 {
		// within the reorder window but behind next_expected: the slot
		// was already drained, so this is a duplicate.
		b.stats.Duplicated++
		return
	}

	// duplicate check: already buffered, still pending delivery.
	for _, e := range b.heap.items {
		if e.seq == pkt.SequenceNumber {
			b.stats.Duplicated++
			return
		}
	}

	if !b.haveMaxSeen {
		b.haveMaxSeen = true
		b.maxSeenDelta = delta
	} else if delta < b.maxSeenDelta {
		b.stats.OutOfOrder++
	} else {
		b.maxSeenDelta = delta
	}

	b.heap.from = b.nextExpected
	heap.Push(b.heap, entry{seq: pkt.SequenceNumber, arrival: arrival, pkt: pkt})

	for b.heap.Len() > b.Capacity {
		b.evictFurthestLocked()
	}
}

// evictFurthestLocked drops the buffered entry with the greatest forward
// sequence distance from next_expected. A min-heap's backing array only
// guarantees parent <= child, not a sorted order, so the furthest entry
// is not reliably at the end of items; it must be found by an explicit
// scan over every buffered entry's distance.
func (b *Buffer) evictFurthestLocked() {
	idx := 0
	maxDist := rtp.SequenceDistance(b.nextExpected, b.heap.items[0].seq)
	for i := 1; i < len(b.heap.items); i++ {
		if d := rtp.SequenceDistance(b.nextExpected, b.heap.items[i].seq); d > maxDist {
			maxDist = d
			idx = i
		}
	}

	b.heap.items = append(b.heap.items[:idx], b.heap.items[idx+1:]...)
	b.heap.from = b.nextExpected
	heap.Init(b.heap)
}

func (b *Buffer) updateJitter(pkt *rtp.Packet, arrival time.Time) {
	if !b.haveLast {
		b.haveLast = true
		b.lastSeq = pkt.SequenceNumber
		b.lastRecv = arrival
		b.lastTS = pkt.Timestamp
		return
	}

	// D = (R_j - R_i) - (S_j - S_i), in RTP timestamp units.
	recvDiffTicks := arrival.Sub(b.lastRecv).Seconds() * float64(b.ClockRate)
	sendDiffTicks := float64(int64(pkt.Timestamp) - int64(b.lastTS))
	d := recvDiffTicks - sendDiffTicks
	if d < 0 {
		d = -d
	}
	b.stats.JitterTicks += (d - b.stats.JitterTicks) / 16

	b.lastSeq = pkt.SequenceNumber
	b.lastRecv = arrival
	b.lastTS = pkt.Timestamp
}

// Pop returns the packet matching next_expected if present. If not present
// but the oldest buffered entry has waited at least MaxDelay, it performs a
// gap flush: the oldest entry is emitted, next_expected advances past it,
// and the size of the gap is recorded as loss.
func (b *Buffer) Pop(now time.Time) *rtp.Packet {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.heap.Len() == 0 {
		return nil
	}

	if top := b.peekLocked(); top != nil && top.seq == b.nextExpected {
		b.popTopLocked()
		b.nextExpected++
		return top.pkt
	}

	oldest := b.oldestArrivalLocked()
	if !oldest.IsZero() && now.Sub(oldest) >= b.MaxDelay {
		e := b.popOldestLocked()
		gap := rtp.SequenceDistance(b.nextExpected, e.seq)
		b.stats.Lost += uint64(gap)
		b.nextExpected = e.seq + 1
		return e.pkt
	}

	return nil
}

func (b *Buffer) peekLocked() *entry {
	if b.heap.Len() == 0 {
		return nil
	}
	b.heap.from = b.nextExpected
	heap.Init(b.heap)
	return &b.heap.items[0]
}

func (b *Buffer) popTopLocked() entry {
	b.heap.from = b.nextExpected
	heap.Init(b.heap)
	return heap.Pop(b.heap).(entry)
}

func (b *Buffer) oldestArrivalLocked() time.Time {
	var oldest time.Time
	for _, e := range b.heap.items {
		if oldest.IsZero() || e.arrival.Before(oldest) {
			oldest = e.arrival
		}
	}
	return oldest
}

func (b *Buffer) popOldestLocked() entry {
	idx := -1
	var oldest time.Time
	for i, e := range b.heap.items {
		if idx == -1 || e.arrival.Before(oldest) {
			idx = i
			oldest = e.arrival
		}
	}
	e := b.heap.items[idx]
	b.heap.items = append(b.heap.items[:idx], b.heap.items[idx+1:]...)
	heap.Init(b.heap)
	return e
}

func (b *Buffer) flushLocked() {
	b.heap.items = nil
}

// Flush discards all buffered entries without emitting them, and resets
// next_expected so the next inserted packet becomes the new baseline.
func (b *Buffer) Flush() {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.flushLocked()
	b.initialized = false
}
