package logs

import (
	"sort"

	"github.com/charliek/devlog/internal/domain"
)

// history is the primary entry sequence. With a positive capacity it is a
// circular buffer and Push returns the entry it overwrote. With capacity 0
// it grows without bound. history is not locked; Store guards it.
type history struct {
	entries  []domain.LogEntry
	head     int // oldest entry once the ring is full
	count    int
	capacity int
}

func newHistory(capacity int) *history {
	if capacity < 0 {
		capacity = 0
	}
	return &history{capacity: capacity}
}

// Push appends an entry, evicting the oldest when the ring is full
func (h *history) Push(entry domain.LogEntry) (domain.LogEntry, bool) {
	if h.capacity == 0 || h.count < h.capacity {
		h.entries = append(h.entries, entry)
		h.count++
		return domain.LogEntry{}, false
	}

	evicted := h.entries[h.head]
	h.entries[h.head] = entry
	h.head = (h.head + 1) % h.capacity
	return evicted, true
}

// At returns the i-th oldest entry. The pointer is only valid until the
// next Push.
func (h *history) At(i int) *domain.LogEntry {
	if h.capacity == 0 {
		return &h.entries[i]
	}
	return &h.entries[(h.head+i)%len(h.entries)]
}

// Len returns the number of stored entries
func (h *history) Len() int {
	return h.count
}

// Capacity returns the ring size, 0 when unbounded
func (h *history) Capacity() int {
	return h.capacity
}

// IndexAfter returns the index of the first entry with Seq > seq
func (h *history) IndexAfter(seq uint64) int {
	return sort.Search(h.count, func(i int) bool {
		return h.At(i).Seq > seq
	})
}

// Find returns the index of the entry with the given Seq
func (h *history) Find(seq uint64) (int, bool) {
	i := sort.Search(h.count, func(i int) bool {
		return h.At(i).Seq >= seq
	})
	if i < h.count && h.At(i).Seq == seq {
		return i, true
	}
	return 0, false
}

// Read returns copies of all entries in chronological order
func (h *history) Read() []domain.LogEntry {
	if h.count == 0 {
		return nil
	}
	result := make([]domain.LogEntry, h.count)
	for i := 0; i < h.count; i++ {
		result[i] = h.At(i).Clone()
	}
	return result
}

// Reset removes all entries
func (h *history) Reset() {
	h.entries = nil
	h.head = 0
	h.count = 0
}
