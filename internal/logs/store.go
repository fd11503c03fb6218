package logs

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charliek/devlog/internal/constants"
	"github.com/charliek/devlog/internal/domain"
)

// StoreConfig holds configuration for the log store
type StoreConfig struct {
	DisplayCap         int // Display clamp for severity counters, 0 disables
	MaxEntries         int // History cap, 0 keeps everything
	SubscriptionBuffer int // Buffer size for subscription channels
}

// DefaultStoreConfig returns the default configuration
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		DisplayCap:         constants.DefaultDisplayCap,
		MaxEntries:         constants.DefaultMaxEntries,
		SubscriptionBuffer: constants.DefaultSubscriptionBuffer,
	}
}

type aggregate struct {
	record  domain.AggregateRecord
	removed bool
}

// Store owns every entry of one session, the collapsed sequence and the
// fingerprint to aggregate map. It is the only place they are mutated.
type Store struct {
	mu sync.RWMutex

	history    *history
	collapsed  []*aggregate
	aggregates map[string]*aggregate
	dead       int // removed aggregates still in collapsed
	counts     domain.Counts

	seq        uint64
	generation uint64
	selected   uint64

	displayCap    int
	subscriptions *SubscriptionManager
	now           func() time.Time
}

// NewStore creates a new log store
func NewStore(config StoreConfig) *Store {
	if config.DisplayCap < 0 {
		config.DisplayCap = 0
	}
	if config.SubscriptionBuffer <= 0 {
		config.SubscriptionBuffer = DefaultStoreConfig().SubscriptionBuffer
	}

	return &Store{
		history:       newHistory(config.MaxEntries),
		aggregates:    make(map[string]*aggregate),
		displayCap:    config.DisplayCap,
		subscriptions: NewSubscriptionManager(config.SubscriptionBuffer),
		now:           time.Now,
	}
}

// Append validates and stores an entry, assigning its sequence number.
// Invalid entries are rejected before anything is mutated.
func (s *Store) Append(entry domain.LogEntry) (domain.LogEntry, error) {
	if err := entry.Validate(); err != nil {
		return domain.LogEntry{}, err
	}

	s.mu.Lock()
	s.seq++
	entry.Seq = s.seq
	entry.Selected = false
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	entry = entry.Clone()
	s.applyLocked(entry)
	s.mu.Unlock()

	s.subscriptions.Broadcast(entry)
	return entry.Clone(), nil
}

func (s *Store) applyLocked(entry domain.LogEntry) {
	evicted, full := s.history.Push(entry)
	adjust(&s.counts, entry.Severity, 1)

	fp := entry.Fingerprint()
	if agg, ok := s.aggregates[fp]; ok {
		agg.record.Count++
	} else {
		agg = &aggregate{record: domain.AggregateRecord{
			Fingerprint:    fp,
			Representative: entry.Clone(),
			Count:          1,
		}}
		s.aggregates[fp] = agg
		s.collapsed = append(s.collapsed, agg)
	}

	if full {
		s.evictLocked(evicted)
	}
}

func (s *Store) evictLocked(entry domain.LogEntry) {
	adjust(&s.counts, entry.Severity, -1)

	fp := entry.Fingerprint()
	if agg, ok := s.aggregates[fp]; ok {
		agg.record.Count--
		if agg.record.Count <= 0 {
			agg.removed = true
			delete(s.aggregates, fp)
			s.dead++
		}
	}
	if s.dead > len(s.collapsed)/2 {
		s.compactLocked()
	}
	if s.selected == entry.Seq {
		s.selected = 0
	}
	s.generation++
}

func (s *Store) compactLocked() {
	live := s.collapsed[:0]
	for _, agg := range s.collapsed {
		if !agg.removed {
			live = append(live, agg)
		}
	}
	for i := len(live); i < len(s.collapsed); i++ {
		s.collapsed[i] = nil
	}
	s.collapsed = live
	s.dead = 0
}

func adjust(c *domain.Counts, severity domain.Severity, delta int) {
	switch severity.Bucket() {
	case domain.SeverityInfo:
		c.Info += delta
	case domain.SeverityWarning:
		c.Warning += delta
	case domain.SeverityError:
		c.Error += delta
	}
}

// Clear removes every entry except transient errors from an active
// compile cycle. Those are replayed through the append path so counters
// and collapse state are rebuilt consistently.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var retained []domain.LogEntry
	for i := 0; i < s.history.Len(); i++ {
		e := s.history.At(i)
		if e.Transient && e.Severity.Bucket() == domain.SeverityError {
			retained = append(retained, e.Clone())
		}
	}

	s.history.Reset()
	s.collapsed = nil
	s.aggregates = make(map[string]*aggregate)
	s.dead = 0
	s.counts = domain.Counts{}
	s.selected = 0
	s.generation++

	for _, e := range retained {
		e.Selected = false
		s.applyLocked(e)
	}
	return len(retained)
}

// ResetTransient ends a compile cycle, making its entries ordinary.
// Returns the number of entries changed.
func (s *Store) ResetTransient() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for i := 0; i < s.history.Len(); i++ {
		if e := s.history.At(i); e.Transient {
			e.Transient = false
			n++
		}
	}
	for _, agg := range s.collapsed {
		agg.record.Representative.Transient = false
	}
	if n > 0 {
		s.generation++
	}
	return n
}

// LogCountFor returns the number of entries sharing fingerprint.
// Unknown fingerprints count as 1.
func (s *Store) LogCountFor(fingerprint string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if agg, ok := s.aggregates[fingerprint]; ok {
		return agg.record.Count
	}
	return 1
}

// LogCountForEntry returns the number of entries sharing the fingerprint of entry
func (s *Store) LogCountForEntry(entry domain.LogEntry) int {
	return s.LogCountFor(entry.Fingerprint())
}

// Counts returns the uncapped per-bucket counters
func (s *Store) Counts() domain.Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counts
}

// DisplayCounts returns the counters clamped to the display cap
func (s *Store) DisplayCounts() domain.Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counts.Capped(s.displayCap)
}

// Len returns the number of entries in the primary sequence
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Len()
}

// CollapsedLen returns the number of distinct fingerprints
func (s *Store) CollapsedLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.aggregates)
}

// Generation changes whenever stored entries change other than by append
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Entries returns copies of all entries in chronological order
func (s *Store) Entries() []domain.LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Read()
}

// Aggregates returns copies of the collapse records in first-occurrence order
func (s *Store) Aggregates() []domain.AggregateRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AggregateRecord, 0, len(s.aggregates))
	for _, agg := range s.collapsed {
		if agg.removed {
			continue
		}
		rec := agg.record
		rec.Representative = rec.Representative.Clone()
		result = append(result, rec)
	}
	return result
}

// Entry returns a copy of the entry with the given sequence number. A
// collapsed representative whose original was evicted is still found.
func (s *Store) Entry(seq uint64) (domain.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i, ok := s.history.Find(seq); ok {
		return s.history.At(i).Clone(), nil
	}
	for _, agg := range s.collapsed {
		if !agg.removed && agg.record.Representative.Seq == seq {
			return agg.record.Representative.Clone(), nil
		}
	}
	return domain.LogEntry{}, fmt.Errorf("%w: %d", domain.ErrEntryNotFound, seq)
}

// SetSelected marks or unmarks an entry as the selected one. Selecting an
// entry clears the previous selection. Collapsed representatives are
// snapshots and are never affected.
func (s *Store) SetSelected(seq uint64, selected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.history.Find(seq)
	if !ok {
		return fmt.Errorf("%w: %d", domain.ErrEntryNotFound, seq)
	}

	if selected && s.selected != 0 && s.selected != seq {
		if prev, ok := s.history.Find(s.selected); ok {
			s.history.At(prev).Selected = false
		}
	}

	s.history.At(i).Selected = selected
	if selected {
		s.selected = seq
	} else if s.selected == seq {
		s.selected = 0
	}
	s.generation++
	return nil
}

// Selected returns the selected entry, if any
func (s *Store) Selected() (domain.LogEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.selected == 0 {
		return domain.LogEntry{}, false
	}
	if i, ok := s.history.Find(s.selected); ok {
		return s.history.At(i).Clone(), true
	}
	return domain.LogEntry{}, false
}

// Subscribe creates a live feed of appended entries matching view.
// A nil view receives everything.
func (s *Store) Subscribe(view *domain.ViewSpec) (string, <-chan domain.LogEntry) {
	return s.subscriptions.Subscribe(view)
}

// Unsubscribe removes a subscription
func (s *Store) Unsubscribe(id string) {
	s.subscriptions.Unsubscribe(id)
}

// Subscribers returns the number of live subscriptions
func (s *Store) Subscribers() int {
	return s.subscriptions.Count()
}

// Close closes all subscriptions
func (s *Store) Close() {
	s.subscriptions.Close()
}

// eachLocked calls fn for every entry of the primary or collapsed
// sequence with Seq > after. The caller holds the read lock.
func (s *Store) eachLocked(collapse bool, after uint64, fn func(*domain.LogEntry)) {
	if !collapse {
		for i := s.history.IndexAfter(after); i < s.history.Len(); i++ {
			fn(s.history.At(i))
		}
		return
	}

	start := sort.Search(len(s.collapsed), func(i int) bool {
		return s.collapsed[i].record.Representative.Seq > after
	})
	for _, agg := range s.collapsed[start:] {
		if !agg.removed {
			fn(&agg.record.Representative)
		}
	}
}
