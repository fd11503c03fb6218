package logs

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/charliek/devlog/internal/domain"
)

// SnapshotMagic prefixes every encoded snapshot
var SnapshotMagic = []byte("DEVLOG01")

// Snapshot is the serializable state of a Store. The collapse map is kept
// as parallel key and aggregate lists in first-occurrence order.
type Snapshot struct {
	Seq        uint64                   `json:"seq"`
	Entries    []domain.LogEntry        `json:"entries"`
	Keys       []string                 `json:"keys"`
	Aggregates []domain.AggregateRecord `json:"aggregates"`
}

// Snapshot captures the store contents
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Seq:        s.seq,
		Entries:    s.history.Read(),
		Keys:       make([]string, 0, len(s.aggregates)),
		Aggregates: make([]domain.AggregateRecord, 0, len(s.aggregates)),
	}
	for _, agg := range s.collapsed {
		if agg.removed {
			continue
		}
		rec := agg.record
		rec.Representative = rec.Representative.Clone()
		snap.Keys = append(snap.Keys, rec.Fingerprint)
		snap.Aggregates = append(snap.Aggregates, rec)
	}
	return snap
}

// Restore replaces the store contents with snap. The snapshot is checked
// for consistency first; on error the store is left unchanged.
func (s *Store) Restore(snap Snapshot) error {
	if len(snap.Keys) != len(snap.Aggregates) {
		return fmt.Errorf("%w: %d keys for %d aggregates", domain.ErrSnapshotCorrupt, len(snap.Keys), len(snap.Aggregates))
	}

	seen := make(map[string]int, len(snap.Keys))
	for i, key := range snap.Keys {
		if snap.Aggregates[i].Fingerprint != key {
			return fmt.Errorf("%w: key %d does not match its aggregate", domain.ErrSnapshotCorrupt, i)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate key %s", domain.ErrSnapshotCorrupt, key)
		}
		seen[key] = 0
	}

	var counts domain.Counts
	var last uint64
	for _, e := range snap.Entries {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("%w: entry %d: %v", domain.ErrSnapshotCorrupt, e.Seq, err)
		}
		if e.Seq <= last || e.Seq > snap.Seq {
			return fmt.Errorf("%w: entry sequence out of order", domain.ErrSnapshotCorrupt)
		}
		last = e.Seq
		adjust(&counts, e.Severity, 1)

		fp := e.Fingerprint()
		if _, ok := seen[fp]; !ok {
			return fmt.Errorf("%w: entry %d has no aggregate", domain.ErrSnapshotCorrupt, e.Seq)
		}
		seen[fp]++
	}
	for _, rec := range snap.Aggregates {
		if seen[rec.Fingerprint] != rec.Count {
			return fmt.Errorf("%w: aggregate count mismatch", domain.ErrSnapshotCorrupt)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.history.Reset()
	for _, e := range snap.Entries {
		if evicted, full := s.history.Push(e.Clone()); full {
			adjust(&counts, evicted.Severity, -1)
			evictedFP := evicted.Fingerprint()
			seen[evictedFP]--
		}
	}

	s.collapsed = make([]*aggregate, 0, len(snap.Aggregates))
	s.aggregates = make(map[string]*aggregate, len(snap.Aggregates))
	s.dead = 0
	for _, rec := range snap.Aggregates {
		rec.Count = seen[rec.Fingerprint]
		if rec.Count <= 0 {
			continue
		}
		rec.Representative = rec.Representative.Clone()
		agg := &aggregate{record: rec}
		s.collapsed = append(s.collapsed, agg)
		s.aggregates[rec.Fingerprint] = agg
	}

	s.counts = counts
	s.selected = 0
	for i := 0; i < s.history.Len(); i++ {
		if e := s.history.At(i); e.Selected {
			s.selected = e.Seq
		}
	}
	if snap.Seq > s.seq {
		s.seq = snap.Seq
	}
	s.generation++
	return nil
}

// EncodeSnapshot serializes a snapshot as zstd compressed JSON behind
// SnapshotMagic
func EncodeSnapshot(snap Snapshot) ([]byte, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}
	defer enc.Close()

	out := make([]byte, 0, len(SnapshotMagic)+len(payload)/4)
	out = append(out, SnapshotMagic...)
	return enc.EncodeAll(payload, out), nil
}

// DecodeSnapshot reverses EncodeSnapshot
func DecodeSnapshot(data []byte) (Snapshot, error) {
	if !bytes.HasPrefix(data, SnapshotMagic) {
		return Snapshot{}, fmt.Errorf("%w: bad header", domain.ErrSnapshotCorrupt)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to create decoder: %w", err)
	}
	defer dec.Close()

	payload, err := dec.DecodeAll(data[len(SnapshotMagic):], nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", domain.ErrSnapshotCorrupt, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", domain.ErrSnapshotCorrupt, err)
	}
	return snap, nil
}
