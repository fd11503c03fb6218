package logs

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/charliek/devlog/internal/domain"
)

// Subscription represents a live log subscriber
type Subscription struct {
	id      string
	ch      chan domain.LogEntry
	filter  *Filter
	closed  atomic.Bool
	dropped atomic.Int64
}

// newSubscription creates a new subscription. A nil view matches everything.
func newSubscription(view *domain.ViewSpec, bufferSize int) *Subscription {
	var f *Filter
	if view != nil {
		f = NewFilter(*view)
	}

	return &Subscription{
		id:     "sub-" + uuid.New().String(),
		ch:     make(chan domain.LogEntry, bufferSize),
		filter: f,
	}
}

// ID returns the subscription ID
func (s *Subscription) ID() string {
	return s.id
}

// Channel returns the channel for receiving log entries
func (s *Subscription) Channel() <-chan domain.LogEntry {
	return s.ch
}

// Dropped returns how many entries were dropped because the channel was full
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Send attempts to send an entry to the subscriber
// Returns false if the channel is full or closed
func (s *Subscription) Send(entry domain.LogEntry) bool {
	if s.closed.Load() {
		return false
	}

	if s.filter != nil && !s.filter.Matches(entry) {
		return true // filtered out, but not a failure
	}

	select {
	case s.ch <- entry:
		return true
	default:
		// Channel full, drop message - log for debugging slow clients
		if s.dropped.Add(1) == 1 {
			log.Printf("Subscription %s: dropping entries (channel full)", s.id)
		}
		return false
	}
}

// Close closes the subscription
func (s *Subscription) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}

// SubscriptionManager manages multiple subscriptions
type SubscriptionManager struct {
	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	bufferSize    int
}

// NewSubscriptionManager creates a new subscription manager
func NewSubscriptionManager(bufferSize int) *SubscriptionManager {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &SubscriptionManager{
		subscriptions: make(map[string]*Subscription),
		bufferSize:    bufferSize,
	}
}

// Subscribe creates a new subscription
func (m *SubscriptionManager) Subscribe(view *domain.ViewSpec) (string, <-chan domain.LogEntry) {
	sub := newSubscription(view, m.bufferSize)

	m.mu.Lock()
	m.subscriptions[sub.id] = sub
	m.mu.Unlock()

	return sub.id, sub.ch
}

// Unsubscribe removes a subscription
func (m *SubscriptionManager) Unsubscribe(id string) {
	m.mu.Lock()
	sub, ok := m.subscriptions[id]
	if ok {
		delete(m.subscriptions, id)
	}
	m.mu.Unlock()

	if ok {
		sub.Close()
	}
}

// Broadcast sends an entry to all subscribers. Each subscriber gets its
// own copy.
func (m *SubscriptionManager) Broadcast(entry domain.LogEntry) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sub := range m.subscriptions {
		sub.Send(entry.Clone())
	}
}

// Count returns the number of active subscriptions
func (m *SubscriptionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close closes all subscriptions
func (m *SubscriptionManager) Close() {
	m.mu.Lock()
	subs := make([]*Subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.subscriptions = make(map[string]*Subscription)
	m.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}
