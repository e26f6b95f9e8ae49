// Package feed holds the synchronized community feed: one ordered, deduplicated
// list built from a bulk fetch and kept current by local mutations and the
// live insert stream.
package feed

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"lens-backend/internal/domain"
	"lens-backend/internal/observability"
	"lens-backend/pkg/observer"
)

// DefaultWindow bounds the initial batch.
const DefaultWindow = 50

// EventType names a feed change.
type EventType string

const (
	EventReset    EventType = "reset"
	EventInserted EventType = "inserted"
	EventUpdated  EventType = "updated"
	EventDeleted  EventType = "deleted"
)

// Event describes one change to the feed. Reset carries the full snapshot;
// Inserted and Updated carry the affected memory; Deleted carries only ID.
type Event struct {
	Type     EventType       `json:"type"`
	ID       string          `json:"id,omitempty"`
	Memory   *domain.Memory  `json:"memory,omitempty"`
	Snapshot []domain.Memory `json:"snapshot,omitempty"`
}

// Synchronizer owns the in-memory feed. All mutations serialize on one
// mutex; listeners run while it is held, so they must not block or call back
// into the Synchronizer.
type Synchronizer struct {
	mu      sync.Mutex
	items   []domain.Memory
	window  int
	events  *observer.Registry[Event]
	logger  *zap.Logger
	metrics *observability.Collector
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithWindow sets how many memories Initialize keeps.
func WithWindow(n int) Option {
	return func(s *Synchronizer) {
		if n > 0 {
			s.window = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Synchronizer) { s.logger = l }
}

// WithMetrics records feed size and insert outcomes.
func WithMetrics(m *observability.Collector) Option {
	return func(s *Synchronizer) { s.metrics = m }
}

// NewSynchronizer creates an empty feed.
func NewSynchronizer(opts ...Option) *Synchronizer {
	s := &Synchronizer{
		window: DefaultWindow,
		events: observer.NewRegistry[Event](),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize replaces the feed with batch, sorted by created_at descending
// (stable, so equal timestamps keep batch order) and cut to the window.
// Duplicate ids in batch keep their first occurrence.
func (s *Synchronizer) Initialize(batch []domain.Memory) {
	items := make([]domain.Memory, 0, len(batch))
	seen := make(map[string]struct{}, len(batch))
	for _, m := range batch {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		items = append(items, m.Clone())
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	if len(items) > s.window {
		items = items[:s.window]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = items
	s.logger.Debug("Feed initialized", zap.Int("memories", len(items)))
	s.emit(Event{Type: EventReset, Snapshot: cloneAll(items)})
}

// OnRemoteInsert admits a memory from the live insert stream. A memory whose
// id is already present is ignored; otherwise it is prepended regardless of
// its created_at. Reports whether the memory was admitted.
func (s *Synchronizer) OnRemoteInsert(m domain.Memory) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(m.ID) >= 0 {
		s.countRealtime("duplicate")
		return false
	}
	s.prepend(m)
	s.countRealtime("admitted")
	return true
}

// OnLocalInsert prepends a memory the caller just persisted. The live stream
// may already have delivered it, in which case this is a no-op.
func (s *Synchronizer) OnLocalInsert(m domain.Memory) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(m.ID) >= 0 {
		s.logger.Debug("Local insert already observed", zap.String("memoryID", m.ID))
		return
	}
	s.prepend(m)
}

// OnLocalUpdate merges patch into the memory with id, in place. Absent ids
// are ignored.
func (s *Synchronizer) OnLocalUpdate(id string, patch domain.MemoryPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 || patch.Empty() {
		return
	}
	patch.Apply(&s.items[i])
	updated := s.items[i].Clone()
	s.emit(Event{Type: EventUpdated, ID: id, Memory: &updated})
}

// OnLocalDelete removes the memory with id, keeping the order of the rest.
// Absent ids are ignored.
func (s *Synchronizer) OnLocalDelete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	s.emit(Event{Type: EventDeleted, ID: id})
}

// Snapshot returns a copy of the feed in display order.
func (s *Synchronizer) Snapshot() []domain.Memory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.items)
}

// Len returns the number of memories in the feed.
func (s *Synchronizer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Get returns the memory with id, if present.
func (s *Synchronizer) Get(id string) (domain.Memory, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return domain.Memory{}, false
	}
	return s.items[i].Clone(), true
}

// Subscribe registers fn for every subsequent feed event.
func (s *Synchronizer) Subscribe(fn func(Event)) observer.Subscription {
	return s.events.Subscribe(fn)
}

// SubscribeWithSnapshot registers fn and hands it the current feed as a Reset
// event first, atomically with respect to mutations.
func (s *Synchronizer) SubscribeWithSnapshot(fn func(Event)) observer.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(Event{Type: EventReset, Snapshot: cloneAll(s.items)})
	return s.events.Subscribe(fn)
}

func (s *Synchronizer) prepend(m domain.Memory) {
	c := m.Clone()
	s.items = append(s.items, domain.Memory{})
	copy(s.items[1:], s.items)
	s.items[0] = c

	out := c.Clone()
	s.emit(Event{Type: EventInserted, ID: c.ID, Memory: &out})
}

func (s *Synchronizer) indexOf(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Synchronizer) emit(e Event) {
	s.setSize()
	s.events.Notify(e)
}

func (s *Synchronizer) setSize() {
	if s.metrics != nil {
		s.metrics.FeedSize.Set(float64(len(s.items)))
	}
}

func (s *Synchronizer) countRealtime(outcome string) {
	if s.metrics != nil {
		s.metrics.RealtimeEvents.WithLabelValues(outcome).Inc()
	}
}

func cloneAll(in []domain.Memory) []domain.Memory {
	out := make([]domain.Memory, len(in))
	for i, m := range in {
		out[i] = m.Clone()
	}
	return out
}
