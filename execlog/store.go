// Package execlog keeps a bounded, most-recent-N audit of completed and
// failed pipeline runs for diagnostics. The store is explicit and injected,
// never process-global, so its eviction policy is independently testable.
package execlog

import (
	"fmt"
	"sync"
	"time"
)

// DefaultCapacity bounds the number of retained entries.
const DefaultCapacity = 1000

// Entry is the full audit record of one pipeline run. It is created at
// pipeline start and finalized exactly once at pipeline end.
type Entry struct {
	RequestID string   `json:"request_id"`
	Kind      string   `json:"kind"`
	Items     []string `json:"items"`
	TypeHint  string   `json:"type_hint,omitempty"`

	// Raw model outputs, kept for diagnosing bad generations.
	DraftText     string `json:"draft_text,omitempty"`
	ValidatedText string `json:"validated_text,omitempty"`

	GeneratorModel string `json:"generator_model,omitempty"`
	ValidatorModel string `json:"validator_model,omitempty"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	GeneratorMs int64     `json:"generator_ms"`
	ValidatorMs int64     `json:"validator_ms,omitempty"`
	TotalMs     int64     `json:"total_ms"`

	Success     bool     `json:"success"`
	Error       string   `json:"error,omitempty"`
	Corrections []string `json:"corrections,omitempty"`
	CacheHit    bool     `json:"cache_hit"`

	finalized bool
}

// Store is the capacity-bounded entry store. Eviction is oldest-first and
// happens under a single critical section. Safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	entries  map[string]*Entry
	order    []string // insertion order, oldest first
	capacity int

	// onFinalize, when set, observes each finalized entry (e.g. a NATS
	// mirror). Called outside the lock.
	onFinalize func(Entry)
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithCapacity overrides the retained-entry bound.
func WithCapacity(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithFinalizeHook registers an observer for finalized entries.
func WithFinalizeHook(fn func(Entry)) StoreOption {
	return func(s *Store) {
		s.onFinalize = fn
	}
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		entries:  make(map[string]*Entry),
		capacity: DefaultCapacity,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Begin records a new run. Inserting past capacity evicts the oldest entry.
func (s *Store) Begin(entry Entry) error {
	if entry.RequestID == "" {
		return fmt.Errorf("request_id is required")
	}
	if entry.StartedAt.IsZero() {
		entry.StartedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[entry.RequestID]; exists {
		return fmt.Errorf("entry %s already exists", entry.RequestID)
	}

	s.entries[entry.RequestID] = &entry
	s.order = append(s.order, entry.RequestID)

	for len(s.order) > s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.entries, oldest)
	}
	return nil
}

// Finalize completes a run's entry exactly once. The mutate func receives
// the stored entry to fill in outcome fields. A second Finalize for the
// same request is an error and leaves the entry untouched.
func (s *Store) Finalize(requestID string, mutate func(*Entry)) error {
	s.mu.Lock()

	entry, ok := s.entries[requestID]
	if !ok {
		s.mu.Unlock()
		// Evicted under load before the run finished; losing the audit
		// record is acceptable, double-finalizing is not.
		return fmt.Errorf("entry %s not found", requestID)
	}
	if entry.finalized {
		s.mu.Unlock()
		return fmt.Errorf("entry %s already finalized", requestID)
	}

	mutate(entry)
	entry.finalized = true
	if entry.CompletedAt.IsZero() {
		entry.CompletedAt = time.Now()
	}
	snapshot := *entry
	hook := s.onFinalize
	s.mu.Unlock()

	if hook != nil {
		hook(snapshot)
	}
	return nil
}

// Get returns a copy of the entry for a request ID.
func (s *Store) Get(requestID string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[requestID]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// List returns copies of all retained entries, most recent first.
func (s *Store) List() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		if entry, ok := s.entries[s.order[i]]; ok {
			out = append(out, *entry)
		}
	}
	return out
}

// Len returns the number of retained entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
