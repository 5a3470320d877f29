package journal

import (
	"context"
	"sort"
	"sync"

	"roshamble/internal/models"
)

// MemorySink keeps events in process memory. It survives nothing, which
// makes it useful for tests and for running the journal path without a store.
type MemorySink struct {
	mu     sync.Mutex
	events []models.Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Append(_ context.Context, events []models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

func (s *MemorySink) Load(_ context.Context) ([]models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]models.Event(nil), s.events...)
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (s *MemorySink) Close(context.Context) error {
	return nil
}
