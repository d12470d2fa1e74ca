package titledata

import (
	"context"
	"fmt"
	"sync"

	id "conveyance/pkg/domain"
	"conveyance/pkg/platform/sentinel"
)

// MemorySource is an in-memory Client used in tests and local runs. It can
// be primed with titles and flipped unavailable to exercise failure paths.
type MemorySource struct {
	mu          sync.RWMutex
	titles      map[id.TitleNumber]Data
	unavailable bool
}

func NewMemorySource() *MemorySource {
	return &MemorySource{titles: make(map[id.TitleNumber]Data)}
}

func (s *MemorySource) Put(data Data) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles[data.TitleNumber] = data
}

func (s *MemorySource) SetUnavailable(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = down
}

func (s *MemorySource) Get(_ context.Context, titleNumber id.TitleNumber) (Data, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.unavailable {
		return Data{}, fmt.Errorf("title source down: %w", sentinel.ErrUnavailable)
	}
	data, ok := s.titles[titleNumber]
	if !ok {
		return Data{}, fmt.Errorf("title %s: %w", titleNumber, sentinel.ErrNotFound)
	}
	return data, nil
}
