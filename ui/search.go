package ui

import (
	"context"
	"strings"
	"sync"
	"time"
)

// SearchFilter debounces query edits so typing does not re-render the log on
// every keystroke.
type SearchFilter struct {
	mu          sync.RWMutex
	query       string
	activeQuery string
	timer       *time.Timer
	ctx         context.Context
	onChange    func()
}

const searchDebounce = 250 * time.Millisecond

func NewSearchFilter(ctx context.Context) *SearchFilter {
	return &SearchFilter{ctx: ctx}
}

// SetQuery schedules query to become active; onChange runs once it does.
func (s *SearchFilter) SetQuery(query string, onChange func()) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.query = strings.ToLower(strings.TrimSpace(query))
	s.onChange = onChange
	if s.ctx != nil && s.ctx.Err() != nil {
		return
	}
	if s.timer == nil {
		s.timer = time.AfterFunc(searchDebounce, s.fire)
	} else {
		s.timer.Reset(searchDebounce)
	}
}

func (s *SearchFilter) ActiveQuery() string {
	if s == nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeQuery
}

// Matches reports whether text contains the active query. An empty query
// matches everything.
func (s *SearchFilter) Matches(text string) bool {
	q := s.ActiveQuery()
	return q == "" || strings.Contains(strings.ToLower(text), q)
}

func (s *SearchFilter) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()
}

func (s *SearchFilter) fire() {
	if s.ctx != nil && s.ctx.Err() != nil {
		return
	}
	s.mu.Lock()
	s.activeQuery = s.query
	cb := s.onChange
	s.mu.Unlock()
	if cb != nil {
		cb()
	}
}
