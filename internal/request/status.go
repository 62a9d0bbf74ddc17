package request

import (
	"sync"

	"github.com/danmuck/pwrapi/internal/pwr"
)

// Entry is one per-attribute failure.
type Entry struct {
	Object string
	Name   pwr.AttrName
	Code   pwr.Code
}

// Status is an ordered, append-only list of failures. Pop is the only way
// entries leave it.
type Status struct {
	mu      sync.Mutex
	entries []Entry
}

// NewStatus returns an empty Status.
func NewStatus() *Status {
	return &Status{}
}

// Add appends a failure for name on object.
func (s *Status) Add(object string, name pwr.AttrName, code pwr.Code) {
	s.mu.Lock()
	s.entries = append(s.entries, Entry{Object: object, Name: name, Code: code})
	s.mu.Unlock()
}

// Len is the number of recorded failures.
func (s *Status) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Empty reports whether every attribute succeeded.
func (s *Status) Empty() bool {
	return s.Len() == 0
}

// Pop removes and returns the oldest entry.
func (s *Status) Pop() (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return Entry{}, false
	}
	e := s.entries[0]
	s.entries = s.entries[1:]
	return e, true
}

// Entries returns a copy of the failures, oldest first.
func (s *Status) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}
