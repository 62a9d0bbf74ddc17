package transport

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrInvalidDescriptor   = errors.New("transport: invalid descriptor")
	ErrDuplicateDescriptor = errors.New("transport: descriptor already registered")
	ErrUnknownDescriptor   = errors.New("transport: descriptor not registered")
)

// Selectable is anything the multiplexer can wait on.
type Selectable interface {
	Name() string
	// Fd returns the OS descriptor, or -1 while unconnected.
	Fd() int
}

// Registry maps live descriptors back to their endpoints. Connection setup
// writes it and the multiplexer reads it, possibly from different goroutines.
type Registry struct {
	mu   sync.RWMutex
	byFd map[int]Selectable
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byFd: make(map[int]Selectable)}
}

// Register binds fd to s. A descriptor can be held by one endpoint at a time.
func (r *Registry) Register(fd int, s Selectable) error {
	if fd < 0 {
		return ErrInvalidDescriptor
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.byFd[fd]; ok {
		return fmt.Errorf("%w: fd=%d held by %q", ErrDuplicateDescriptor, fd, prev.Name())
	}
	r.byFd[fd] = s
	return nil
}

// Unregister releases fd.
func (r *Registry) Unregister(fd int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byFd[fd]; !ok {
		return fmt.Errorf("%w: fd=%d", ErrUnknownDescriptor, fd)
	}
	delete(r.byFd, fd)
	return nil
}

// Lookup returns the endpoint holding fd.
func (r *Registry) Lookup(fd int) (Selectable, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byFd[fd]
	return s, ok
}

// Len is the number of registered descriptors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byFd)
}
