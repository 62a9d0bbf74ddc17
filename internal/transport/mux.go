package transport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

var (
	ErrAlreadyAdded = errors.New("transport: endpoint already added")
	ErrNotAdded     = errors.New("transport: endpoint not added")
	ErrNoChannels   = errors.New("transport: no pollable channels")
)

const pollSlice = 100 * time.Millisecond

// Multiplexer waits for readiness across a set of endpoints and returns the
// caller data attached to the first ready one. Readiness is level-triggered:
// an endpoint whose input is not consumed is reported again.
type Multiplexer struct {
	reg *Registry

	mu      sync.Mutex
	members map[Selectable]any
}

func NewMultiplexer(reg *Registry) *Multiplexer {
	if reg == nil {
		reg = NewRegistry()
	}
	return &Multiplexer{reg: reg, members: make(map[Selectable]any)}
}

// Registry returns the descriptor registry shared with this multiplexer's
// channels.
func (m *Multiplexer) Registry() *Registry { return m.reg }

func (m *Multiplexer) Add(s Selectable, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.members[s]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyAdded, s.Name())
	}
	m.members[s] = data
	return nil
}

func (m *Multiplexer) Remove(s Selectable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.members[s]; !ok {
		return fmt.Errorf("%w: %s", ErrNotAdded, s.Name())
	}
	delete(m.members, s)
	return nil
}

func (m *Multiplexer) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.members)
}

// Wait blocks until a member is readable (or hung up) and returns its data.
// When several are ready the lowest descriptor wins.
func (m *Multiplexer) Wait(ctx context.Context) (any, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fds := m.pollSet()
		if len(fds) == 0 {
			return nil, ErrNoChannels
		}
		n, err := unix.Poll(fds, pollTimeout(ctx))
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return nil, fmt.Errorf("transport: poll: %w", err)
		}
		if n == 0 {
			continue
		}
		for _, pfd := range fds {
			if pfd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) == 0 {
				continue
			}
			s, ok := m.reg.Lookup(int(pfd.Fd))
			if !ok {
				continue
			}
			m.mu.Lock()
			data, ok := m.members[s]
			m.mu.Unlock()
			if ok {
				return data, nil
			}
		}
	}
}

func (m *Multiplexer) pollSet() []unix.PollFd {
	m.mu.Lock()
	defer m.mu.Unlock()
	fds := make([]unix.PollFd, 0, len(m.members))
	for s := range m.members {
		fd := s.Fd()
		if fd < 0 {
			continue
		}
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
	}
	sort.Slice(fds, func(i, j int) bool { return fds[i].Fd < fds[j].Fd })
	return fds
}

func pollTimeout(ctx context.Context) int {
	d := pollSlice
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < d {
			d = rem
		}
	}
	if d < 0 {
		return 0
	}
	return int(d / time.Millisecond)
}
