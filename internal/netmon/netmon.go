// Package netmon tracks network connectivity for the sync core. Transitions
// are pushed in by whatever platform signal is available; the monitor itself
// never touches the network. A reachability prober is provided for headless
// processes that have no platform connectivity events.
package netmon

import (
	"sync"
)

// Monitor is the single source of truth for online/offline state.
type Monitor struct {
	mu        sync.Mutex
	online    bool
	nextID    int
	listeners map[int]func(online bool)
	order     []int
}

// New creates a monitor with the given initial reading.
func New(online bool) *Monitor {
	return &Monitor{
		online:    online,
		listeners: map[int]func(online bool){},
	}
}

// IsOnline returns the current connectivity flag. Synchronous and cheap;
// consulted before every sync attempt.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline records a connectivity reading. Listeners are notified only when
// the state actually changes.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	fns := make([]func(bool), 0, len(m.order))
	for _, id := range m.order {
		if fn, ok := m.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
}

// OnTransition registers a listener for connectivity changes and returns an
// unsubscribe function.
func (m *Monitor) OnTransition(fn func(online bool)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.order = append(m.order, id)
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		for i, v := range m.order {
			if v == id {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
		m.mu.Unlock()
	}
}
