// Package connectivity turns connectivity changes into sync passes.
package connectivity

import "sync"

// Signal reports connectivity. Events delivers the new state on every change;
// true means the remote became reachable.
type Signal interface {
	Events() <-chan bool
	Online() bool
}

const eventBuffer = 16

// Manual is a Signal driven by explicit Set calls.
type Manual struct {
	mu     sync.Mutex
	online bool
	events chan bool
}

func NewManual(online bool) *Manual {
	return &Manual{online: online, events: make(chan bool, eventBuffer)}
}

func (m *Manual) Events() <-chan bool {
	return m.events
}

func (m *Manual) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set updates the state and emits an event only when it changed.
func (m *Manual) Set(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.online == online {
		return
	}
	m.online = online
	emit(m.events, online)
}

// emit never blocks. When the consumer lags the oldest event is dropped.
func emit(ch chan bool, v bool) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
