package studio

import (
	"sync"

	"github.com/loqalabs/vocalforge/internal/protocol"
)

// Event is pushed to subscribers after a status change or history mutation.
type Event struct {
	Type    string                 `json:"type"`
	Status  *protocol.StudioStatus `json:"status,omitempty"`
	History *protocol.HistoryEvent `json:"history,omitempty"`
}

const (
	EventStatus  = "status"
	EventHistory = "history"
)

const subscriberBuffer = 16

type fanout struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Event
}

func newFanout() *fanout {
	return &fanout{subs: make(map[int]chan Event)}
}

func (f *fanout) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = ch
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(ch)
		})
	}
}

// publish never blocks: a subscriber whose buffer is full misses the event.
func (f *fanout) publish(evt Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}
