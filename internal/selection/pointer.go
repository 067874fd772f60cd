package selection

import (
	"sync"
)

// Region is where a pointer press landed.
type Region string

const (
	RegionInput    Region = "input"
	RegionDropdown Region = "dropdown"
	RegionOutside  Region = "outside"
)

// PointerSource delivers pointer presses to subscribers.
type PointerSource interface {
	Subscribe(fn func(Region)) (unsubscribe func())
}

// PointerHub is a PointerSource fed by Press. Listeners run synchronously in
// subscription order.
type PointerHub struct {
	mu        sync.Mutex
	next      uint64
	listeners map[uint64]func(Region)
	order     []uint64
}

// NewPointerHub returns an empty hub.
func NewPointerHub() *PointerHub {
	return &PointerHub{listeners: make(map[uint64]func(Region))}
}

// Subscribe installs fn until the returned func is called.
func (h *PointerHub) Subscribe(fn func(Region)) func() {
	h.mu.Lock()
	h.next++
	id := h.next
	h.listeners[id] = fn
	h.order = append(h.order, id)
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(id) })
	}
}

// Press dispatches a press to every listener.
func (h *PointerHub) Press(r Region) {
	h.mu.Lock()
	fns := make([]func(Region), 0, len(h.order))
	for _, id := range h.order {
		fns = append(fns, h.listeners[id])
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(r)
	}
}

// Listeners returns the number of installed listeners.
func (h *PointerHub) Listeners() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

func (h *PointerHub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.listeners, id)
	for i, v := range h.order {
		if v == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

var _ PointerSource = (*PointerHub)(nil)
