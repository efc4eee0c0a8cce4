package swr

import "context"

// focusHub fans focus events out to the queries that revalidate on focus.
type focusHub struct {
	subscribers map[chan struct{}]bool
	register    chan chan struct{}
	unregister  chan chan struct{}
	broadcast   chan struct{}
}

func newFocusHub() *focusHub {
	return &focusHub{
		subscribers: make(map[chan struct{}]bool),
		register:    make(chan chan struct{}),
		unregister:  make(chan chan struct{}),
		broadcast:   make(chan struct{}),
	}
}

func (h *focusHub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sub := <-h.register:
			h.subscribers[sub] = true
		case sub := <-h.unregister:
			if _, ok := h.subscribers[sub]; ok {
				delete(h.subscribers, sub)
				close(sub)
			}
		case <-h.broadcast:
			for sub := range h.subscribers {
				// A subscriber that has not consumed the previous event
				// already has a reload pending.
				select {
				case sub <- struct{}{}:
				default:
				}
			}
		}
	}
}

func (h *focusHub) subscribe(ctx context.Context) chan struct{} {
	sub := make(chan struct{}, 1)
	select {
	case h.register <- sub:
		return sub
	case <-ctx.Done():
		return nil
	}
}

func (h *focusHub) unsubscribe(ctx context.Context, sub chan struct{}) {
	if sub == nil {
		return
	}
	select {
	case h.unregister <- sub:
	case <-ctx.Done():
	}
}

func (h *focusHub) publish(ctx context.Context) {
	select {
	case h.broadcast <- struct{}{}:
	case <-ctx.Done():
	}
}
