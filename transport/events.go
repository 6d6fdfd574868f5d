package transport

import (
	"context"
	"sync"

	"github.com/cifrazia/cats-go/cmn/cos"
	"github.com/cifrazia/cats-go/cmn/nlog"
)

// Event names one of the server's lifecycle events.
type Event string

const (
	EventServerStart    Event = "server_start"
	EventServerShutdown Event = "server_shutdown"
	EventHandshakePass  Event = "handshake_pass"
	EventHandshakeFail  Event = "handshake_fail"
	EventConnStart      Event = "conn_start"
	EventConnClose      Event = "conn_close"
	EventHandleError    Event = "handle_error"
	EventSignedIn       Event = "signed_in"
)

// Listener observes one event. cause carries the triggering error for
// EventHandshakeFail, EventConnClose, and EventHandleError; it's nil for
// every other event. A listener's own error never stops delivery to the
// rest — Fire accumulates every listener's error into a single cos.Errs
// and logs it.
type Listener func(ctx context.Context, c *Conn, cause error) error

// EventBus is the server's named-event pub-sub, modeled on a dbus-style
// hook registration (Reg/Fire call shape), simplified to this module's
// single Conn-plus-error event payload.
type EventBus struct {
	mu        sync.RWMutex
	listeners map[Event][]Listener
}

func NewEventBus() *EventBus {
	return &EventBus{listeners: make(map[Event][]Listener)}
}

func (b *EventBus) On(evt Event, l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[evt] = append(b.listeners[evt], l)
}

// Fire delivers evt to every registered listener synchronously, passing c
// and cause (the triggering error, or nil) to each. A listener's error is
// collected, not propagated, so one failing listener can't block the rest
// from observing the event.
func (b *EventBus) Fire(ctx context.Context, evt Event, c *Conn, cause error) {
	b.mu.RLock()
	listeners := append([]Listener(nil), b.listeners[evt]...)
	b.mu.RUnlock()

	var errs cos.Errs
	for _, l := range listeners {
		if err := l(ctx, c, cause); err != nil {
			errs.Add(err)
		}
	}
	if errs.Cnt() > 0 {
		nlog.Warningf("event %s: %d listener error(s): %v", evt, errs.Cnt(), errs.JoinErr())
	}
}
