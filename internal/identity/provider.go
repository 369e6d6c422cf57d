package identity

import (
	"context"
	"sync"
	"time"
)

// Snapshot is the transient payload an identity provider hands over on login,
// token refresh or startup. It carries facts only.
type Snapshot struct {
	Subject   string
	Email     string
	Token     string
	ExpiresAt time.Time
}

// Listener receives identity events. A nil snapshot means signed out.
type Listener func(snap *Snapshot)

// Provider is the external identity provider as seen by the session controller.
type Provider interface {
	// Session returns the existing session, or nil when there is none.
	Session(ctx context.Context) (*Snapshot, error)
	// Subscribe registers a listener and returns its cancel function.
	Subscribe(fn Listener) func()
	// SignIn starts the provider's redirect flow. State changes arrive later
	// through the listener, never from SignIn itself.
	SignIn(ctx context.Context) error
	// SignOut revokes the provider session.
	SignOut(ctx context.Context) error
}

// emitter fans identity events out to listeners. Listeners run on the
// emitting goroutine, outside the lock.
type emitter struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]Listener
}

func (e *emitter) Subscribe(fn Listener) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = make(map[int]Listener)
	}
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

func (e *emitter) emit(snap *Snapshot) {
	e.mu.Lock()
	fns := make([]Listener, 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.mu.Unlock()
	for _, fn := range fns {
		var copied *Snapshot
		if snap != nil {
			c := *snap
			copied = &c
		}
		fn(copied)
	}
}
