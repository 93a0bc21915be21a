package canvas

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var ErrHubClosed = errors.New("canvas: hub closed")

// Client is the transport side of a session. Deliver must not block; it
// returns false when the frame could not be queued.
type Client interface {
	ID() string
	Deliver(frame Frame) bool
	Close()
}

// Hub runs every router call on a single goroutine, so one event is handled
// to completion (mutation, snapshot, fan-out) before the next one starts.
type Hub struct {
	router  *Router
	logger  *zap.Logger
	tasks   chan func()
	clients map[string]Client

	done      chan struct{}
	closeOnce sync.Once
}

func NewHub(router *Router, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		router:  router,
		logger:  logger,
		tasks:   make(chan func(), 256),
		clients: make(map[string]Client),
		done:    make(chan struct{}),
	}
}

// Run processes queued work until ctx is cancelled. Remaining clients are
// closed on exit.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-h.tasks:
			h.execute(task)
		}
	}
}

func (h *Hub) execute(task func()) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("hub task panicked", zap.Any("panic", rec), zap.Stack("stack"))
		}
	}()
	task()
}

func (h *Hub) shutdown() {
	h.closeOnce.Do(func() {
		close(h.done)
		for id, client := range h.clients {
			client.Close()
			delete(h.clients, id)
		}
	})
}

func (h *Hub) enqueue(task func()) error {
	select {
	case <-h.done:
		return ErrHubClosed
	default:
	}
	select {
	case h.tasks <- task:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

// Join registers client as a new session. credential is evaluated once for
// the admin capability.
func (h *Hub) Join(client Client, credential string) error {
	return h.enqueue(func() {
		h.clients[client.ID()] = client
		h.dispatch(client.ID(), h.router.Connect(client.ID(), credential))
	})
}

// Leave unregisters a session and tells the remaining sessions.
func (h *Hub) Leave(sessionID string) error {
	return h.enqueue(func() {
		delete(h.clients, sessionID)
		h.dispatch(sessionID, h.router.Disconnect(sessionID))
	})
}

// Submit queues one inbound event from a session.
func (h *Hub) Submit(sessionID string, in Inbound) error {
	return h.enqueue(func() {
		h.dispatch(sessionID, h.router.Handle(sessionID, in))
	})
}

// Query runs fn on the hub goroutine and waits for it, giving readers a
// consistent view without locks.
func (h *Hub) Query(ctx context.Context, fn func(state *State, sessions *SessionRegistry)) error {
	finished := make(chan struct{})
	task := func() {
		defer close(finished)
		fn(h.router.State(), h.router.Sessions())
	}
	select {
	case h.tasks <- task:
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrHubClosed
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrHubClosed
	}
}

func (h *Hub) dispatch(senderID string, emissions []Emission) {
	for _, emission := range emissions {
		frame := emission.Frame()
		switch emission.Audience {
		case AudienceSender:
			if client, ok := h.clients[senderID]; ok {
				h.deliver(client, frame)
			}
		case AudienceOthers:
			for id, client := range h.clients {
				if id != senderID {
					h.deliver(client, frame)
				}
			}
		default:
			for _, client := range h.clients {
				h.deliver(client, frame)
			}
		}
	}
}

// deliver drops a client whose outbound queue is full. Its transport notices
// the close and calls Leave.
func (h *Hub) deliver(client Client, frame Frame) {
	if client.Deliver(frame) {
		return
	}
	h.logger.Warn("dropping slow client", zap.String("session", client.ID()), zap.String("event", frame.Event))
	delete(h.clients, client.ID())
	client.Close()
}
