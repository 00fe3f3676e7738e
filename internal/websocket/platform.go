package websocket

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Sender delivers one event to the client.
type Sender interface {
	Send(event Event, data interface{}) error
}

// Platform is the browser side of a session as seen through its socket.
// Unload and route-change notifications arrive as client actions; confirm
// dialogs are round trips matched by id.
//
// Confirm blocks, so RouteChange and any machine call that may confirm
// must not run on the goroutine that reads replies.
type Platform struct {
	sender Sender
	log    zerolog.Logger

	mu      sync.Mutex
	nextID  int
	unload  map[int]func() string
	route   map[int]func(to string) bool
	pending map[string]chan bool
	done    chan struct{}
	closed  bool
}

func NewPlatform(sender Sender, log zerolog.Logger) *Platform {
	return &Platform{
		sender:  sender,
		log:     log.With().Str("component", "ws_platform").Logger(),
		unload:  make(map[int]func() string),
		route:   make(map[int]func(to string) bool),
		pending: make(map[string]chan bool),
		done:    make(chan struct{}),
	}
}

func (p *Platform) OnBeforeUnload(handler func() string) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.unload[id] = handler
	return func() {
		p.mu.Lock()
		delete(p.unload, id)
		p.mu.Unlock()
	}
}

func (p *Platform) OnRouteChange(handler func(to string) bool) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.route[id] = handler
	return func() {
		p.mu.Lock()
		delete(p.route, id)
		p.mu.Unlock()
	}
}

// Confirm asks the client and waits for the matching confirm_reply. A
// closed platform answers false.
func (p *Platform) Confirm(message string) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	id := uuid.NewString()
	reply := make(chan bool, 1)
	p.pending[id] = reply
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
	}()

	if err := p.sender.Send(EventConfirm, ConfirmData{ID: id, Message: message}); err != nil {
		p.log.Warn().Err(err).Msg("Failed to send confirm")
		return false
	}

	select {
	case ok := <-reply:
		return ok
	case <-p.done:
		return false
	}
}

// Reply resolves a pending Confirm. It reports whether id was pending.
func (p *Platform) Reply(id string, ok bool) bool {
	p.mu.Lock()
	reply, found := p.pending[id]
	delete(p.pending, id)
	p.mu.Unlock()

	if !found {
		return false
	}
	reply <- ok
	return true
}

// BeforeUnload runs the unload handlers and returns the first prompt any
// of them asks for. blocked is false when the page may go silently.
func (p *Platform) BeforeUnload() (prompt string, blocked bool) {
	p.mu.Lock()
	handlers := make([]func() string, 0, len(p.unload))
	for _, h := range p.unload {
		handlers = append(handlers, h)
	}
	p.mu.Unlock()

	for _, h := range handlers {
		if msg := h(); msg != "" {
			return msg, true
		}
	}
	return "", false
}

// RouteChange runs the route handlers. Every one must allow the change.
func (p *Platform) RouteChange(to string) bool {
	p.mu.Lock()
	handlers := make([]func(string) bool, 0, len(p.route))
	for _, h := range p.route {
		handlers = append(handlers, h)
	}
	p.mu.Unlock()

	for _, h := range handlers {
		if !h(to) {
			return false
		}
	}
	return true
}

// Close fails every pending and future Confirm.
func (p *Platform) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.done)
}
