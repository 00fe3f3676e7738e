package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	readWait  = 5 * time.Minute
)

// Conn serializes writes to a WebSocket. gorilla/websocket allows one
// concurrent writer, and machine observers fire from timer goroutines.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// Send writes one event with data marshalled as its payload.
func (c *Conn) Send(event Event, data interface{}) error {
	resp := Response{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		resp.Data = raw
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(resp)
}

// Error sends a typed error event.
func (c *Conn) Error(code, message string) error {
	return c.Send(EventError, ErrorData{Code: code, Message: message})
}

// Read decodes the next client message. It sets a read deadline.
func (c *Conn) Read(v interface{}) error {
	c.ws.SetReadDeadline(time.Now().Add(readWait))
	return c.ws.ReadJSON(v)
}

func (c *Conn) Close() error {
	return c.ws.Close()
}
