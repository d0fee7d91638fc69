package server

import (
	"context"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"discoball-controller/internal/core"
)

type envelope struct {
	to  *websocket.Conn // nil means every client
	msg Message
}

// Hub manages WebSocket clients. All writes to a connection happen on the
// hub goroutine once the connection is registered.
type Hub struct {
	clients    map[*websocket.Conn]bool
	send       chan envelope
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	log        zerolog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		send:       make(chan envelope, 16),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		log:        logger,
	}
}

// Run starts the hub's event loop and closes every client when ctx ends.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			return
		case client := <-h.register:
			h.clients[client] = true
			h.log.Info().Str("remote", client.RemoteAddr().String()).Msg("client connected")
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
				h.log.Info().Msg("client disconnected")
			}
		case env := <-h.send:
			if env.to != nil {
				if h.clients[env.to] {
					h.write(env.to, env.msg)
				}
				continue
			}
			for client := range h.clients {
				h.write(client, env.msg)
			}
		}
	}
}

func (h *Hub) write(client *websocket.Conn, msg Message) {
	if err := client.WriteJSON(msg); err != nil {
		h.log.Warn().Err(err).Msg("write failed, dropping client")
		client.Close()
		delete(h.clients, client)
	}
}

func (h *Hub) enqueue(env envelope) {
	select {
	case h.send <- env:
	case <-h.done:
	}
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(msg Message) {
	h.enqueue(envelope{msg: msg})
}

// SendTo sends a message to one registered client.
func (h *Hub) SendTo(client *websocket.Conn, msg Message) {
	h.enqueue(envelope{to: client, msg: msg})
}

// Forward broadcasts device events from sub until ctx ends.
func (h *Hub) Forward(ctx context.Context, sub core.Subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sub:
			h.Broadcast(NewMessage(string(ev.Type), ev.Payload))
		}
	}
}

func (h *Hub) add(client *websocket.Conn) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
