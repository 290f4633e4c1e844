package navweb

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

type Room struct {
	// forward holds incoming messages to relay to the clients.
	forward chan []byte
	join    chan *client
	leave   chan *client
	quit    chan struct{}
	// clients holds all current clients in this room.
	clients map[*client]bool
}

// NewRoom makes a new room that is ready to go.
func NewRoom() *Room {
	return &Room{
		forward: make(chan []byte),
		join:    make(chan *client),
		leave:   make(chan *client),
		quit:    make(chan struct{}),
		clients: make(map[*client]bool),
	}
}

// Run relays messages until Close is called.
func (r *Room) Run() {
	for {
		select {
		case c := <-r.join:
			r.clients[c] = true
			log.Printf("NavWeb: client joined, %d connected\n", len(r.clients))
		case c := <-r.leave:
			if r.clients[c] {
				delete(r.clients, c)
				close(c.send)
			}
			log.Printf("NavWeb: client left, %d connected\n", len(r.clients))
		case msg := <-r.forward:
			for c := range r.clients {
				select {
				case c.send <- msg:
				default:
					// Slow viewer, drop the message for it.
				}
			}
		case <-r.quit:
			for c := range r.clients {
				delete(r.clients, c)
				close(c.send)
			}
			return
		}
	}
}

// Close stops Run and disconnects all clients.
func (r *Room) Close() {
	close(r.quit)
}

const (
	socketBufferSize  = 1024
	messageBufferSize = 16
)

var upgrader = &websocket.Upgrader{ReadBufferSize: socketBufferSize, WriteBufferSize: socketBufferSize}

func (r *Room) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	socket, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Println("NavWeb: upgrade failed:", err)
		return
	}
	c := &client{
		socket: socket,
		send:   make(chan []byte, messageBufferSize),
		room:   r,
	}

	select {
	case r.join <- c:
	case <-r.quit:
		socket.Close()
		return
	}
	defer func() {
		select {
		case r.leave <- c:
		case <-r.quit:
		}
	}()
	go c.write()
	c.read()
}
