package navweb

import (
	"github.com/gorilla/websocket"
)

// client is a single websocket connection to a Room.
type client struct {
	socket *websocket.Conn
	send   chan []byte
	room   *Room
}

// read forwards every message from the socket to the room.
func (c *client) read() {
	defer c.socket.Close()
	for {
		_, msg, err := c.socket.ReadMessage()
		if err != nil {
			return
		}
		select {
		case c.room.forward <- msg:
		case <-c.room.quit:
			return
		}
	}
}

func (c *client) write() {
	defer c.socket.Close()
	for msg := range c.send {
		if err := c.socket.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}
