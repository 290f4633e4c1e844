package navweb

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/westphae/gonav/nav"
)

// Publisher sends snapshots to a Room over a websocket.
type Publisher struct {
	url string
	c   *websocket.Conn
}

// RoomURL is the websocket address of a room served at path on host.
func RoomURL(host, path string) string {
	u := url.URL{Scheme: "ws", Host: host, Path: path}
	return u.String()
}

// LocalURL is the address of a room on this machine at the default port.
func LocalURL() string {
	return RoomURL(fmt.Sprintf("localhost:%d", Port), "/navweb")
}

// NewPublisher connects to the room at roomURL.
func NewPublisher(roomURL string) (*Publisher, error) {
	p := &Publisher{url: roomURL}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) connect() error {
	c, _, err := websocket.DefaultDialer.Dial(p.url, nil)
	if err != nil {
		return errors.Wrapf(err, "NavWeb: dialing %s", p.url)
	}
	p.c = c

	// Drain whatever the room echoes back so control frames are processed.
	go func() {
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return nil
}

// Send publishes s. A failed write drops the message and reconnects.
func (p *Publisher) Send(s *nav.Snapshot, valid bool) error {
	msg, err := json.Marshal(NewNavData(s, valid))
	if err != nil {
		log.Println("NavWeb: error marshalling json data:", err)
		return err
	}
	if err := p.c.WriteMessage(websocket.TextMessage, msg); err != nil {
		log.Println("NavWeb: error writing to websocket:", err)
		p.c.Close()
		if err2 := p.connect(); err2 != nil {
			return errors.Wrapf(err, "NavWeb: reconnect failed: %v", err2)
		}
		return errors.Wrap(err, "NavWeb: message dropped")
	}
	return nil
}

// Close sends a close frame and disconnects.
func (p *Publisher) Close() error {
	err := p.c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if cerr := p.c.Close(); err == nil {
		err = cerr
	}
	return err
}
