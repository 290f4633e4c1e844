package navweb

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/westphae/gonav/nav"
)

func snapshot(t *testing.T) nav.Snapshot {
	n, err := nav.New(nav.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, n.Initialize(5e9, 2.35, 48.85, 35, 3))
	s, err := n.Snapshot(6e9)
	require.NoError(t, err)
	return s
}

func TestNewNavData(t *testing.T) {
	s := snapshot(t)
	d := NewNavData(&s, true)

	assert.InDelta(t, 6.0, d.T, 1e-12)
	assert.InDelta(t, 2.35, d.Lon, 1e-9)
	assert.InDelta(t, 48.85, d.Lat, 1e-9)
	assert.InDelta(t, 35.0, d.Alt, 1e-6)
	assert.Equal(t, [nav.StateSize]float64(s.State), d.State)
	assert.InDelta(t, s.Sigma(nav.Velocity), d.Sigma[nav.Velocity], 1e-15)
	assert.True(t, d.Valid)

	buf, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Contains(t, string(buf), `"heading":`)
}

func TestPublisherReachesViewer(t *testing.T) {
	room := NewRoom()
	go room.Run()
	defer room.Close()

	srv := httptest.NewServer(room)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	viewer, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer viewer.Close()

	received := make(chan []byte, 1)
	go func() {
		_, msg, err := viewer.ReadMessage()
		if err == nil {
			received <- msg
		}
	}()

	pub, err := NewPublisher(wsURL)
	require.NoError(t, err)
	defer pub.Close()

	s := snapshot(t)
	timeout := time.After(5 * time.Second)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case msg := <-received:
			var d NavData
			require.NoError(t, json.Unmarshal(msg, &d))
			assert.InDelta(t, 48.85, d.Lat, 1e-9)
			assert.False(t, d.Valid)
			return
		case <-tick.C:
			require.NoError(t, pub.Send(&s, false))
		case <-timeout:
			t.Fatal("viewer never received a snapshot")
		}
	}
}

func TestRoomURL(t *testing.T) {
	assert.Equal(t, "ws://example.com:9000/navweb", RoomURL("example.com:9000", "/navweb"))
	assert.Equal(t, "ws://localhost:8000/navweb", LocalURL())
}
