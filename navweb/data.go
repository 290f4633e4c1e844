// Package navweb publishes filter snapshots as JSON over websockets: a Room
// relays each message it receives to every connected viewer, and a Publisher
// feeds snapshots into a Room.
package navweb

import (
	"github.com/westphae/gonav/nav"
)

// Port is the default port of the room server.
const Port = 8000

// NavData is the JSON message relayed to viewers.
type NavData struct {
	T float64 `json:"t"` // s

	Lon     float64 `json:"lon"`
	Lat     float64 `json:"lat"`
	Alt     float64 `json:"alt"`
	Roll    float64 `json:"roll"`    // deg
	Pitch   float64 `json:"pitch"`   // deg
	Heading float64 `json:"heading"` // deg

	State [nav.StateSize]float64 `json:"state"`
	Sigma [nav.StateSize]float64 `json:"sigma"`

	Valid bool `json:"valid"`
}

// NewNavData fills a message from s.
func NewNavData(s *nav.Snapshot, valid bool) *NavData {
	d := &NavData{T: float64(s.T) * 1e-9, State: s.State, Valid: valid}

	lla := s.Geodetic()
	d.Lon, d.Lat, d.Alt = lla.Lon, lla.Lat, lla.Alt

	roll, pitch, heading := s.State.RollPitchHeading()
	d.Roll, d.Pitch, d.Heading = roll/nav.Deg, pitch/nav.Deg, heading/nav.Deg

	for i := range d.Sigma {
		d.Sigma[i] = s.Sigma(i)
	}
	return d
}
