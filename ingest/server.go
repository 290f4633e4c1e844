package ingest

import (
	"log"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/westphae/gonav/nav"
)

const (
	DefaultPort   = 44400
	MaxPacketSize = 65535
)

// Sink is the filter the server feeds; *nav.Nav satisfies it.
type Sink interface {
	Initialized() bool
	Initialize(t0 int64, lon, lat, alt float64, horizErr float32) error
	Apply(m nav.Measurement) error
}

// Stats counts what the server has seen.
type Stats struct {
	Packets   int // datagrams received
	Malformed int // datagrams with a bad record
	Applied   int // measurements accepted by the sink
	Rejected  int // measurements the sink refused
	Dropped   int // measurements received before the first GPS fix
}

// Server reads datagrams from a UDP socket and applies each record to a Sink.
// The first GPS fix initializes an uninitialized sink.
type Server struct {
	conn    *net.UDPConn
	sink    Sink
	running atomic.Bool
	started atomic.Bool
	done    chan struct{}

	mu      sync.Mutex
	stats   Stats
	handler func(m nav.Measurement, err error)
}

// NewServer listens on addr, for example ":44400" or "127.0.0.1:0".
func NewServer(addr string, sink Sink) (*Server, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving %s", addr)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %s", addr)
	}
	conn.SetReadBuffer(256 * 1024)

	return &Server{conn: conn, sink: sink, done: make(chan struct{})}, nil
}

// Addr is the local address the server is bound to.
func (s *Server) Addr() net.Addr {
	return s.conn.LocalAddr()
}

// SetHandler registers a function called after every record is applied,
// with the sink's error if any. It runs on the server goroutine.
func (s *Server) SetHandler(h func(m nav.Measurement, err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Stats returns a copy of the counters.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Start reads datagrams until Stop is called.
func (s *Server) Start() {
	s.started.Store(true)
	defer close(s.done)
	s.running.Store(true)
	buf := make([]byte, MaxPacketSize)
	log.Printf("Ingest: listening on %s\n", s.conn.LocalAddr())

	for s.running.Load() {
		n, _, err := s.conn.ReadFromUDP(buf)
		if errors.Is(err, net.ErrClosed) {
			return
		}
		if err != nil {
			if s.running.Load() {
				log.Printf("Ingest: read error: %v\n", err)
			}
			continue
		}
		s.handlePacket(buf[:n])
	}
}

// Stop closes the socket and waits for Start to return.
func (s *Server) Stop() {
	s.running.Store(false)
	s.conn.Close()
	if s.started.Load() {
		<-s.done
	}
}

func (s *Server) handlePacket(data []byte) {
	ms, err := DecodeAll(data)

	s.mu.Lock()
	s.stats.Packets++
	if err != nil {
		s.stats.Malformed++
	}
	handler := s.handler
	s.mu.Unlock()

	if err != nil {
		log.Printf("Ingest: %v\n", err)
	}

	for _, m := range ms {
		err := s.apply(m)
		if handler != nil {
			handler(m, err)
		}
	}
}

var errNotStarted = errors.New("ingest: waiting for first GPS fix")

func (s *Server) apply(m nav.Measurement) error {
	var err error
	switch {
	case s.sink.Initialized():
		err = s.sink.Apply(m)
	case m.Sensor == nav.GPS:
		err = s.sink.Initialize(m.T, m.Lon, m.Lat, m.Alt, m.HorizontalError)
		if err == nil {
			log.Printf("Ingest: initialized at %.6f, %.6f, %.1f\n", m.Lon, m.Lat, m.Alt)
		}
	default:
		s.mu.Lock()
		s.stats.Dropped++
		s.mu.Unlock()
		return errNotStarted
	}

	s.mu.Lock()
	if err != nil {
		s.stats.Rejected++
	} else {
		s.stats.Applied++
	}
	s.mu.Unlock()

	if err != nil {
		log.Printf("Ingest: %s at %d rejected: %v\n", m.Sensor, m.T, err)
	}
	return err
}
