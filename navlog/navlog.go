// Package navlog writes filter snapshots to CSV, one row per step.
package navlog

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"

	"github.com/westphae/gonav/nav"
)

// Logger writes a header row and then one row per logged snapshot: time,
// geodetic position, attitude, the full state and the standard deviation of
// every state component.
type Logger struct {
	c      io.Closer
	w      *csv.Writer
	Header []string
	row    []string
}

// Columns returns the column names written by a Logger.
func Columns() []string {
	h := []string{"T", "Lon", "Lat", "Alt", "Roll", "Pitch", "Heading"}
	h = append(h, nav.StateNames[:]...)
	for _, n := range nav.StateNames {
		h = append(h, "S"+n)
	}
	return h
}

// New returns a Logger writing to w.
func New(w io.Writer) (*Logger, error) {
	l := &Logger{w: csv.NewWriter(w), Header: Columns()}
	if c, ok := w.(io.Closer); ok {
		l.c = c
	}
	l.row = make([]string, len(l.Header))
	if err := l.w.Write(l.Header); err != nil {
		return nil, errors.Wrap(err, "writing log header")
	}
	return l, nil
}

// Create truncates filename and returns a Logger writing to it.
func Create(filename string) (*Logger, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "creating log %s", filename)
	}
	l, err := New(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return l, nil
}

func format(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Log appends a row for s.
func (l *Logger) Log(s *nav.Snapshot) error {
	lla := s.Geodetic()
	roll, pitch, heading := s.State.RollPitchHeading()

	vals := []float64{float64(s.T) * 1e-9, lla.Lon, lla.Lat, lla.Alt, roll / nav.Deg, pitch / nav.Deg, heading / nav.Deg}
	i := 0
	for ; i < len(vals); i++ {
		l.row[i] = format(vals[i])
	}
	for k := 0; k < nav.StateSize; k++ {
		l.row[i+k] = format(s.State[k])
		l.row[i+nav.StateSize+k] = format(s.Sigma(k))
	}
	if err := l.w.Write(l.row); err != nil {
		return errors.Wrap(err, "writing log row")
	}
	return nil
}

// Flush writes any buffered rows.
func (l *Logger) Flush() error {
	l.w.Flush()
	return l.w.Error()
}

// Close flushes and closes the underlying file, if any.
func (l *Logger) Close() error {
	err := l.Flush()
	if l.c != nil {
		if cerr := l.c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
