package sim

import (
	"bufio"
	"encoding/csv"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/pkg/errors"

	"github.com/westphae/gonav/nav"
)

// Columns of a recorded measurement file. GPS fixes carry longitude,
// latitude and altitude in X, Y and Z.
var recordColumns = []string{"T", "Sensor", "X", "Y", "Z", "HorizontalError"}

// Replay reads recorded measurements from a CSV file with a header row.
// Columns are found by name, so extra columns are ignored; malformed rows are
// logged and skipped.
type Replay struct {
	r      *csv.Reader
	c      io.Closer
	fields map[string]int
	line   int
}

// NewReplay reads the header from r and returns a Replay over the rest.
func NewReplay(r io.Reader) (*Replay, error) {
	s := &Replay{r: csv.NewReader(bufio.NewReader(r)), fields: make(map[string]int)}
	s.r.FieldsPerRecord = -1

	rec, err := s.r.Read()
	if err != nil {
		return nil, errors.Wrap(err, "sim: reading replay header")
	}
	s.line++
	for i, k := range rec {
		s.fields[k] = i
	}
	for _, k := range recordColumns[:5] {
		if _, ok := s.fields[k]; !ok {
			return nil, errors.Errorf("sim: replay file has no %s column", k)
		}
	}
	return s, nil
}

// OpenReplay opens the recorded file fn.
func OpenReplay(fn string) (*Replay, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, errors.Wrapf(err, "sim: opening replay %s", fn)
	}
	s, err := NewReplay(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.c = f
	return s, nil
}

func (s *Replay) float(rec []string, k string) (float64, error) {
	i, ok := s.fields[k]
	if !ok {
		return 0, nil
	}
	if i >= len(rec) {
		return 0, errors.Errorf("missing %s", k)
	}
	return strconv.ParseFloat(rec[i], 64)
}

func (s *Replay) parse(rec []string) (m nav.Measurement, err error) {
	ts, err := strconv.ParseInt(rec[s.fields["T"]], 10, 64)
	if err != nil {
		return m, err
	}
	sensor, ok := nav.ParseSensor(rec[s.fields["Sensor"]])
	if !ok {
		return m, errors.Errorf("unknown sensor %q", rec[s.fields["Sensor"]])
	}
	m.T, m.Sensor = ts, sensor

	var v [3]float64
	for i, k := range []string{"X", "Y", "Z"} {
		if v[i], err = s.float(rec, k); err != nil {
			return m, err
		}
	}
	if sensor == nav.GPS {
		m.Lon, m.Lat, m.Alt = v[0], v[1], v[2]
		e, err := s.float(rec, "HorizontalError")
		if err != nil {
			return m, err
		}
		m.HorizontalError = float32(e)
		return m, nil
	}
	m.Value = [3]float32{float32(v[0]), float32(v[1]), float32(v[2])}
	return m, nil
}

// Next implements Source.
func (s *Replay) Next() (nav.Measurement, error) {
	for {
		rec, err := s.r.Read()
		s.line++
		if err == io.EOF {
			return nav.Measurement{}, io.EOF
		} else if err != nil {
			log.Printf("Sim: csv line %d: %s, skipping this one\n", s.line, err)
			continue
		}
		if len(rec) <= s.fields["T"] || len(rec) <= s.fields["Sensor"] {
			log.Printf("Sim: csv line %d is short, skipping this one\n", s.line)
			continue
		}
		m, err := s.parse(rec)
		if err != nil {
			log.Printf("Sim: csv line %d contains bad data %s, skipping this one\n", s.line, err)
			continue
		}
		return m, nil
	}
}

// Close closes the file opened by OpenReplay.
func (s *Replay) Close() error {
	if s.c == nil {
		return nil
	}
	return s.c.Close()
}

// Recorder writes measurements in the format read by Replay.
type Recorder struct {
	w   *csv.Writer
	row []string
}

// NewRecorder writes the header to w and returns a Recorder.
func NewRecorder(w io.Writer) (*Recorder, error) {
	r := &Recorder{w: csv.NewWriter(w), row: make([]string, len(recordColumns))}
	if err := r.w.Write(recordColumns); err != nil {
		return nil, errors.Wrap(err, "sim: writing record header")
	}
	return r, nil
}

// Record appends m.
func (r *Recorder) Record(m nav.Measurement) error {
	var v [3]float64
	var e float64
	if m.Sensor == nav.GPS {
		v, e = [3]float64{m.Lon, m.Lat, m.Alt}, float64(m.HorizontalError)
	} else {
		v = [3]float64{float64(m.Value[0]), float64(m.Value[1]), float64(m.Value[2])}
	}
	r.row[0] = strconv.FormatInt(m.T, 10)
	r.row[1] = m.Sensor.String()
	for i := range v {
		r.row[2+i] = strconv.FormatFloat(v[i], 'g', -1, 64)
	}
	r.row[5] = strconv.FormatFloat(e, 'g', -1, 64)
	return errors.Wrap(r.w.Write(r.row), "sim: writing record")
}

// Flush writes any buffered records.
func (r *Recorder) Flush() error {
	r.w.Flush()
	return r.w.Error()
}
