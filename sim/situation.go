// Package sim drives a filter from synthetic scenarios or recorded
// measurement files, and keeps the true state of synthetic runs for
// comparison.
package sim

import (
	"io"

	"github.com/pkg/errors"

	"github.com/westphae/gonav/nav"
)

// Source yields measurements in time order, returning io.EOF when done.
type Source interface {
	Next() (nav.Measurement, error)
}

var ErrOutsideScenario = errors.New("sim: requested time is outside of scenario")

// Filter is what Run drives; *nav.Nav satisfies it.
type Filter interface {
	Initialized() bool
	Initialize(t0 int64, lon, lat, alt float64, horizErr float32) error
	Apply(m nav.Measurement) error
}

// Run feeds every measurement from src to f. Until f is initialized,
// measurements are skipped and the first GPS fix initializes it. Filter
// errors are handed to observe, if not nil, and do not stop the run.
func Run(f Filter, src Source, observe func(m nav.Measurement, err error)) error {
	for {
		m, err := src.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		switch {
		case f.Initialized():
			err = f.Apply(m)
		case m.Sensor == nav.GPS:
			err = f.Initialize(m.T, m.Lon, m.Lat, m.Alt, m.HorizontalError)
		default:
			continue
		}
		if observe != nil {
			observe(m, err)
		}
	}
}
