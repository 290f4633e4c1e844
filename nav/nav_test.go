package nav

import (
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/pkg/errors"
)

const t0 = int64(1_000_000_000_000)

func newInitialized(t *testing.T, cfg Config) *Nav {
	n, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := n.Initialize(t0, 0, 0, 0, 0); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return n
}

func sameCovariance(a, b Snapshot) bool {
	for i := 0; i < StateSize; i++ {
		for j := 0; j < StateSize; j++ {
			if a.Covariance.Get(i, j) != b.Covariance.Get(i, j) {
				return false
			}
		}
	}
	return true
}

func TestNotInitialized(t *testing.T) {
	n, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := n.GetState(t0); errors.Cause(err) != ErrNotInitialized {
		t.Errorf("GetState before Initialize: %v", err)
	}
	if err := n.UpdateGPS(t0, 0, 0, 0, 1); errors.Cause(err) != ErrNotInitialized {
		t.Errorf("UpdateGPS before Initialize: %v", err)
	}
	if err := n.UpdateGyroscope(t0, [3]float32{}); errors.Cause(err) != ErrNotInitialized {
		t.Errorf("UpdateGyroscope before Initialize: %v", err)
	}
	if n.Valid() {
		t.Errorf("uninitialized filter reports valid")
	}
}

func TestNoOpPredict(t *testing.T) {
	n := newInitialized(t, DefaultConfig())
	if err := n.UpdateAccelerometer(t0+1e8, [3]float32{0.1, 0, 9.8}); err != nil {
		t.Fatal(err)
	}
	tc := n.Time()

	before, _ := n.Snapshot(tc)
	if err := n.Predict(tc); err != nil {
		t.Fatal(err)
	}
	after, _ := n.Snapshot(tc)

	if before.State != after.State || !sameCovariance(before, after) {
		t.Errorf("predict to the current time changed the estimate")
	}
}

func TestOutOfOrderRejected(t *testing.T) {
	n := newInitialized(t, DefaultConfig())
	if err := n.Predict(t0 + 2e9); err != nil {
		t.Fatal(err)
	}
	before, _ := n.Snapshot(t0 + 2e9)

	checks := []error{
		n.Predict(t0 + 1e9),
		n.UpdateGPS(t0+1e9, 0.001, 0.001, 0, 3),
		n.UpdateMagnetometer(t0, [3]float32{1, 2, 3}),
	}
	_, err := n.GetState(t0)
	checks = append(checks, err)
	for i, err := range checks {
		if errors.Cause(err) != ErrOutOfOrder {
			t.Errorf("call %d: expected ErrOutOfOrder, got %v", i, err)
		}
	}

	after, _ := n.Snapshot(t0 + 2e9)
	if before.State != after.State || !sameCovariance(before, after) || n.Time() != t0+2e9 {
		t.Errorf("rejected update changed the estimate")
	}
	if st := n.InnovationStats(GPS); st.Rejected != 1 || st.Updates != 0 {
		t.Errorf("gps stats %+v", st)
	}
}

func TestNonFiniteReadingRejected(t *testing.T) {
	n := newInitialized(t, DefaultConfig())
	if err := n.Predict(t0 + 1e9); err != nil {
		t.Fatal(err)
	}
	before, _ := n.Snapshot(t0 + 1e9)

	nan, inf := float32(math.NaN()), float32(math.Inf(1))
	checks := []error{
		n.UpdateAccelerometer(t0+2e9, [3]float32{nan, 0, 9.8}),
		n.UpdateGyroscope(t0+2e9, [3]float32{0, inf, 0}),
		n.UpdateMagnetometer(t0+2e9, [3]float32{0, 20, -inf}),
		n.UpdateGPS(t0+2e9, math.NaN(), 0, 0, 3),
	}
	for i, err := range checks {
		if errors.Cause(err) != ErrNonFinite {
			t.Errorf("call %d: expected ErrNonFinite, got %v", i, err)
		}
	}

	if n.Time() != t0+1e9 {
		t.Fatalf("rejected update advanced time to %d", n.Time())
	}
	after, err := n.Snapshot(t0 + 1e9)
	if err != nil {
		t.Fatal(err)
	}
	if before.State != after.State || !sameCovariance(before, after) {
		t.Errorf("rejected update changed the estimate")
	}
	for _, s := range []Sensor{Accelerometer, Gyroscope, Magnetometer, GPS} {
		if st := n.InnovationStats(s); st.Rejected != 1 || st.Updates != 0 {
			t.Errorf("%s stats %+v", s, st)
		}
	}
}

func TestSingularInnovation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialCovariance = make([]float64, StateSize)
	cfg.GPSNoise = diag3(0)
	n := newInitialized(t, cfg)

	before, _ := n.Snapshot(t0)
	err := n.UpdateGPS(t0, 0.0001, 0, 0, 0)
	if errors.Cause(err) != ErrSingularInnovation {
		t.Fatalf("expected ErrSingularInnovation, got %v", err)
	}
	after, _ := n.Snapshot(t0)
	if before.State != after.State || !sameCovariance(before, after) {
		t.Errorf("singular update changed the estimate")
	}
}

func TestGetStateIsNonDestructive(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialState[Velocity] = 2
	n := newInitialized(t, cfg)

	x, err := n.GetState(t0 + 3e9)
	if err != nil {
		t.Fatal(err)
	}
	if notSmall(x[Position]-6, 1e-9) {
		t.Errorf("east after 3 s at 2 m/s is %g", x[Position])
	}
	if n.Time() != t0 {
		t.Errorf("GetState advanced the estimate to %d", n.Time())
	}
	if s, _ := n.Snapshot(t0); s.State[Position] != 0 {
		t.Errorf("committed position moved to %g", s.State[Position])
	}
}

// gpsShift returns the east position and GPS bias after a single fix
// 0.0001° east of the origin with GPS variance r.
func gpsShift(t *testing.T, r float64) (east, bias float64) {
	cfg := DefaultConfig()
	cfg.GPSNoise = diag3(r)
	n := newInitialized(t, cfg)

	if err := n.UpdateGPS(t0, 0.0001, 0, 0, 0); err != nil {
		t.Fatalf("UpdateGPS: %v", err)
	}
	x, err := n.GetState(t0)
	if err != nil {
		t.Fatal(err)
	}
	if notSmall(x[Position+1], 1e-6) || notSmall(x[Position+2], 1e-4) {
		t.Errorf("fix due east moved north/up: %v", Vec3{x[0], x[1], x[2]})
	}
	return x[Position], x[GPSBias]
}

func TestGPSUpdatePullsTowardFix(t *testing.T) {
	const offset = 11.1319

	last := 0.0
	for _, r := range []float64{25, 1, 0.01} {
		east, bias := gpsShift(t, r)
		if east <= last || east > offset {
			t.Errorf("R=%g: east %g, previous %g", r, east, last)
		}
		last = east

		if r == 0.01 && notSmall(east+bias-offset, 0.01) {
			t.Errorf("R=%g: position+bias %g, expected about %g", r, east+bias, offset)
		}
	}
}

func TestReportedAccuracy(t *testing.T) {
	shift := func(use bool) float64 {
		cfg := DefaultConfig()
		cfg.UseReportedAccuracy = use
		n := newInitialized(t, cfg)
		if err := n.UpdateGPS(t0, 0.0001, 0, 0, 0.1); err != nil {
			t.Fatal(err)
		}
		x, _ := n.GetState(t0)
		return x[Position]
	}
	if coarse, fine := shift(false), shift(true); fine <= coarse {
		t.Errorf("a 0.1 m reported accuracy should pull harder: %g vs %g", fine, coarse)
	}
}

func TestInitializeHorizontalError(t *testing.T) {
	n, _ := New(DefaultConfig())
	if err := n.Initialize(t0, 10, 45, 100, 3); err != nil {
		t.Fatal(err)
	}
	s, _ := n.Snapshot(t0)
	if s.Covariance.Get(0, 0) != 9 || s.Covariance.Get(1, 1) != 9 || s.Covariance.Get(2, 2) != 100 {
		t.Errorf("position variances %g %g %g", s.Covariance.Get(0, 0), s.Covariance.Get(1, 1), s.Covariance.Get(2, 2))
	}
	if o := s.Geodetic(); notSmall(o.Lon-10, 1e-9) || notSmall(o.Lat-45, 1e-9) || notSmall(o.Alt-100, 1e-6) {
		t.Errorf("origin maps back to %+v", o)
	}

	if err := n.Initialize(t0, 0, 0, 0, float32(math.NaN())); err != nil {
		t.Fatal(err)
	}
	if err := n.Initialize(t0, math.NaN(), 0, 0, 0); errors.Cause(err) != ErrNonFinite {
		t.Errorf("NaN origin: %v", err)
	}
}

func TestReinitializeResets(t *testing.T) {
	n := newInitialized(t, DefaultConfig())
	if err := n.UpdateGPS(t0+1e9, 0.001, 0.001, 10, 0); err != nil {
		t.Fatal(err)
	}
	if err := n.Initialize(t0-5e9, 1, 1, 0, 0); err != nil {
		t.Fatal(err)
	}
	x, err := n.GetState(t0 - 5e9)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if x[Position+i] != 0 {
			t.Errorf("position after re-initialize %v", Vec3{x[0], x[1], x[2]})
		}
	}
	if st := n.InnovationStats(GPS); st.Updates != 0 {
		t.Errorf("innovation stats survived re-initialize: %+v", st)
	}
}

// TestStationary feeds a level device at rest at the origin and checks that
// the covariance stays healthy and the estimate stays put.
func TestStationary(t *testing.T) {
	n := newInitialized(t, DefaultConfig())
	r := rand.New(rand.NewSource(1))
	noise := func(s float64) float32 { return float32(r.NormFloat64() * s) }

	for k := 1; k <= 200; k++ {
		tk := t0 + int64(k)*5e7
		ms := []Measurement{
			{Sensor: Accelerometer, T: tk, Value: [3]float32{noise(0.1), noise(0.1), float32(StandardGravity) + noise(0.1)}},
			{Sensor: Gyroscope, T: tk, Value: [3]float32{noise(0.01), noise(0.01), noise(0.01)}},
			{Sensor: Magnetometer, T: tk, Value: [3]float32{noise(1), 20 + noise(1), -40 + noise(1)}},
		}
		if k%20 == 0 {
			ms = append(ms, Measurement{Sensor: GPS, T: tk, HorizontalError: 5})
		}
		for _, m := range ms {
			if err := n.Apply(m); err != nil {
				t.Fatalf("step %d %s: %v", k, m.Sensor, err)
			}
		}

		h, err := n.CovarianceHealth()
		if err != nil {
			t.Fatal(err)
		}
		if h.Asymmetry != 0 || !h.PSD() {
			t.Fatalf("step %d: covariance %+v", k, h)
		}
	}

	x, _ := n.GetState(n.Time())
	for i := 0; i < 3; i++ {
		if notSmall(x[Position+i]+x[GPSBias+i], 10) || notSmall(x[Velocity+i], 2) {
			t.Errorf("stationary device drifted: position %v velocity %v", Vec3{x[0], x[1], x[2]}, Vec3{x[3], x[4], x[5]})
			break
		}
	}
	q := Vec3{x[Orientation+1], x[Orientation+2], x[Orientation+3]}
	if notSmall(q[0], 0.05) || notSmall(q[1], 0.05) {
		t.Errorf("level device tilted: %v", x[Orientation:Orientation+4])
	}

	for _, s := range Sensors() {
		st := n.InnovationStats(s)
		if st.Updates == 0 || st.Rejected != 0 || math.IsNaN(st.MeanNIS) {
			t.Errorf("%s stats %+v", s, st)
		}
	}
}

func TestValid(t *testing.T) {
	cfg := DefaultConfig()
	n := newInitialized(t, cfg)
	if n.Valid() {
		t.Errorf("0.1 quaternion sigma should exceed a 10 degree limit")
	}

	cfg.MaxAttitudeSigma = 1
	n = newInitialized(t, cfg)
	if !n.Valid() {
		t.Errorf("default prior should be valid with a loose attitude limit")
	}
}

func TestSetLinearizer(t *testing.T) {
	n := newInitialized(t, DefaultConfig())
	n.SetLinearizer(GPS, measurementLinearizer(GPS, defaultStep()))
	if err := n.UpdateGPS(t0, 0.0001, 0, 0, 0); err != nil {
		t.Fatal(err)
	}
	x, _ := n.GetState(t0)
	east, _ := gpsShift(t, 25)
	if notSmall(x[Position]-east, 1e-6) {
		t.Errorf("finite difference GPS update %g, exact %g", x[Position], east)
	}
}

func TestConcurrentUse(t *testing.T) {
	n := newInitialized(t, DefaultConfig())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for k := 1; k <= 50; k++ {
			n.UpdateGyroscope(t0+int64(k)*1e7, [3]float32{0, 0, 0.01})
		}
	}()
	go func() {
		defer wg.Done()
		for k := 0; k < 50; k++ {
			if _, err := n.GetState(t0 + 1e9); err != nil {
				t.Errorf("GetState: %v", err)
				return
			}
		}
	}()
	wg.Wait()

	if st := n.InnovationStats(Gyroscope); st.Updates != 50 {
		t.Errorf("gyroscope updates %d", st.Updates)
	}
}
