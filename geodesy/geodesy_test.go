package geodesy

import (
	"math"
	"math/rand"
	"testing"
)

const tolerance = 1e-6

func notClose(a, b, tol float64) bool {
	return math.Abs(a-b) > tol
}

func TestGeodeticToEcefSpecificPoints(t *testing.T) {
	cases := []struct {
		p   LLA
		out Vec3
	}{
		{LLA{0, 0, 0}, Vec3{WGS84SemiMajorAxis, 0, 0}},
		{LLA{90, 0, 0}, Vec3{0, WGS84SemiMajorAxis, 0}},
		{LLA{0, 0, 100}, Vec3{WGS84SemiMajorAxis + 100, 0, 0}},
		{LLA{0, 90, 0}, Vec3{0, 0, 6356752.314245}},
		{LLA{0, -90, 0}, Vec3{0, 0, -6356752.314245}},
	}

	for _, c := range cases {
		v := GeodeticToEcef(c.p)
		for i := 0; i < 3; i++ {
			if notClose(v[i], c.out[i], 1e-5) {
				t.Errorf("GeodeticToEcef(%v) = %v, expected %v", c.p, v, c.out)
				break
			}
		}
	}
}

func checkRoundTrip(t *testing.T, p LLA) {
	t.Helper()
	q := EcefToGeodetic(GeodeticToEcef(p))
	if notClose(p.Lon, q.Lon, 1e-9) || notClose(p.Lat, q.Lat, 1e-9) || notClose(p.Alt, q.Alt, 1e-6) {
		t.Errorf("round trip %v -> %v", p, q)
	}
}

func TestEcefRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		checkRoundTrip(t, LLA{
			Lon: r.Float64()*360 - 180,
			Lat: r.Float64()*178 - 89,
			Alt: r.Float64()*10000 - 500,
		})
	}
}

func TestEcefRoundTripNearPoles(t *testing.T) {
	for _, lat := range []float64{88.5, 89.9, 89.999, -88.69, -89.999} {
		for _, alt := range []float64{-100, 0, 7000} {
			checkRoundTrip(t, LLA{Lon: 134.09, Lat: lat, Alt: alt})
		}
	}
	// reported failure of the former altitude formula
	checkRoundTrip(t, LLA{Lon: 134.09, Lat: -88.69, Alt: 6778.238021})
}

func TestEnuRotationIsOrthonormal(t *testing.T) {
	rnd := rand.New(rand.NewSource(2))
	for i := 0; i < 50; i++ {
		r := EcefToEnuRotation(rnd.Float64()*360-180, rnd.Float64()*180-90)
		for a := 0; a < 3; a++ {
			for b := 0; b < 3; b++ {
				var dot float64
				for k := 0; k < 3; k++ {
					dot += r[a][k] * r[b][k]
				}
				exp := 0.0
				if a == b {
					exp = 1
				}
				if notClose(dot, exp, 1e-12) {
					t.Fatalf("rows %d,%d dot %g", a, b, dot)
				}
			}
		}
	}
}

func TestEnuRotationClosedForm(t *testing.T) {
	lon, lat := 37.2, -12.5
	r := EcefToEnuRotation(lon, lat)
	sLon, cLon := math.Sincos(lon * Deg)
	sLat, cLat := math.Sincos(lat * Deg)
	exp := Rotation{
		{-sLon, cLon, 0},
		{-sLat * cLon, -sLat * sLon, cLat},
		{cLat * cLon, cLat * sLon, sLat},
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if notClose(r[i][j], exp[i][j], 1e-15) {
				t.Errorf("R[%d][%d] = %g, expected %g", i, j, r[i][j], exp[i][j])
			}
		}
	}
}

func TestFrameLocalOffsets(t *testing.T) {
	f := NewFrame(LLA{0, 0, 0})

	if v := f.ToEnu(f.Origin); notClose(v[0], 0, tolerance) || notClose(v[1], 0, tolerance) || notClose(v[2], 0, tolerance) {
		t.Errorf("origin maps to %v", v)
	}

	east := f.ToEnu(LLA{0.0001, 0, 0})
	if notClose(east[0], 11.1319, 1e-3) || notClose(east[1], 0, 1e-6) || math.Abs(east[2]) > 1e-4 {
		t.Errorf("0.0001 deg east maps to %v", east)
	}

	north := f.ToEnu(LLA{0, 0.0001, 0})
	if notClose(north[1], 11.0574, 1e-3) || notClose(north[0], 0, 1e-6) {
		t.Errorf("0.0001 deg north maps to %v", north)
	}

	up := f.ToEnu(LLA{0, 0, 10})
	if notClose(up[2], 10, tolerance) {
		t.Errorf("10 m up maps to %v", up)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	f := NewFrame(LLA{-122.4, 37.7, 15})
	r := rand.New(rand.NewSource(3))
	for i := 0; i < 100; i++ {
		enu := Vec3{r.Float64()*2000 - 1000, r.Float64()*2000 - 1000, r.Float64()*200 - 100}
		back := f.ToEnu(f.ToGeodetic(enu))
		for k := 0; k < 3; k++ {
			if notClose(enu[k], back[k], 1e-5) {
				t.Errorf("frame round trip %v -> %v", enu, back)
				break
			}
		}
	}
}
