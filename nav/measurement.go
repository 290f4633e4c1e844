package nav

// Sensor identifies one of the measurement sources fused by the filter.
type Sensor int

const (
	GPS Sensor = iota
	Accelerometer
	Gyroscope
	Magnetometer

	numSensors
)

var sensorNames = [numSensors]string{"gps", "accelerometer", "gyroscope", "magnetometer"}

func (s Sensor) String() string {
	if s < 0 || s >= numSensors {
		return "unknown"
	}
	return sensorNames[s]
}

// ParseSensor returns the sensor with the given name.
func ParseSensor(name string) (Sensor, bool) {
	for i, n := range sensorNames {
		if n == name {
			return Sensor(i), true
		}
	}
	return -1, false
}

// Sensors lists all sensors in order.
func Sensors() []Sensor {
	return []Sensor{GPS, Accelerometer, Gyroscope, Magnetometer}
}

// PredictGPS is the expected GPS position in the tangent plane.
func PredictGPS(x *State) Vec3 {
	p, b := x.Pos(), x.Vec(GPSBias)
	return Vec3{p[0] + b[0], p[1] + b[1], p[2] + b[2]}
}

// PredictAccelerometer is the expected specific force in the body frame.
func PredictAccelerometer(x *State) Vec3 {
	a, g := x.Acc(), x.Vec(Gravity)
	f := rotate(x.Quaternion(), Vec3{a[0] + g[0], a[1] + g[1], a[2] + g[2]})
	return addBias(f, x, AccelerometerBias)
}

// PredictGyroscope is the expected rotation rate in the body frame.
func PredictGyroscope(x *State) Vec3 {
	return addBias(rotate(x.Quaternion(), x.Rate()), x, GyroscopeBias)
}

// PredictMagnetometer is the expected magnetic field in the body frame.
func PredictMagnetometer(x *State) Vec3 {
	return addBias(rotate(x.Quaternion(), x.Vec(MagneticField)), x, MagnetometerBias)
}

func addBias(v Vec3, x *State, offset int) Vec3 {
	return Vec3{v[0] + x[offset], v[1] + x[offset+1], v[2] + x[offset+2]}
}

// Predict returns the expected reading of sensor s for the state x.
func (s Sensor) Predict(x *State) Vec3 {
	switch s {
	case GPS:
		return PredictGPS(x)
	case Accelerometer:
		return PredictAccelerometer(x)
	case Gyroscope:
		return PredictGyroscope(x)
	case Magnetometer:
		return PredictMagnetometer(x)
	}
	panic("nav: unknown sensor " + s.String())
}

// Measurement is a single timestamped sensor reading.
// GPS fixes use Lon, Lat, Alt and HorizontalError; the inertial and magnetic
// sensors use Value.
type Measurement struct {
	Sensor          Sensor
	T               int64 // ns
	Lon, Lat, Alt   float64
	HorizontalError float32
	Value           [3]float32
}
