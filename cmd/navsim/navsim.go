/*
Exercise the navigation filter in nav/.
Define a trajectory and attitude in code, or replay recorded measurements, and
synthesize the matching GPS, gyro, accelerometer and magnetometer data, adding
noise and bias if desired. Then see how well the filter recovers the "true"
state from the noisy, asynchronous input.
*/

package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/westphae/gonav/geodesy"
	"github.com/westphae/gonav/nav"
	"github.com/westphae/gonav/navlog"
	"github.com/westphae/gonav/navweb"
	"github.com/westphae/gonav/sim"
)

func parseVec3(str string) (v nav.Vec3, err error) {
	parts := strings.Split(str, ",")
	if len(parts) != 3 {
		return v, fmt.Errorf("need 3 comma-separated values, got %q", str)
	}
	for i, s := range parts {
		if v[i], err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return
		}
	}
	return
}

func main() {
	var (
		imuDt, gpsDt, logDt                       float64
		gyroNoise, accelNoise, gpsNoise, magNoise float64
		gyroBiasStr, accelBiasStr, magBiasStr     string
		scenario, configFile, logFile, recordFile string
		publish                                   bool
		roomURL                                   string
		seed                                      int64
		src                                       sim.Source
		sit                                       *sim.SituationSim
		err                                       error
	)

	const (
		defaultImuDt      = 0.1
		imuDtUsage        = "IMU sample period, seconds"
		defaultGpsDt      = 1.0
		gpsDtUsage        = "GPS fix period, seconds"
		defaultLogDt      = 0.1
		logDtUsage        = "Period between logged snapshots, seconds"
		defaultGyroNoise  = 0.0
		gyroNoiseUsage    = "Amount of noise to add to gyro measurements, rad/s"
		defaultGyroBias   = "0,0,0"
		gyroBiasUsage     = "Amount of bias to add to gyro measurements, \"x,y,z\" rad/s"
		defaultAccelNoise = 0.0
		accelNoiseUsage   = "Amount of noise to add to accel measurements, m/s²"
		defaultAccelBias  = "0,0,0"
		accelBiasUsage    = "Amount of bias to add to accel measurements, \"x,y,z\" m/s²"
		defaultGPSNoise   = 0.0
		gpsNoiseUsage     = "Amount of noise to add to GPS positions, m"
		defaultMagNoise   = 0.0
		magNoiseUsage     = "Amount of noise to add to magnetometer measurements, μT"
		defaultMagBias    = "0,0,0"
		magBiasUsage      = "Amount of bias to add to magnetometer measurements, \"x,y,z\" μT"
		defaultScenario   = "walk"
		scenarioUsage     = "Scenario to use: filename or \"static\", \"walk\" or \"turn\""
		defaultConfig     = ""
		configUsage       = "Filter configuration file, json; defaults are used when empty"
		defaultLog        = "nav.csv"
		logUsage          = "CSV file to log filter snapshots to"
		defaultRecord     = ""
		recordUsage       = "CSV file to record the synthesized measurements to, for later replay"
		defaultPublish    = false
		publishUsage      = "Publish snapshots to a navweb room"
		urlUsage          = "Websocket address of the navweb room"
		defaultSeed       = 1
		seedUsage         = "Random seed for measurement noise"
	)

	flag.Float64Var(&imuDt, "imu-dt", defaultImuDt, imuDtUsage)
	flag.Float64Var(&gpsDt, "gps-dt", defaultGpsDt, gpsDtUsage)
	flag.Float64Var(&logDt, "log-dt", defaultLogDt, logDtUsage)
	flag.Float64Var(&gyroNoise, "gyro-noise", defaultGyroNoise, gyroNoiseUsage)
	flag.Float64Var(&gyroNoise, "g", defaultGyroNoise, gyroNoiseUsage)
	flag.StringVar(&gyroBiasStr, "gyro-bias", defaultGyroBias, gyroBiasUsage)
	flag.StringVar(&gyroBiasStr, "h", defaultGyroBias, gyroBiasUsage)
	flag.Float64Var(&accelNoise, "accel-noise", defaultAccelNoise, accelNoiseUsage)
	flag.Float64Var(&accelNoise, "a", defaultAccelNoise, accelNoiseUsage)
	flag.StringVar(&accelBiasStr, "accel-bias", defaultAccelBias, accelBiasUsage)
	flag.StringVar(&accelBiasStr, "i", defaultAccelBias, accelBiasUsage)
	flag.Float64Var(&gpsNoise, "gps-noise", defaultGPSNoise, gpsNoiseUsage)
	flag.Float64Var(&gpsNoise, "n", defaultGPSNoise, gpsNoiseUsage)
	flag.Float64Var(&magNoise, "mag-noise", defaultMagNoise, magNoiseUsage)
	flag.Float64Var(&magNoise, "b", defaultMagNoise, magNoiseUsage)
	flag.StringVar(&magBiasStr, "mag-bias", defaultMagBias, magBiasUsage)
	flag.StringVar(&magBiasStr, "k", defaultMagBias, magBiasUsage)
	flag.StringVar(&scenario, "scenario", defaultScenario, scenarioUsage)
	flag.StringVar(&scenario, "s", defaultScenario, scenarioUsage)
	flag.StringVar(&configFile, "config", defaultConfig, configUsage)
	flag.StringVar(&logFile, "log", defaultLog, logUsage)
	flag.StringVar(&recordFile, "record", defaultRecord, recordUsage)
	flag.BoolVar(&publish, "publish", defaultPublish, publishUsage)
	flag.StringVar(&roomURL, "url", navweb.LocalURL(), urlUsage)
	flag.Int64Var(&seed, "seed", defaultSeed, seedUsage)
	flag.Parse()

	cfg := nav.DefaultConfig()
	if configFile != "" {
		if cfg, err = nav.LoadConfig(configFile); err != nil {
			log.Fatalln(err)
		}
	}

	if s, ok := sim.Scenario(scenario); ok {
		sit = s
		if sit.GyroscopeBias, err = parseVec3(gyroBiasStr); err != nil {
			log.Fatalf("Error %v parsing %s\n", err, gyroBiasStr)
		}
		if sit.AccelerometerBias, err = parseVec3(accelBiasStr); err != nil {
			log.Fatalf("Error %v parsing %s\n", err, accelBiasStr)
		}
		if sit.MagnetometerBias, err = parseVec3(magBiasStr); err != nil {
			log.Fatalf("Error %v parsing %s\n", err, magBiasStr)
		}
		cfg = sit.InitialConfig(cfg)
		noise := sim.Noise{GPS: gpsNoise, Accelerometer: accelNoise, Gyroscope: gyroNoise, Magnetometer: magNoise}
		src = sit.Measurements(noise, int64(imuDt*1e9), int64(gpsDt*1e9), seed)

		fmt.Println("Simulation parameters:")
		fmt.Printf("\tScenario: %s\n", scenario)
		fmt.Printf("\tIMU Frequency: %d Hz\n", int(1/imuDt))
		fmt.Printf("\tGPS Frequency: %.2f Hz\n", 1/gpsDt)
		fmt.Println("Accelerometer:")
		fmt.Printf("\tNoise: %f m/s²\n", accelNoise)
		fmt.Printf("\tBias: %v\n", sit.AccelerometerBias)
		fmt.Println("Gyro:")
		fmt.Printf("\tNoise: %f rad/s\n", gyroNoise)
		fmt.Printf("\tBias: %v\n", sit.GyroscopeBias)
		fmt.Println("GPS:")
		fmt.Printf("\tNoise: %f m\n", gpsNoise)
		fmt.Println("Magnetometer:")
		fmt.Printf("\tNoise: %f μT\n", magNoise)
		fmt.Printf("\tBias: %v\n", sit.MagnetometerBias)
	} else {
		log.Printf("Loading data from %s\n", scenario)
		r, err := sim.OpenReplay(scenario)
		if err != nil {
			log.Fatalln(err)
		}
		defer r.Close()
		src = r
	}

	if err := cfg.Save("config.json"); err != nil {
		log.Printf("Couldn't write config.json: %v\n", err)
	}

	n, err := nav.New(cfg)
	if err != nil {
		log.Fatalln(err)
	}

	logger, err := navlog.Create(logFile)
	if err != nil {
		log.Fatalln(err)
	}
	defer logger.Close()

	var rec *sim.Recorder
	if recordFile != "" {
		f, err := os.Create(recordFile)
		if err != nil {
			log.Fatalln(err)
		}
		defer f.Close()
		if rec, err = sim.NewRecorder(f); err != nil {
			log.Fatalln(err)
		}
		defer rec.Flush()
	}

	var pub *navweb.Publisher
	if publish {
		if pub, err = navweb.NewPublisher(roomURL); err != nil {
			log.Printf("Not publishing: %v\n", err)
		} else {
			defer pub.Close()
		}
	}

	// This is where it all happens
	fmt.Println("Running Simulation")
	var (
		tNextLog int64
		rejected int
	)
	err = sim.Run(n, src, func(m nav.Measurement, err error) {
		if rec != nil {
			if err := rec.Record(m); err != nil {
				log.Println(err)
			}
		}
		if err != nil {
			rejected++
			log.Printf("Rejected %s at %d: %v\n", m.Sensor, m.T, err)
			return
		}
		if m.T < tNextLog {
			return
		}
		tNextLog = m.T + int64(logDt*1e9)

		snap, err := n.Snapshot(m.T)
		if err != nil {
			log.Println(err)
			return
		}
		if err := logger.Log(&snap); err != nil {
			log.Println(err)
		}
		if pub != nil {
			pub.Send(&snap, n.Valid())
		}
	})
	if err != nil {
		log.Fatalln(err)
	}
	if !n.Initialized() {
		log.Fatalln("No GPS fix, the filter never started")
	}

	fmt.Printf("Done: %d measurements rejected\n", rejected)
	for _, s := range nav.Sensors() {
		st := n.InnovationStats(s)
		fmt.Printf("\t%-13s updates %6d, rejected %4d, mean NIS %6.2f, innovation sd %.3g %.3g %.3g\n",
			s, st.Updates, st.Rejected, st.MeanNIS,
			math.Sqrt(st.Variance[0]), math.Sqrt(st.Variance[1]), math.Sqrt(st.Variance[2]))
	}

	if sit == nil {
		return
	}
	snap, err := n.Snapshot(n.Time())
	if err != nil {
		log.Fatalln(err)
	}
	truth, err := sit.Truth(snap.T)
	if err != nil {
		log.Fatalln(err)
	}
	p := geodesy.NewFrame(sit.Origin).ToEnu(snap.Geodetic())
	roll, pitch, heading := snap.State.RollPitchHeading()
	roll0, pitch0, heading0 := truth.RollPitchHeading()
	fmt.Println("Final error:")
	fmt.Printf("\tPosition: %+.2f %+.2f %+.2f m\n",
		p[0]-truth[nav.Position], p[1]-truth[nav.Position+1], p[2]-truth[nav.Position+2])
	fmt.Printf("\tAttitude: %+.2f %+.2f %+.2f °\n", (roll-roll0)/nav.Deg, (pitch-pitch0)/nav.Deg,
		math.Remainder(heading-heading0, 2*math.Pi)/nav.Deg)
	fmt.Printf("\tValid: %t\n", n.Valid())
}
