/*
navd listens for binary measurement datagrams, fuses them in a navigation
filter and optionally publishes the estimate to a navweb room.
*/

package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/westphae/gonav/ingest"
	"github.com/westphae/gonav/nav"
	"github.com/westphae/gonav/navlog"
	"github.com/westphae/gonav/navweb"
)

func main() {
	var (
		addr, configFile, logFile, roomURL string
		publish                            bool
		period                             time.Duration
	)

	const (
		defaultConfig = ""
		configUsage   = "Filter configuration file, json; defaults are used when empty"
		defaultLog    = ""
		logUsage      = "CSV file to log filter snapshots to"
		defaultPeriod = 200 * time.Millisecond
		periodUsage   = "Period between logged and published snapshots"
		publishUsage  = "Publish snapshots to a navweb room"
		urlUsage      = "Websocket address of the navweb room"
	)

	flag.StringVar(&addr, "addr", fmt.Sprintf(":%d", ingest.DefaultPort), "UDP address to listen on for measurements")
	flag.StringVar(&configFile, "config", defaultConfig, configUsage)
	flag.StringVar(&logFile, "log", defaultLog, logUsage)
	flag.DurationVar(&period, "period", defaultPeriod, periodUsage)
	flag.BoolVar(&publish, "publish", false, publishUsage)
	flag.StringVar(&roomURL, "url", navweb.LocalURL(), urlUsage)
	flag.Parse()

	cfg := nav.DefaultConfig()
	if configFile != "" {
		var err error
		if cfg, err = nav.LoadConfig(configFile); err != nil {
			log.Fatalln(err)
		}
	}
	n, err := nav.New(cfg)
	if err != nil {
		log.Fatalln(err)
	}

	s, err := ingest.NewServer(addr, n)
	if err != nil {
		log.Fatalln(err)
	}
	s.SetHandler(func(m nav.Measurement, err error) {
		if err != nil {
			log.Printf("Navd: %s at %d rejected: %v\n", m.Sensor, m.T, err)
		}
	})
	go s.Start()

	var logger *navlog.Logger
	if logFile != "" {
		if logger, err = navlog.Create(logFile); err != nil {
			log.Fatalln(err)
		}
	}

	var pub *navweb.Publisher
	if publish {
		if pub, err = navweb.NewPublisher(roomURL); err != nil {
			log.Printf("Navd: not publishing: %v\n", err)
		}
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !n.Initialized() {
				continue
			}
			// Report at the latest measurement time: the filter runs on sensor clocks.
			snap, err := n.Snapshot(n.Time())
			if err != nil {
				log.Printf("Navd: %v\n", err)
				continue
			}
			if logger != nil {
				if err := logger.Log(&snap); err != nil {
					log.Printf("Navd: %v\n", err)
				}
			}
			if pub != nil {
				pub.Send(&snap, n.Valid())
			}
		case sig := <-sigs:
			log.Printf("Navd: caught %s, shutting down\n", sig)
			s.Stop()
			st := s.Stats()
			log.Printf("Navd: %d packets, %d malformed, %d applied, %d rejected, %d dropped\n",
				st.Packets, st.Malformed, st.Applied, st.Rejected, st.Dropped)
			if logger != nil {
				logger.Close()
			}
			if pub != nil {
				pub.Close()
			}
			return
		}
	}
}
