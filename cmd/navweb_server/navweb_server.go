/*
navweb_server runs a navweb room: publishers such as navsim and navd send
snapshots to it and every connected viewer receives them.
*/

package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"

	"github.com/westphae/gonav/navweb"
)

func main() {
	var (
		addr = flag.String("addr", fmt.Sprintf(":%d", navweb.Port), "The port for the navigation data publication.")
		dir  = flag.String("dir", "res", "Directory of static viewer files to serve at /")
	)
	flag.Parse()

	// get the room going
	r := navweb.NewRoom()
	go r.Run()
	defer r.Close()

	http.Handle("/", http.FileServer(http.Dir(*dir)))
	http.Handle("/navweb", r)
	log.Println("NavWeb: Starting web server on", *addr)
	if err := http.ListenAndServe(*addr, nil); err != nil {
		log.Fatal("NavWeb: ListenAndServe fatal error:", err.Error())
	}
}
