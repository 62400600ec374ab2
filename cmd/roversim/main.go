// roversim runs a simulated rover for developing against without hardware.
package main

import (
	"flag"
	"log"

	"roverctl/internal/simrover"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	r := simrover.New()
	log.Printf("[roversim] serving rover API on %s", *addr)
	if err := r.Routes().Run(*addr); err != nil {
		log.Fatalf("roversim failed: %v", err)
	}
}
