// Inspects a result segment: shape and per-channel signal level.
package main

import (
	"flag"
	"log"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/txrx/pkg/shmseg"
	"github.com/txrx/pkg/txrx"
)

func main() {
	shmName := flag.String("shm", "/txrx_rx_shm", "Shared memory name")
	channels := flag.Int("channels", 1, "Channel count of the segment layout")
	head := flag.Int("head", 4, "Samples to print per channel")
	flag.Parse()

	log.Printf("Opening SHM: /dev/shm%s", *shmName)

	seg, err := shmseg.OpenReadOnly(*shmName)
	if err != nil {
		log.Fatalf("Failed to open segment: %v", err)
	}
	defer seg.Close()

	buffs, err := txrx.SplitChannels(seg.Bytes(), *channels)
	if err != nil {
		log.Fatalf("Bad layout: %v", err)
	}

	for ch, buf := range buffs {
		power := make([]float64, len(buf))
		for i, s := range buf {
			re, im := float64(real(s)), float64(imag(s))
			power[i] = re*re + im*im
		}
		rms := 0.0
		if len(power) > 0 {
			rms = math.Sqrt(floats.Sum(power) / float64(len(power)))
		}
		n := *head
		if n > len(buf) {
			n = len(buf)
		}
		log.Printf("ch %d: %d samples | RMS %.6f | head %v", ch, len(buf), rms, buf[:n])
	}
}
