// Generates fc32 tone files for use as TX input. Each output file gets
// the same tone with a per-channel phase offset, so multi-channel inputs
// stay sample-count aligned by construction.
package main

import (
	"flag"
	"log"
	"math"
	"strings"

	"gonum.org/v1/gonum/dsp/window"

	"github.com/txrx/pkg/txrx"
)

func main() {
	out := flag.String("o", "tx_data_fc32.bin", "Output files (comma separated, one per channel)")
	nsamps := flag.Int("n", 100000, "Samples per file")
	rate := flag.Float64("rate", 5e6, "Sample rate (Hz)")
	tone := flag.Float64("tone", 100e3, "Tone frequency (Hz)")
	amp := flag.Float64("amp", 0.7, "Amplitude (full scale 1.0)")
	hann := flag.Bool("hann", false, "Shape the burst with a Hann envelope")
	flag.Parse()

	files := strings.Split(*out, ",")

	envelope := make([]float64, *nsamps)
	for i := range envelope {
		envelope[i] = 1.0
	}
	if *hann {
		window.Hann(envelope)
	}

	phaseStep := 2.0 * math.Pi * *tone / *rate
	buffs := make([][]complex64, len(files))
	for ch := range files {
		chOffset := float64(ch) * (math.Pi / 8)
		buf := make([]complex64, *nsamps)
		for i := range buf {
			a := *amp * envelope[i]
			phase := phaseStep*float64(i) + chOffset
			buf[i] = complex(float32(a*math.Cos(phase)), float32(a*math.Sin(phase)))
		}
		buffs[ch] = buf
	}

	if err := txrx.WriteBufferToFile(files, buffs); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %d samples to %d file(s)", *nsamps, len(files))
}
