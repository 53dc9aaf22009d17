package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/txrx/pkg/txrx"
)

// intListFlag parses comma-separated channel lists like "0,1".
type intListFlag []int

func (l *intListFlag) String() string {
	parts := make([]string, len(*l))
	for i, v := range *l {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func (l *intListFlag) Set(value string) error {
	var out []int
	for _, tok := range strings.Split(value, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(tok))
		if err != nil {
			return fmt.Errorf("invalid integer %q", tok)
		}
		out = append(out, v)
	}
	*l = out
	return nil
}

// floatListFlag parses comma-separated values like "915e6,921e6".
type floatListFlag []float64

func (l *floatListFlag) String() string {
	parts := make([]string, len(*l))
	for i, v := range *l {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

func (l *floatListFlag) Set(value string) error {
	var out []float64
	for _, tok := range strings.Split(value, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(tok), 64)
		if err != nil {
			return fmt.Errorf("invalid number %q", tok)
		}
		out = append(out, v)
	}
	*l = out
	return nil
}

// stringListFlag parses comma-separated names like "TX/RX,TX/RX".
type stringListFlag []string

func (l *stringListFlag) String() string { return strings.Join(*l, ",") }

func (l *stringListFlag) Set(value string) error {
	var out []string
	for _, tok := range strings.Split(value, ",") {
		out = append(out, strings.TrimSpace(tok))
	}
	*l = out
	return nil
}

// replicate expands a single value to n entries so "10" can stand in for
// one gain per channel. Lists that already have several entries are left
// for the validator to judge.
func replicateFloats(v []float64, n int) []float64 {
	if len(v) == 1 && n > 1 {
		out := make([]float64, n)
		for i := range out {
			out[i] = v[0]
		}
		return out
	}
	return v
}

func replicateStrings(v []string, n int) []string {
	if len(v) == 1 && n > 1 {
		out := make([]string, n)
		for i := range out {
			out[i] = v[0]
		}
		return out
	}
	return v
}

func main() {
	// Common flags
	args := flag.String("args", "driver=sim", "Device args (driver=..., comma-separated key=val)")

	// Server-specific flags
	isServer := flag.Bool("server", false, "Run in control-plane server mode")
	port := flag.Int("p", 5555, "Port to listen on (server mode only)")

	// Session flags (CLI mode)
	txFiles := stringListFlag{"tx_data_fc32.bin"}
	rxFiles := stringListFlag{"rx_data_fc32.bin"}
	txChannels := intListFlag{0}
	rxChannels := intListFlag{1}
	txAnts := stringListFlag{"TX/RX"}
	rxAnts := stringListFlag{"RX2"}
	txGains := floatListFlag{10.0}
	rxGains := floatListFlag{10.0}
	txFreqs := floatListFlag{915e6}
	rxFreqs := floatListFlag{915e6}
	flag.Var(&txFiles, "tx-files", "TX data files (fc32 format, comma separated)")
	flag.Var(&rxFiles, "rx-files", "RX data files (fc32 format, comma separated)")
	flag.Var(&txChannels, "tx-channels", "TX channels (comma separated)")
	flag.Var(&rxChannels, "rx-channels", "RX channels (comma separated)")
	flag.Var(&txAnts, "tx-ants", "TX antenna selection per channel")
	flag.Var(&rxAnts, "rx-ants", "RX antenna selection per channel")
	flag.Var(&txGains, "tx-gains", "TX gains (dB) per channel")
	flag.Var(&rxGains, "rx-gains", "RX gains (dB) per channel")
	flag.Var(&txFreqs, "tx-freqs", "TX center frequencies (Hz) per channel")
	flag.Var(&rxFreqs, "rx-freqs", "RX center frequencies (Hz) per channel")
	rate := flag.Float64("rate", 5e6, "Sample rate (Hz), all channels")
	freq := flag.Float64("freq", 0, "Center frequency (Hz) for ALL TX and RX channels; overrides -tx-freqs/-rx-freqs")
	spb := flag.Int("spb", 2500, "Samples per buffer")
	delay := flag.Float64("delay", 1.0, "Delay before start (seconds)")
	nsamps := flag.Int("nsamps", 0, "Samples to receive per channel; 0 derives the target from the TX source")
	ref := flag.String("ref", "internal", "Clock reference: internal, external, gpsdo, mimo")
	parquetOut := flag.String("parquet", "", "Also export the RX capture to this parquet file (CLI mode only)")
	verbose := flag.Bool("v", false, "Enable debug logging")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "  CLI Mode:    txrx [options]")
		fmt.Fprintln(os.Stderr, "  Server Mode: txrx --server [options]")
		fmt.Fprintln(os.Stderr, "\nOptions:")
		flag.PrintDefaults()
	}
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *isServer {
		if err := runServer(ctx, *port, *args); err != nil {
			logrus.Fatal(err)
		}
		return
	}

	if *freq > 0 {
		txFreqs = replicateFloats([]float64{*freq}, len(txChannels))
		rxFreqs = replicateFloats([]float64{*freq}, len(rxChannels))
	}

	cfg := txrx.SessionConfig{
		TxChannels:  txChannels,
		RxChannels:  rxChannels,
		TxFiles:     txFiles,
		RxFiles:     rxFiles,
		TxAnts:      replicateStrings(txAnts, len(txChannels)),
		RxAnts:      replicateStrings(rxAnts, len(rxChannels)),
		TxGains:     replicateFloats(txGains, len(txChannels)),
		RxGains:     replicateFloats(rxGains, len(rxChannels)),
		TxFreqs:     replicateFloats(txFreqs, len(txChannels)),
		RxFreqs:     replicateFloats(rxFreqs, len(rxChannels)),
		TxRates:     replicateFloats([]float64{*rate}, len(txChannels)),
		RxRates:     replicateFloats([]float64{*rate}, len(rxChannels)),
		SPB:         *spb,
		Delay:       *delay,
		NSamps:      *nsamps,
		ClockSource: *ref,
	}

	if err := runCLI(ctx, *args, cfg, *parquetOut); err != nil {
		logrus.Fatal(err)
	}
}
