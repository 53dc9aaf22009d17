package txrx

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/txrx/pkg/radio"
)

func newTestTrx(t *testing.T, args map[string]string) *Transceiver {
	t.Helper()
	dev, err := radio.NewSimDevice(args)
	if err != nil {
		t.Fatalf("NewSimDevice: %v", err)
	}
	return New(dev)
}

func writeBytes(t *testing.T, dir, name string, n int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, n), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// fileConfig builds a two-TX, two-RX file-backed configuration whose TX
// files exist and match in size.
func fileConfig(t *testing.T, dir string) SessionConfig {
	return SessionConfig{
		TxChannels:  []int{0, 1},
		RxChannels:  []int{0, 1},
		TxFiles:     []string{writeBytes(t, dir, "tx0.bin", 800), writeBytes(t, dir, "tx1.bin", 800)},
		RxFiles:     []string{filepath.Join(dir, "rx0.bin"), filepath.Join(dir, "rx1.bin")},
		TxAnts:      []string{"TX/RX", "TX/RX"},
		RxAnts:      []string{"RX2", "RX2"},
		TxGains:     []float64{10, 10},
		RxGains:     []float64{10, 10},
		TxFreqs:     []float64{915e6, 915e6},
		RxFreqs:     []float64{915e6, 915e6},
		TxRates:     []float64{5e6, 5e6},
		RxRates:     []float64{5e6, 5e6},
		SPB:         2500,
		Delay:       1.0,
		ClockSource: "internal",
	}
}

func wantConfigError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected a configuration error, got nil")
	}
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("got %v (%T), want *ConfigError", err, err)
	}
}

func TestValidateAccepts(t *testing.T) {
	trx := newTestTrx(t, nil)
	cfg := fileConfig(t, t.TempDir())
	if err := trx.Validate(&cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateChannelOutOfRange(t *testing.T) {
	trx := newTestTrx(t, nil) // sim default: 2 TX, 2 RX channels
	dir := t.TempDir()

	cfg := fileConfig(t, dir)
	cfg.TxChannels = []int{0, 5}
	wantConfigError(t, trx.Validate(&cfg))

	cfg = fileConfig(t, dir)
	cfg.RxChannels[1] = -1
	wantConfigError(t, trx.Validate(&cfg))
}

func TestValidateLengthMismatches(t *testing.T) {
	dir := t.TempDir()
	trx := newTestTrx(t, nil)

	mutations := map[string]func(*SessionConfig){
		"tx gains short":  func(c *SessionConfig) { c.TxGains = c.TxGains[:1] },
		"rx ants short":   func(c *SessionConfig) { c.RxAnts = c.RxAnts[:1] },
		"tx freqs long":   func(c *SessionConfig) { c.TxFreqs = append(c.TxFreqs, 915e6) },
		"rx rates empty":  func(c *SessionConfig) { c.RxRates = nil },
		"tx files short":  func(c *SessionConfig) { c.TxFiles = c.TxFiles[:1] },
		"rx files short":  func(c *SessionConfig) { c.RxFiles = c.RxFiles[:1] },
		"spb zero":        func(c *SessionConfig) { c.SPB = 0 },
		"nsamps negative": func(c *SessionConfig) { c.NSamps = -1 },
	}
	for name, mutate := range mutations {
		cfg := fileConfig(t, dir)
		mutate(&cfg)
		if err := trx.Validate(&cfg); err == nil {
			t.Errorf("%s: accepted invalid configuration", name)
		}
	}
}

func TestValidateEmptyFileListsAllowed(t *testing.T) {
	// Buffer-backed sessions carry samples through shared memory and have
	// no file lists at all.
	trx := newTestTrx(t, nil)
	cfg := fileConfig(t, t.TempDir())
	cfg.TxFiles = nil
	cfg.RxFiles = nil
	if err := trx.Validate(&cfg); err != nil {
		t.Fatalf("Validate without files: %v", err)
	}
}

func TestValidateMissingTxFile(t *testing.T) {
	dir := t.TempDir()
	trx := newTestTrx(t, nil)
	cfg := fileConfig(t, dir)
	cfg.TxFiles[1] = filepath.Join(dir, "nope.bin")
	wantConfigError(t, trx.Validate(&cfg))
}

func TestValidateTxFileSizeMismatch(t *testing.T) {
	dir := t.TempDir()
	trx := newTestTrx(t, nil)
	cfg := fileConfig(t, dir)
	cfg.TxFiles[1] = writeBytes(t, dir, "short.bin", 400)
	wantConfigError(t, trx.Validate(&cfg))
}
