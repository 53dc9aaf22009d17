package txrx

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

var checkLog = logrus.WithField("module", "CHECK")

// Validate checks a session configuration for internal consistency against
// the device's reported channel counts. It has no side effects beyond
// diagnostics and must be re-run whenever the configuration changes. The
// first violated invariant aborts the check.
func (t *Transceiver) Validate(cfg *SessionConfig) error {
	checkLog.Infof("TX channels: %v", cfg.TxChannels)
	checkLog.Infof("RX channels: %v", cfg.RxChannels)

	for _, ch := range cfg.TxChannels {
		if ch < 0 || ch >= t.dev.NumTxChannels() {
			return t.fail("TX channel %d is not supported by the device", ch)
		}
	}
	for _, ch := range cfg.RxChannels {
		if ch < 0 || ch >= t.dev.NumRxChannels() {
			return t.fail("RX channel %d is not supported by the device", ch)
		}
	}

	if err := checkLengths("TX", len(cfg.TxChannels), cfg.TxFiles, cfg.TxAnts, cfg.TxGains, cfg.TxFreqs, cfg.TxRates); err != nil {
		checkLog.Error(err)
		return err
	}
	if err := checkLengths("RX", len(cfg.RxChannels), cfg.RxFiles, cfg.RxAnts, cfg.RxGains, cfg.RxFreqs, cfg.RxRates); err != nil {
		checkLog.Error(err)
		return err
	}

	if cfg.SPB <= 0 {
		return t.fail("samples per buffer must be positive, got %d", cfg.SPB)
	}
	if cfg.NSamps < 0 {
		return t.fail("nsamps must be non-negative, got %d", cfg.NSamps)
	}

	// Multi-channel TX sources must be sample-count aligned, so every
	// input file has to exist and carry exactly the same byte size.
	var lastSize int64 = -1
	for _, name := range cfg.TxFiles {
		fi, err := os.Stat(name)
		if err != nil {
			return t.fail("TX input file %s does not exist", name)
		}
		if lastSize >= 0 && fi.Size() != lastSize {
			return t.fail("TX file sizes mismatch: %s has %d bytes, expected %d", name, fi.Size(), lastSize)
		}
		lastSize = fi.Size()
	}

	checkLog.Info("The input parameters appear to be correct.")
	return nil
}

func (t *Transceiver) fail(format string, args ...interface{}) error {
	err := &ConfigError{Reason: fmt.Sprintf(format, args...)}
	checkLog.Error(err)
	return err
}

// checkLengths enforces the pairwise equality of the per-channel lists.
// The file list only participates when present, since buffer-backed
// sessions carry their samples through shared memory instead.
func checkLengths(role string, channels int, files, ants []string, gains, freqs, rates []float64) error {
	if len(ants) != channels || len(gains) != channels || len(freqs) != channels || len(rates) != channels {
		return &ConfigError{Reason: fmt.Sprintf(
			"%s configurations mismatch: %d channels, %d ants, %d gains, %d freqs, %d rates",
			role, channels, len(ants), len(gains), len(freqs), len(rates))}
	}
	if len(files) > 0 && len(files) != channels {
		return &ConfigError{Reason: fmt.Sprintf(
			"%s configurations mismatch: %d channels but %d files", role, channels, len(files))}
	}
	return nil
}
