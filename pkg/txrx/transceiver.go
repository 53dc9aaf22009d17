package txrx

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/txrx/pkg/radio"
)

const (
	defaultPPSTimeout   = 5 * time.Second
	defaultLockTimeout  = 2 * time.Second
	defaultPollInterval = 100 * time.Millisecond

	// Lead time for the scheduled tune command. Large enough that the
	// command reaches every board before the deadline, small enough not
	// to delay the session noticeably.
	tuneLead = 300 * time.Millisecond
)

var (
	cfgLog = logrus.WithField("module", "CONFIG")
	sysLog = logrus.WithField("module", "SYSTEM")
)

// Transceiver coordinates one radio device through a session: validation,
// synchronized configuration, and the TX/RX pipelines. The start instant
// it computes is the single synchronization primitive both pipelines
// schedule against.
type Transceiver struct {
	dev   radio.Device
	cfg   SessionConfig
	start radio.TimeSpec

	// Poll bounds, overridable before Configure (tests shorten them).
	PPSTimeout   time.Duration
	LockTimeout  time.Duration
	PollInterval time.Duration
}

func New(dev radio.Device) *Transceiver {
	return &Transceiver{
		dev:          dev,
		PPSTimeout:   defaultPPSTimeout,
		LockTimeout:  defaultLockTimeout,
		PollInterval: defaultPollInterval,
	}
}

func (t *Transceiver) Device() radio.Device      { return t.dev }
func (t *Transceiver) Config() *SessionConfig    { return &t.cfg }
func (t *Transceiver) StartTime() radio.TimeSpec { return t.start }

// ResolveNSamps returns the RX target sample count. A configured zero
// means "derive from the TX source": receive as many samples per channel
// as will be transmitted.
func (t *Transceiver) ResolveNSamps(txSamplesPerChannel int) int {
	if t.cfg.NSamps > 0 {
		return t.cfg.NSamps
	}
	return txSamplesPerChannel
}

// Configure validates cfg, applies it to the hardware, aligns the device
// clock on a PPS edge, issues one scheduled tune across all channels and
// boards, verifies the lock sensors, and returns the shared start instant
// (device time now plus the configured delay).
func (t *Transceiver) Configure(ctx context.Context, cfg SessionConfig) (radio.TimeSpec, error) {
	if err := t.Validate(&cfg); err != nil {
		return 0, err
	}
	t.cfg = cfg

	cfgLog.Info("====== Configuring Tx ======")
	for i, ch := range cfg.TxChannels {
		cfgLog.Infof("====== Tx Channel %d", ch)
		if err := t.dev.SetTxChannel(ch, cfg.TxGains[i], cfg.TxAnts[i], cfg.TxRates[i]); err != nil {
			return 0, errors.Wrapf(err, "configure TX channel %d", ch)
		}
		cfgLog.Infof("Gain: %.2f dB", cfg.TxGains[i])
		cfgLog.Infof("Ant : %s", cfg.TxAnts[i])
		cfgLog.Infof("Rate: %.3f Msps", cfg.TxRates[i]/1e6)
	}
	cfgLog.Info("====== Configuring Rx ======")
	for i, ch := range cfg.RxChannels {
		cfgLog.Infof("====== Rx Channel %d", ch)
		if err := t.dev.SetRxChannel(ch, cfg.RxGains[i], cfg.RxAnts[i], cfg.RxRates[i]); err != nil {
			return 0, errors.Wrapf(err, "configure RX channel %d", ch)
		}
		cfgLog.Infof("Gain: %.1f dB", cfg.RxGains[i])
		cfgLog.Infof("Ant : %s", cfg.RxAnts[i])
		cfgLog.Infof("Rate: %.3f Msps", cfg.RxRates[i]/1e6)
	}

	cfgLog.Infof("Setting clock reference to: %s", cfg.ClockSource)
	if err := t.dev.SetClockSource(cfg.ClockSource); err != nil {
		return 0, errors.Wrap(err, "set clock source")
	}
	timeSource := cfg.TimeSource
	if timeSource == "" {
		if cfg.ClockSource == "external" || cfg.ClockSource == "gpsdo" {
			timeSource = "external"
		} else {
			timeSource = "internal"
		}
	}
	cfgLog.Infof("Setting time reference to: %s", timeSource)
	if err := t.dev.SetTimeSource(timeSource); err != nil {
		return 0, errors.Wrap(err, "set time source")
	}

	// Align the device clock: observe a PPS edge, zero the clock on the
	// next one, and wait until that edge has actually passed.
	cfgLog.Info("Waiting for PPS sync and setting time...")
	if err := t.waitPPSEdge(ctx); err != nil {
		return 0, err
	}
	if err := t.dev.SetTimeNextPPS(0); err != nil {
		return 0, errors.Wrap(err, "set time on next PPS")
	}
	if err := t.waitPPSEdge(ctx); err != nil {
		return 0, err
	}
	cfgLog.Infof("Current device time: %.6f seconds", t.dev.TimeNow().Seconds())

	// One scheduled command retunes every channel on every board at the
	// same device instant, avoiding per-call tune jitter between boards.
	cfgLog.Info("Start sync tune request for Tx and Rx")
	tuneAt := t.dev.TimeNow().Add(tuneLead)
	txFreqs := make(map[int]float64, len(cfg.TxChannels))
	for i, ch := range cfg.TxChannels {
		txFreqs[ch] = cfg.TxFreqs[i]
	}
	rxFreqs := make(map[int]float64, len(cfg.RxChannels))
	for i, ch := range cfg.RxChannels {
		rxFreqs[ch] = cfg.RxFreqs[i]
	}
	if err := t.dev.TuneAt(tuneAt, txFreqs, rxFreqs); err != nil {
		return 0, errors.Wrap(err, "scheduled tune")
	}
	for i, ch := range cfg.TxChannels {
		cfgLog.Infof("Tx channel %d freq set to %.3f MHz", ch, cfg.TxFreqs[i]/1e6)
	}
	for i, ch := range cfg.RxChannels {
		cfgLog.Infof("Rx channel %d freq set to %.3f MHz", ch, cfg.RxFreqs[i]/1e6)
	}

	if err := t.checkLocks(ctx); err != nil {
		return 0, err
	}

	t.start = t.dev.TimeNow().Add(time.Duration(cfg.Delay * float64(time.Second)))
	sysLog.Infof("Start time: %.3f seconds in the future (absolute time: %.6f)",
		cfg.Delay, t.start.Seconds())
	return t.start, nil
}

// waitPPSEdge polls the last-PPS sensor until it advances, bounded by
// PPSTimeout. A device with no reference edge connected fails here with a
// TimingError rather than hanging the session.
func (t *Transceiver) waitPPSEdge(ctx context.Context) error {
	last := t.dev.TimeLastPPS()
	op := func() error {
		if t.dev.TimeLastPPS() != last {
			return nil
		}
		return errors.New("no edge yet")
	}
	if err := backoff.Retry(op, t.pollBackOff(ctx, t.PPSTimeout)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TimingError{Op: "PPS edge", Timeout: t.PPSTimeout}
	}
	return nil
}

// checkLocks verifies every lock sensor the session depends on: lo_locked
// per active channel, plus ref_locked or mimo_locked per board depending
// on the clock source. Absent sensors are skipped.
func (t *Transceiver) checkLocks(ctx context.Context) error {
	sysLog.Info("Checking LO lock status...")
	for _, ch := range t.cfg.TxChannels {
		ch := ch
		if err := t.waitLocked(ctx, "lo_locked", fmt.Sprintf("TX channel %d", ch), func() (radio.SensorValue, bool) {
			return t.dev.TxSensor(ch, "lo_locked")
		}); err != nil {
			return err
		}
	}
	for _, ch := range t.cfg.RxChannels {
		ch := ch
		if err := t.waitLocked(ctx, "lo_locked", fmt.Sprintf("RX channel %d", ch), func() (radio.SensorValue, bool) {
			return t.dev.RxSensor(ch, "lo_locked")
		}); err != nil {
			return err
		}
	}

	var boardSensor string
	switch t.cfg.ClockSource {
	case "external":
		boardSensor = "ref_locked"
	case "mimo":
		boardSensor = "mimo_locked"
	default:
		return nil
	}
	sysLog.Info("Checking REF lock status...")
	for board := 0; board < t.dev.NumMboards(); board++ {
		board := board
		if err := t.waitLocked(ctx, boardSensor, fmt.Sprintf("mboard %d", board), func() (radio.SensorValue, bool) {
			return t.dev.MboardSensor(board, boardSensor)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transceiver) waitLocked(ctx context.Context, name, where string, get func() (radio.SensorValue, bool)) error {
	if _, ok := get(); !ok {
		sysLog.Warnf("Sensor %q not available on %s", name, where)
		return nil
	}
	op := func() error {
		if v, _ := get(); v.Bool {
			return nil
		}
		return errors.New("unlocked")
	}
	if err := backoff.Retry(op, t.pollBackOff(ctx, t.LockTimeout)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &LockError{Sensor: name, Where: where}
	}
	sysLog.Infof("Checking %s: %s locked", where, name)
	return nil
}

func (t *Transceiver) pollBackOff(ctx context.Context, bound time.Duration) backoff.BackOffContext {
	retries := uint64(bound / t.PollInterval)
	if retries == 0 {
		retries = 1
	}
	return backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(t.PollInterval), retries), ctx)
}
