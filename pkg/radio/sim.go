package radio

import (
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"
)

// Sim driver: a software stand-in for real hardware. The device clock runs
// off the host monotonic clock with an adjustable offset, PPS edges tick on
// a configurable period, TX is captured into memory, and RX synthesizes a
// DDS tone honoring timed stream starts.
//
// Device args:
//
//	driver=sim
//	tx_channels=N     number of TX channels (default 2)
//	rx_channels=N     number of RX channels (default 2)
//	pps_period=DUR    PPS edge period (default 100ms), or pps=off to
//	                  simulate a missing reference edge
//	lock=fail         lock sensors never report locked
//	tx_max_send=N     cap samples consumed per Send call (exercises the
//	                  partial-send resume path)
func init() {
	Register("sim", func(args map[string]string) (Device, error) {
		return NewSimDevice(args)
	})
}

// SimDevice implements Device. It is exported so tests can reach the
// captured TX samples and the applied channel settings.
type SimDevice struct {
	mu sync.Mutex

	epoch  time.Time
	offset float64 // device seconds at epoch

	ppsPeriod time.Duration // 0 means no PPS edges ever
	lockFail  bool
	numTx     int
	numRx     int
	maxSend   int

	clockSource string
	timeSource  string
	txGain      map[int]float64
	rxGain      map[int]float64
	txAnt       map[int]string
	rxAnt       map[int]string
	txFreq      map[int]float64
	rxFreq      map[int]float64
	tunedAt     TimeSpec
	tuned       bool

	captured    [][]complex64
	burstClosed bool
}

func NewSimDevice(args map[string]string) (*SimDevice, error) {
	d := &SimDevice{
		epoch:     time.Now(),
		ppsPeriod: 100 * time.Millisecond,
		numTx:     2,
		numRx:     2,
		txGain:    make(map[int]float64),
		rxGain:    make(map[int]float64),
		txAnt:     make(map[int]string),
		rxAnt:     make(map[int]string),
		txFreq:    make(map[int]float64),
		rxFreq:    make(map[int]float64),
	}

	var err error
	if v, ok := args["tx_channels"]; ok {
		if d.numTx, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("sim: bad tx_channels %q", v)
		}
	}
	if v, ok := args["rx_channels"]; ok {
		if d.numRx, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("sim: bad rx_channels %q", v)
		}
	}
	if v, ok := args["pps_period"]; ok {
		if d.ppsPeriod, err = time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("sim: bad pps_period %q", v)
		}
	}
	if args["pps"] == "off" {
		d.ppsPeriod = 0
	}
	if args["lock"] == "fail" {
		d.lockFail = true
	}
	if v, ok := args["tx_max_send"]; ok {
		if d.maxSend, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("sim: bad tx_max_send %q", v)
		}
	}
	return d, nil
}

func (d *SimDevice) NumTxChannels() int { return d.numTx }
func (d *SimDevice) NumRxChannels() int { return d.numRx }
func (d *SimDevice) NumMboards() int    { return 1 }

func (d *SimDevice) SetTxChannel(ch int, gain float64, antenna string, rate float64) error {
	if ch >= d.numTx {
		return fmt.Errorf("sim: TX channel %d out of range", ch)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.txGain[ch] = gain
	d.txAnt[ch] = antenna
	return nil
}

func (d *SimDevice) SetRxChannel(ch int, gain float64, antenna string, rate float64) error {
	if ch >= d.numRx {
		return fmt.Errorf("sim: RX channel %d out of range", ch)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rxGain[ch] = gain
	d.rxAnt[ch] = antenna
	return nil
}

func (d *SimDevice) SetClockSource(src string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clockSource = src
	return nil
}

func (d *SimDevice) SetTimeSource(src string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timeSource = src
	return nil
}

func (d *SimDevice) elapsed() float64 { return time.Since(d.epoch).Seconds() }

func (d *SimDevice) TimeNow() TimeSpec {
	d.mu.Lock()
	defer d.mu.Unlock()
	return TimeSpec(d.offset + d.elapsed())
}

func (d *SimDevice) TimeLastPPS() TimeSpec {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ppsPeriod == 0 {
		// No reference connected: the edge never advances.
		return 0
	}
	period := d.ppsPeriod.Seconds()
	last := math.Floor(d.elapsed()/period) * period
	return TimeSpec(d.offset + last)
}

func (d *SimDevice) SetTimeNextPPS(t TimeSpec) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ppsPeriod == 0 {
		return fmt.Errorf("sim: no PPS reference")
	}
	period := d.ppsPeriod.Seconds()
	next := (math.Floor(d.elapsed()/period) + 1) * period
	d.offset = t.Seconds() - next
	return nil
}

func (d *SimDevice) TuneAt(at TimeSpec, txFreqs, rxFreqs map[int]float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for ch, f := range txFreqs {
		if ch >= d.numTx {
			return fmt.Errorf("sim: TX channel %d out of range", ch)
		}
		d.txFreq[ch] = f
	}
	for ch, f := range rxFreqs {
		if ch >= d.numRx {
			return fmt.Errorf("sim: RX channel %d out of range", ch)
		}
		d.rxFreq[ch] = f
	}
	d.tunedAt = at
	d.tuned = true
	return nil
}

// locked reports whether the LOs have settled: true once the scheduled
// tune time has passed, unless the device was built with lock=fail.
func (d *SimDevice) locked() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lockFail {
		return false
	}
	if !d.tuned {
		return false
	}
	return d.offset+d.elapsed() >= d.tunedAt.Seconds()
}

func (d *SimDevice) sensor() (SensorValue, bool) {
	if d.locked() {
		return SensorValue{Bool: true, Value: "locked"}, true
	}
	return SensorValue{Bool: false, Value: "unlocked"}, true
}

func (d *SimDevice) TxSensor(ch int, name string) (SensorValue, bool) {
	if name != "lo_locked" || ch >= d.numTx {
		return SensorValue{}, false
	}
	return d.sensor()
}

func (d *SimDevice) RxSensor(ch int, name string) (SensorValue, bool) {
	if name != "lo_locked" || ch >= d.numRx {
		return SensorValue{}, false
	}
	return d.sensor()
}

func (d *SimDevice) MboardSensor(board int, name string) (SensorValue, bool) {
	if board >= 1 {
		return SensorValue{}, false
	}
	switch name {
	case "ref_locked", "mimo_locked":
		if d.lockFail {
			return SensorValue{Bool: false, Value: "unlocked"}, true
		}
		return SensorValue{Bool: true, Value: "locked"}, true
	}
	return SensorValue{}, false
}

// Captured returns the samples recorded by the last TX burst, one slice
// per stream channel.
func (d *SimDevice) Captured() [][]complex64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.captured
}

// BurstClosed reports whether an end-of-burst marker has been seen.
func (d *SimDevice) BurstClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.burstClosed
}

func (d *SimDevice) OpenTxStream(channels []int) (TxStream, error) {
	for _, ch := range channels {
		if ch >= d.numTx {
			return nil, fmt.Errorf("sim: TX channel %d out of range", ch)
		}
	}
	d.mu.Lock()
	d.captured = make([][]complex64, len(channels))
	d.burstClosed = false
	d.mu.Unlock()
	return &simTxStream{dev: d, channels: channels}, nil
}

func (d *SimDevice) OpenRxStream(channels []int) (RxStream, error) {
	for _, ch := range channels {
		if ch >= d.numRx {
			return nil, fmt.Errorf("sim: RX channel %d out of range", ch)
		}
	}
	return &simRxStream{dev: d, channels: channels}, nil
}

func (d *SimDevice) Close() error { return nil }

type simTxStream struct {
	dev      *SimDevice
	channels []int
}

func (s *simTxStream) NumChannels() int { return len(s.channels) }

func (s *simTxStream) Send(buffs [][]complex64, nsamps int, md TxMetadata, timeout time.Duration) (int, error) {
	d := s.dev
	d.mu.Lock()
	defer d.mu.Unlock()

	if md.EndOfBurst && nsamps == 0 {
		d.burstClosed = true
		return 0, nil
	}
	n := nsamps
	if d.maxSend > 0 && n > d.maxSend {
		n = d.maxSend
	}
	for i := range s.channels {
		if i < len(buffs) {
			d.captured[i] = append(d.captured[i], buffs[i][:n]...)
		}
	}
	if md.EndOfBurst {
		d.burstClosed = true
	}
	return n, nil
}

func (s *simTxStream) Close() error { return nil }

type simRxStream struct {
	dev      *SimDevice
	channels []int

	mu        sync.Mutex
	issued    bool
	remaining int
	start     TimeSpec
	streamNow bool
	phaseAcc  uint32
}

func (s *simRxStream) NumChannels() int { return len(s.channels) }

func (s *simRxStream) Issue(cmd StreamCmd) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued = true
	s.remaining = cmd.NumSamps
	s.start = cmd.TimeSpec
	s.streamNow = cmd.StreamNow
	return nil
}

func (s *simRxStream) Recv(buffs [][]complex64, nsamps int, timeout time.Duration) (int, RxMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.issued {
		return 0, RxMetadata{Code: RxErrorOther, Desc: "no stream command issued"}
	}

	// Block until the scheduled start, bounded by the caller's timeout.
	if !s.streamNow {
		wait := time.Duration((s.start - s.dev.TimeNow()).Seconds() * float64(time.Second))
		if wait > 0 {
			if wait > timeout {
				time.Sleep(timeout)
				return 0, RxMetadata{Code: RxErrorTimeout, Desc: "timed out before stream start"}
			}
			time.Sleep(wait)
		}
	}

	if s.remaining == 0 {
		return 0, RxMetadata{Code: RxErrorTimeout, Desc: "stream exhausted"}
	}
	n := nsamps
	if n > s.remaining {
		n = s.remaining
	}

	// DDS tone, integer phase accumulator: the full circle maps to the
	// uint32 range, channel c is offset by c*pi/8.
	const tuningWord = uint32(1 << 22)
	for i := 0; i < n; i++ {
		for c := range s.channels {
			phase := s.phaseAcc + uint32(c)*(1<<28)
			rads := float64(phase) * (2.0 * math.Pi / 4294967296.0)
			if c < len(buffs) {
				buffs[c][i] = complex(float32(0.5*math.Cos(rads)), float32(0.5*math.Sin(rads)))
			}
		}
		s.phaseAcc += tuningWord
	}
	s.remaining -= n
	return n, RxMetadata{Code: RxErrorNone}
}

func (s *simRxStream) Close() error { return nil }
