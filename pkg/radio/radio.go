// Package radio defines the hardware abstraction the txrx core drives:
// a multi-channel SDR device with a shared hardware clock, timed tuning,
// and streaming TX/RX interfaces. Concrete drivers register themselves by
// name and are selected through the "driver=" token of the device args
// string, so the core never links against a particular vendor stack.
package radio

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// TimeSpec is an absolute timestamp on the device clock, in seconds.
// The device clock is independent of the host wall clock; it only becomes
// meaningful after PPS alignment.
type TimeSpec float64

func (t TimeSpec) Seconds() float64 { return float64(t) }

func (t TimeSpec) Add(d time.Duration) TimeSpec {
	return t + TimeSpec(d.Seconds())
}

// SensorValue is a single device sensor reading, e.g. lo_locked or ref_locked.
type SensorValue struct {
	Bool  bool
	Value string
}

// TxMetadata accompanies every Send call. The first packet of a burst
// carries the scheduled start time; the terminating packet sets EndOfBurst
// with zero samples.
type TxMetadata struct {
	StartOfBurst bool
	EndOfBurst   bool
	HasTimeSpec  bool
	TimeSpec     TimeSpec
}

// RxErrorCode classifies the outcome of a single Recv call.
type RxErrorCode int

const (
	RxErrorNone RxErrorCode = iota
	RxErrorTimeout
	RxErrorOverflow
	RxErrorLateCommand
	RxErrorBrokenChain
	RxErrorOther
)

func (c RxErrorCode) String() string {
	switch c {
	case RxErrorNone:
		return "none"
	case RxErrorTimeout:
		return "timeout"
	case RxErrorOverflow:
		return "overflow"
	case RxErrorLateCommand:
		return "late command"
	case RxErrorBrokenChain:
		return "broken chain"
	default:
		return "other"
	}
}

// RxMetadata is returned by every Recv call alongside the sample count.
type RxMetadata struct {
	Code RxErrorCode
	Desc string
}

// StreamCmd starts a reception. StreamNow false with a TimeSpec schedules
// the first sample at an absolute device time.
type StreamCmd struct {
	NumSamps  int
	StreamNow bool
	TimeSpec  TimeSpec
}

// TxStream is the transmit side of the streaming interface. Send may
// consume fewer samples than offered; the caller resumes at the unsent
// offset. Buffers are one slice per channel, all the same length.
type TxStream interface {
	NumChannels() int
	Send(buffs [][]complex64, nsamps int, md TxMetadata, timeout time.Duration) (int, error)
	Close() error
}

// RxStream is the receive side. Recv fills at most nsamps samples into
// each channel buffer and reports transient conditions through RxMetadata
// rather than errors.
type RxStream interface {
	NumChannels() int
	Issue(cmd StreamCmd) error
	Recv(buffs [][]complex64, nsamps int, timeout time.Duration) (int, RxMetadata)
	Close() error
}

// Device is one physical radio (possibly multiple boards behind one clock).
type Device interface {
	NumTxChannels() int
	NumRxChannels() int
	NumMboards() int

	SetTxChannel(ch int, gain float64, antenna string, rate float64) error
	SetRxChannel(ch int, gain float64, antenna string, rate float64) error

	SetClockSource(src string) error
	SetTimeSource(src string) error

	TimeNow() TimeSpec
	TimeLastPPS() TimeSpec
	SetTimeNextPPS(t TimeSpec) error

	// TuneAt retunes all listed channels in one command scheduled at an
	// absolute device time, so every board retunes on the same clock edge.
	TuneAt(at TimeSpec, txFreqs, rxFreqs map[int]float64) error

	// Sensor accessors report ok=false when the named sensor does not
	// exist on this device; callers skip absent sensors.
	TxSensor(ch int, name string) (SensorValue, bool)
	RxSensor(ch int, name string) (SensorValue, bool)
	MboardSensor(board int, name string) (SensorValue, bool)

	OpenTxStream(channels []int) (TxStream, error)
	OpenRxStream(channels []int) (RxStream, error)

	Close() error
}

// Factory builds a device from parsed device args.
type Factory func(args map[string]string) (Device, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Factory)
)

// Register makes a driver available to MakeDevice. It is intended to be
// called from driver init functions.
func Register(name string, f Factory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if _, dup := drivers[name]; dup {
		panic("radio: Register called twice for driver " + name)
	}
	drivers[name] = f
}

// ParseArgs splits a device args string like "driver=sim,pps_period=50ms"
// into a key/value map. Bare tokens become keys with empty values.
func ParseArgs(s string) map[string]string {
	args := make(map[string]string)
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if k, v, ok := strings.Cut(tok, "="); ok {
			args[strings.TrimSpace(k)] = strings.TrimSpace(v)
		} else {
			args[tok] = ""
		}
	}
	return args
}

// MakeDevice opens the device described by the args string. The driver is
// chosen by the "driver" key.
func MakeDevice(argsStr string) (Device, error) {
	args := ParseArgs(argsStr)
	name := args["driver"]
	if name == "" {
		return nil, fmt.Errorf("radio: device args %q missing driver= token (known drivers: %s)",
			argsStr, strings.Join(driverNames(), ", "))
	}

	driversMu.RLock()
	f, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("radio: unknown driver %q (known drivers: %s)",
			name, strings.Join(driverNames(), ", "))
	}
	return f(args)
}

func driverNames() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
