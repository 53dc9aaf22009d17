package txrx

import (
	"fmt"
	"time"
)

// ConfigError reports an internally inconsistent session configuration.
// It is always raised before any hardware state is touched.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + e.Reason
}

// TimingError reports that a required clock edge never arrived.
type TimingError struct {
	Op      string
	Timeout time.Duration
}

func (e *TimingError) Error() string {
	return fmt.Sprintf("timing: no %s within %v", e.Op, e.Timeout)
}

// LockError reports a lock sensor that failed to assert within its bound.
type LockError struct {
	Sensor string
	Where  string
}

func (e *LockError) Error() string {
	return fmt.Sprintf("sensor %q failed to lock on %s", e.Sensor, e.Where)
}

// StreamError is a hardware-reported fatal condition during send or recv.
// Timeouts and overflows are transient and never surface as StreamError.
type StreamError struct {
	Op   string
	Desc string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s stream error: %s", e.Op, e.Desc)
}

// ProtocolError reports a malformed control-plane payload, e.g. a shared
// segment whose size does not divide into the configured channel layout.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol: " + e.Reason
}
