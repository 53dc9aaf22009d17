package txrx

// SessionConfig is the one canonical description of a TX/RX session. It is
// built once (per EXECUTE command or per CLI invocation), validated, and
// then read-only for the rest of the session. JSON field names match the
// control-plane wire format.
//
// Per-channel slices are positional: entry i of every TX slice describes
// TX channel TxChannels[i], and likewise for RX. The file lists are only
// used by file-backed sessions and may be empty in buffer-backed ones.
type SessionConfig struct {
	TxChannels []int `json:"tx_channels"`
	RxChannels []int `json:"rx_channels"`

	TxFiles []string `json:"tx_files,omitempty"`
	RxFiles []string `json:"rx_files,omitempty"`

	TxAnts  []string  `json:"tx_ants"`
	RxAnts  []string  `json:"rx_ants"`
	TxGains []float64 `json:"tx_gains"`
	RxGains []float64 `json:"rx_gains"`
	TxFreqs []float64 `json:"tx_freqs"`
	RxFreqs []float64 `json:"rx_freqs"`
	TxRates []float64 `json:"tx_rates"`
	RxRates []float64 `json:"rx_rates"`

	// SPB is the samples-per-buffer chunk size for every streaming call.
	SPB int `json:"spb"`

	// Delay is the lead time in seconds between configuration finishing
	// and the shared start instant.
	Delay float64 `json:"delay"`

	// NSamps is the RX target sample count per channel. Zero means the
	// target is derived from the TX source length once it is known.
	NSamps int `json:"nsamps"`

	ClockSource string `json:"clock_source"`
	TimeSource  string `json:"time_source"`
}
