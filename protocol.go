package main

import "github.com/txrx/pkg/txrx"

// Control-plane wire protocol: one JSON request per websocket message,
// one JSON reply per message, strictly request/reply.
const (
	cmdExecute = "EXECUTE"
	cmdRelease = "RELEASE"

	statusSuccess  = "SUCCESS"
	statusFailed   = "FAILED"
	statusError    = "ERROR"
	statusReleased = "RELEASED"
	statusUnknown  = "UNKNOWN"
)

type commandRequest struct {
	Cmd       string              `json:"cmd"`
	Config    *txrx.SessionConfig `json:"config,omitempty"`
	TxShmName string              `json:"tx_shm_name,omitempty"`
}

type commandReply struct {
	Status        string `json:"status"`
	Msg           string `json:"msg,omitempty"`
	RxShmName     string `json:"rx_shm_name,omitempty"`
	RxNsampsPerCh int    `json:"rx_nsamps_per_ch,omitempty"`
	NumRxCh       int    `json:"num_rx_ch,omitempty"`
}
