// Control-plane client: loads a session config and a TX sample file,
// hands the samples to the server through shared memory, runs EXECUTE,
// copies the RX result out, and releases the server's segment.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/url"
	"os"

	"github.com/gorilla/websocket"

	"github.com/txrx/pkg/shmseg"
)

type request struct {
	Cmd       string          `json:"cmd"`
	Config    json.RawMessage `json:"config,omitempty"`
	TxShmName string          `json:"tx_shm_name,omitempty"`
}

type reply struct {
	Status        string `json:"status"`
	Msg           string `json:"msg,omitempty"`
	RxShmName     string `json:"rx_shm_name,omitempty"`
	RxNsampsPerCh int    `json:"rx_nsamps_per_ch,omitempty"`
	NumRxCh       int    `json:"num_rx_ch,omitempty"`
}

func main() {
	addr := flag.String("addr", "localhost:5555", "Control server address")
	configPath := flag.String("config", "config.json", "Session config JSON file")
	txPath := flag.String("tx", "tx_data_fc32.bin", "TX samples (fc32, channel-major for multi-channel)")
	outPath := flag.String("out", "rx_data_fc32.bin", "Output file for the RX capture")
	txShm := flag.String("shm", "/txrx_tx_shm", "Shared memory name for the TX payload")
	flag.Parse()

	cfgRaw, err := os.ReadFile(*configPath)
	if err != nil {
		log.Fatalf("read config: %v", err)
	}
	txData, err := os.ReadFile(*txPath)
	if err != nil {
		log.Fatalf("read TX samples: %v", err)
	}

	// We are the producer of the input segment and keep its lifetime:
	// created before EXECUTE, unlinked when we are done.
	if err := shmseg.Remove(*txShm); err != nil {
		log.Fatalf("clear stale segment: %v", err)
	}
	seg, err := shmseg.Create(*txShm, len(txData))
	if err != nil {
		log.Fatalf("create segment: %v", err)
	}
	copy(seg.Bytes(), txData)
	seg.Close()
	defer shmseg.Remove(*txShm)

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/cmd"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer c.Close()

	if err := c.WriteJSON(request{Cmd: "EXECUTE", Config: cfgRaw, TxShmName: *txShm}); err != nil {
		log.Fatal("send:", err)
	}
	var rep reply
	if err := c.ReadJSON(&rep); err != nil {
		log.Fatal("recv:", err)
	}
	if rep.Status != "SUCCESS" {
		log.Fatalf("EXECUTE %s: %s", rep.Status, rep.Msg)
	}
	log.Printf("EXECUTE ok: %d channels, %d samples per channel", rep.NumRxCh, rep.RxNsampsPerCh)

	if rep.RxShmName != "" {
		out, err := shmseg.OpenReadOnly(rep.RxShmName)
		if err != nil {
			log.Fatalf("open result segment: %v", err)
		}
		data := make([]byte, out.Size())
		copy(data, out.Bytes())
		out.Close()
		if err := os.WriteFile(*outPath, data, 0644); err != nil {
			log.Fatalf("write %s: %v", *outPath, err)
		}
		log.Printf("RX capture saved to %s (%d bytes)", *outPath, len(data))
	}

	if err := c.WriteJSON(request{Cmd: "RELEASE"}); err != nil {
		log.Fatal("send release:", err)
	}
	if err := c.ReadJSON(&rep); err != nil {
		log.Fatal("recv release:", err)
	}
	log.Printf("RELEASE: %s", rep.Status)
}
