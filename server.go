package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"
	"github.com/sirupsen/logrus"

	"github.com/txrx/pkg/radio"
	"github.com/txrx/pkg/shmseg"
	"github.com/txrx/pkg/txrx"
)

const defaultRxShmName = "/txrx_rx_shm"

var srvLog = logrus.WithField("module", "SERVER")

// controlServer dispatches control-plane commands against one transceiver.
// The mutex serializes commands: only one EXECUTE is ever in flight.
type controlServer struct {
	mu        sync.Mutex
	trx       *txrx.Transceiver
	rxShmName string
}

// runServer starts the request/reply control endpoint and blocks until the
// context is cancelled.
func runServer(ctx context.Context, port int, deviceArgs string) error {
	dev, err := radio.MakeDevice(deviceArgs)
	if err != nil {
		return err
	}
	defer dev.Close()

	cs := &controlServer{trx: txrx.New(dev), rxShmName: defaultRxShmName}

	mux := http.NewServeMux()
	mux.Handle("/cmd", cs.handler(ctx))

	// Advertise the endpoint so clients on the LAN can find it without
	// out-of-band configuration. Best effort: a sandboxed or multi-homed
	// host may refuse multicast.
	if mdns, err := zeroconf.Register("txrx", "_txrx._tcp", "local.", port, []string{"proto=1"}, nil); err != nil {
		srvLog.Warnf("mDNS registration failed: %v", err)
	} else {
		defer mdns.Shutdown()
	}

	httpSrv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		httpSrv.Shutdown(context.Background())
	}()

	srvLog.Infof("Control server live on port %d", port)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// handler upgrades each connection and runs the request/reply loop on it.
func (s *controlServer) handler(ctx context.Context) http.Handler {
	upgrader := websocket.Upgrader{
		CheckOrigin:     func(r *http.Request) bool { return true },
		ReadBufferSize:  1024,
		WriteBufferSize: 65536,
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			srvLog.Errorf("Upgrade: %v", err)
			return
		}
		srvLog.Info("Client connected")
		s.serveConn(ctx, conn)
		srvLog.Info("Client disconnected")
	})
}

// serveConn is the strict request/reply loop: read one envelope, produce
// one reply, repeat. A failed request never takes the loop down.
func (s *controlServer) serveConn(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()
	for ctx.Err() == nil {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		reply := s.dispatch(ctx, msg)
		if reply.Status == statusError || reply.Status == statusFailed {
			srvLog.Errorf("%s: %s", reply.Status, reply.Msg)
		}
		if err := conn.WriteJSON(reply); err != nil {
			return
		}
	}
}

func (s *controlServer) dispatch(ctx context.Context, msg []byte) (reply commandReply) {
	// A request must never terminate the serve loop, whatever the
	// pipelines do underneath.
	defer func() {
		if r := recover(); r != nil {
			reply = commandReply{Status: statusError, Msg: fmt.Sprintf("internal: %v", r)}
		}
	}()

	var req commandRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		return commandReply{Status: statusError, Msg: "parse request: " + err.Error()}
	}

	switch req.Cmd {
	case cmdExecute:
		return s.execute(ctx, &req)
	case cmdRelease:
		return s.release()
	default:
		return commandReply{Status: statusUnknown, Msg: fmt.Sprintf("unknown command %q", req.Cmd)}
	}
}

func (s *controlServer) execute(ctx context.Context, req *commandRequest) commandReply {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Config == nil {
		return commandReply{Status: statusError, Msg: "missing config"}
	}
	if req.TxShmName == "" {
		return commandReply{Status: statusError, Msg: "missing tx_shm_name"}
	}
	cfg := *req.Config

	// Validation failures must not touch hardware; Configure validates
	// before its first device call.
	if _, err := s.trx.Configure(ctx, cfg); err != nil {
		var cfgErr *txrx.ConfigError
		if errors.As(err, &cfgErr) {
			return commandReply{Status: statusFailed, Msg: err.Error()}
		}
		return commandReply{Status: statusError, Msg: err.Error()}
	}

	// The client's segment stays mapped only long enough to copy the
	// channel set out; the client remains its owner.
	seg, err := shmseg.OpenReadOnly(req.TxShmName)
	if err != nil {
		return commandReply{Status: statusError, Msg: err.Error()}
	}
	txBuffs, err := txrx.SplitChannels(seg.Bytes(), len(cfg.TxChannels))
	seg.Close()
	if err != nil {
		return commandReply{Status: statusError, Msg: err.Error()}
	}
	sampsPerCh := len(txBuffs[0])
	srvLog.Infof("Loaded %d channels, %d samples per channel", len(txBuffs), sampsPerCh)

	txStream, err := s.trx.Device().OpenTxStream(cfg.TxChannels)
	if err != nil {
		return commandReply{Status: statusError, Msg: err.Error()}
	}
	defer txStream.Close()
	rxStream, err := s.trx.Device().OpenRxStream(cfg.RxChannels)
	if err != nil {
		return commandReply{Status: statusError, Msg: err.Error()}
	}
	defer rxStream.Close()

	nsamps := s.trx.ResolveNSamps(sampsPerCh)

	// TX and RX run concurrently against the same start instant and are
	// joined before any reply is produced.
	txDone := make(chan error, 1)
	go func() {
		_, err := s.trx.TransmitFromBuffer(ctx, txStream, txBuffs)
		txDone <- err
	}()
	rxBuffs, rxErr := s.trx.ReceiveToBuffer(ctx, rxStream, nsamps)
	txErr := <-txDone

	if txErr != nil {
		return commandReply{Status: statusError, Msg: txErr.Error()}
	}
	if rxErr != nil {
		return commandReply{Status: statusError, Msg: rxErr.Error()}
	}

	reply := commandReply{Status: statusSuccess, NumRxCh: len(rxBuffs)}
	if len(rxBuffs) > 0 {
		reply.RxNsampsPerCh = len(rxBuffs[0])
	}
	if reply.RxNsampsPerCh == 0 {
		// Cancelled before the first sample: nothing to hand off.
		return reply
	}

	flat := txrx.FlattenChannels(rxBuffs)
	if err := shmseg.Remove(s.rxShmName); err != nil {
		return commandReply{Status: statusError, Msg: err.Error()}
	}
	out, err := shmseg.Create(s.rxShmName, len(flat))
	if err != nil {
		return commandReply{Status: statusError, Msg: err.Error()}
	}
	copy(out.Bytes(), flat)
	out.Close()

	reply.RxShmName = s.rxShmName
	return reply
}

// release unlinks the output segment. Releasing when no segment exists is
// still RELEASED; the command is idempotent.
func (s *controlServer) release() commandReply {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := shmseg.Remove(s.rxShmName); err != nil {
		return commandReply{Status: statusError, Msg: err.Error()}
	}
	return commandReply{Status: statusReleased}
}
