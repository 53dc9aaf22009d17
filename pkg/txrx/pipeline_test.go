package txrx

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/txrx/pkg/radio"
)

func testTransceiver(spb int) *Transceiver {
	trx := New(nil)
	trx.cfg.SPB = spb
	return trx
}

// fakeTxStream records everything sent and can throttle or fail sends.
type fakeTxStream struct {
	channels   int
	maxPerSend int  // cap samples consumed per call, 0 = unlimited
	zeroOnce   bool // first data call consumes nothing
	failAt     int  // return an error once this many samples were taken

	sent      [][]complex64
	calls     int
	burstDone bool
	firstMeta *radio.TxMetadata
}

func (f *fakeTxStream) NumChannels() int { return f.channels }

func (f *fakeTxStream) Send(buffs [][]complex64, nsamps int, md radio.TxMetadata, timeout time.Duration) (int, error) {
	if md.EndOfBurst && nsamps == 0 {
		f.burstDone = true
		return 0, nil
	}
	f.calls++
	if f.firstMeta == nil {
		m := md
		f.firstMeta = &m
	}
	if f.zeroOnce {
		f.zeroOnce = false
		return 0, nil
	}
	if f.sent == nil {
		f.sent = make([][]complex64, f.channels)
	}
	if f.failAt > 0 && len(f.sent[0]) >= f.failAt {
		return 0, os.ErrDeadlineExceeded
	}
	n := nsamps
	if f.maxPerSend > 0 && n > f.maxPerSend {
		n = f.maxPerSend
	}
	for ch := 0; ch < f.channels && ch < len(buffs); ch++ {
		f.sent[ch] = append(f.sent[ch], buffs[ch][:n]...)
	}
	return n, nil
}

func (f *fakeTxStream) Close() error { return nil }

// fakeRxStream serves a scripted sequence of recv outcomes, then plain
// data. Sample values count up so offset handling is visible.
type rxStep struct {
	n    int
	code radio.RxErrorCode
	desc string
}

type fakeRxStream struct {
	channels int
	steps    []rxStep
	cmd      radio.StreamCmd
	issued   bool
	total    int
	onRecv   func(callNum int)
	calls    int
}

func (f *fakeRxStream) NumChannels() int { return f.channels }

func (f *fakeRxStream) Issue(cmd radio.StreamCmd) error {
	f.cmd = cmd
	f.issued = true
	return nil
}

func (f *fakeRxStream) Recv(buffs [][]complex64, nsamps int, timeout time.Duration) (int, radio.RxMetadata) {
	f.calls++
	if f.onRecv != nil {
		f.onRecv(f.calls)
	}
	if len(f.steps) > 0 {
		step := f.steps[0]
		f.steps = f.steps[1:]
		if step.code != radio.RxErrorNone {
			return 0, radio.RxMetadata{Code: step.code, Desc: step.desc}
		}
		nsamps = step.n
	}
	for ch := 0; ch < f.channels && ch < len(buffs); ch++ {
		for i := 0; i < nsamps; i++ {
			buffs[ch][i] = complex(float32(f.total+i), float32(ch))
		}
	}
	f.total += nsamps
	return nsamps, radio.RxMetadata{Code: radio.RxErrorNone}
}

func (f *fakeRxStream) Close() error { return nil }

func writeSampleFile(t *testing.T, dir, name string, nsamps int) string {
	t.Helper()
	buf := make([]complex64, nsamps)
	for i := range buf {
		buf[i] = complex(float32(i), float32(-i))
	}
	path := filepath.Join(dir, name)
	if err := WriteBufferToFile([]string{path}, [][]complex64{buf}); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestTransmitFromFilesMinAcrossChannels(t *testing.T) {
	dir := t.TempDir()
	// Channel A has 100 samples, channel B only 80: no channel may ever
	// transmit more than the shortest channel has available.
	fileA := writeSampleFile(t, dir, "a.bin", 100)
	fileB := writeSampleFile(t, dir, "b.bin", 80)

	trx := testTransceiver(30)
	stream := &fakeTxStream{channels: 2}

	sent, err := trx.TransmitFromFiles(context.Background(), stream, []string{fileA, fileB})
	if err != nil {
		t.Fatalf("TransmitFromFiles: %v", err)
	}
	if sent != 80 {
		t.Errorf("sent %d samples, want 80", sent)
	}
	for ch := range stream.sent {
		if len(stream.sent[ch]) != 80 {
			t.Errorf("channel %d transmitted %d samples, want 80", ch, len(stream.sent[ch]))
		}
	}
	if !stream.burstDone {
		t.Error("end-of-burst marker not emitted")
	}
}

func TestTransmitFromBufferPartialSendResumes(t *testing.T) {
	trx := testTransceiver(400)
	stream := &fakeTxStream{channels: 1, maxPerSend: 300}

	buf := make([]complex64, 1000)
	for i := range buf {
		buf[i] = complex(float32(i), 0)
	}

	sent, err := trx.TransmitFromBuffer(context.Background(), stream, [][]complex64{buf})
	if err != nil {
		t.Fatalf("TransmitFromBuffer: %v", err)
	}
	if sent != 1000 {
		t.Errorf("sent %d samples, want 1000", sent)
	}
	// Partial sends must resume at the unsent offset without skipping or
	// repeating samples.
	for i, s := range stream.sent[0] {
		if s != complex(float32(i), 0) {
			t.Fatalf("sample %d = %v, want %v", i, s, complex(float32(i), 0))
		}
	}
	if !stream.burstDone {
		t.Error("end-of-burst marker not emitted")
	}
}

func TestTransmitZeroConsumedRetries(t *testing.T) {
	trx := testTransceiver(100)
	stream := &fakeTxStream{channels: 1, zeroOnce: true}

	buf := make([]complex64, 100)
	sent, err := trx.TransmitFromBuffer(context.Background(), stream, [][]complex64{buf})
	if err != nil {
		t.Fatalf("TransmitFromBuffer: %v", err)
	}
	if sent != 100 {
		t.Errorf("sent %d samples, want 100", sent)
	}
}

func TestTransmitHardwareErrorIsFatal(t *testing.T) {
	trx := testTransceiver(100)
	stream := &fakeTxStream{channels: 1, failAt: 200}

	buf := make([]complex64, 1000)
	_, err := trx.TransmitFromBuffer(context.Background(), stream, [][]complex64{buf})
	if err == nil {
		t.Fatal("expected error from failing send")
	}
	var streamErr *StreamError
	if !errors.As(err, &streamErr) {
		t.Fatalf("got %T, want *StreamError", err)
	}
	if !stream.burstDone {
		t.Error("end-of-burst marker not emitted on error unwind")
	}
}

func TestTransmitFirstPacketCarriesStartTime(t *testing.T) {
	trx := testTransceiver(50)
	trx.start = 3.5
	stream := &fakeTxStream{channels: 1}

	buf := make([]complex64, 120)
	if _, err := trx.TransmitFromBuffer(context.Background(), stream, [][]complex64{buf}); err != nil {
		t.Fatal(err)
	}
	if stream.firstMeta == nil || !stream.firstMeta.HasTimeSpec {
		t.Fatal("first packet must carry the scheduled start time")
	}
	if stream.firstMeta.TimeSpec != 3.5 {
		t.Errorf("first packet time = %v, want 3.5", stream.firstMeta.TimeSpec)
	}
}

func TestReceiveExactCount(t *testing.T) {
	trx := testTransceiver(250)
	trx.start = 1.25
	stream := &fakeRxStream{channels: 2}

	buffs, err := trx.ReceiveToBuffer(context.Background(), stream, 1000)
	if err != nil {
		t.Fatalf("ReceiveToBuffer: %v", err)
	}
	if !stream.issued {
		t.Fatal("no stream command issued")
	}
	if stream.cmd.NumSamps != 1000 || stream.cmd.TimeSpec != 1.25 || stream.cmd.StreamNow {
		t.Errorf("stream command = %+v, want timed 1000 samples at 1.25", stream.cmd)
	}
	for ch := range buffs {
		if len(buffs[ch]) != 1000 {
			t.Fatalf("channel %d has %d samples, want 1000", ch, len(buffs[ch]))
		}
	}
	// Offsets must advance across calls: the value pattern counts up.
	for i, s := range buffs[0] {
		if real(s) != float32(i) {
			t.Fatalf("sample %d = %v, want re=%d", i, s, i)
		}
	}
}

func TestReceiveTransientConditionsRetried(t *testing.T) {
	trx := testTransceiver(500)
	stream := &fakeRxStream{
		channels: 1,
		steps: []rxStep{
			{code: radio.RxErrorTimeout},
			{n: 200},
			{code: radio.RxErrorOverflow},
			{n: 300},
		},
	}

	buffs, err := trx.ReceiveToBuffer(context.Background(), stream, 500)
	if err != nil {
		t.Fatalf("ReceiveToBuffer: %v", err)
	}
	if len(buffs[0]) != 500 {
		t.Errorf("received %d samples, want 500", len(buffs[0]))
	}
}

func TestReceiveFatalErrorRaises(t *testing.T) {
	trx := testTransceiver(500)
	stream := &fakeRxStream{
		channels: 1,
		steps:    []rxStep{{code: radio.RxErrorBrokenChain, desc: "chain broken"}},
	}

	_, err := trx.ReceiveToBuffer(context.Background(), stream, 500)
	var streamErr *StreamError
	if !errors.As(err, &streamErr) {
		t.Fatalf("got %v (%T), want *StreamError", err, err)
	}
	if streamErr.Desc != "chain broken" {
		t.Errorf("error desc = %q, want hardware description", streamErr.Desc)
	}
}

func TestReceiveStopTrimsToCaptured(t *testing.T) {
	trx := testTransceiver(100)
	ctx, cancel := context.WithCancel(context.Background())

	stream := &fakeRxStream{channels: 1}
	stream.onRecv = func(call int) {
		if call == 4 {
			cancel()
		}
	}

	buffs, err := trx.ReceiveToBuffer(ctx, stream, 1000)
	if err != nil {
		t.Fatalf("ReceiveToBuffer: %v", err)
	}
	if len(buffs[0]) != 400 {
		t.Errorf("received %d samples after stop, want 400", len(buffs[0]))
	}
}

func TestReceiveToFiles(t *testing.T) {
	dir := t.TempDir()
	files := []string{filepath.Join(dir, "rx0.bin"), filepath.Join(dir, "rx1.bin")}

	trx := testTransceiver(64)
	stream := &fakeRxStream{channels: 2}

	received, err := trx.ReceiveToFiles(context.Background(), stream, files, 200)
	if err != nil {
		t.Fatalf("ReceiveToFiles: %v", err)
	}
	if received != 200 {
		t.Errorf("received %d samples, want 200", received)
	}
	for _, name := range files {
		fi, err := os.Stat(name)
		if err != nil {
			t.Fatalf("stat %s: %v", name, err)
		}
		if fi.Size() != 200*SampleWidth {
			t.Errorf("%s has %d bytes, want %d", name, fi.Size(), 200*SampleWidth)
		}
	}
}
