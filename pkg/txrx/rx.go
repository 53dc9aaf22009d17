package txrx

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/txrx/pkg/radio"
)

var rxLog = logrus.WithField("module", "RX-STREAM")

// ReceiveToBuffer issues one timed stream command for nsamps samples per
// channel beginning at the shared start instant, then fills a preallocated
// channel set directly at the received offset. Timeouts and overflows are
// transient and retried; any other reported code is fatal. On cancellation
// the returned buffers are trimmed to the samples actually captured, so
// the result length may be shorter than requested.
func (t *Transceiver) ReceiveToBuffer(ctx context.Context, stream radio.RxStream, nsamps int) ([][]complex64, error) {
	buffs := make([][]complex64, stream.NumChannels())
	for ch := range buffs {
		buffs[ch] = make([]complex64, nsamps)
	}

	rxLog.Infof("Starting reception, will receive %d samples", nsamps)
	rxLog.Debugf("Reception start time: %.3f seconds", t.start.Seconds())

	if err := stream.Issue(radio.StreamCmd{NumSamps: nsamps, TimeSpec: t.start}); err != nil {
		return nil, errors.Wrap(err, "issue stream command")
	}

	timeout := firstPacketTimeout
	received := 0
	offsets := make([][]complex64, len(buffs))

	for received < nsamps {
		if ctx.Err() != nil {
			rxLog.Info("Receive cancelled")
			break
		}

		want := nsamps - received
		if want > t.cfg.SPB {
			want = t.cfg.SPB
		}
		for ch := range buffs {
			offsets[ch] = buffs[ch][received:]
		}

		n, md := stream.Recv(offsets, want, timeout)
		timeout = steadyTimeout

		switch md.Code {
		case radio.RxErrorTimeout:
			rxLog.Warn("RX channel received timeout.")
			continue
		case radio.RxErrorOverflow:
			// Data already lost at the hardware level; keep going.
			rxLog.Warn("RX channel received overflow.")
			continue
		case radio.RxErrorNone:
		default:
			rxLog.Errorf("RX channel received error: %s", md.Desc)
			return nil, &StreamError{Op: "RX", Desc: md.Desc}
		}
		received += n
	}

	rxLog.Infof("Receive completed! Samples received: %d", received)

	for ch := range buffs {
		buffs[ch] = buffs[ch][:received]
	}
	return buffs, nil
}

// ReceiveToFiles is the file-backed variant: a fixed SPB-sized scratch
// chunk is flushed to one fc32 file per channel after every successful
// recv. Returns the number of samples captured per channel.
func (t *Transceiver) ReceiveToFiles(ctx context.Context, stream radio.RxStream, files []string, nsamps int) (int, error) {
	outfiles := make([]*os.File, len(files))
	for i, name := range files {
		f, err := os.Create(name)
		if err != nil {
			return 0, errors.Wrapf(err, "cannot open receive file %s", name)
		}
		defer f.Close()
		outfiles[i] = f
		rxLog.Infof("RX channel save to file: %s", name)
	}

	spb := t.cfg.SPB
	chunk := make([][]complex64, stream.NumChannels())
	for ch := range chunk {
		chunk[ch] = make([]complex64, spb)
	}
	scratch := make([]byte, spb*SampleWidth)

	if err := stream.Issue(radio.StreamCmd{NumSamps: nsamps, TimeSpec: t.start}); err != nil {
		return 0, errors.Wrap(err, "issue stream command")
	}
	rxLog.Debugf("Reception start time: %.3f seconds", t.start.Seconds())

	timeout := firstPacketTimeout
	received := 0

	for received < nsamps {
		if ctx.Err() != nil {
			rxLog.Info("Receive cancelled")
			break
		}

		want := nsamps - received
		if want > spb {
			want = spb
		}
		n, md := stream.Recv(chunk, want, timeout)
		timeout = steadyTimeout

		switch md.Code {
		case radio.RxErrorTimeout:
			rxLog.Warn("RX channel received timeout.")
			continue
		case radio.RxErrorOverflow:
			rxLog.Warn("RX channel received overflow.")
			continue
		case radio.RxErrorNone:
		default:
			rxLog.Errorf("RX channel received error: %s", md.Desc)
			return received, &StreamError{Op: "RX", Desc: md.Desc}
		}

		for ch, f := range outfiles {
			if ch < len(chunk) {
				if err := writeSamples(f, chunk[ch][:n], scratch); err != nil {
					return received, errors.Wrapf(err, "write %s", files[ch])
				}
			}
		}
		received += n
	}

	rxLog.Infof("Received DONE! number of samples (%d)", received)
	return received, nil
}
