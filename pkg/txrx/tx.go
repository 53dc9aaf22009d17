package txrx

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/txrx/pkg/radio"
)

var txLog = logrus.WithField("module", "TX-STREAM")

const (
	// First send/recv may legitimately wait for the scheduled start, so
	// it gets a long timeout; every call after that transfers promptly.
	firstPacketTimeout = 5 * time.Second
	steadyTimeout      = 100 * time.Millisecond
)

// TransmitFromBuffer streams an already materialized channel set. The
// whole buffer acts as the single chunk: partial sends resume at the
// unsent offset, a zero-sample send with no error retries the same
// offset, and the burst is always terminated with an end-of-burst marker.
// Returns the number of samples sent per channel.
func (t *Transceiver) TransmitFromBuffer(ctx context.Context, stream radio.TxStream, buffs [][]complex64) (sent int, err error) {
	md := radio.TxMetadata{HasTimeSpec: true, TimeSpec: t.start}
	timeout := firstPacketTimeout

	total := 0
	if len(buffs) > 0 {
		total = len(buffs[0])
	}
	txLog.Infof("Starting transmission from buffer with %d samples per channel", total)

	// The end marker lets the hardware close the burst cleanly on every
	// exit path, including cancellation and error unwind.
	defer func() {
		_, _ = stream.Send(nil, 0, radio.TxMetadata{EndOfBurst: true}, steadyTimeout)
	}()

	offsets := make([][]complex64, len(buffs))
	for sent < total {
		if ctx.Err() != nil {
			txLog.Info("Transmit cancelled, closing burst")
			return sent, nil
		}

		toSend := total - sent
		if toSend > t.cfg.SPB {
			toSend = t.cfg.SPB
		}
		for ch := range buffs {
			offsets[ch] = buffs[ch][sent:]
		}

		n, err := stream.Send(offsets, toSend, md, timeout)
		if err != nil {
			return sent, &StreamError{Op: "TX", Desc: err.Error()}
		}
		if n == 0 {
			txLog.Warnf("send() returned 0 samples [%d/%d]", sent, total)
			continue
		}
		sent += n
		md.HasTimeSpec = false
		timeout = steadyTimeout
	}

	txLog.Infof("Transmit completed! Samples sent: %d", sent)
	return sent, nil
}

// TransmitFromFiles streams one fc32 file per channel in SPB-sized
// chunks. A chunk is refilled only once fully sent; the refill takes the
// minimum read count across channels so no channel ever gets ahead of
// another, and a minimum of zero is end of stream.
func (t *Transceiver) TransmitFromFiles(ctx context.Context, stream radio.TxStream, files []string) (sent int, err error) {
	infiles := make([]*os.File, len(files))
	for i, name := range files {
		f, err := os.Open(name)
		if err != nil {
			return 0, errors.Wrapf(err, "cannot open TX file %s", name)
		}
		defer f.Close()
		infiles[i] = f
	}

	spb := t.cfg.SPB
	chunk := make([][]complex64, len(files))
	for ch := range chunk {
		chunk[ch] = make([]complex64, spb)
	}
	scratch := make([]byte, spb*SampleWidth)

	md := radio.TxMetadata{HasTimeSpec: true, TimeSpec: t.start}
	timeout := firstPacketTimeout

	defer func() {
		_, _ = stream.Send(nil, 0, radio.TxMetadata{EndOfBurst: true}, steadyTimeout)
	}()

	var (
		chunkValid int // samples in the chunk
		chunkSent  int // samples of the chunk already on the wire
		eof        bool
	)
	offsets := make([][]complex64, len(files))

	for {
		if ctx.Err() != nil {
			txLog.Info("Transmit cancelled, closing burst")
			return sent, nil
		}

		// Refill only once the previous chunk is fully on the wire.
		if chunkSent == chunkValid && !eof {
			chunkSent = 0
			chunkValid = 0
			for ch, f := range infiles {
				n, err := readSamples(f, chunk[ch][:spb], scratch)
				if err != nil {
					return sent, errors.Wrapf(err, "read %s", files[ch])
				}
				if ch == 0 || n < chunkValid {
					chunkValid = n
				}
			}
			if chunkValid == 0 {
				eof = true
			}
		}
		if eof && chunkSent == chunkValid {
			break
		}

		for ch := range chunk {
			offsets[ch] = chunk[ch][chunkSent:chunkValid]
		}
		n, err := stream.Send(offsets, chunkValid-chunkSent, md, timeout)
		if err != nil {
			return sent, &StreamError{Op: "TX", Desc: err.Error()}
		}
		if n == 0 {
			txLog.Warn("send() returned 0 samples")
			continue
		}
		sent += n
		chunkSent += n
		md.HasTimeSpec = false
		timeout = steadyTimeout
	}

	txLog.Infof("Transmit DONE! samps: %d", sent)
	return sent, nil
}
