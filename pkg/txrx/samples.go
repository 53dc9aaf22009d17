package txrx

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// SampleWidth is the byte width of one complex sample on disk and in
// shared memory: little-endian float32 I followed by float32 Q (fc32).
const SampleWidth = 8

// readSamples fills dst with up to len(dst) samples from r, using scratch
// as the byte staging buffer (it must be at least len(dst)*SampleWidth).
// A short count with nil error means end of stream was reached.
func readSamples(r io.Reader, dst []complex64, scratch []byte) (int, error) {
	want := len(dst) * SampleWidth
	n, err := io.ReadFull(r, scratch[:want])
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return 0, err
	}
	got := n / SampleWidth
	for i := 0; i < got; i++ {
		off := i * SampleWidth
		re := math.Float32frombits(binary.LittleEndian.Uint32(scratch[off:]))
		im := math.Float32frombits(binary.LittleEndian.Uint32(scratch[off+4:]))
		dst[i] = complex(re, im)
	}
	return got, nil
}

func writeSamples(w io.Writer, src []complex64, scratch []byte) error {
	want := len(src) * SampleWidth
	for i, s := range src {
		off := i * SampleWidth
		binary.LittleEndian.PutUint32(scratch[off:], math.Float32bits(real(s)))
		binary.LittleEndian.PutUint32(scratch[off+4:], math.Float32bits(imag(s)))
	}
	_, err := w.Write(scratch[:want])
	return err
}

// LoadFileToBuffer materializes whole fc32 sample files in memory, one
// slice per channel.
func LoadFileToBuffer(files []string) ([][]complex64, error) {
	buffs := make([][]complex64, len(files))
	for i, name := range files {
		data, err := os.ReadFile(name)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot open TX file %s", name)
		}
		if len(data)%SampleWidth != 0 {
			logrus.WithField("module", "BUFFER-LOAD").Warnf(
				"%s: %d trailing bytes ignored", name, len(data)%SampleWidth)
		}
		n := len(data) / SampleWidth
		buffs[i] = make([]complex64, n)
		for s := 0; s < n; s++ {
			off := s * SampleWidth
			re := math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
			im := math.Float32frombits(binary.LittleEndian.Uint32(data[off+4:]))
			buffs[i][s] = complex(re, im)
		}
	}
	logrus.WithField("module", "BUFFER-LOAD").Infof("Loaded %d channels of TX data", len(buffs))
	return buffs, nil
}

// WriteBufferToFile writes each channel's samples to the corresponding
// fc32 file, creating or truncating it.
func WriteBufferToFile(files []string, buffs [][]complex64) error {
	for i, name := range files {
		if i >= len(buffs) {
			break
		}
		f, err := os.Create(name)
		if err != nil {
			return errors.Wrapf(err, "cannot open receive file %s", name)
		}
		scratch := make([]byte, len(buffs[i])*SampleWidth)
		err = writeSamples(f, buffs[i], scratch)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return errors.Wrapf(err, "write %s", name)
		}
		logrus.WithField("module", "BUFFER-WRITE").Infof("RX channel saved to file: %s", name)
	}
	return nil
}

// FlattenChannels lays a channel set out channel-major: all of channel 0's
// samples, then all of channel 1's, and so on. This is the shared-memory
// transport layout.
func FlattenChannels(buffs [][]complex64) []byte {
	perCh := 0
	if len(buffs) > 0 {
		perCh = len(buffs[0])
	}
	out := make([]byte, len(buffs)*perCh*SampleWidth)
	for ch, buf := range buffs {
		base := ch * perCh * SampleWidth
		for s, v := range buf {
			off := base + s*SampleWidth
			binary.LittleEndian.PutUint32(out[off:], math.Float32bits(real(v)))
			binary.LittleEndian.PutUint32(out[off+4:], math.Float32bits(imag(v)))
		}
	}
	return out
}

// SplitChannels is the inverse of FlattenChannels. The byte length must
// divide exactly into channels x samples x SampleWidth; anything else is a
// protocol violation from the peer.
func SplitChannels(data []byte, channels int) ([][]complex64, error) {
	if channels <= 0 {
		return nil, &ProtocolError{Reason: fmt.Sprintf("invalid channel count %d", channels)}
	}
	if len(data)%(channels*SampleWidth) != 0 {
		return nil, &ProtocolError{Reason: fmt.Sprintf(
			"segment size %d does not divide into %d channels of %d-byte samples",
			len(data), channels, SampleWidth)}
	}
	perCh := len(data) / (channels * SampleWidth)
	buffs := make([][]complex64, channels)
	for ch := 0; ch < channels; ch++ {
		buffs[ch] = make([]complex64, perCh)
		base := ch * perCh * SampleWidth
		for s := 0; s < perCh; s++ {
			off := base + s*SampleWidth
			re := math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
			im := math.Float32frombits(binary.LittleEndian.Uint32(data[off+4:]))
			buffs[ch][s] = complex(re, im)
		}
	}
	return buffs, nil
}
