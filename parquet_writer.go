package main

import (
	"encoding/json"
	"io"

	"github.com/segmentio/parquet-go"

	"github.com/txrx/pkg/txrx"
)

// IQRow is one complex sample in the parquet export. The channel column
// keeps the schema independent of the session's channel count.
type IQRow struct {
	Channel int32   `parquet:"channel"`
	I       float32 `parquet:"i"`
	Q       float32 `parquet:"q"`
}

// WriteCaptureParquet writes an RX channel set as parquet, embedding the
// session configuration as file metadata so a capture stays
// self-describing.
func WriteCaptureParquet(w io.Writer, cfg *txrx.SessionConfig, buffs [][]complex64) error {
	cfgStr := "{}"
	if cfg != nil {
		if b, err := json.Marshal(cfg); err == nil {
			cfgStr = string(b)
		}
	}
	pw := parquet.NewGenericWriter[IQRow](w,
		parquet.KeyValueMetadata("config", cfgStr),
	)

	const rowChunk = 4096
	rows := make([]IQRow, 0, rowChunk)
	for ch, buf := range buffs {
		for _, s := range buf {
			rows = append(rows, IQRow{Channel: int32(ch), I: real(s), Q: imag(s)})
			if len(rows) == rowChunk {
				if _, err := pw.Write(rows); err != nil {
					pw.Close()
					return err
				}
				rows = rows[:0]
			}
		}
	}
	if len(rows) > 0 {
		if _, err := pw.Write(rows); err != nil {
			pw.Close()
			return err
		}
	}
	return pw.Close()
}
