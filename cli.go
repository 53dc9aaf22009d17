package main

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/txrx/pkg/radio"
	"github.com/txrx/pkg/txrx"
)

// runCLI executes one file-to-file session: configure, then stream the TX
// files out and the RX capture in concurrently, both against the shared
// start instant.
func runCLI(ctx context.Context, deviceArgs string, cfg txrx.SessionConfig, parquetOut string) error {
	log := logrus.WithField("module", "MAIN")

	if len(cfg.TxFiles) == 0 || len(cfg.RxFiles) == 0 {
		return &txrx.ConfigError{Reason: "file-backed session needs -tx-files and -rx-files"}
	}

	dev, err := radio.MakeDevice(deviceArgs)
	if err != nil {
		return err
	}
	defer dev.Close()
	log.Infof("Created device with args: %s", deviceArgs)

	trx := txrx.New(dev)
	if _, err := trx.Configure(ctx, cfg); err != nil {
		return err
	}

	txStream, err := dev.OpenTxStream(cfg.TxChannels)
	if err != nil {
		return err
	}
	defer txStream.Close()
	rxStream, err := dev.OpenRxStream(cfg.RxChannels)
	if err != nil {
		return err
	}
	defer rxStream.Close()

	// nsamps 0 means: receive as long as the TX files last. The files
	// were size-checked by validation, so the first one is authoritative.
	fi, err := os.Stat(cfg.TxFiles[0])
	if err != nil {
		return err
	}
	nsamps := trx.ResolveNSamps(int(fi.Size()) / txrx.SampleWidth)

	txDone := make(chan error, 1)
	go func() {
		_, err := trx.TransmitFromFiles(ctx, txStream, cfg.TxFiles)
		txDone <- err
	}()
	received, rxErr := trx.ReceiveToFiles(ctx, rxStream, cfg.RxFiles, nsamps)
	txErr := <-txDone

	if txErr != nil {
		return txErr
	}
	if rxErr != nil {
		return rxErr
	}
	log.Infof("Session complete: %d samples received per channel", received)

	if parquetOut != "" {
		buffs, err := txrx.LoadFileToBuffer(cfg.RxFiles)
		if err != nil {
			return err
		}
		f, err := os.Create(parquetOut)
		if err != nil {
			return err
		}
		err = WriteCaptureParquet(f, &cfg, buffs)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		log.Infof("Capture exported to %s", parquetOut)
	}
	return nil
}
