package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/go-serialterm/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				logSnapshot(l, metrics.Snap())
			case <-ctx.Done():
				return
			}
		}
	}()
}

func logSnapshot(l *slog.Logger, snap metrics.Snapshot) {
	l.Info("metrics_snapshot",
		"serial_rx", snap.SerialRx,
		"serial_tx", snap.SerialTx,
		"tx_accepted", snap.TxAccepted,
		"tx_confirmed", snap.TxConfirmed,
		"pending", snap.PendingBytes,
		"write_timeouts", snap.Timeouts,
		"opens", snap.Opens,
		"open", snap.Open,
		"errors", snap.Errors,
	)
}
