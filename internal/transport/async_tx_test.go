package transport

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

var (
	errOverflow = errors.New("overflow")
	errSendFail = errors.New("send fail")
)

// TestAsyncTxSuccess verifies chunks are sent and hooks fire with their size.
func TestAsyncTxSuccess(t *testing.T) {
	var sent atomic.Int64
	var after atomic.Int64
	ax := NewAsyncTx(context.Background(), 4, func(p []byte) (int, error) {
		sent.Add(1)
		return len(p), nil
	}, Hooks{OnAfter: func(n int) { after.Add(int64(n)) }})
	defer ax.Close()
	for i := 0; i < 3; i++ {
		if err := ax.Send([]byte("ab")); err != nil {
			t.Fatalf("unexpected send error: %v", err)
		}
	}
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) && after.Load() < 6 {
		time.Sleep(5 * time.Millisecond)
	}
	if sent.Load() != 3 || after.Load() != 6 {
		t.Fatalf("expected 3 sends & 6 bytes, got sent=%d after=%d", sent.Load(), after.Load())
	}
}

// TestAsyncTxOverflow ensures OnDrop is invoked when buffer full.
func TestAsyncTxOverflow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var drops atomic.Int64
	ax := NewAsyncTx(ctx, 1, func(p []byte) (int, error) { time.Sleep(150 * time.Millisecond); return len(p), nil },
		Hooks{OnDrop: func() error { drops.Add(1); return errOverflow }})
	defer ax.Close()
	// First chunk is picked up by the worker, second fills the buffer.
	if err := ax.Send([]byte{1}); err != nil {
		t.Fatalf("unexpected error enqueue first: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if err := ax.Send([]byte{2}); err != nil {
		t.Fatalf("unexpected error enqueue second: %v", err)
	}
	if err := ax.Send([]byte{3}); !errors.Is(err, errOverflow) {
		t.Fatalf("expected overflow error, got %v", err)
	}
	if drops.Load() != 1 {
		t.Fatalf("expected 1 drop, got %d", drops.Load())
	}
}

// TestAsyncTxSendError triggers OnError hook with the partial count.
func TestAsyncTxSendError(t *testing.T) {
	var partial atomic.Int64
	var errs atomic.Int64
	ax := NewAsyncTx(context.Background(), 2, func(p []byte) (int, error) { return 1, errSendFail },
		Hooks{OnError: func(n int, err error) { partial.Store(int64(n)); errs.Add(1) }})
	defer ax.Close()
	_ = ax.Send([]byte("xyz"))
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) && errs.Load() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if errs.Load() == 0 || partial.Load() != 1 {
		t.Fatalf("expected error hook with n=1, got errs=%d n=%d", errs.Load(), partial.Load())
	}
}

func TestAsyncTxSendAfterClose(t *testing.T) {
	tx := NewAsyncTx(context.Background(), 2, func(p []byte) (int, error) { return len(p), nil }, Hooks{})
	tx.Close()
	tx.Close()
	if err := tx.Send([]byte{1}); !errors.Is(err, ErrAsyncTxClosed) {
		t.Fatalf("expected ErrAsyncTxClosed, got %v", err)
	}
}

func TestAsyncTxCloseConcurrentSend(t *testing.T) {
	for i := 0; i < 100; i++ {
		ax := NewAsyncTx(context.Background(), 1, func(p []byte) (int, error) { return len(p), nil }, Hooks{})
		done := make(chan error, 1)
		go func() {
			done <- ax.Send([]byte{0})
		}()
		time.Sleep(1 * time.Millisecond)
		ax.Close()
		if err := <-done; err != nil && !errors.Is(err, ErrAsyncTxClosed) {
			t.Fatalf("iteration %d: unexpected send error %v", i, err)
		}
	}
}
