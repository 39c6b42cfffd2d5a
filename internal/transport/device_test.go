package transport

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kstaniek/go-serialterm/internal/metrics"
	"github.com/kstaniek/go-serialterm/internal/serial"
	"github.com/kstaniek/go-serialterm/internal/settings"
)

type readResult struct {
	data []byte
	err  error
}

// fakePort implements serial.Port and serial.Drainer for tests.
type fakePort struct {
	reads     chan readResult
	closed    chan struct{}
	closeOnce sync.Once
	gate      chan struct{} // when set, Write waits on it
	started   chan struct{}

	mu       sync.Mutex
	written  []byte
	drains   int
	writeErr error // returned by Write after taking writeN bytes
	writeN   int
	drainErr error
}

func newFakePort() *fakePort {
	return &fakePort{reads: make(chan readResult, 16), closed: make(chan struct{}), started: make(chan struct{}, 16)}
}

func (f *fakePort) Read(p []byte) (int, error) {
	select {
	case r := <-f.reads:
		return copy(p, r.data), r.err
	case <-f.closed:
		return 0, os.ErrClosed
	case <-time.After(10 * time.Millisecond):
		return 0, io.EOF
	}
}

func (f *fakePort) Write(p []byte) (int, error) {
	f.started <- struct{}{}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		f.written = append(f.written, p[:f.writeN]...)
		return f.writeN, f.writeErr
	}
	f.written = append(f.written, p...)
	return len(p), nil
}

func (f *fakePort) Drain() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drains++
	return f.drainErr
}

func (f *fakePort) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

// chanPoster hands posted closures to the test goroutine, which plays the
// control goroutine.
type chanPoster struct{ ch chan func() }

func newChanPoster() *chanPoster { return &chanPoster{ch: make(chan func(), 64)} }

func (p *chanPoster) Post(ctx context.Context, fn func()) bool {
	select {
	case p.ch <- fn:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *chanPoster) runUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(time.Second)
	for !cond() {
		select {
		case fn := <-p.ch:
			fn()
		case <-deadline:
			t.Fatal("timeout waiting for device events")
		}
	}
}

type recHandler struct {
	readable  int
	confirmed []int
	errs      []serial.ErrorKind
}

func (h *recHandler) OnReadable()                      { h.readable++ }
func (h *recHandler) OnBytesConfirmed(n int)           { h.confirmed = append(h.confirmed, n) }
func (h *recHandler) OnDeviceError(k serial.ErrorKind) { h.errs = append(h.errs, k) }

func withFakePort(t *testing.T, fp *fakePort) {
	t.Helper()
	openPort = func(settings.Settings, serial.Driver) (serial.Port, error) { return fp, nil }
	t.Cleanup(func() { openPort = serial.Open })
}

func openDevice(t *testing.T, fp *fakePort, opts ...DeviceOption) (*Device, *chanPoster, *recHandler) {
	t.Helper()
	withFakePort(t, fp)
	p := newChanPoster()
	h := &recHandler{}
	d := NewDevice(p, opts...)
	d.Bind(h)
	if err := d.Open(settings.Default("/dev/ttyFAKE")); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close(); d.Wait() })
	return d, p, h
}

func TestDeviceWriteConfirms(t *testing.T) {
	fp := newFakePort()
	d, p, h := openDevice(t, fp)
	n, err := d.Write([]byte("abc"))
	if err != nil || n != 3 {
		t.Fatalf("Write: n=%d err=%v", n, err)
	}
	p.runUntil(t, func() bool { return len(h.confirmed) == 1 })
	if h.confirmed[0] != 3 {
		t.Fatalf("confirmed %v", h.confirmed)
	}
	fp.mu.Lock()
	defer fp.mu.Unlock()
	if string(fp.written) != "abc" || fp.drains != 1 {
		t.Fatalf("written=%q drains=%d", fp.written, fp.drains)
	}
}

func TestDeviceReadCoalescesNotifications(t *testing.T) {
	fp := newFakePort()
	d, p, h := openDevice(t, fp)
	fp.reads <- readResult{data: []byte("hel")}
	fp.reads <- readResult{data: []byte("lo")}
	var got []byte
	p.runUntil(t, func() bool {
		if h.readable > 0 {
			got = append(got, d.ReadAll()...)
			h.readable = 0
		}
		return string(got) == "hello"
	})
	if b := d.ReadAll(); len(b) != 0 {
		t.Fatalf("buffer not cleared: %q", b)
	}
}

func TestDeviceFatalReadError(t *testing.T) {
	fp := newFakePort()
	d, p, h := openDevice(t, fp)
	fp.reads <- readResult{err: &os.PathError{Op: "read", Path: "/dev/ttyFAKE", Err: syscall.EIO}}
	p.runUntil(t, func() bool { return len(h.errs) == 1 })
	if h.errs[0] != serial.KindResource {
		t.Fatalf("kind %v", h.errs[0])
	}
	if got := d.ErrorString(); got != "Input/output error" {
		t.Fatalf("ErrorString %q", got)
	}
}

func TestDeviceTransientReadErrorBacksOff(t *testing.T) {
	var mu sync.Mutex
	var slept []time.Duration
	sleepFn = func(d time.Duration) { mu.Lock(); slept = append(slept, d); mu.Unlock() }
	t.Cleanup(func() { sleepFn = time.Sleep })

	fp := newFakePort()
	_, p, h := openDevice(t, fp)
	fp.reads <- readResult{err: errors.New("glitch")}
	fp.reads <- readResult{err: errors.New("glitch")}
	p.runUntil(t, func() bool { return len(h.errs) == 2 })
	for _, k := range h.errs {
		if k != serial.KindRead {
			t.Fatalf("kind %v", k)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if len(slept) < 2 || slept[0] != rxBackoffMin || slept[1] != 2*rxBackoffMin {
		t.Fatalf("backoff %v", slept)
	}
}

func TestDeviceOpenFailure(t *testing.T) {
	openPort = func(settings.Settings, serial.Driver) (serial.Port, error) {
		return nil, &os.PathError{Op: "open", Path: "/dev/ttyNONE", Err: syscall.ENOENT}
	}
	defer func() { openPort = serial.Open }()
	d := NewDevice(newChanPoster())
	if err := d.Open(settings.Default("/dev/ttyNONE")); err == nil {
		t.Fatalf("expected error")
	}
	if d.IsOpen() {
		t.Fatalf("device should not be open")
	}
	if got := d.ErrorString(); got != "No such file or directory" {
		t.Fatalf("ErrorString %q", got)
	}
}

func TestDeviceDropsEventsAfterClose(t *testing.T) {
	fp := newFakePort()
	withFakePort(t, fp)
	p := newChanPoster()
	h := &recHandler{}
	d := NewDevice(p)
	d.Bind(h)
	if err := d.Open(settings.Default("/dev/ttyFAKE")); err != nil {
		t.Fatalf("Open: %v", err)
	}
	fp.reads <- readResult{data: []byte("late")}
	var fn func()
	select {
	case fn = <-p.ch:
	case <-time.After(time.Second):
		t.Fatal("no readable posted")
	}
	_ = d.Close()
	fn()
	d.Wait()
	if h.readable != 0 {
		t.Fatalf("event from closed connection delivered")
	}
	if b := d.ReadAll(); b != nil {
		t.Fatalf("ReadAll on closed device returned %q", b)
	}
}

func TestDeviceWriteClosed(t *testing.T) {
	d := NewDevice(newChanPoster())
	if _, err := d.Write([]byte("x")); !errors.Is(err, serial.ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
	if d.ErrorString() != "Device not open" {
		t.Fatalf("ErrorString %q", d.ErrorString())
	}
}

func TestDeviceQueueOverflow(t *testing.T) {
	fp := newFakePort()
	fp.gate = make(chan struct{})
	d, _, _ := openDevice(t, fp, WithQueueSize(1))
	if _, err := d.Write([]byte{1}); err != nil {
		t.Fatalf("first write: %v", err)
	}
	<-fp.started
	if _, err := d.Write([]byte{2}); err != nil {
		t.Fatalf("second write: %v", err)
	}
	n, err := d.Write([]byte{3})
	if !errors.Is(err, ErrTxOverflow) || n != 0 {
		t.Fatalf("expected overflow, got n=%d err=%v", n, err)
	}
	close(fp.gate)
}

func TestDeviceDoubleOpen(t *testing.T) {
	fp := newFakePort()
	d, _, _ := openDevice(t, fp)
	if err := d.Open(settings.Default("/dev/ttyFAKE")); err == nil {
		t.Fatalf("expected error on second open")
	}
}

// settle runs whatever the device posts until nothing arrives for a while.
func (p *chanPoster) settle() {
	for {
		select {
		case fn := <-p.ch:
			fn()
		case <-time.After(50 * time.Millisecond):
			return
		}
	}
}

func TestDeviceWriteErrorReportsResource(t *testing.T) {
	fp := newFakePort()
	fp.writeErr = &os.PathError{Op: "write", Path: "/dev/ttyFAKE", Err: syscall.EIO}
	fp.writeN = 2
	writeErrs := testutil.ToFloat64(metrics.Errors.WithLabelValues(metrics.ErrSerialWrite))
	d, p, h := openDevice(t, fp)
	if n, err := d.Write([]byte("abcd")); err != nil || n != 4 {
		t.Fatalf("Write: n=%d err=%v", n, err)
	}
	p.runUntil(t, func() bool { return len(h.errs) == 1 })
	p.settle()
	if h.errs[0] != serial.KindResource {
		t.Fatalf("kind %v", h.errs[0])
	}
	if len(h.confirmed) != 0 {
		t.Fatalf("failed write confirmed %v", h.confirmed)
	}
	if got := d.ErrorString(); got != "Input/output error" {
		t.Fatalf("ErrorString %q", got)
	}
	if got := testutil.ToFloat64(metrics.Errors.WithLabelValues(metrics.ErrSerialWrite)); got != writeErrs+1 {
		t.Fatalf("write errors %v, want %v", got, writeErrs+1)
	}
	fp.mu.Lock()
	defer fp.mu.Unlock()
	if fp.drains != 0 {
		t.Fatalf("drained after failed write")
	}
}

func TestDeviceTransientWriteErrorKeepsKind(t *testing.T) {
	fp := newFakePort()
	fp.writeErr = errors.New("glitch")
	d, p, h := openDevice(t, fp)
	if _, err := d.Write([]byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	p.runUntil(t, func() bool { return len(h.errs) == 1 })
	p.settle()
	if h.errs[0] != serial.KindWrite || len(h.confirmed) != 0 {
		t.Fatalf("errs=%v confirmed=%v", h.errs, h.confirmed)
	}
}

func TestDeviceDrainErrorCounted(t *testing.T) {
	fp := newFakePort()
	fp.drainErr = syscall.EIO
	drainErrs := testutil.ToFloat64(metrics.Errors.WithLabelValues(metrics.ErrSerialDrain))
	d, p, h := openDevice(t, fp)
	if _, err := d.Write([]byte("abc")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	p.runUntil(t, func() bool { return len(h.errs) == 1 })
	p.settle()
	if h.errs[0] != serial.KindResource {
		t.Fatalf("kind %v", h.errs[0])
	}
	if len(h.confirmed) != 0 {
		t.Fatalf("undrained write confirmed %v", h.confirmed)
	}
	if got := testutil.ToFloat64(metrics.Errors.WithLabelValues(metrics.ErrSerialDrain)); got != drainErrs+1 {
		t.Fatalf("drain errors %v, want %v", got, drainErrs+1)
	}
}
