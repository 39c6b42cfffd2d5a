package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/kstaniek/go-serialterm/internal/logging"
	"github.com/kstaniek/go-serialterm/internal/metrics"
	"github.com/kstaniek/go-serialterm/internal/serial"
	"github.com/kstaniek/go-serialterm/internal/settings"
)

const (
	DefaultTxQueueSize = 64   // write chunks buffered ahead of the device
	readBufSize        = 4096 // per read() buffer
	rxBackoffMin       = 20 * time.Millisecond
	rxBackoffMax       = 500 * time.Millisecond
)

var (
	ErrTxOverflow  = errors.New("serial tx overflow")
	errAlreadyOpen = errors.New("device already open")
)

// openPort is a hook for tests.
var openPort = serial.Open

// sleepFn allows tests to intercept backoff sleeps.
var sleepFn = time.Sleep

// Device is the non-blocking serial transport behind a session. Open, Close,
// Write, ReadAll and ErrorString are called on the control goroutine; the RX
// loop and the TX worker report back by posting to it.
type Device struct {
	post    Poster
	driver  serial.Driver
	queue   int
	logger  *slog.Logger
	h       Handler
	workers sync.WaitGroup

	// owned by the control goroutine
	cur   *conn
	epoch uint64

	mu     sync.Mutex
	errStr string
}

// conn is one open connection. Workers keep a pointer to their own conn so a
// reopen never sees bytes read by a previous one.
type conn struct {
	port   serial.Port
	tx     *AsyncTx
	cancel context.CancelFunc
	ctx    context.Context
	epoch  uint64

	mu       sync.Mutex
	rx       []byte
	notified bool
}

type DeviceOption func(*Device)

func WithDriver(d serial.Driver) DeviceOption { return func(dv *Device) { dv.driver = d } }

func WithQueueSize(n int) DeviceOption {
	return func(dv *Device) {
		if n > 0 {
			dv.queue = n
		}
	}
}

func WithLogger(l *slog.Logger) DeviceOption {
	return func(dv *Device) {
		if l != nil {
			dv.logger = l
		}
	}
}

func NewDevice(post Poster, opts ...DeviceOption) *Device {
	d := &Device{
		post:   post,
		driver: serial.DriverAuto,
		queue:  DefaultTxQueueSize,
		logger: logging.L(),
		errStr: serial.Describe(nil),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Bind sets the receiver of device notifications. It must be called before Open.
func (d *Device) Bind(h Handler) { d.h = h }

func (d *Device) setErr(err error) {
	d.mu.Lock()
	d.errStr = serial.Describe(err)
	d.mu.Unlock()
}

// ErrorString describes the most recent device error.
func (d *Device) ErrorString() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.errStr
}

// IsOpen reports whether a connection is held.
func (d *Device) IsOpen() bool { return d.cur != nil }

// Open acquires the port described by s and starts its workers.
func (d *Device) Open(s settings.Settings) error {
	if d.cur != nil {
		d.setErr(errAlreadyOpen)
		return errAlreadyOpen
	}
	port, err := openPort(s, d.driver)
	if err != nil {
		d.setErr(err)
		return err
	}
	d.setErr(nil)
	d.epoch++
	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{port: port, ctx: ctx, cancel: cancel, epoch: d.epoch}
	c.tx = NewAsyncTx(ctx, d.queue, d.sender(c), d.txHooks(c))
	d.cur = c
	d.workers.Add(1)
	go d.rxLoop(c, s.Name)
	return nil
}

// Close stops the workers and releases the port. It does not wait for a TX
// worker stuck in a blocking write; Wait does.
func (d *Device) Close() error {
	c := d.cur
	if c == nil {
		return nil
	}
	d.cur = nil
	d.epoch++
	c.cancel()
	err := c.port.Close()
	d.workers.Add(1)
	go func() {
		defer d.workers.Done()
		c.tx.Close()
	}()
	return err
}

// Wait blocks until every worker of every closed connection has exited.
func (d *Device) Wait() { d.workers.Wait() }

// Write queues a copy of p for transmission. A chunk is accepted whole or
// not at all.
func (d *Device) Write(p []byte) (int, error) {
	c := d.cur
	if c == nil {
		d.setErr(serial.ErrNotOpen)
		return 0, serial.ErrNotOpen
	}
	buf := append([]byte(nil), p...)
	if err := c.tx.Send(buf); err != nil {
		d.setErr(err)
		return 0, err
	}
	return len(p), nil
}

// ReadAll returns and clears everything received since the last call.
func (d *Device) ReadAll() []byte {
	c := d.cur
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.rx
	c.rx = nil
	c.notified = false
	return b
}

// deliver runs fn on the control goroutine if c is still the current
// connection by then.
func (d *Device) deliver(c *conn, fn func(h Handler)) {
	d.post.Post(c.ctx, func() {
		if d.epoch != c.epoch || d.h == nil {
			return
		}
		fn(d.h)
	})
}

func (d *Device) sender(c *conn) func([]byte) (int, error) {
	return func(p []byte) (int, error) {
		n, err := c.port.Write(p)
		if err != nil {
			return n, err
		}
		if dr, ok := c.port.(serial.Drainer); ok {
			if err := dr.Drain(); err != nil {
				metrics.IncError(metrics.ErrSerialDrain)
				return n, err
			}
		}
		return n, nil
	}
}

func (d *Device) txHooks(c *conn) Hooks {
	return Hooks{
		OnError: func(n int, err error) {
			if c.ctx.Err() != nil {
				return
			}
			// Bytes taken by a failed write are counted but never confirmed;
			// they stay pending in the session until it closes.
			if n > 0 {
				metrics.AddSerialTx(n)
			}
			metrics.IncError(metrics.ErrSerialWrite)
			d.logger.Error("serial_write_error", "error", err, "written", n)
			d.setErr(err)
			kind := serial.Classify(err, serial.KindWrite)
			d.deliver(c, func(h Handler) { h.OnDeviceError(kind) })
		},
		OnAfter: func(n int) {
			metrics.AddSerialTx(n)
			d.deliver(c, func(h Handler) { h.OnBytesConfirmed(n) })
		},
		OnDrop: func() error {
			metrics.IncError(metrics.ErrSerialOverflow)
			return ErrTxOverflow
		},
	}
}

func (d *Device) rxLoop(c *conn, name string) {
	defer d.workers.Done()
	defer d.logger.Debug("serial_rx_end", "port", name)
	buf := make([]byte, readBufSize)
	backoff := rxBackoffMin
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}
		n, err := c.port.Read(buf)
		if n > 0 {
			metrics.AddSerialRx(n)
			c.mu.Lock()
			c.rx = append(c.rx, buf[:n]...)
			notify := !c.notified
			c.notified = true
			c.mu.Unlock()
			if notify {
				d.deliver(c, func(h Handler) { h.OnReadable() })
			}
			backoff = rxBackoffMin
		}
		if err == nil {
			continue
		}
		if c.ctx.Err() != nil { // closing
			return
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			continue // read timeout with no data
		}
		var perr *os.PathError
		if errors.As(err, &perr) || serial.Classify(err, serial.KindRead) == serial.KindResource {
			metrics.IncError(metrics.ErrSerialRead)
			d.logger.Error("serial_device_lost", "port", name, "error", err)
			d.setErr(err)
			d.deliver(c, func(h Handler) { h.OnDeviceError(serial.KindResource) })
			return
		}
		metrics.IncError(metrics.ErrSerialRead)
		d.logger.Warn("serial_read_error", "port", name, "error", err, "backoff", backoff)
		d.setErr(err)
		d.deliver(c, func(h Handler) { h.OnDeviceError(serial.KindRead) })
		sleepFn(backoff)
		backoff *= 2
		if backoff > rxBackoffMax {
			backoff = rxBackoffMax
		}
	}
}
