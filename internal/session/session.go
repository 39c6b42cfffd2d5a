// Package session owns the lifecycle of the single serial connection: open,
// close, writes with a restartable acknowledgement timeout, and the reaction
// to device errors.
//
// A Session is not safe for concurrent use. All methods, including the On*
// notifications, must run on one control goroutine (see internal/eventloop).
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kstaniek/go-serialterm/internal/logging"
	"github.com/kstaniek/go-serialterm/internal/metrics"
	"github.com/kstaniek/go-serialterm/internal/serial"
	"github.com/kstaniek/go-serialterm/internal/settings"
)

// DefaultWriteTimeout is how long written bytes may stay unconfirmed.
const DefaultWriteTimeout = 5 * time.Second

type State int

const (
	Closed State = iota
	Open
)

func (s State) String() string {
	if s == Open {
		return "open"
	}
	return "closed"
}

type Severity int

const (
	SeverityWarning Severity = iota
	SeverityCritical
)

func (s Severity) String() string {
	if s == SeverityCritical {
		return "critical"
	}
	return "warning"
}

// Transport is the serial device as seen by the session. Open, Close and
// Write must not block; completion arrives later through the On* methods.
type Transport interface {
	Open(settings.Settings) error
	Close() error
	Write(p []byte) (int, error)
	ReadAll() []byte
	ErrorString() string
}

// Reporter presents errors to the user.
type Reporter interface {
	Report(Severity, error)
}

// Sink displays inbound bytes and accepts input only while enabled.
type Sink interface {
	Display(p []byte)
	SetEnabled(bool)
}

// Listener is told about lifecycle changes so it can flip UI affordances.
type Listener interface {
	SessionOpened(settings.Settings)
	SessionClosed()
}

// Poster queues a handler onto the control goroutine.
type Poster interface {
	Post(ctx context.Context, fn func()) bool
}

type Session struct {
	tr       Transport
	post     Poster
	clock    Clock
	rep      Reporter
	sink     Sink
	lis      Listener
	logger   *slog.Logger
	timeout  time.Duration
	state    State
	settings settings.Settings
	pending  int64
	timer    Timer
	armed    bool
	// gen identifies the current countdown; callbacks from older ones are ignored.
	gen uint64
}

type Option func(*Session)

// WithPoster sets where timer callbacks run. It is required unless a Clock
// that fires on the control goroutine is supplied with WithClock.
func WithPoster(p Poster) Option     { return func(s *Session) { s.post = p } }
func WithClock(c Clock) Option       { return func(s *Session) { s.clock = c } }
func WithReporter(r Reporter) Option { return func(s *Session) { s.rep = r } }
func WithSink(k Sink) Option         { return func(s *Session) { s.sink = k } }
func WithListener(l Listener) Option { return func(s *Session) { s.lis = l } }

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New returns a Closed session driving tr.
func New(tr Transport, opts ...Option) *Session {
	s := &Session{
		tr:      tr,
		clock:   realClock{},
		sink:    nopSink{},
		lis:     nopListener{},
		logger:  logging.L(),
		timeout: DefaultWriteTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	if s.rep == nil {
		s.rep = logReporter{s.logger}
	}
	if s.post == nil {
		// Real timers fire on their own goroutine; running fire there would
		// race with the control goroutine.
		if _, ok := s.clock.(realClock); ok {
			panic(ErrNoPoster)
		}
		s.post = inlinePoster{}
	}
	return s
}

func (s *Session) State() State                { return s.state }
func (s *Session) Pending() int64              { return s.pending }
func (s *Session) TimeoutArmed() bool          { return s.armed }
func (s *Session) Settings() settings.Settings { return s.settings }

// Open applies st and acquires the device. On failure the session stays
// Closed, no UI state changes and the returned *OpenError carries the
// transport's diagnostic for the caller to show.
func (s *Session) Open(st settings.Settings) error {
	if s.state == Open {
		return &OpenError{Port: st.Name, Reason: "Device is already open", Err: ErrAlreadyOpen}
	}
	if err := s.tr.Open(st); err != nil {
		metrics.IncError(metrics.ErrOpen)
		oerr := &OpenError{Port: st.Name, Reason: s.tr.ErrorString(), Err: err}
		s.logger.Warn("serial_open_failed", "port", st.Name, "error", oerr.Error())
		return oerr
	}
	s.settings = st
	s.state = Open
	s.pending = 0
	s.disarm()
	metrics.IncSessionOpen()
	metrics.SetSessionOpen(true)
	metrics.SetPending(0)
	s.logger.Info("serial_open", "port", st.Name, "baud", st.BaudRate, "data_bits", int(st.DataBits),
		"parity", st.Parity.String(), "stop_bits", st.StopBits.String(), "flow", st.FlowControl.String())
	s.sink.SetEnabled(true)
	s.lis.SessionOpened(st)
	return nil
}

// Close releases the device. Calling it while Closed only refreshes the UI.
func (s *Session) Close() {
	if s.state == Open {
		if err := s.tr.Close(); err != nil {
			s.logger.Debug("serial_close_error", "port", s.settings.Name, "error", err)
		}
		s.state = Closed
		metrics.SetSessionOpen(false)
		s.logger.Info("serial_close", "port", s.settings.Name)
	}
	s.pending = 0
	metrics.SetPending(0)
	s.disarm()
	s.sink.SetEnabled(false)
	s.lis.SessionClosed()
}

// Write submits p. It panics with ErrNotOpen when the session is Closed.
func (s *Session) Write(p []byte) {
	if s.state != Open {
		panic(ErrNotOpen)
	}
	if len(p) == 0 {
		return
	}
	n, err := s.tr.Write(p)
	if err == nil && n == len(p) {
		s.pending += int64(n)
		metrics.AddTxAccepted(n)
		metrics.SetPending(s.pending)
		s.arm()
		return
	}
	werr := &WriteError{Port: s.settings.Name, Reason: s.tr.ErrorString(), Submitted: len(p), Accepted: n, Err: err}
	metrics.IncError(metrics.ErrWrite)
	s.logger.Warn("serial_write_failed", "port", s.settings.Name, "submitted", len(p), "accepted", n, "error", werr.Reason)
	s.rep.Report(SeverityWarning, werr)
}

// OnReadable moves everything the transport buffered into the sink.
func (s *Session) OnReadable() {
	if s.state != Open {
		return
	}
	if data := s.tr.ReadAll(); len(data) > 0 {
		s.sink.Display(data)
	}
}

// OnBytesConfirmed accounts for n bytes the transport reports as flushed.
// Confirming more than is pending panics with ErrConfirmOverflow.
func (s *Session) OnBytesConfirmed(n int) {
	if s.state != Open {
		s.logger.Debug("confirm_while_closed", "bytes", n)
		return
	}
	if n < 0 || int64(n) > s.pending {
		panic(fmt.Errorf("%w: confirmed %d, pending %d", ErrConfirmOverflow, n, s.pending))
	}
	s.pending -= int64(n)
	metrics.AddTxConfirmed(n)
	metrics.SetPending(s.pending)
	if s.pending == 0 {
		s.disarm()
	}
}

// OnWriteTimeout reports that confirmations did not arrive in time. The
// session stays Open and pending bytes are kept.
func (s *Session) OnWriteTimeout() {
	if s.state != Open {
		return
	}
	s.armed = false
	s.timer = nil
	terr := &WriteTimeoutError{Port: s.settings.Name, Reason: s.tr.ErrorString(), Pending: s.pending}
	metrics.IncWriteTimeout()
	metrics.IncError(metrics.ErrWriteTimeout)
	s.logger.Warn("write_timeout", "port", s.settings.Name, "pending", s.pending, "error", terr.Reason)
	s.rep.Report(SeverityWarning, terr)
}

// OnDeviceError closes the session on resource loss and ignores every other
// kind; those are transient or already handled by the failing operation.
func (s *Session) OnDeviceError(kind serial.ErrorKind) {
	if s.state != Open {
		return
	}
	if kind != serial.KindResource {
		s.logger.Debug("device_error_ignored", "port", s.settings.Name, "kind", kind.String(), "error", s.tr.ErrorString())
		return
	}
	ferr := &DeviceFatalError{Port: s.settings.Name, Reason: s.tr.ErrorString(), Kind: kind}
	metrics.IncError(metrics.ErrDeviceFatal)
	s.logger.Error("device_fatal", "port", s.settings.Name, "error", ferr.Reason)
	s.rep.Report(SeverityCritical, ferr)
	s.Close()
}

// arm (re)starts the single-shot countdown, replacing any running one.
func (s *Session) arm() {
	s.disarm()
	gen := s.gen
	s.armed = true
	s.timer = s.clock.AfterFunc(s.timeout, func() {
		s.post.Post(context.Background(), func() { s.fire(gen) })
	})
}

func (s *Session) disarm() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.armed = false
	s.gen++
}

// fire runs on the control goroutine; a countdown that was disarmed or
// replaced after its callback was queued is ignored here.
func (s *Session) fire(gen uint64) {
	if gen != s.gen || !s.armed {
		return
	}
	s.OnWriteTimeout()
}

type inlinePoster struct{}

func (inlinePoster) Post(_ context.Context, fn func()) bool { fn(); return true }

type nopSink struct{}

func (nopSink) Display([]byte)  {}
func (nopSink) SetEnabled(bool) {}

type nopListener struct{}

func (nopListener) SessionOpened(settings.Settings) {}
func (nopListener) SessionClosed()                  {}

type logReporter struct{ l *slog.Logger }

func (r logReporter) Report(sev Severity, err error) {
	r.l.Warn("session_report", "severity", sev.String(), "error", err)
}
