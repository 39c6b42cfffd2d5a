package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/go-serialterm/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters
var (
	SerialRxBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serial_rx_bytes_total",
		Help: "Total bytes read from the serial device.",
	})
	SerialTxBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serial_tx_bytes_total",
		Help: "Total bytes written to the serial device by the TX worker.",
	})
	TxAcceptedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_tx_accepted_bytes_total",
		Help: "Total bytes accepted by the transport on session writes.",
	})
	TxConfirmedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_tx_confirmed_bytes_total",
		Help: "Total bytes the transport confirmed as flushed.",
	})
	WriteTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_write_timeouts_total",
		Help: "Write confirmations that did not arrive within the timeout.",
	})
	SessionOpens = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_opens_total",
		Help: "Successful port opens.",
	})
	SessionOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "session_open",
		Help: "1 while a serial port is open.",
	})
	PendingWriteBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "session_pending_write_bytes",
		Help: "Bytes handed to the transport but not yet confirmed.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrOpen           = "open"
	ErrWrite          = "write"
	ErrWriteTimeout   = "write_timeout"
	ErrDeviceFatal    = "device_fatal"
	ErrSerialRead     = "serial_read"
	ErrSerialWrite    = "serial_write"
	ErrSerialDrain    = "serial_drain"
	ErrSerialOverflow = "serial_tx_overflow"
)

// StartHTTP serves Prometheus metrics at /metrics and readiness at /ready.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process)
var (
	localRx        uint64
	localTx        uint64
	localAccepted  uint64
	localConfirmed uint64
	localTimeouts  uint64
	localOpens     uint64
	localOpen      uint64
	localPending   uint64
	localErrors    uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	SerialRx     uint64
	SerialTx     uint64
	TxAccepted   uint64
	TxConfirmed  uint64
	Timeouts     uint64
	Opens        uint64
	Open         bool
	PendingBytes uint64
	Errors       uint64 // sum across error labels
}

func Snap() Snapshot {
	return Snapshot{
		SerialRx:     atomic.LoadUint64(&localRx),
		SerialTx:     atomic.LoadUint64(&localTx),
		TxAccepted:   atomic.LoadUint64(&localAccepted),
		TxConfirmed:  atomic.LoadUint64(&localConfirmed),
		Timeouts:     atomic.LoadUint64(&localTimeouts),
		Opens:        atomic.LoadUint64(&localOpens),
		Open:         atomic.LoadUint64(&localOpen) == 1,
		PendingBytes: atomic.LoadUint64(&localPending),
		Errors:       atomic.LoadUint64(&localErrors),
	}
}

func AddSerialRx(n int) {
	SerialRxBytes.Add(float64(n))
	atomic.AddUint64(&localRx, uint64(n))
}

func AddSerialTx(n int) {
	SerialTxBytes.Add(float64(n))
	atomic.AddUint64(&localTx, uint64(n))
}

func AddTxAccepted(n int) {
	TxAcceptedBytes.Add(float64(n))
	atomic.AddUint64(&localAccepted, uint64(n))
}

func AddTxConfirmed(n int) {
	TxConfirmedBytes.Add(float64(n))
	atomic.AddUint64(&localConfirmed, uint64(n))
}

func IncWriteTimeout() {
	WriteTimeouts.Inc()
	atomic.AddUint64(&localTimeouts, 1)
}

func IncSessionOpen() {
	SessionOpens.Inc()
	atomic.AddUint64(&localOpens, 1)
}

// SetSessionOpen records the lifecycle state.
func SetSessionOpen(open bool) {
	var v uint64
	if open {
		v = 1
	}
	SessionOpen.Set(float64(v))
	atomic.StoreUint64(&localOpen, v)
}

func SetPending(n int64) {
	if n < 0 {
		n = 0
	}
	PendingWriteBytes.Set(float64(n))
	atomic.StoreUint64(&localPending, uint64(n))
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	// Pre-register error label series so they are scraped as zero.
	for _, lbl := range []string{
		ErrOpen, ErrWrite, ErrWriteTimeout, ErrDeviceFatal,
		ErrSerialRead, ErrSerialWrite, ErrSerialDrain, ErrSerialOverflow,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // not set yet: treat as ready so the endpoint doesn't flap
		return true
	}
	return fn()
}
