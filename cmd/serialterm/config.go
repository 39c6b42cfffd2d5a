package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kstaniek/go-serialterm/internal/console"
	"github.com/kstaniek/go-serialterm/internal/serial"
	"github.com/kstaniek/go-serialterm/internal/session"
	"github.com/kstaniek/go-serialterm/internal/settings"
)

type appConfig struct {
	port            string
	baud            int
	dataBits        string
	parity          string
	stopBits        string
	flowControl     string
	localEcho       bool
	driver          string
	writeTimeout    time.Duration
	scrollback      int
	connect         bool
	list            bool
	logFile         string
	logFormat       string
	logLevel        string
	metricsAddr     string
	logMetricsEvery time.Duration
	mdnsEnable      bool
	mdnsName        string
}

func defaultConfig() *appConfig {
	return &appConfig{
		baud:         115200,
		dataBits:     "8",
		parity:       "none",
		stopBits:     "1",
		flowControl:  "none",
		driver:       string(serial.DriverAuto),
		writeTimeout: session.DefaultWriteTimeout,
		scrollback:   console.DefaultScrollback,
		logFormat:    "text",
		logLevel:     "info",
	}
}

func parseFlags() (*appConfig, bool) {
	d := defaultConfig()
	cfg := &appConfig{}
	flag.StringVar(&cfg.port, "port", "", "Serial device (default: first detected port)")
	flag.IntVar(&cfg.baud, "baud", d.baud, "Baud rate: 9600|19200|38400|115200 or any custom rate")
	flag.StringVar(&cfg.dataBits, "data-bits", d.dataBits, "Data bits: 5|6|7|8")
	flag.StringVar(&cfg.parity, "parity", d.parity, "Parity: none|even|odd|mark|space")
	flag.StringVar(&cfg.stopBits, "stop-bits", d.stopBits, "Stop bits: 1|1.5|2")
	flag.StringVar(&cfg.flowControl, "flow-control", d.flowControl, "Flow control: none|rts/cts|xon/xoff")
	flag.BoolVar(&cfg.localEcho, "local-echo", false, "Echo typed characters locally")
	flag.StringVar(&cfg.driver, "driver", d.driver, "Serial driver: auto|termios|tarm")
	flag.DurationVar(&cfg.writeTimeout, "write-timeout", d.writeTimeout, "Time allowed for written bytes to be confirmed")
	flag.IntVar(&cfg.scrollback, "scrollback", d.scrollback, "Console lines kept")
	flag.BoolVar(&cfg.connect, "connect", false, "Connect on startup")
	flag.BoolVar(&cfg.list, "list", false, "List available serial ports and exit")
	flag.StringVar(&cfg.logFile, "log-file", "", "Write logs to this file (the console owns the terminal; empty discards)")
	flag.StringVar(&cfg.logFormat, "log-format", d.logFormat, "Log format: text|json")
	flag.StringVar(&cfg.logLevel, "log-level", d.logLevel, "Log level: debug|info|warn|error")
	flag.StringVar(&cfg.metricsAddr, "metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	flag.DurationVar(&cfg.logMetricsEvery, "log-metrics-interval", 0, "If >0, periodically log metrics counters")
	flag.BoolVar(&cfg.mdnsEnable, "mdns-enable", false, "Advertise the metrics endpoint via mDNS (needs -metrics-addr)")
	flag.StringVar(&cfg.mdnsName, "mdns-name", "", "mDNS instance name (default serialterm-<hostname>)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	// Track which flags were explicitly set to give them precedence over env.
	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Fprintf(os.Stderr, "environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// lineSettings converts the textual line parameters. The port name may be
// empty here; it is resolved at startup.
func (c *appConfig) lineSettings() (settings.Settings, error) {
	st := settings.Settings{Name: c.port, BaudRate: c.baud, LocalEcho: c.localEcho}
	var err error
	if st.DataBits, err = settings.ParseDataBits(c.dataBits); err != nil {
		return st, err
	}
	if st.Parity, err = settings.ParseParity(c.parity); err != nil {
		return st, err
	}
	if st.StopBits, err = settings.ParseStopBits(c.stopBits); err != nil {
		return st, err
	}
	if st.FlowControl, err = settings.ParseFlowControl(c.flowControl); err != nil {
		return st, err
	}
	return st, nil
}

// validate performs basic semantic validation of the parsed configuration.
// It does not attempt to open devices or listeners; only checks values/ranges.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	if c.baud <= 0 || c.baud > settings.MaxBaudRate {
		return fmt.Errorf("baud must be in 1..%d (got %d)", settings.MaxBaudRate, c.baud)
	}
	if _, err := c.lineSettings(); err != nil {
		return err
	}
	if _, err := serial.ParseDriver(c.driver); err != nil {
		return err
	}
	if c.writeTimeout <= 0 {
		return fmt.Errorf("write-timeout must be > 0")
	}
	if c.scrollback <= 0 {
		return fmt.Errorf("scrollback must be > 0 (got %d)", c.scrollback)
	}
	if c.logMetricsEvery < 0 {
		return fmt.Errorf("log-metrics-interval must be >= 0")
	}
	if c.mdnsEnable && c.metricsAddr == "" {
		return fmt.Errorf("mdns-enable requires metrics-addr")
	}
	return nil
}

// applyEnvOverrides maps SERIALTERM_* environment variables to config fields
// unless a corresponding flag was explicitly set. Empty values are ignored.
// Duration accepts Go time.ParseDuration format.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(flagName, key string) (string, bool) {
		if _, ok := set[flagName]; ok {
			return "", false
		}
		v, ok := os.LookupEnv(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	fail := func(key string, err error) {
		if firstErr == nil {
			firstErr = fmt.Errorf("invalid %s: %w", key, err)
		}
	}
	str := func(flagName, key string, dst *string) {
		if v, ok := get(flagName, key); ok {
			*dst = v
		}
	}
	num := func(flagName, key string, dst *int) {
		if v, ok := get(flagName, key); ok {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = n
			} else if err != nil {
				fail(key, err)
			}
		}
	}
	dur := func(flagName, key string, dst *time.Duration) {
		if v, ok := get(flagName, key); ok {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				*dst = d
			} else if err != nil {
				fail(key, err)
			}
		}
	}
	boolean := func(flagName, key string, dst *bool) {
		if v, ok := get(flagName, key); ok {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				*dst = true
			case "0", "false", "no", "off":
				*dst = false
			}
		}
	}

	str("port", "SERIALTERM_PORT", &c.port)
	num("baud", "SERIALTERM_BAUD", &c.baud)
	str("data-bits", "SERIALTERM_DATA_BITS", &c.dataBits)
	str("parity", "SERIALTERM_PARITY", &c.parity)
	str("stop-bits", "SERIALTERM_STOP_BITS", &c.stopBits)
	str("flow-control", "SERIALTERM_FLOW_CONTROL", &c.flowControl)
	boolean("local-echo", "SERIALTERM_LOCAL_ECHO", &c.localEcho)
	str("driver", "SERIALTERM_DRIVER", &c.driver)
	dur("write-timeout", "SERIALTERM_WRITE_TIMEOUT", &c.writeTimeout)
	num("scrollback", "SERIALTERM_SCROLLBACK", &c.scrollback)
	boolean("connect", "SERIALTERM_CONNECT", &c.connect)
	str("log-file", "SERIALTERM_LOG_FILE", &c.logFile)
	str("log-format", "SERIALTERM_LOG_FORMAT", &c.logFormat)
	str("log-level", "SERIALTERM_LOG_LEVEL", &c.logLevel)
	str("metrics-addr", "SERIALTERM_METRICS", &c.metricsAddr)
	dur("log-metrics-interval", "SERIALTERM_LOG_METRICS_INTERVAL", &c.logMetricsEvery)
	boolean("mdns-enable", "SERIALTERM_MDNS_ENABLE", &c.mdnsEnable)
	str("mdns-name", "SERIALTERM_MDNS_NAME", &c.mdnsName)
	return firstErr
}
