package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gdamore/tcell/v2"

	"github.com/kstaniek/go-serialterm/internal/logging"
	"github.com/kstaniek/go-serialterm/internal/metrics"
	"github.com/kstaniek/go-serialterm/internal/serial"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("serialterm %s (commit %s, built %s)\n", version, commit, date)
		return 0
	}
	if cfg == nil {
		return 2
	}
	if cfg.list {
		ports, err := serial.ListPorts()
		if err != nil {
			fmt.Fprintf(os.Stderr, "list ports: %v\n", err)
			return 1
		}
		if err := printPorts(os.Stdout, ports); err != nil {
			return 1
		}
		return 0
	}

	w, closeLog, err := logging.OpenFile(cfg.logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer func() { _ = closeLog() }()
	l := setupLogger(cfg.logFormat, cfg.logLevel, w)

	st, _ := cfg.lineSettings() // validated in parseFlags
	if st.Name == "" {
		if ports, err := serial.ListPorts(); err == nil {
			st.Name = defaultPort(ports)
			cfg.port = st.Name
		}
	}

	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	metrics.SetReadinessFunc(func() bool { return ctx.Err() == nil && metrics.Snap().Open })
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
		if cfg.mdnsEnable {
			if port, perr := listenPort(cfg.metricsAddr); perr != nil {
				l.Warn("mdns_start_failed", "error", perr)
			} else if cleanupMDNS, merr := startMDNS(ctx, cfg, port); merr != nil {
				l.Warn("mdns_start_failed", "error", merr)
			} else {
				l.Info("mdns_started", "service", mdnsServiceType, "name", cfg.mdnsName, "port", port)
				defer cleanupMDNS()
			}
		}
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintf(os.Stderr, "terminal: %v\n", err)
		return 1
	}
	if err := screen.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "terminal: %v\n", err)
		return 1
	}
	l.Info("start", "version", version, "port", st.Name, "baud", st.BaudRate)
	term := newTerminal(screen, st, cfg, l)
	rerr := term.run(ctx, cfg.connect)
	screen.Fini()
	stop()
	if rerr != nil {
		l.Error("terminal_error", "error", rerr)
		fmt.Fprintf(os.Stderr, "serialterm: %v\n", rerr)
		return 1
	}
	l.Info("exit")
	return 0
}
