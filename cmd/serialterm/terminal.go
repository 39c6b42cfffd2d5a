package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/kstaniek/go-serialterm/internal/console"
	"github.com/kstaniek/go-serialterm/internal/eventloop"
	"github.com/kstaniek/go-serialterm/internal/serial"
	"github.com/kstaniek/go-serialterm/internal/session"
	"github.com/kstaniek/go-serialterm/internal/settings"
	"github.com/kstaniek/go-serialterm/internal/transport"
)

const (
	loopQueueSize = 256
	// shutdownGrace bounds how long quitting waits for device workers.
	shutdownGrace = time.Second
)

// device is what the terminal needs from the serial transport.
type device interface {
	session.Transport
	Bind(transport.Handler)
	Wait()
}

// newDevice is a hook for tests.
var newDevice = func(p transport.Poster, cfg *appConfig, l *slog.Logger) device {
	drv, _ := serial.ParseDriver(cfg.driver)
	return transport.NewDevice(p, transport.WithDriver(drv), transport.WithLogger(l))
}

// terminal owns the control goroutine and ties the console to the session.
type terminal struct {
	st     settings.Settings
	loop   *eventloop.Loop
	screen tcell.Screen
	con    *console.Console
	dev    device
	sess   *session.Session
	logger *slog.Logger
}

func newTerminal(screen tcell.Screen, st settings.Settings, cfg *appConfig, l *slog.Logger) *terminal {
	t := &terminal{st: st, loop: eventloop.New(loopQueueSize), screen: screen, logger: l}
	t.con = console.New(screen,
		console.WithScrollback(cfg.scrollback),
		console.WithSender(func(b []byte) { t.sess.Write(b) }),
	)
	t.dev = newDevice(t.loop, cfg, l)
	t.sess = session.New(t.dev,
		session.WithPoster(t.loop),
		session.WithReporter(t.con),
		session.WithSink(t.con),
		session.WithListener(t),
		session.WithLogger(l),
		session.WithWriteTimeout(cfg.writeTimeout),
	)
	t.dev.Bind(t.sess)
	t.loop.SetIdle(t.con.Flush)
	return t
}

func (t *terminal) SessionOpened(st settings.Settings) {
	t.con.SetConnected(true)
	t.con.SetLocalEcho(st.LocalEcho)
	t.con.SetStatus(st.Summary())
}

func (t *terminal) SessionClosed() {
	t.con.SetConnected(false)
	t.con.SetStatus("Disconnected")
}

func (t *terminal) connect() {
	if t.sess.State() == session.Open {
		return
	}
	if err := t.sess.Open(t.st); err != nil {
		t.con.Report(session.SeverityCritical, err)
		t.con.SetStatus("Open error")
	}
}

func (t *terminal) handleEvent(ev tcell.Event) {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch t.con.HandleKey(ev) {
		case console.ActionConnect:
			t.connect()
		case console.ActionDisconnect:
			t.sess.Close()
		case console.ActionClear:
			t.con.Clear()
		case console.ActionQuit:
			t.sess.Close()
			t.loop.Stop()
		}
	case *tcell.EventResize:
		t.screen.Sync()
		t.con.Draw()
	}
}

// run drives the UI until quit or ctx ends. The caller owns screen init/fini.
func (t *terminal) run(ctx context.Context, autoConnect bool) error {
	t.loop.Post(ctx, func() {
		t.con.SetConnected(false)
		if autoConnect {
			t.connect()
		}
	})
	go func() {
		for {
			ev := t.screen.PollEvent()
			if ev == nil { // screen finalized
				return
			}
			if !t.loop.Post(ctx, func() { t.handleEvent(ev) }) {
				return
			}
		}
	}()
	err := t.loop.Run(ctx)
	// The loop is gone; this goroutine is still the only one touching the session.
	if t.sess.State() == session.Open {
		t.sess.Close()
	}
	t.waitDevice()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (t *terminal) waitDevice() {
	done := make(chan struct{})
	go func() { t.dev.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		t.logger.Warn("device_shutdown_timeout", "grace", shutdownGrace)
	}
}
