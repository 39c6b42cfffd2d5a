// Package console is the full-screen terminal UI: a scrolling view of
// received bytes, keystroke capture, a status bar and modal error reports.
//
// Console is driven from the control goroutine only. Mutations mark it dirty;
// Flush redraws once per burst of events.
package console

import (
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"github.com/kstaniek/go-serialterm/internal/session"
)

// Action is a console command resolved from a key press.
type Action int

const (
	ActionNone Action = iota
	ActionConnect
	ActionDisconnect
	ActionClear
	ActionQuit
)

var (
	textStyle   = tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorGreen)
	statusStyle = tcell.StyleDefault.Background(tcell.ColorDarkBlue).Foreground(tcell.ColorWhite)
	hintOff     = statusStyle.Foreground(tcell.ColorGray)
	modalStyle  = tcell.StyleDefault.Background(tcell.ColorDarkRed).Foreground(tcell.ColorWhite)
	warnStyle   = tcell.StyleDefault.Background(tcell.ColorOlive).Foreground(tcell.ColorBlack)
)

var (
	_ session.Sink     = (*Console)(nil)
	_ session.Reporter = (*Console)(nil)
)

type modal struct {
	sev   session.Severity
	title string
	text  string
}

type Console struct {
	screen    tcell.Screen
	sb        *Scrollback
	send      func([]byte)
	enabled   bool
	echo      bool
	connected bool
	status    string
	modals    []modal
	dirty     bool
}

type Option func(*Console)

// WithScrollback sets how many lines are kept.
func WithScrollback(n int) Option { return func(c *Console) { c.sb = NewScrollback(n) } }

// WithSender sets where typed bytes go while input is enabled.
func WithSender(fn func([]byte)) Option { return func(c *Console) { c.send = fn } }

func New(screen tcell.Screen, opts ...Option) *Console {
	c := &Console{screen: screen, sb: NewScrollback(DefaultScrollback), dirty: true}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Display appends received bytes; the view follows the end.
func (c *Console) Display(p []byte) {
	_, _ = c.sb.Write(p)
	c.dirty = true
}

// SetEnabled toggles whether keystrokes are sent.
func (c *Console) SetEnabled(on bool) {
	c.enabled = on
	c.dirty = true
}

func (c *Console) Enabled() bool { return c.enabled }

func (c *Console) SetLocalEcho(on bool) { c.echo = on }

// SetConnected selects which of Connect/Disconnect is offered.
func (c *Console) SetConnected(on bool) {
	c.connected = on
	c.dirty = true
}

func (c *Console) SetStatus(msg string) {
	c.status = msg
	c.dirty = true
}

func (c *Console) Status() string { return c.status }

func (c *Console) Clear() {
	c.sb.Clear()
	c.dirty = true
}

// Lines exposes the scrollback, oldest first.
func (c *Console) Lines() []string { return c.sb.Lines() }

// Report queues a modal message. Reports shown later wait behind the current one.
func (c *Console) Report(sev session.Severity, err error) {
	title := "Warning"
	if sev == session.SeverityCritical {
		title = "Critical Error"
	}
	c.modals = append(c.modals, modal{sev: sev, title: title, text: err.Error()})
	c.dirty = true
}

// ModalVisible reports whether a message is waiting to be dismissed.
func (c *Console) ModalVisible() bool { return len(c.modals) > 0 }

// HandleKey consumes ev. Keys typed while input is enabled are sent; the
// returned action is for the caller to carry out.
func (c *Console) HandleKey(ev *tcell.EventKey) Action {
	if len(c.modals) > 0 {
		switch ev.Key() {
		case tcell.KeyEnter, tcell.KeyEscape:
			c.modals = c.modals[1:]
			c.dirty = true
		}
		return ActionNone
	}
	switch ev.Key() {
	case tcell.KeyF2:
		return ActionConnect
	case tcell.KeyF3:
		return ActionDisconnect
	case tcell.KeyF4:
		return ActionClear
	case tcell.KeyF10:
		return ActionQuit
	}
	if !c.enabled || c.send == nil {
		return ActionNone
	}
	b := keyBytes(ev)
	if len(b) == 0 {
		return ActionNone
	}
	if c.echo {
		c.Display(b)
	}
	c.send(b)
	return ActionNone
}

// keyBytes maps a key press to what the device receives. Backspace and
// cursor keys produce nothing.
func keyBytes(ev *tcell.EventKey) []byte {
	k := ev.Key()
	switch {
	case k == tcell.KeyRune:
		return []byte(string(ev.Rune()))
	case k == tcell.KeyBackspace || k == tcell.KeyBackspace2:
		return nil
	case k >= tcell.KeyNUL && k <= tcell.KeyUS:
		return []byte{byte(k)}
	}
	return nil
}

// Flush redraws if anything changed since the last draw.
func (c *Console) Flush() {
	if c.dirty {
		c.Draw()
	}
}

// Draw renders the whole screen.
func (c *Console) Draw() {
	c.dirty = false
	s := c.screen
	w, h := s.Size()
	s.SetStyle(textStyle)
	s.Clear()
	s.HideCursor()
	if w <= 0 || h <= 0 {
		s.Show()
		return
	}
	c.drawText(w, h-1)
	c.drawStatus(w, h-1)
	if len(c.modals) > 0 {
		c.drawModal(w, h, c.modals[0])
	}
	s.Show()
}

func (c *Console) drawText(w, rows int) {
	if rows <= 0 {
		return
	}
	lines := c.sb.Lines()
	var vis []string
	for i := len(lines) - 1; i >= 0 && len(vis) < rows; i-- {
		wr := wrap(lines[i], w)
		for j := len(wr) - 1; j >= 0 && len(vis) < rows; j-- {
			vis = append(vis, wr[j])
		}
	}
	for i, row := range vis {
		c.putString(0, rows-1-i, w, row, textStyle)
	}
	if c.enabled && len(vis) > 0 {
		if x := runewidth.StringWidth(vis[0]); x < w {
			c.screen.ShowCursor(x, rows-1)
		}
	}
}

type hint struct {
	text string
	on   bool
}

func (c *Console) drawStatus(w, y int) {
	for x := 0; x < w; x++ {
		c.screen.SetContent(x, y, ' ', nil, statusStyle)
	}
	hints := []hint{
		{" F2 Connect ", !c.connected},
		{" F3 Disconnect ", c.connected},
		{" F4 Clear ", true},
		{" F10 Quit ", true},
	}
	hw := 0
	for _, h := range hints {
		hw += runewidth.StringWidth(h.text)
	}
	x := w - hw
	if x < 0 {
		x = 0
	}
	left := " " + c.status
	c.putString(0, y, x, left, statusStyle.Bold(true))
	for _, h := range hints {
		st := hintOff
		if h.on {
			st = statusStyle.Bold(true)
		}
		x = c.putString(x, y, w, h.text, st)
	}
}

func (c *Console) drawModal(w, h int, m modal) {
	body := strings.Split(m.text, "\n")
	footer := "[Enter] OK"
	inner := runewidth.StringWidth(m.title)
	for _, l := range append(body, footer) {
		if lw := runewidth.StringWidth(l); lw > inner {
			inner = lw
		}
	}
	if inner > w-4 {
		inner = w - 4
	}
	if inner < 1 {
		return
	}
	bw, bh := inner+4, len(body)+4
	x0, y0 := (w-bw)/2, (h-bh)/2
	if y0 < 0 {
		y0 = 0
	}
	st := warnStyle
	if m.sev == session.SeverityCritical {
		st = modalStyle
	}
	for y := y0; y < y0+bh && y < h; y++ {
		for x := x0; x < x0+bw; x++ {
			c.screen.SetContent(x, y, ' ', nil, st)
		}
	}
	for x := x0; x < x0+bw; x++ {
		c.screen.SetContent(x, y0, tcell.RuneHLine, nil, st)
		c.screen.SetContent(x, y0+bh-1, tcell.RuneHLine, nil, st)
	}
	for y := y0; y < y0+bh; y++ {
		c.screen.SetContent(x0, y, tcell.RuneVLine, nil, st)
		c.screen.SetContent(x0+bw-1, y, tcell.RuneVLine, nil, st)
	}
	c.screen.SetContent(x0, y0, tcell.RuneULCorner, nil, st)
	c.screen.SetContent(x0+bw-1, y0, tcell.RuneURCorner, nil, st)
	c.screen.SetContent(x0, y0+bh-1, tcell.RuneLLCorner, nil, st)
	c.screen.SetContent(x0+bw-1, y0+bh-1, tcell.RuneLRCorner, nil, st)

	title := " " + runewidth.Truncate(m.title, inner, "") + " "
	c.putString(x0+(bw-runewidth.StringWidth(title))/2, y0, x0+bw-1, title, st.Bold(true))
	for i, l := range body {
		c.putString(x0+2, y0+1+i, x0+2+inner, runewidth.Truncate(l, inner, "…"), st)
	}
	c.putString(x0+bw-2-runewidth.StringWidth(footer), y0+bh-2, x0+bw-2, footer, st.Bold(true))
}

// putString draws s from x until the limit column and returns the next column.
func (c *Console) putString(x, y, limit int, s string, st tcell.Style) int {
	for _, r := range s {
		rw := runewidth.RuneWidth(r)
		if x+rw > limit {
			break
		}
		c.screen.SetContent(x, y, r, nil, st)
		x += rw
	}
	return x
}
