package console

import (
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

const (
	DefaultScrollback = 100
	tabWidth          = 8
)

// Scrollback keeps the most recent lines of received text. The line being
// received counts towards the limit.
type Scrollback struct {
	max   int
	lines []string
	cur   strings.Builder
	col   int    // display column of cur, for tab stops
	tail  []byte // incomplete UTF-8 sequence from the previous chunk
}

func NewScrollback(max int) *Scrollback {
	if max <= 0 {
		max = DefaultScrollback
	}
	return &Scrollback{max: max}
}

// Write appends raw device bytes. It never fails.
func (s *Scrollback) Write(p []byte) (int, error) {
	n := len(p)
	if len(s.tail) > 0 {
		p = append(s.tail, p...)
		s.tail = nil
	}
	for len(p) > 0 {
		r, size := utf8.DecodeRune(p)
		if r == utf8.RuneError && size <= 1 {
			if !utf8.FullRune(p) {
				s.tail = append([]byte(nil), p...)
				break
			}
		}
		p = p[size:]
		s.putRune(r)
	}
	return n, nil
}

func (s *Scrollback) putRune(r rune) {
	switch {
	case r == '\n':
		s.newline()
	case r == '\t':
		pad := tabWidth - s.col%tabWidth
		s.cur.WriteString(strings.Repeat(" ", pad))
		s.col += pad
	case r < 0x20 || r == 0x7f || (r >= 0x80 && r < 0xa0):
		// '\r' and other controls are not rendered
	default:
		s.cur.WriteRune(r)
		s.col += runewidth.RuneWidth(r)
	}
}

func (s *Scrollback) newline() {
	s.lines = append(s.lines, s.cur.String())
	s.cur.Reset()
	s.col = 0
	if over := len(s.lines) + 1 - s.max; over > 0 {
		s.lines = append(s.lines[:0], s.lines[over:]...)
	}
}

// Lines returns the stored lines, oldest first, ending with the partial line.
func (s *Scrollback) Lines() []string {
	out := make([]string, 0, len(s.lines)+1)
	out = append(out, s.lines...)
	return append(out, s.cur.String())
}

// Len is the number of lines including the partial one.
func (s *Scrollback) Len() int { return len(s.lines) + 1 }

func (s *Scrollback) Clear() {
	s.lines = nil
	s.cur.Reset()
	s.col = 0
	s.tail = nil
}

// wrap splits line into rows no wider than width cells.
func wrap(line string, width int) []string {
	if width <= 0 {
		return nil
	}
	if runewidth.StringWidth(line) <= width {
		return []string{line}
	}
	var rows []string
	var b strings.Builder
	w := 0
	for _, r := range line {
		rw := runewidth.RuneWidth(r)
		if w+rw > width {
			rows = append(rows, b.String())
			b.Reset()
			w = 0
		}
		b.WriteRune(r)
		w += rw
	}
	return append(rows, b.String())
}
