package graphicsterm

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sergei-grechanik/tupimage-go/pkg/terminal"
)

// GetCursorPosition probes the terminal for its actual cursor position,
// updating the tracked cursor on success. Returns zero-based (col, row).
func (g *GraphicsTerminal) GetCursorPosition(timeout time.Duration) (col, row int, err error) {
	if g.in == nil {
		return 0, 0, fmt.Errorf("graphicsterm: no input stream configured")
	}
	if err := g.writeSequenceNoInvalidate("\x1b[6n"); err != nil {
		return 0, 0, err
	}

	release, err := g.rawTTY.acquire(rawModeOpts{minBytes: 1, timeoutDeciseconds: int(timeout / (100 * time.Millisecond))})
	if err != nil {
		return 0, 0, err
	}
	defer release()

	buf, _ := readUntilTimeout(g.in, timeout, 64)
	col, row, ok := parseCursorReport(buf)
	if !ok {
		g.cursor.Valid = false
		return 0, 0, fmt.Errorf("graphicsterm: timed out or got an unrecognized cursor position report")
	}
	g.cursor = Cursor{Col: col, Row: row, Valid: true}
	return col, row, nil
}

// parseCursorReport parses `ESC [ <row> ; <col> R` (1-based on the wire)
// and returns zero-based (col, row).
func parseCursorReport(buf []byte) (col, row int, ok bool) {
	s := string(buf)
	start := strings.Index(s, "\x1b[")
	if start < 0 {
		return 0, 0, false
	}
	rest := s[start+2:]
	end := strings.IndexByte(rest, 'R')
	if end < 0 {
		return 0, 0, false
	}
	body := rest[:end]
	parts := strings.SplitN(body, ";", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	r, err1 := strconv.Atoi(parts[0])
	c, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || r < 1 || c < 1 {
		return 0, 0, false
	}
	return c - 1, r - 1, true
}

// GetCursorPositionTracked returns the cached cursor if valid, else
// probes the terminal.
func (g *GraphicsTerminal) GetCursorPositionTracked(timeout time.Duration) (col, row int, err error) {
	if g.cursor.Valid {
		return g.cursor.Col, g.cursor.Row, nil
	}
	return g.GetCursorPosition(timeout)
}

// GetSize returns the terminal's (cols, rows).
func (g *GraphicsTerminal) GetSize() (cols, rows int, err error) {
	if g.outFd == 0 {
		return 0, 0, fmt.Errorf("graphicsterm: no tty file descriptor available for size query")
	}
	s := terminal.GetSizeFromFd(g.outFd)
	if s.Cols <= 0 || s.Rows <= 0 {
		return 0, 0, fmt.Errorf("graphicsterm: terminal size unavailable")
	}
	return s.Cols, s.Rows, nil
}

// GetCellSize returns the terminal's per-cell pixel dimensions, or
// ok=false if the terminal doesn't report them.
func (g *GraphicsTerminal) GetCellSize() (cellW, cellH int, ok bool) {
	if g.outFd == 0 {
		return 0, 0, false
	}
	s := terminal.GetSizeFromFd(g.outFd)
	if s.CellW <= 0 || s.CellH <= 0 {
		return 0, 0, false
	}
	return s.CellW, s.CellH, true
}

// MoveCursor emits a relative CSI cursor movement and updates the tracked
// cursor if it was valid beforehand.
func (g *GraphicsTerminal) MoveCursor(right, down, left, up int) error {
	var b strings.Builder
	if up > 0 {
		fmt.Fprintf(&b, "\x1b[%dA", up)
	}
	if down > 0 {
		fmt.Fprintf(&b, "\x1b[%dB", down)
	}
	if right > 0 {
		fmt.Fprintf(&b, "\x1b[%dC", right)
	}
	if left > 0 {
		fmt.Fprintf(&b, "\x1b[%dD", left)
	}
	if err := g.writeSequenceNoInvalidate(b.String()); err != nil {
		return err
	}
	if g.cursor.Valid {
		g.cursor.Col += right - left
		g.cursor.Row += down - up
	}
	return nil
}

// MoveCursorAbs emits an absolute CSI cursor positioning sequence
// (1-based on the wire, zero-based col/row here) and updates the tracked
// cursor unconditionally.
func (g *GraphicsTerminal) MoveCursorAbs(col, row int) error {
	if err := g.writeSequenceNoInvalidate(fmt.Sprintf("\x1b[%d;%dH", row+1, col+1)); err != nil {
		return err
	}
	g.cursor = Cursor{Col: col, Row: row, Valid: true}
	return nil
}

// SetMargins sets the scrolling region to [top, bottom] (zero-based,
// inclusive) and invalidates the tracked cursor, since DECSTBM also
// repositions the cursor to the origin per the terminal's current
// origin-mode setting.
func (g *GraphicsTerminal) SetMargins(top, bottom int) error {
	g.cursor.Valid = false
	return g.writeSequenceNoInvalidate(fmt.Sprintf("\x1b[%d;%dr", top+1, bottom+1))
}

// ScrollUp scrolls the screen content up by n lines (SU), revealing n
// blank lines at the bottom.
func (g *GraphicsTerminal) ScrollUp(n int) error {
	g.cursor.Valid = false
	return g.writeSequenceNoInvalidate(fmt.Sprintf("\x1b[%dS", n))
}

// ScrollDown scrolls the screen content down by n lines (SD), revealing n
// blank lines at the top.
func (g *GraphicsTerminal) ScrollDown(n int) error {
	g.cursor.Valid = false
	return g.writeSequenceNoInvalidate(fmt.Sprintf("\x1b[%dT", n))
}

// Reset emits a full terminal reset (RIS) and invalidates the tracked
// cursor.
func (g *GraphicsTerminal) Reset() error {
	g.cursor.Valid = false
	return g.writeSequenceNoInvalidate("\x1bc")
}
