package graphicsterm

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/x/term"
)

// rawModeOpts configures the non-canonical tty mode an acquisition sets.
// minBytes/timeoutDeciseconds mirror POSIX termios VMIN/VTIME semantics;
// they are not used directly against termios here (charmbracelet/x/term's
// MakeRaw already selects non-canonical, echo-off mode) but document the
// read discipline callers rely on.
type rawModeOpts struct {
	minBytes           int
	timeoutDeciseconds int
}

// ttyStack is a scoped, stacked acquisition of raw tty mode: the first
// acquire() call switches the fd to raw mode, nested calls are no-ops
// against the fd but still stack-counted, and the fd's original settings
// are restored only once the outermost release fires. Every release path,
// including one triggered by a panic recovered higher up, pops its frame.
type ttyStack struct {
	fd     uintptr
	depth  int
	orig   *term.State
}

func newTTYStack(fd uintptr) *ttyStack {
	return &ttyStack{fd: fd}
}

// acquire switches the tty to raw mode if this is the outermost
// acquisition, and returns a release function that must be called exactly
// once, typically via defer, on every exit path.
func (s *ttyStack) acquire(opts rawModeOpts) (release func(), err error) {
	if s.fd == 0 {
		return nil, fmt.Errorf("graphicsterm: no tty file descriptor available for raw mode")
	}
	if s.depth == 0 {
		state, err := term.MakeRaw(int(s.fd))
		if err != nil {
			return nil, fmt.Errorf("graphicsterm: enter raw mode: %w", err)
		}
		s.orig = state
	}
	s.depth++

	released := false
	return func() {
		if released {
			return
		}
		released = true
		s.depth--
		if s.depth == 0 && s.orig != nil {
			_ = term.Restore(int(s.fd), s.orig)
			s.orig = nil
		}
	}, nil
}

// readUntilTimeout performs a single Read of up to max bytes from r and
// returns what it got together with that Read's error. If the Read has not
// returned within timeout (counted from the call), it returns (nil, nil)
// and leaves the Read running in its goroutine. Bytes from more than one
// Read are never combined.
func readUntilTimeout(r io.Reader, timeout time.Duration, max int) ([]byte, error) {
	type readResult struct {
		b   []byte
		err error
	}
	ch := make(chan readResult, 1)
	go func() {
		buf := make([]byte, max)
		n, err := r.Read(buf)
		ch <- readResult{buf[:n], err}
	}()

	select {
	case res := <-ch:
		return res.b, res.err
	case <-time.After(timeout):
		return nil, nil
	}
}
