// Package graphicsterm owns the byte streams to and from a tty: writing
// protocol commands and placeholder cells, tracking cursor position,
// reading structured responses, and wrapping output for multiplexer
// passthrough.
package graphicsterm

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/sergei-grechanik/tupimage-go/pkg/kittycmd"
)

// Cursor is a zero-based (col, row) position, or unset when the tracked
// position is unknown and must be freshly probed.
type Cursor struct {
	Col, Row int
	Valid    bool
}

// Config configures a GraphicsTerminal.
type Config struct {
	MaxCommandSize    int
	NumMuxLayers      int
	ForcePlaceholders bool
	// ShellMirror, if set, receives a copy of every write re-expressed as
	// a shell command producing the same bytes (for reproducible bug
	// reports). See mirror.go.
	ShellMirror io.Writer
	Log         *slog.Logger
}

// GraphicsTerminal is the sole owner of a tty's output (and optionally
// input) stream.
type GraphicsTerminal struct {
	out    io.Writer
	in     *os.File // nil if no input stream is available
	outFd  uintptr
	cfg    Config
	cursor Cursor
	rawTTY *ttyStack
	log    *slog.Logger
}

// New wraps out (and optionally in, for response/keypress reading) as a
// GraphicsTerminal. outFd is the file descriptor backing out, used for
// ioctls and raw-mode toggling; pass 0 if out is not a real tty (writes
// still work, but size/cursor queries and raw mode will fail).
func New(out io.Writer, in *os.File, outFd uintptr, cfg Config) *GraphicsTerminal {
	if cfg.MaxCommandSize <= 0 {
		cfg.MaxCommandSize = 4096
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &GraphicsTerminal{
		out:    out,
		in:     in,
		outFd:  outFd,
		cfg:    cfg,
		rawTTY: newTTYStack(outFd),
		log:    log,
	}
}

// IsTTY reports whether the output stream is a real terminal device.
func (g *GraphicsTerminal) IsTTY() bool {
	return g.outFd != 0 && isatty.IsTerminal(g.outFd)
}

// Write sends raw bytes, invalidating the tracked cursor since arbitrary
// content may have moved it.
func (g *GraphicsTerminal) Write(p []byte) (int, error) {
	g.cursor.Valid = false
	return g.rawWrite(p)
}

// WriteString is the string convenience form of Write.
func (g *GraphicsTerminal) WriteString(s string) error {
	_, err := g.Write([]byte(s))
	return err
}

func (g *GraphicsTerminal) rawWrite(p []byte) (int, error) {
	n, err := g.out.Write(p)
	if err != nil {
		return n, fmt.Errorf("graphicsterm: write: %w", err)
	}
	if g.cfg.ShellMirror != nil {
		mirrorShellEcho(g.cfg.ShellMirror, p)
	}
	return n, nil
}

// writeSequenceNoInvalidate writes bytes that the caller has already
// accounted for in cursor tracking (movement primitives use this so they
// can set the new position themselves rather than invalidating it).
func (g *GraphicsTerminal) writeSequenceNoInvalidate(s string) error {
	_, err := g.rawWrite([]byte(s))
	return err
}

// SendCommand serializes cmd per the command model, wraps it for the
// configured multiplexer depth, and writes+flushes it. If ForcePlaceholders
// is set and cmd carries a placement without one already marked virtual,
// the placement is mutated to virtual with a random placement id before
// serialization, and a placeholder rectangle is painted for it afterward.
func (g *GraphicsTerminal) SendCommand(cmd kittycmd.Command) error {
	cmd = g.maybeForceVirtual(cmd)

	for _, chunk := range kittycmd.SerializeAndWrap(cmd, g.cfg.MaxCommandSize, g.cfg.NumMuxLayers) {
		if err := g.writeSequenceNoInvalidate(chunk); err != nil {
			return err
		}
	}
	g.cursor.Valid = false

	if g.cfg.ForcePlaceholders {
		if err := g.paintForcedPlaceholder(cmd); err != nil {
			return err
		}
	}
	return nil
}

// ReceiveResponse performs one read of up to 4096 bytes from the input
// stream, waiting at most timeout for it, and parses those bytes as a
// response. It does not read again when the envelope is incomplete: a
// response split across reads is returned as invalid.
func (g *GraphicsTerminal) ReceiveResponse(timeout time.Duration) (kittycmd.Response, error) {
	if g.in == nil {
		return kittycmd.Response{}, fmt.Errorf("graphicsterm: no input stream configured")
	}
	release, err := g.rawTTY.acquire(rawModeOpts{minBytes: 1, timeoutDeciseconds: 1})
	if err != nil {
		return kittycmd.Response{}, err
	}
	defer release()

	buf, _ := readUntilTimeout(g.in, timeout, 4096)
	resp := kittycmd.ParseResponse(buf)
	if !resp.IsValid {
		g.cursor.Valid = false
	}
	return resp, nil
}

// WaitKeypress performs one read of up to 256 bytes of input in immediate,
// no-echo mode, waiting at most 2 seconds for it, and returns whatever that
// read delivered. It does not wait for a quiet period or collect bytes that
// arrive after that read. It never errors on a read timeout.
func (g *GraphicsTerminal) WaitKeypress() ([]byte, error) {
	if g.in == nil {
		return nil, fmt.Errorf("graphicsterm: no input stream configured")
	}
	release, err := g.rawTTY.acquire(rawModeOpts{minBytes: 1, timeoutDeciseconds: 1})
	if err != nil {
		return nil, err
	}
	defer release()

	buf, _ := readUntilTimeout(g.in, 2*time.Second, 256)
	return buf, nil
}
