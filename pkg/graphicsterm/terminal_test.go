package graphicsterm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sergei-grechanik/tupimage-go/pkg/kittycmd"
)

func TestSendCommandWritesWrappedEnvelope(t *testing.T) {
	var out bytes.Buffer
	g := New(&out, nil, 0, Config{NumMuxLayers: 1})

	cmd := kittycmd.Delete{What: kittycmd.DeleteAll}
	if err := g.SendCommand(cmd); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Ptmux;") {
		t.Errorf("expected tmux passthrough wrapping in output: %q", out.String())
	}
}

func TestWriteInvalidatesCursor(t *testing.T) {
	var out bytes.Buffer
	g := New(&out, nil, 0, Config{})
	g.cursor = Cursor{Col: 3, Row: 4, Valid: true}
	if err := g.WriteString("hello"); err != nil {
		t.Fatal(err)
	}
	if g.cursor.Valid {
		t.Error("raw Write should invalidate the tracked cursor")
	}
}

func TestMoveCursorUpdatesTrackedPosition(t *testing.T) {
	var out bytes.Buffer
	g := New(&out, nil, 0, Config{})
	g.cursor = Cursor{Col: 10, Row: 10, Valid: true}
	if err := g.MoveCursor(5, 0, 0, 3); err != nil {
		t.Fatal(err)
	}
	if g.cursor.Col != 15 || g.cursor.Row != 7 {
		t.Errorf("tracked cursor = (%d,%d), want (15,7)", g.cursor.Col, g.cursor.Row)
	}
}

func TestMoveCursorAbsSetsTrackedPosition(t *testing.T) {
	var out bytes.Buffer
	g := New(&out, nil, 0, Config{})
	if err := g.MoveCursorAbs(7, 9); err != nil {
		t.Fatal(err)
	}
	if g.cursor != (Cursor{Col: 7, Row: 9, Valid: true}) {
		t.Errorf("tracked cursor = %+v, want (7,9,valid)", g.cursor)
	}
	if !strings.Contains(out.String(), "\x1b[10;8H") {
		t.Errorf("expected 1-based CSI position, got %q", out.String())
	}
}

func TestParseCursorReport(t *testing.T) {
	col, row, ok := parseCursorReport([]byte("\x1b[21;71R"))
	if !ok {
		t.Fatal("expected a valid cursor report")
	}
	if col != 70 || row != 20 {
		t.Errorf("parseCursorReport = (%d,%d), want (70,20) zero-based", col, row)
	}
}

func TestParseCursorReportInvalid(t *testing.T) {
	if _, _, ok := parseCursorReport([]byte("garbage")); ok {
		t.Error("expected ok=false for an unrecognized report")
	}
}

func TestSetMarginsInvalidatesCursor(t *testing.T) {
	var out bytes.Buffer
	g := New(&out, nil, 0, Config{})
	g.cursor = Cursor{Col: 1, Row: 1, Valid: true}
	if err := g.SetMargins(0, 23); err != nil {
		t.Fatal(err)
	}
	if g.cursor.Valid {
		t.Error("SetMargins should invalidate the tracked cursor")
	}
	if !strings.Contains(out.String(), "\x1b[1;24r") {
		t.Errorf("expected 1-based margin sequence, got %q", out.String())
	}
}

func TestShellMirrorEscapesBytes(t *testing.T) {
	var out, mirror bytes.Buffer
	g := New(&out, nil, 0, Config{ShellMirror: &mirror})
	if err := g.WriteString("a\x1bb"); err != nil {
		t.Fatal(err)
	}
	got := mirror.String()
	if !strings.HasPrefix(got, "printf '") {
		t.Errorf("mirror output should be a printf command, got %q", got)
	}
	if !strings.Contains(got, `\x1b`) {
		t.Errorf("mirror output should hex-escape the ESC byte, got %q", got)
	}
}
