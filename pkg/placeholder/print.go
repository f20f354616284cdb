package placeholder

import (
	"fmt"
	"strings"
)

// Pos is an absolute screen position used to anchor each placeholder
// line, when the caller wants print_placeholder to position every line
// itself rather than relying on wherever the cursor is currently left.
type Pos struct {
	X, Y int
}

// PrintParams configures one print_placeholder call.
type PrintParams struct {
	ImageID     uint32
	PlacementID uint32
	ColorBits   ColorBits

	StartCol, StartRow int
	EndCol, EndRow     int

	FewerDiacritics bool
	// PlaceholderChar overrides the base marker rune; 0 selects MarkerChar.
	PlaceholderChar rune
	// Formatting, if non-empty, is prepended to every line; an SGR reset
	// follows each line.
	Formatting string

	Pos           *Pos
	UseSaveCursor bool
}

// Print emits (EndRow-StartRow) lines of (EndCol-StartCol) cells to sink,
// encoding (ImageID, PlacementID, row, col, 4th-id-byte) into each cell's
// color and diacritics. Byte4 is the id's most significant byte, included
// whenever the cell's diacritic level reaches LevelRowColByte4.
func Print(sink Sink, p PrintParams) error {
	style := DefaultCellStyle(p.ColorBits, p.ImageID, p.PlacementID, p.FewerDiacritics, p.PlaceholderChar)
	byte4 := byte(p.ImageID >> 24)

	rows := p.EndRow - p.StartRow
	cols := p.EndCol - p.StartCol
	if rows <= 0 || cols <= 0 {
		return nil
	}

	for r := 0; r < rows; r++ {
		if p.Pos != nil {
			if err := sink.MoveCursorAbs(p.Pos.X, p.Pos.Y+r); err != nil {
				return err
			}
		} else if r > 0 {
			if p.UseSaveCursor {
				if err := sink.WriteString("\x1b8"); err != nil { // restore
					return err
				}
			} else {
				if err := sink.MoveCursor(0, 1, 0, 0); err != nil {
					return err
				}
				// CSI G: cursor horizontal absolute (1-based), so each
				// new line starts back at the placeholder's left edge.
				if err := sink.WriteString(fmt.Sprintf("\x1b[%dG", p.StartCol+1)); err != nil {
					return err
				}
			}
		}
		if p.UseSaveCursor && r == 0 {
			if err := sink.WriteString("\x1b7"); err != nil { // save
				return err
			}
		}

		line := buildLine(p.StartRow+r, p.StartCol, cols, style, byte4, p.Formatting)
		if err := sink.WriteString(line); err != nil {
			return err
		}
	}
	return nil
}

func buildLine(row, startCol, cols int, style CellStyle, byte4 byte, formatting string) string {
	var b strings.Builder
	if formatting != "" {
		b.WriteString(formatting)
	}
	b.WriteString(style.foregroundSGR())
	b.WriteString(style.backgroundSGR())
	for c := 0; c < cols; c++ {
		level := style.OtherColumnLevel
		if c == 0 {
			level = style.FirstColumnLevel
		}
		b.WriteString(cellWithMarker(style.marker(), row, startCol+c, byte4, level))
	}
	if formatting != "" {
		b.WriteString("\x1b[0m")
	}
	return b.String()
}
