package graphicsterm

import (
	"github.com/sergei-grechanik/tupimage-go/pkg/kittycmd"
	"github.com/sergei-grechanik/tupimage-go/pkg/placeholder"
)

// maybeForceVirtual mutates a Transmit-with-Put or standalone Put command
// to virtual mode with a synthesized placement id, when ForcePlaceholders
// is on and the placement isn't already virtual. The rewrite happens
// before serialization so the terminal sees a consistent command.
func (g *GraphicsTerminal) maybeForceVirtual(cmd kittycmd.Command) kittycmd.Command {
	if !g.cfg.ForcePlaceholders {
		return cmd
	}
	switch c := cmd.(type) {
	case kittycmd.Transmit:
		if c.Placement != nil && !c.Placement.Virtual {
			p := *c.Placement
			p.Virtual = true
			if p.PlacementID == 0 {
				p.PlacementID = randomPlacementID()
			}
			c.Placement = &p
		}
		return c
	case kittycmd.DisplayPut:
		if !c.Virtual {
			c.Virtual = true
			if c.PlacementID == 0 {
				c.PlacementID = randomPlacementID()
			}
		}
		return c
	default:
		return cmd
	}
}

// paintForcedPlaceholder emits the placeholder rectangle implied by a
// just-sent command that carries a placement, accounting for screen-bottom
// scroll compensation per spec.md §4.4.
func (g *GraphicsTerminal) paintForcedPlaceholder(cmd kittycmd.Command) error {
	var imageID uint32
	var put kittycmd.Put
	switch c := cmd.(type) {
	case kittycmd.Transmit:
		if c.Placement == nil {
			return nil
		}
		imageID, put = c.ImageID, *c.Placement
	case kittycmd.DisplayPut:
		imageID, put = c.ImageID, c.Put
	default:
		return nil
	}

	startCol, startRow, err := g.GetCursorPositionTracked(0)
	if err != nil {
		// Without a known cursor position, placeholders print wherever
		// the terminal currently sits; fall back to (0,0) rather than
		// failing the whole command.
		startCol, startRow = 0, 0
	}

	cols, rows := g.adjustForScreenBottom(int(put.Cols), int(put.Rows), startRow, put.DoNotMoveCursor)

	err = placeholder.Print(g, placeholder.PrintParams{
		ImageID:     imageID,
		PlacementID: put.PlacementID,
		StartCol:    startCol,
		StartRow:    startRow,
		EndCol:      startCol + cols,
		EndRow:      startRow + rows,
	})
	if err != nil {
		return err
	}

	if !put.DoNotMoveCursor {
		g.advanceCursorAfterPlaceholder(startCol, startRow, cols, rows)
	}
	return nil
}

// adjustForScreenBottom implements the bottom-of-screen interaction rule:
// if the placeholder would extend past the last line, either clip it (for
// do-not-move-cursor puts) or scroll the view up and move the cursor back
// so the placeholder keeps its full row count.
func (g *GraphicsTerminal) adjustForScreenBottom(cols, rows, startRow int, doNotMove bool) (adjCols, adjRows int) {
	_, lines, err := g.GetSize()
	if err != nil || startRow+rows <= lines {
		return cols, rows
	}
	overflow := startRow + rows - lines

	if doNotMove {
		clipped := rows - overflow
		if clipped < 0 {
			clipped = 0
		}
		return cols, clipped
	}

	_ = g.ScrollUp(overflow)
	_ = g.MoveCursor(0, 0, 0, overflow)
	return cols, rows
}

// advanceCursorAfterPlaceholder moves the cursor to (startCol+cols,
// startRow+rows-1) after a placeholder is painted, unless that would
// cross the right edge, in which case it emits next-line (ESC E) and the
// tracked cursor becomes (0, startRow+rows).
func (g *GraphicsTerminal) advanceCursorAfterPlaceholder(startCol, startRow, cols, rows int) {
	termCols, termLines, err := g.GetSize()
	endCol := startCol + cols
	endRow := startRow + rows - 1

	if err == nil && endCol >= termCols {
		_ = g.writeSequenceNoInvalidate("\x1bE")
		row := startRow + rows
		if row > termLines-1 {
			row = termLines - 1
		}
		g.cursor = Cursor{Col: 0, Row: row, Valid: true}
		return
	}
	_ = g.MoveCursorAbs(endCol, endRow)
}

func randomPlacementID() uint32 {
	return placeholder.RandomPlacementID()
}
