package placeholder

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// Level controls how much positional information a cell's diacritics
// carry.
type Level int

const (
	LevelNone Level = iota
	LevelRow
	LevelRowCol
	LevelRowColByte4
)

// ColorBits selects how (or whether) the image id's low bits are carried
// as a foreground SGR color.
type ColorBits int

const (
	ColorBitsNone ColorBits = 0
	ColorBits8    ColorBits = 8
	ColorBits24   ColorBits = 24
)

// CellStyle is the styling applied to every cell of one placeholder
// rectangle: which bytes of the image id are visible as colors, and how
// many diacritics the first column vs. later columns carry.
type CellStyle struct {
	ColorBits          ColorBits
	ImageID            uint32
	PlacementID        uint32 // carried via background color if non-zero
	FirstColumnLevel   Level
	OtherColumnLevel   Level
	Marker             rune // 0 selects MarkerChar
}

func (s CellStyle) marker() rune {
	if s.Marker == 0 {
		return MarkerChar
	}
	return s.Marker
}

// DefaultCellStyle derives a CellStyle from an image id's namespace bits
// and the fewerDiacritics option (spec.md §4.5: by default the first
// column uses full diacritic level; fewerDiacritics restricts subsequent
// columns to none). marker overrides the base placeholder rune; 0 selects
// MarkerChar.
func DefaultCellStyle(colorBits ColorBits, imageID, placementID uint32, fewerDiacritics bool, marker rune) CellStyle {
	other := LevelRowColByte4
	if fewerDiacritics {
		other = LevelNone
	}
	return CellStyle{
		ColorBits:        colorBits,
		ImageID:          imageID,
		PlacementID:      placementID,
		FirstColumnLevel: LevelRowColByte4,
		OtherColumnLevel: other,
		Marker:           marker,
	}
}

// foregroundSGR returns the SGR escape sequence carrying the image id's
// color bits, or "" if ColorBits is ColorBitsNone.
func (s CellStyle) foregroundSGR() string {
	switch s.ColorBits {
	case ColorBits8:
		return fmt.Sprintf("\x1b[38;5;%dm", s.ImageID&0xFF)
	case ColorBits24:
		r := (s.ImageID >> 16) & 0xFF
		g := (s.ImageID >> 8) & 0xFF
		b := s.ImageID & 0xFF
		return fmt.Sprintf("\x1b[38;2;%d;%d;%dm", r, g, b)
	default:
		return ""
	}
}

// backgroundSGR returns the SGR escape sequence carrying the placement id
// in 256-color form, or "" if the placement id is zero.
func (s CellStyle) backgroundSGR() string {
	if s.PlacementID == 0 {
		return ""
	}
	return fmt.Sprintf("\x1b[48;5;%dm", s.PlacementID&0xFF)
}

// Cell renders one placeholder cell: the marker character plus the
// diacritics appropriate to level, encoding (row, col, byte4) in that
// order.
func Cell(row, col int, byte4 byte, level Level) string {
	return cellWithMarker(MarkerChar, row, col, byte4, level)
}

func cellWithMarker(marker rune, row, col int, byte4 byte, level Level) string {
	var b strings.Builder
	b.WriteRune(marker)
	if level >= LevelRow {
		b.WriteRune(DiacriticFor(byte(row & 0xFF)))
	}
	if level >= LevelRowCol {
		b.WriteRune(DiacriticFor(byte(col & 0xFF)))
	}
	if level >= LevelRowColByte4 {
		b.WriteRune(DiacriticFor(byte4))
	}
	return b.String()
}

// RandomPlacementID returns a random non-zero 32-bit placement id, used
// when force-placeholders mode needs to synthesize one.
func RandomPlacementID() uint32 {
	for {
		if v := rand.Uint32(); v != 0 {
			return v
		}
	}
}
