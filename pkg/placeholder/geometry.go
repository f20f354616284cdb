package placeholder

import "math"

// maxProtocolRows is the ceiling imposed by the protocol's 8-bit row
// diacritic space.
const maxProtocolRows = 256
const maxProtocolCols = 256

// FitToGeometry computes the placeholder (cols, rows) for an image of
// (imgW, imgH) pixels given a terminal cell size of (cellW, cellH)
// pixels, optional explicit cols/rows, optional caps (maxCols, maxRows —
// zero means uncapped), and a scale factor. See spec.md §4.5.
func FitToGeometry(imgW, imgH, cellW, cellH int, explicitCols, explicitRows int, maxCols, maxRows int, scale float64) (cols, rows int) {
	if scale <= 0 {
		scale = 1
	}
	if cellW <= 0 {
		cellW = 8
	}
	if cellH <= 0 {
		cellH = 16
	}
	if maxCols <= 0 {
		maxCols = maxProtocolCols
	}
	if maxRows <= 0 {
		maxRows = maxProtocolRows
	}

	switch {
	case explicitCols > 0 && explicitRows > 0:
		cols, rows = explicitCols, explicitRows
	case explicitCols > 0:
		cols = explicitCols
		rows = int(math.Ceil(float64(cols) * float64(cellW) * float64(imgH) / (float64(imgW) * float64(cellH))))
	case explicitRows > 0:
		rows = explicitRows
		cols = int(math.Ceil(float64(rows) * float64(cellH) * float64(imgW) / (float64(imgH) * float64(cellW))))
	default:
		cols = int(math.Ceil(float64(imgW) * scale / float64(cellW)))
		rows = int(math.Ceil(float64(imgH) * scale / float64(cellH)))
		if cols > maxCols {
			cols = maxCols
			rows = int(math.Ceil(float64(cols) * float64(cellW) * float64(imgH) / (float64(imgW) * float64(cellH))))
		}
		if rows > maxRows {
			rows = maxRows
			cols = int(math.Ceil(float64(rows) * float64(cellH) * float64(imgW) / (float64(imgH) * float64(cellW))))
		}
	}

	cols = clamp(cols, 1, maxProtocolCols)
	rows = clamp(rows, 1, maxProtocolRows)
	if cols > maxCols {
		cols = maxCols
	}
	if rows > maxRows {
		rows = maxRows
	}
	return cols, rows
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
