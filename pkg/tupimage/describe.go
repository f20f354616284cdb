package tupimage

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image"
	"os"
)

// Image is either a file path to decode or an already-decoded in-memory
// bitmap.
type Image struct {
	Path   string
	Bitmap image.Image
}

// canonical is the (path, mtime) pair canonicalize() derives, used to
// build the description string that keys an id allocation.
type canonical struct {
	Path  string
	MTime int64 // unix seconds; 0 for in-memory bitmaps
}

// canonicalize computes img's stable (path, mtime) identity. In-memory
// bitmaps use a synthetic path keyed on the MD5 of their pixel bytes, with
// mtime fixed at the epoch, so that two bitmaps with identical pixels
// canonicalize identically.
func canonicalize(img Image) (canonical, error) {
	if img.Path != "" {
		info, err := os.Stat(img.Path)
		if err != nil {
			return canonical{}, fmt.Errorf("tupimage: canonicalize: %w", err)
		}
		return canonical{Path: img.Path, MTime: info.ModTime().Unix()}, nil
	}
	if img.Bitmap == nil {
		return canonical{}, fmt.Errorf("tupimage: canonicalize: image has neither a path nor a bitmap")
	}
	return canonical{Path: ":tupimage:" + hashBitmap(img.Bitmap), MTime: 0}, nil
}

func hashBitmap(img image.Image) string {
	h := md5.New()
	b := img.Bounds()
	row := make([]byte, 0, b.Dx()*8)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row = row[:0]
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			row = append(row, byte(r>>8), byte(g>>8), byte(bl>>8), byte(a>>8))
		}
		h.Write(row)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// describe builds the JSON description string used as an id allocation's
// cache key: {path, mtime, cols, rows}.
func describe(c canonical, cols, rows int) (string, error) {
	b, err := json.Marshal(struct {
		Path  string `json:"path"`
		MTime int64  `json:"mtime"`
		Cols  int    `json:"cols"`
		Rows  int    `json:"rows"`
	}{c.Path, c.MTime, cols, rows})
	if err != nil {
		return "", fmt.Errorf("tupimage: describe: %w", err)
	}
	return string(b), nil
}
