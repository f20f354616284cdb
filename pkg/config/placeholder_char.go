package config

import (
	"fmt"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

// ResolvePlaceholderChar decodes cfg.PlaceholderChar into the rune the
// placeholder renderer should use as its base marker, or 0 to select the
// default. The diacritics the renderer appends are all zero-width
// combining marks, so the marker itself must occupy exactly one terminal
// cell or every placeholder column after the first would drift out of
// alignment with the image underneath it.
func ResolvePlaceholderChar(s string) (rune, error) {
	if s == "" {
		return 0, nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || size != len(s) {
		return 0, fmt.Errorf("placeholder_char must be exactly one rune, got %q", s)
	}
	if w := runewidth.RuneWidth(r); w != 1 {
		return 0, fmt.Errorf("placeholder_char %q has display width %d, want 1", r, w)
	}
	return r, nil
}
