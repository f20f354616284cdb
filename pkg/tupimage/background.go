package tupimage

import (
	"strings"

	"github.com/muesli/termenv"
)

// backgroundFormatting renders hex (empty, "none", or a 6-hex-digit RGB
// color) as the SGR sequence to prepend to every placeholder line, so the
// cells underneath the image get a background color instead of the
// terminal's default. The color is downsampled to whatever the detected
// terminal profile actually supports (truecolor, 256-color, or plain
// ANSI) rather than assuming 24-bit support everywhere.
func backgroundFormatting(hex string) string {
	if hex == "" || strings.EqualFold(hex, "none") {
		return ""
	}
	profile := termenv.EnvColorProfile()
	color := profile.Color("#" + strings.TrimPrefix(hex, "#"))
	if color == nil {
		return ""
	}
	return termenv.CSI + color.Sequence(true) + "m"
}
