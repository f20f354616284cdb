package kittycmd

import "strings"

// WrapMultiplexer wraps an already-framed sequence in layers-many tmux
// passthrough envelopes. Each wrapping doubles every ESC byte already
// present in seq, per the tmux DCS passthrough convention.
func WrapMultiplexer(seq string, layers int) string {
	for i := 0; i < layers; i++ {
		seq = "\x1bPtmux;" + strings.ReplaceAll(seq, "\x1b", "\x1b\x1b") + ST
	}
	return seq
}

// SerializeAndWrap serializes cmd and returns its chunks, each wrapped
// separately in multiplexer passthrough if layers > 0.
func SerializeAndWrap(cmd Command, maxCommandSize, layers int) []string {
	chunks := cmd.Serialize(maxCommandSize)
	if layers <= 0 {
		return chunks
	}
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = WrapMultiplexer(c, layers)
	}
	return out
}
