// Package kittycmd models the Kitty terminal graphics protocol's three
// command variants (Transmit, Put, Delete) and their serialization to the
// wire, including chunked payloads and multiplexer passthrough wrapping.
package kittycmd

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Envelope boundaries for one Kitty graphics APC command.
const (
	ESC = "\x1b_G"
	ST  = "\x1b\\"
)

// Medium selects how image bytes reach the terminal.
type Medium byte

const (
	MediumDirect   Medium = 'd' // inline base64 payload
	MediumFile     Medium = 'f' // local file path
	MediumTempFile Medium = 't' // temp file path, deleted by the terminal after reading
)

// Format is the pixel/encoding format of a Transmit payload.
type Format uint32

const (
	FormatRGB  Format = 24
	FormatRGBA Format = 32
	FormatPNG  Format = 100
)

// DeleteWhat selects what a Delete command removes, and whether its
// capitalized form also frees the underlying image data.
type DeleteWhat byte

const (
	DeleteAll      DeleteWhat = 'a'
	DeleteByID     DeleteWhat = 'i'
	DeleteByNumber DeleteWhat = 'n'
)

// Quietness controls how much of the terminal's response is suppressed.
type Quietness uint32

const (
	QuietNone   Quietness = 0
	QuietNoOK   Quietness = 1
	QuietAll    Quietness = 2
)

// Put is an image placement, either standalone or embedded in a Transmit.
type Put struct {
	PlacementID      uint32
	Cols, Rows       uint32
	Virtual          bool // U=1, placeholder-cell mode
	DoNotMoveCursor  bool // C=1
	ZIndex           int32
	CellOffsetX      uint32 // X=
	CellOffsetY      uint32 // Y=
}

// Transmit carries image bytes to the terminal, optionally with an
// embedded Put so the image is displayed as soon as it lands.
type Transmit struct {
	ImageID     uint32
	ImageNumber uint32
	Format      Format
	Medium      Medium
	Width       uint32 // s=, source pixel width; required unless Format == FormatPNG
	Height      uint32 // v=, source pixel height
	Compress    bool   // o=z
	Quiet       Quietness
	Payload     []byte // raw, pre-base64, pre-chunking bytes, or a file path if Medium != MediumDirect
	Placement   *Put
}

// Delete removes placements and optionally frees their image data.
type Delete struct {
	What     DeleteWhat
	FreeData bool // capitalized form
	ImageID  uint32
	Number   uint32
	Quiet    Quietness
}

// DisplayPut is a standalone Put against an already-transmitted image.
type DisplayPut struct {
	ImageID uint32
	Quiet   Quietness
	Put
}

// Command is the closed tagged union of the three protocol command
// variants, each implementing Serialize.
type Command interface {
	// Serialize returns the wire-ready sequence of envelope-wrapped
	// chunks (already ESC/ST framed, never multiplexer-wrapped). A
	// Transmit payload longer than maxCommandSize (after base64) is
	// split across multiple chunks.
	Serialize(maxCommandSize int) []string
}

func attrString(attrs [][2]string) string {
	parts := make([]string, 0, len(attrs))
	for _, kv := range attrs {
		parts = append(parts, kv[0]+"="+kv[1])
	}
	return strings.Join(parts, ",")
}

func kv(key string, v any) [2]string {
	return [2]string{key, fmt.Sprint(v)}
}

func envelope(attrs string, payload string) string {
	if payload == "" {
		return ESC + attrs + ST
	}
	return ESC + attrs + ";" + payload + ST
}

// Serialize implements Command. The embedded Put, if any, is folded into
// the first chunk's attribute set (action a=T rather than a=t).
func (t Transmit) Serialize(maxCommandSize int) []string {
	attrs := [][2]string{
		kv("i", t.ImageID),
	}
	if t.ImageNumber != 0 {
		attrs = append(attrs, kv("I", t.ImageNumber))
	}
	attrs = append(attrs, kv("f", uint32(t.Format)))
	if t.Medium != 0 && t.Medium != MediumDirect {
		attrs = append(attrs, kv("t", string(t.Medium)))
	}
	if t.Width != 0 {
		attrs = append(attrs, kv("s", t.Width))
	}
	if t.Height != 0 {
		attrs = append(attrs, kv("v", t.Height))
	}
	if t.Compress {
		attrs = append(attrs, kv("o", "z"))
	}
	if t.Quiet != QuietNone {
		attrs = append(attrs, kv("q", uint32(t.Quiet)))
	}

	action := "t"
	if t.Placement != nil {
		action = "T"
		attrs = append(attrs, putAttrs(*t.Placement)...)
	}
	attrs = append([][2]string{kv("a", action)}, attrs...)

	if t.Medium != MediumDirect {
		// File/temp-file mediums carry the path as the payload, verbatim,
		// never base64-chunked.
		return []string{envelope(attrString(attrs), string(t.Payload))}
	}

	return serializeChunked(attrs, t.Payload, maxCommandSize)
}

// serializeChunked base64-encodes payload and splits it across one or more
// envelopes, each at most maxCommandSize payload bytes (post-base64). The
// first chunk carries the full attribute set plus m=1 (or m=0 if it is
// also the last); subsequent chunks carry only m plus nothing else.
func serializeChunked(firstAttrs [][2]string, payload []byte, maxCommandSize int) []string {
	if maxCommandSize <= 0 {
		maxCommandSize = 4096
	}
	encoded := base64.StdEncoding.EncodeToString(payload)
	if len(encoded) == 0 {
		attrs := append(append([][2]string{}, firstAttrs...), kv("m", 0))
		return []string{envelope(attrString(attrs), "")}
	}

	var out []string
	for i := 0; i < len(encoded); i += maxCommandSize {
		end := i + maxCommandSize
		if end > len(encoded) {
			end = len(encoded)
		}
		more := 1
		if end >= len(encoded) {
			more = 0
		}

		var attrs [][2]string
		if i == 0 {
			attrs = append(append([][2]string{}, firstAttrs...), kv("m", more))
		} else {
			attrs = [][2]string{kv("m", more)}
		}
		out = append(out, envelope(attrString(attrs), encoded[i:end]))
	}
	return out
}

func putAttrs(p Put) [][2]string {
	var attrs [][2]string
	if p.PlacementID != 0 {
		attrs = append(attrs, kv("p", p.PlacementID))
	}
	attrs = append(attrs, kv("c", p.Cols), kv("r", p.Rows))
	if p.Virtual {
		attrs = append(attrs, kv("U", 1))
	}
	if p.DoNotMoveCursor {
		attrs = append(attrs, kv("C", 1))
	}
	if p.ZIndex != 0 {
		attrs = append(attrs, kv("z", p.ZIndex))
	}
	if p.CellOffsetX != 0 {
		attrs = append(attrs, kv("X", p.CellOffsetX))
	}
	if p.CellOffsetY != 0 {
		attrs = append(attrs, kv("Y", p.CellOffsetY))
	}
	return attrs
}

// Serialize implements Command. A standalone Put is never chunked: it
// carries no payload.
func (d DisplayPut) Serialize(int) []string {
	attrs := [][2]string{kv("a", "p"), kv("i", d.ImageID)}
	attrs = append(attrs, putAttrs(d.Put)...)
	if d.Quiet != QuietNone {
		attrs = append(attrs, kv("q", uint32(d.Quiet)))
	}
	return []string{envelope(attrString(attrs), "")}
}

// Serialize implements Command. A Delete is never chunked.
func (d Delete) Serialize(int) []string {
	what := d.What
	key := byte(what)
	if d.FreeData {
		key -= 'a' - 'A' // uppercase the delete-what tag
	}
	attrs := [][2]string{kv("a", "d"), kv("d", string(key))}
	switch d.What {
	case DeleteByID:
		attrs = append(attrs, kv("i", d.ImageID))
	case DeleteByNumber:
		attrs = append(attrs, kv("I", d.Number))
	}
	if d.Quiet != QuietNone {
		attrs = append(attrs, kv("q", uint32(d.Quiet)))
	}
	return []string{envelope(attrString(attrs), "")}
}
