// Package tupimage is the high-level orchestrator that ties the ID
// manager, command model, graphics terminal, and placeholder renderer
// together into a single "upload and display" flow.
package tupimage

import (
	"time"

	"github.com/sergei-grechanik/tupimage-go/pkg/idspace"
)

// Medium mirrors kittycmd.Medium plus an "auto" sentinel resolved at
// upload time.
type Medium int

const (
	MediumAuto Medium = iota
	MediumDirect
	MediumFile
	MediumTempFile
)

// FinalCursorPos selects where the cursor ends up after a placeholder is
// painted.
type FinalCursorPos int

const (
	CursorTopLeft FinalCursorPos = iota
	CursorTopRight
	CursorBottomLeft
	CursorBottomRight
)

// Options configures one UploadAndDisplay call. Zero values select the
// documented defaults.
type Options struct {
	Namespace idspace.Namespace
	Subspace  idspace.Subspace

	TerminalID string

	Cols, Rows         int // explicit geometry; 0 means "derive from fit"
	MaxCols, MaxRows   int
	Scale              float64

	ForceReupload         bool
	ReuploadMaxUploadsAgo int
	ReuploadMaxBytesAgo   int64
	ReuploadMaxSecondsAgo time.Duration

	UploadMethod     Medium
	SupportedFormats []string // original-format passthrough allowlist; only PNG is ever passed through, when this is nil or names "png"
	FileMaxSize      int64    // max original-file size (bytes) eligible for passthrough
	MaxUploadSize    int      // max pixel dimension (w or h) after downsampling
	CheckResponse    bool
	CheckResponseTimeout time.Duration

	FinalCursorPos FinalCursorPos

	FewerDiacritics bool   // restrict non-first columns to the bare marker, no positional diacritics
	PlaceholderChar rune   // overrides the base marker rune; 0 selects the default
	Background      string // empty, "none", or a 6-hex-digit color painted behind the placeholder

	IsSSH bool // drives the "auto" upload-method cascade (DIRECT over SSH, else FILE)
}

func (o Options) maxCols() int {
	if o.MaxCols > 0 {
		return o.MaxCols
	}
	return 256
}

func (o Options) maxRows() int {
	if o.MaxRows > 0 {
		return o.MaxRows
	}
	return 256
}

func (o Options) scale() float64 {
	if o.Scale > 0 {
		return o.Scale
	}
	return 1
}

// namespace returns Options.Namespace, defaulting to the 24-bit-color
// namespace (the zero Namespace value names the one excluded combination,
// so it can never mean "use the default").
func (o Options) namespace() idspace.Namespace {
	if o.Namespace == (idspace.Namespace{}) {
		return idspace.NS24bit
	}
	return o.Namespace
}

// subspace returns Options.Subspace, defaulting to the full byte range.
func (o Options) subspace() idspace.Subspace {
	if o.Subspace == (idspace.Subspace{}) {
		return idspace.Full
	}
	return o.Subspace
}
