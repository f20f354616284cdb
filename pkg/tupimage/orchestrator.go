package tupimage

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/sergei-grechanik/tupimage-go/pkg/graphicsterm"
	"github.com/sergei-grechanik/tupimage-go/pkg/idmanager"
	"github.com/sergei-grechanik/tupimage-go/pkg/idspace"
	"github.com/sergei-grechanik/tupimage-go/pkg/kittycmd"
	"github.com/sergei-grechanik/tupimage-go/pkg/placeholder"
)

// Orchestrator ties the id manager, command model, graphics terminal, and
// placeholder renderer together behind a single UploadAndDisplay call.
type Orchestrator struct {
	IDs  *idmanager.Manager
	Term *graphicsterm.GraphicsTerminal
	Log  *slog.Logger

	CellW, CellH int // terminal's reported per-cell pixel size
}

// New builds an Orchestrator. log defaults to slog.Default() if nil.
func New(ids *idmanager.Manager, term *graphicsterm.GraphicsTerminal, cellW, cellH int, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{IDs: ids, Term: term, CellW: cellW, CellH: cellH, Log: log}
}

// Result reports the outcome of one UploadAndDisplay call.
type Result struct {
	ImageID      uint32
	Cols, Rows   int
	Uploaded     bool // whether a transmit actually occurred (vs. freshness skip)
	BytesUploaded int64
}

// UploadAndDisplay runs the full upload_and_display flow: canonicalize,
// fit geometry, get-or-allocate an id, check upload freshness, transmit if
// needed, then paint the placeholder and position the final cursor.
func (o *Orchestrator) UploadAndDisplay(ctx context.Context, img Image, opts Options) (Result, error) {
	res, err := o.ensureUploaded(ctx, img, opts)
	if err != nil {
		return Result{}, err
	}
	if err := o.display(res.ImageID, res.Cols, res.Rows, opts); err != nil {
		return Result{}, err
	}
	return res, nil
}

// Upload runs the allocate-and-transmit steps without painting a
// placeholder, for callers that only want the image resident in the
// terminal's image store (e.g. pre-warming before a later display).
func (o *Orchestrator) Upload(ctx context.Context, img Image, opts Options) (Result, error) {
	return o.ensureUploaded(ctx, img, opts)
}

// ensureUploaded allocates img's id and transmits it if needed, without
// touching the screen.
func (o *Orchestrator) ensureUploaded(ctx context.Context, img Image, opts Options) (Result, error) {
	canon, err := canonicalize(img)
	if err != nil {
		return Result{}, err
	}

	srcW, srcH, err := probeDimensions(img)
	if err != nil {
		return Result{}, err
	}
	cols, rows := placeholder.FitToGeometry(srcW, srcH, o.CellW, o.CellH, opts.Cols, opts.Rows, opts.maxCols(), opts.maxRows(), opts.scale())

	desc, err := describe(canon, cols, rows)
	if err != nil {
		return Result{}, err
	}

	id, err := o.IDs.GetID(ctx, desc, opts.namespace(), opts.subspace())
	if err != nil {
		return Result{}, fmt.Errorf("tupimage: allocate id: %w", err)
	}

	needsUpload := opts.ForceReupload
	if !needsUpload {
		needsUpload, err = o.IDs.NeedsUploading(ctx, id, opts.TerminalID,
			opts.ReuploadMaxUploadsAgo, opts.ReuploadMaxBytesAgo, opts.ReuploadMaxSecondsAgo)
		if err != nil {
			return Result{}, fmt.Errorf("tupimage: check upload freshness: %w", err)
		}
	}

	res := Result{ImageID: id, Cols: cols, Rows: rows}
	if needsUpload {
		size, err := o.upload(ctx, img, id, opts)
		if err != nil {
			return Result{}, err
		}
		if err := o.IDs.MarkUploaded(ctx, id, opts.TerminalID, size); err != nil {
			return Result{}, fmt.Errorf("tupimage: mark uploaded: %w", err)
		}
		res.Uploaded = true
		res.BytesUploaded = size
	}
	return res, nil
}

func probeDimensions(img Image) (w, h int, err error) {
	if img.Bitmap != nil {
		b := img.Bitmap.Bounds()
		return b.Dx(), b.Dy(), nil
	}
	cfg, err := imageConfig(img.Path)
	if err != nil {
		return 0, 0, fmt.Errorf("tupimage: probe image dimensions: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

func imageConfig(path string) (image.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return image.Config{}, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	return cfg, err
}

// upload chooses a transmission medium and format, transmits the image,
// and returns the number of bytes sent.
func (o *Orchestrator) upload(ctx context.Context, img Image, id uint32, opts Options) (int64, error) {
	medium := resolveMedium(opts)

	if img.Path != "" && passthroughEligible(img.Path, opts) {
		return o.transmitOriginalFile(id, img.Path, medium)
	}

	decoded, err := decodeImage(img)
	if err != nil {
		return 0, err
	}
	if opts.MaxUploadSize > 0 {
		decoded = downsampleToFit(decoded, opts.MaxUploadSize, opts.MaxUploadSize)
	}
	return o.transmitBitmap(id, decoded, medium)
}

func resolveMedium(opts Options) kittycmd.Medium {
	switch opts.UploadMethod {
	case MediumDirect:
		return kittycmd.MediumDirect
	case MediumFile:
		return kittycmd.MediumFile
	case MediumTempFile:
		return kittycmd.MediumTempFile
	default: // MediumAuto
		if opts.IsSSH {
			return kittycmd.MediumDirect
		}
		return kittycmd.MediumFile
	}
}

// passthroughEligible reports whether path's original bytes can be handed
// to the terminal as-is. The protocol only accepts an encoded image file
// verbatim when its format is PNG (f=100); every other format must be
// decoded and re-sent as raw pixel data, so only PNG is ever eligible here.
func passthroughEligible(path string, opts Options) bool {
	if strings.ToLower(filepath.Ext(path)) != ".png" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if opts.FileMaxSize > 0 && info.Size() > opts.FileMaxSize {
		return false
	}
	if opts.SupportedFormats == nil {
		return true
	}
	for _, f := range opts.SupportedFormats {
		if strings.ToLower(f) == "png" {
			return true
		}
	}
	return false
}

func decodeImage(img Image) (image.Image, error) {
	if img.Bitmap != nil {
		return img.Bitmap, nil
	}
	decoded, err := imaging.Open(img.Path)
	if err != nil {
		return nil, fmt.Errorf("tupimage: decode %s: %w", img.Path, err)
	}
	return decoded, nil
}

func (o *Orchestrator) transmitOriginalFile(id uint32, path string, medium kittycmd.Medium) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("tupimage: stat %s: %w", path, err)
	}
	payload := []byte(path)
	if medium == kittycmd.MediumDirect {
		data, err := os.ReadFile(path)
		if err != nil {
			return 0, fmt.Errorf("tupimage: read %s: %w", path, err)
		}
		payload = data
	}
	cmd := kittycmd.Transmit{ImageID: id, Format: kittycmd.FormatPNG, Medium: medium, Payload: payload}
	if err := o.Term.SendCommand(cmd); err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (o *Orchestrator) transmitBitmap(id uint32, img image.Image, medium kittycmd.Medium) (int64, error) {
	nrgba := imageToNRGBA(img)
	b := nrgba.Bounds()
	cmd := kittycmd.Transmit{
		ImageID: id, Format: kittycmd.FormatRGBA, Medium: kittycmd.MediumDirect,
		Width: uint32(b.Dx()), Height: uint32(b.Dy()), Payload: nrgba.Pix,
	}
	if err := o.Term.SendCommand(cmd); err != nil {
		return 0, err
	}
	return int64(len(nrgba.Pix)), nil
}

func (o *Orchestrator) display(id uint32, cols, rows int, opts Options) error {
	colorBits := colorBitsFor(opts.namespace())
	if err := o.Term.SendCommand(kittycmd.DisplayPut{
		ImageID: id,
		Put:     kittycmd.Put{Cols: uint32(cols), Rows: uint32(rows), Virtual: true},
	}); err != nil {
		return err
	}

	startCol, startRow, err := o.Term.GetCursorPositionTracked(0)
	if err != nil {
		startCol, startRow = 0, 0
	}
	if err := placeholder.Print(o.Term, placeholder.PrintParams{
		ImageID: id, ColorBits: colorBits,
		StartCol: startCol, StartRow: startRow,
		EndCol: startCol + cols, EndRow: startRow + rows,
		FewerDiacritics: opts.FewerDiacritics,
		PlaceholderChar: opts.PlaceholderChar,
		Formatting:      backgroundFormatting(opts.Background),
	}); err != nil {
		return err
	}

	return o.positionFinalCursor(startCol, startRow, cols, rows, opts.FinalCursorPos)
}

// colorBitsFor maps a namespace's ColorBits (0, 8, or 24) to the
// placeholder package's enum, so the foreground SGR actually reflects the
// namespace the id was allocated in: no color for 0bit_3rd, 256-color for
// 8bit(_3rd), truecolor for 24bit(_3rd).
func colorBitsFor(ns idspace.Namespace) placeholder.ColorBits {
	switch ns.ColorBits {
	case 8:
		return placeholder.ColorBits8
	case 24:
		return placeholder.ColorBits24
	default:
		return placeholder.ColorBitsNone
	}
}

func (o *Orchestrator) positionFinalCursor(startCol, startRow, cols, rows int, pos FinalCursorPos) error {
	switch pos {
	case CursorTopLeft:
		return o.Term.MoveCursorAbs(startCol, startRow)
	case CursorTopRight:
		return o.Term.MoveCursorAbs(startCol+cols, startRow)
	case CursorBottomRight:
		return o.Term.MoveCursorAbs(startCol+cols, startRow+rows-1)
	case CursorBottomLeft:
		if err := o.Term.MoveCursorAbs(startCol, startRow+rows-1); err != nil {
			return err
		}
		return o.Term.WriteString("\x1bD") // index: synthesize a newline at screen bottom
	default:
		return nil
	}
}
