package tupimage

import (
	"context"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sergei-grechanik/tupimage-go/pkg/graphicsterm"
	"github.com/sergei-grechanik/tupimage-go/pkg/idmanager"
	"github.com/sergei-grechanik/tupimage-go/pkg/idspace"
	"github.com/sergei-grechanik/tupimage-go/pkg/placeholder"
)

func openTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	ctx := context.Background()
	ids, err := idmanager.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open id manager: %v", err)
	}
	t.Cleanup(func() { ids.Close() })

	term := graphicsterm.New(io.Discard, nil, 0, graphicsterm.Config{})
	return New(ids, term, 8, 16, nil)
}

func solidImage(w, h int, c color.Color) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestUploadAndDisplayUploadsFreshBitmap(t *testing.T) {
	o := openTestOrchestrator(t)
	img := Image{Bitmap: solidImage(10, 10, color.NRGBA{255, 0, 0, 255})}
	opts := Options{TerminalID: "term1"}

	res, err := o.UploadAndDisplay(context.Background(), img, opts)
	if err != nil {
		t.Fatalf("UploadAndDisplay: %v", err)
	}
	if res.ImageID == 0 {
		t.Error("expected a non-zero allocated image id")
	}
	if !res.Uploaded {
		t.Error("expected a fresh image to be uploaded")
	}
	if res.Cols <= 0 || res.Rows <= 0 {
		t.Errorf("expected positive geometry, got (%d,%d)", res.Cols, res.Rows)
	}
	if res.BytesUploaded <= 0 {
		t.Error("expected a positive byte count for the upload")
	}
}

func TestUploadAndDisplaySkipsReuploadWhenFresh(t *testing.T) {
	o := openTestOrchestrator(t)
	img := Image{Bitmap: solidImage(10, 10, color.NRGBA{0, 255, 0, 255})}
	opts := Options{TerminalID: "term1"}

	first, err := o.UploadAndDisplay(context.Background(), img, opts)
	if err != nil {
		t.Fatalf("first UploadAndDisplay: %v", err)
	}
	second, err := o.UploadAndDisplay(context.Background(), img, opts)
	if err != nil {
		t.Fatalf("second UploadAndDisplay: %v", err)
	}
	if second.ImageID != first.ImageID {
		t.Errorf("expected the same id to be reused, got %d then %d", first.ImageID, second.ImageID)
	}
	if second.Uploaded {
		t.Error("expected the second call to skip re-uploading an unchanged, already-fresh image")
	}
}

func TestUploadAndDisplayForceReuploadAlwaysUploads(t *testing.T) {
	o := openTestOrchestrator(t)
	img := Image{Bitmap: solidImage(10, 10, color.NRGBA{0, 0, 255, 255})}
	opts := Options{TerminalID: "term1"}

	if _, err := o.UploadAndDisplay(context.Background(), img, opts); err != nil {
		t.Fatalf("first UploadAndDisplay: %v", err)
	}
	opts.ForceReupload = true
	res, err := o.UploadAndDisplay(context.Background(), img, opts)
	if err != nil {
		t.Fatalf("second UploadAndDisplay: %v", err)
	}
	if !res.Uploaded {
		t.Error("ForceReupload should always re-upload regardless of freshness")
	}
}

func TestUploadAndDisplayDistinctTerminalsEachUpload(t *testing.T) {
	o := openTestOrchestrator(t)
	img := Image{Bitmap: solidImage(10, 10, color.NRGBA{10, 20, 30, 255})}

	a, err := o.UploadAndDisplay(context.Background(), img, Options{TerminalID: "term-a"})
	if err != nil {
		t.Fatalf("term-a upload: %v", err)
	}
	b, err := o.UploadAndDisplay(context.Background(), img, Options{TerminalID: "term-b"})
	if err != nil {
		t.Fatalf("term-b upload: %v", err)
	}
	if !b.Uploaded {
		t.Error("a new terminal should always need its own upload even if the image id is already allocated")
	}
	if a.ImageID != b.ImageID {
		t.Errorf("the same image should canonicalize to the same id across terminals, got %d and %d", a.ImageID, b.ImageID)
	}
}

func TestUploadDoesNotPaintAPlaceholder(t *testing.T) {
	var buf strings.Builder
	ids, err := idmanager.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open id manager: %v", err)
	}
	t.Cleanup(func() { ids.Close() })
	term := graphicsterm.New(&buf, nil, 0, graphicsterm.Config{})
	o := New(ids, term, 8, 16, nil)

	img := Image{Bitmap: solidImage(10, 10, color.NRGBA{1, 2, 3, 255})}
	res, err := o.Upload(context.Background(), img, Options{TerminalID: "term1"})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !res.Uploaded {
		t.Error("expected a fresh image to be uploaded")
	}
	out := buf.String()
	if !strings.Contains(out, "\x1b_G") {
		t.Error("expected the transmit command to still be written")
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("Upload should not emit any cursor-movement escape sequences")
	}
}

func TestColorBitsForMatchesNamespace(t *testing.T) {
	cases := []struct {
		ns   idspace.Namespace
		want placeholder.ColorBits
	}{
		{idspace.NS0bit3rd, placeholder.ColorBitsNone},
		{idspace.NS8bit, placeholder.ColorBits8},
		{idspace.NS8bit3rd, placeholder.ColorBits8},
		{idspace.NS24bit, placeholder.ColorBits24},
		{idspace.NS24bit3rd, placeholder.ColorBits24},
	}
	for _, c := range cases {
		if got := colorBitsFor(c.ns); got != c.want {
			t.Errorf("colorBitsFor(%+v) = %v, want %v", c.ns, got, c.want)
		}
	}
}

func TestDisplayEmitsNoForegroundColorFor0BitNamespace(t *testing.T) {
	var buf strings.Builder
	ids, err := idmanager.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open id manager: %v", err)
	}
	t.Cleanup(func() { ids.Close() })
	term := graphicsterm.New(&buf, nil, 0, graphicsterm.Config{})
	o := New(ids, term, 8, 16, nil)

	img := Image{Bitmap: solidImage(10, 10, color.NRGBA{9, 9, 9, 255})}
	opts := Options{TerminalID: "term1", Namespace: idspace.NS0bit3rd}
	if _, err := o.UploadAndDisplay(context.Background(), img, opts); err != nil {
		t.Fatalf("UploadAndDisplay: %v", err)
	}
	if strings.Contains(buf.String(), "\x1b[38;2;0;0;0m") {
		t.Error("a 0bit_3rd namespace must never emit a truecolor foreground escape")
	}
}

func TestResolveMediumDefaultsToFileWithoutSSH(t *testing.T) {
	got := resolveMedium(Options{UploadMethod: MediumAuto, IsSSH: false})
	if got != 'f' {
		t.Errorf("expected file medium by default, got %q", got)
	}
}

func TestResolveMediumDefaultsToDirectOverSSH(t *testing.T) {
	got := resolveMedium(Options{UploadMethod: MediumAuto, IsSSH: true})
	if got != 'd' {
		t.Errorf("expected direct medium over SSH, got %q", got)
	}
}

func TestResolveMediumHonorsExplicitOverride(t *testing.T) {
	got := resolveMedium(Options{UploadMethod: MediumTempFile, IsSSH: true})
	if got != 't' {
		t.Errorf("expected an explicit medium override to win over the SSH default, got %q", got)
	}
}

func TestPassthroughEligibleOnlyAllowsPNG(t *testing.T) {
	dir := t.TempDir()
	pngPath := filepath.Join(dir, "a.png")
	jpgPath := filepath.Join(dir, "a.jpg")
	if err := os.WriteFile(pngPath, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(jpgPath, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if !passthroughEligible(pngPath, Options{}) {
		t.Error("a .png file should be passthrough-eligible")
	}
	if passthroughEligible(jpgPath, Options{}) {
		t.Error("a .jpg file is never passthrough-eligible; the protocol only accepts raw PNG bytes verbatim")
	}
}

func TestPassthroughEligibleRespectsFileMaxSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.png")
	if err := os.WriteFile(path, []byte("0123456789"), 0o644); err != nil {
		t.Fatal(err)
	}
	if passthroughEligible(path, Options{FileMaxSize: 5}) {
		t.Error("a file larger than FileMaxSize should not be passthrough-eligible")
	}
	if !passthroughEligible(path, Options{FileMaxSize: 100}) {
		t.Error("a file within FileMaxSize should be passthrough-eligible")
	}
}
