package tupimage

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"
)

// downsampleToFit scales img down to fit within maxW x maxH pixels while
// preserving aspect ratio, used at upload time when an image must be
// shrunk to respect max_upload_size. Images that already fit are returned
// unmodified; this never upscales. A subtle unsharp mask restores some of
// the edge detail a naive downscale loses.
func downsampleToFit(img image.Image, maxW, maxH int) image.Image {
	if img == nil {
		return nil
	}
	if maxW <= 0 {
		maxW = 1
	}
	if maxH <= 0 {
		maxH = 1
	}

	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW <= 0 || srcH <= 0 || (srcW <= maxW && srcH <= maxH) {
		return img
	}

	scale := math.Min(float64(maxW)/float64(srcW), float64(maxH)/float64(srcH))
	dstW := int(math.Round(float64(srcW) * scale))
	dstH := int(math.Round(float64(srcH) * scale))
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}

	dst := image.NewNRGBA(image.Rect(0, 0, dstW, dstH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)
	return unsharpen(dst, 0.3, 1)
}

// unsharpen applies result = original + amount*(original - blurred).
func unsharpen(img *image.NRGBA, amount float64, radius int) *image.NRGBA {
	if amount <= 0 || radius <= 0 {
		return img
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < 3 || h < 3 {
		return img
	}

	blurred := boxBlur(img, radius)
	result := image.NewNRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			origR, origG, origB, origA := img.At(x, y).RGBA()
			blurR, blurG, blurB, _ := blurred.At(x, y).RGBA()
			r := clampU16(int(origR) + int(amount*float64(int(origR)-int(blurR))))
			g := clampU16(int(origG) + int(amount*float64(int(origG)-int(blurG))))
			b := clampU16(int(origB) + int(amount*float64(int(origB)-int(blurB))))
			result.Set(x, y, color.NRGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(origA >> 8)})
		}
	}
	return result
}

func boxBlur(img *image.NRGBA, radius int) *image.NRGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	temp := image.NewNRGBA(bounds)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var rSum, gSum, bSum, aSum, count int
			for dx := -radius; dx <= radius; dx++ {
				sx := x + dx
				if sx < 0 || sx >= w {
					continue
				}
				r, g, b, a := img.At(bounds.Min.X+sx, bounds.Min.Y+y).RGBA()
				rSum += int(r)
				gSum += int(g)
				bSum += int(b)
				aSum += int(a)
				count++
			}
			temp.Set(bounds.Min.X+x, bounds.Min.Y+y, color.NRGBA{
				R: uint8((rSum / count) >> 8), G: uint8((gSum / count) >> 8),
				B: uint8((bSum / count) >> 8), A: uint8((aSum / count) >> 8),
			})
		}
	}

	result := image.NewNRGBA(bounds)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var rSum, gSum, bSum, aSum, count int
			for dy := -radius; dy <= radius; dy++ {
				sy := y + dy
				if sy < 0 || sy >= h {
					continue
				}
				r, g, b, a := temp.At(bounds.Min.X+x, bounds.Min.Y+sy).RGBA()
				rSum += int(r)
				gSum += int(g)
				bSum += int(b)
				aSum += int(a)
				count++
			}
			result.Set(bounds.Min.X+x, bounds.Min.Y+y, color.NRGBA{
				R: uint8((rSum / count) >> 8), G: uint8((gSum / count) >> 8),
				B: uint8((bSum / count) >> 8), A: uint8((aSum / count) >> 8),
			})
		}
	}
	return result
}

func clampU16(v int) int {
	if v < 0 {
		return 0
	}
	if v > 65535 {
		return 65535
	}
	return v
}

// imageToNRGBA converts any image.Image to *image.NRGBA for pixel access.
func imageToNRGBA(src image.Image) *image.NRGBA {
	if nrgba, ok := src.(*image.NRGBA); ok {
		return nrgba
	}
	bounds := src.Bounds()
	dst := image.NewNRGBA(bounds)
	draw.Draw(dst, bounds, src, bounds.Min, draw.Src)
	return dst
}
