package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	// decoders registered for LoadImage
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
)

// minWidth is the width below which screenshots are upscaled before recognition.
const minWidth = 1000

// LoadImage reads an image file and prepares it for OCR: small images are
// upscaled, then the page is converted to grayscale, smoothed and binarized
// with Otsu's threshold.
func LoadImage(path string) (Image, error) {
	if !Supported(path) {
		return Image{}, fmt.Errorf("unsupported image type %q", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return Image{}, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return Image{}, fmt.Errorf("decode %s: %w", path, err)
	}
	bin := Preprocess(src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, bin); err != nil {
		return Image{}, fmt.Errorf("encode %s: %w", path, err)
	}
	b := bin.Bounds()
	return Image{Path: path, PNG: buf.Bytes(), Width: b.Dx(), Height: b.Dy()}, nil
}

// Preprocess returns a black-and-white copy of src.
func Preprocess(src image.Image) *image.Gray {
	gray := toGray(upscale(src))
	gray = blur(gray)
	t := otsuThreshold(gray)
	for i, v := range gray.Pix {
		if v > t {
			gray.Pix[i] = 0xff
		} else {
			gray.Pix[i] = 0
		}
	}
	return gray
}

func upscale(src image.Image) image.Image {
	b := src.Bounds()
	if b.Dx() == 0 || b.Dx() >= minWidth {
		return src
	}
	scale := (minWidth + b.Dx() - 1) / b.Dx()
	if scale > 4 {
		scale = 4
	}
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*scale, b.Dy()*scale))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

func toGray(src image.Image) *image.Gray {
	b := src.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), src, b.Min, draw.Src)
	return gray
}

// blur applies a 3x3 box filter; edge pixels are averaged over the pixels
// that exist.
func blur(src *image.Gray) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			sum, n := 0, 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					p := image.Pt(x+dx, y+dy)
					if !p.In(b) {
						continue
					}
					sum += int(src.GrayAt(p.X, p.Y).Y)
					n++
				}
			}
			dst.SetGray(x, y, color.Gray{Y: uint8(sum / n)})
		}
	}
	return dst
}

// otsuThreshold picks the gray level that maximizes between-class variance.
func otsuThreshold(g *image.Gray) uint8 {
	var hist [256]int
	for _, v := range g.Pix {
		hist[v]++
	}
	total := len(g.Pix)
	if total == 0 {
		return 127
	}
	var sum float64
	for i, c := range hist {
		sum += float64(i * c)
	}

	var sumB float64
	var wB int
	var best float64
	var threshold uint8
	for t := 0; t < 256; t++ {
		wB += hist[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * hist[t])
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			threshold = uint8(t)
		}
	}
	return threshold
}
