// Package imageio stands in for the out-of-scope image decode/letterbox
// collaborator: load_image_color + letterbox_image in the
// original source. It is a minimal standard-library implementation
// (decode + nearest-neighbor letterbox) behind a narrow Loader interface so
// a real production image pipeline can be swapped in without touching the
// loader stage that calls it.
package imageio

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/vistream/detectd/internal/frame"
)

// Loader decodes an image file and letterbox-resizes it to (h, w).
type Loader interface {
	Load(path string, h, w int) (frame.LoadedFrame, error)
}

// StdLoader implements Loader using the standard image package.
type StdLoader struct{}

// Load decodes path and returns both the original and letterboxed frames.
func (StdLoader) Load(path string, h, w int) (frame.LoadedFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return frame.LoadedFrame{}, fmt.Errorf("imageio: open %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return frame.LoadedFrame{}, fmt.Errorf("imageio: decode %s: %w", path, err)
	}

	original := toPlanar(img)
	resized := Letterbox(original, h, w)
	return frame.LoadedFrame{Original: original, Resized: resized}, nil
}

// toPlanar converts a decoded image.Image into a Channels=3 planar float32
// Frame with values normalized to [0,1], matching darknet's convention.
func toPlanar(img image.Image) frame.Frame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	data := make([]float32, frame.Channels*w*h)
	plane := w * h
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			idx := y*w + x
			data[0*plane+idx] = float32(r) / 65535
			data[1*plane+idx] = float32(g) / 65535
			data[2*plane+idx] = float32(bl) / 65535
		}
	}
	return frame.Frame{Width: w, Height: h, Data: data}
}

// Letterbox resizes src to fit within (h, w) preserving aspect ratio,
// padding the remainder with 0.5 gray (darknet's letterbox fill value),
// using nearest-neighbor sampling.
func Letterbox(src frame.Frame, h, w int) frame.Frame {
	if src.Width <= 0 || src.Height <= 0 {
		return frame.Frame{Width: w, Height: h, Data: make([]float32, frame.Channels*w*h)}
	}

	newW, newH := w, h
	if float64(w)/float64(src.Width) < float64(h)/float64(src.Height) {
		newW = w
		newH = (src.Height * w) / src.Width
	} else {
		newH = h
		newW = (src.Width * h) / src.Height
	}
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	plane := w * h
	out := make([]float32, frame.Channels*plane)
	for i := range out {
		out[i] = 0.5
	}

	dx := (w - newW) / 2
	dy := (h - newH) / 2
	srcPlane := src.Width * src.Height
	for y := 0; y < newH; y++ {
		sy := y * src.Height / newH
		for x := 0; x < newW; x++ {
			sx := x * src.Width / newW
			srcIdx := sy*src.Width + sx
			dstIdx := (y+dy)*w + (x + dx)
			for c := 0; c < frame.Channels; c++ {
				out[c*plane+dstIdx] = src.Data[c*srcPlane+srcIdx]
			}
		}
	}
	return frame.Frame{Width: w, Height: h, Data: out}
}
