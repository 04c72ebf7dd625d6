// Package still prepares the chat screenshot that is looped as the clip's
// single video frame.
package still

import (
	"bytes"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Info describes what Prepare did with the input.
type Info struct {
	Decoded bool
	Width   int
	Height  int
	Padded  bool
}

// Prepare returns the bytes to write as the still frame. Inputs that decode
// as an image are padded to even dimensions (yuv420p chroma subsampling
// rejects odd sizes) and re-encoded as PNG. Anything else is returned
// unchanged; the image format is deliberately not validated here and the
// compose stage reports what the transcoder makes of it.
func Prepare(data []byte) ([]byte, Info) {
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return data, Info{}
	}

	b := src.Bounds()
	info := Info{Decoded: true, Width: b.Dx(), Height: b.Dy()}
	if info.Width%2 == 0 && info.Height%2 == 0 {
		return data, info
	}

	w, h := even(info.Width), even(info.Height)
	dst := imaging.New(w, h, color.White)
	dst = imaging.Paste(dst, src, image.Pt(0, 0))

	var out bytes.Buffer
	if err := imaging.Encode(&out, dst, imaging.PNG); err != nil {
		return data, info
	}

	info.Padded = true
	info.Width, info.Height = w, h
	return out.Bytes(), info
}

func even(n int) int {
	if n%2 == 1 {
		return n + 1
	}
	return n
}
