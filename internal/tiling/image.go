package tiling

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	xdraw "golang.org/x/image/draw"
)

// Format is the encoding used for tiles sent to the model.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
)

// MIMEType returns the content type for the format.
func (f Format) MIMEType() string {
	if f == FormatJPEG {
		return "image/jpeg"
	}
	return "image/png"
}

// Crop copies the region of page described by spec into a new RGBA image
// whose bounds start at the origin.
func Crop(page image.Image, spec TileSpec) *image.RGBA {
	r := spec.Rect().Intersect(page.Bounds())
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	if r.Empty() {
		return dst
	}
	xdraw.Draw(dst, dst.Bounds(), page, r.Min, xdraw.Src)
	return dst
}

// Fit downscales img so its longest edge is at most maxEdge pixels.
// A maxEdge of zero or an image already within bounds is returned unchanged.
func Fit(img image.Image, maxEdge int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxEdge <= 0 || (w <= maxEdge && h <= maxEdge) || w == 0 || h == 0 {
		return img
	}

	var nw, nh int
	if w >= h {
		nw = maxEdge
		nh = max(1, h*maxEdge/w)
	} else {
		nh = maxEdge
		nw = max(1, w*maxEdge/h)
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// Encode serializes img in the given format.
func Encode(img image.Image, format Format, jpegQuality int) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case FormatJPEG:
		if jpegQuality <= 0 || jpegQuality > 100 {
			jpegQuality = jpeg.DefaultQuality
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return nil, fmt.Errorf("failed to encode jpeg: %w", err)
		}
	case FormatPNG, "":
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("failed to encode png: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported image format %q", format)
	}
	return buf.Bytes(), nil
}
