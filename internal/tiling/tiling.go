// Package tiling splits a rasterized exam page into the grid of regions that
// are sent to the model one at a time.
//
// Exam layouts are usually authored in vertical columns. ModeHalf cuts only
// along the vertical midline so a question is never split horizontally.
// ModeQuarter adds the horizontal midline for higher effective resolution per
// tile, at the risk of bisecting a question; the instruction prompt must then
// tell the model to decline truncated questions.
package tiling

import (
	"fmt"
	"image"
	"strings"
)

// Mode selects the tile grid.
type Mode string

const (
	// ModeQuarter is a 2x2 grid in row-major order.
	ModeQuarter Mode = "quarter"
	// ModeHalf is two full-height columns.
	ModeHalf Mode = "half"
)

// Tile labels in emission order.
const (
	LabelLeft        = "Left"
	LabelRight       = "Right"
	LabelTopLeft     = "Top-Left"
	LabelTopRight    = "Top-Right"
	LabelBottomLeft  = "Bottom-Left"
	LabelBottomRight = "Bottom-Right"
)

// Modes lists the supported modes.
var Modes = []Mode{ModeQuarter, ModeHalf}

// ParseMode parses a mode name, case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeQuarter:
		return ModeQuarter, nil
	case ModeHalf:
		return ModeHalf, nil
	}
	return "", fmt.Errorf("unknown tiling mode %q (want quarter or half)", s)
}

// TileCount returns how many tiles a page yields in this mode.
func (m Mode) TileCount() int {
	if m == ModeHalf {
		return 2
	}
	return 4
}

func (m Mode) String() string { return string(m) }

// TileSpec is one rectangular region of a page, in pixels relative to the
// page origin. Right and Bottom are exclusive.
type TileSpec struct {
	Left   int    `json:"left"`
	Top    int    `json:"top"`
	Right  int    `json:"right"`
	Bottom int    `json:"bottom"`
	Label  string `json:"label"`
	Order  int    `json:"order"`
}

// Rect returns the region as an image.Rectangle.
func (t TileSpec) Rect() image.Rectangle {
	return image.Rect(t.Left, t.Top, t.Right, t.Bottom)
}

// Width of the tile in pixels.
func (t TileSpec) Width() int { return t.Right - t.Left }

// Height of the tile in pixels.
func (t TileSpec) Height() int { return t.Bottom - t.Top }

// Empty reports whether the tile covers no pixels.
func (t TileSpec) Empty() bool { return t.Width() <= 0 || t.Height() <= 0 }

// ComputeTiles partitions a width x height page according to mode.
// Midlines are integer-divided, so with odd dimensions the right and bottom
// tiles are one pixel larger. Zero dimensions produce zero-area tiles.
// An unknown mode is treated as ModeQuarter.
func ComputeTiles(width, height int, mode Mode) []TileSpec {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	midX := width / 2
	midY := height / 2

	if mode == ModeHalf {
		return []TileSpec{
			{Left: 0, Top: 0, Right: midX, Bottom: height, Label: LabelLeft, Order: 0},
			{Left: midX, Top: 0, Right: width, Bottom: height, Label: LabelRight, Order: 1},
		}
	}

	return []TileSpec{
		{Left: 0, Top: 0, Right: midX, Bottom: midY, Label: LabelTopLeft, Order: 0},
		{Left: midX, Top: 0, Right: width, Bottom: midY, Label: LabelTopRight, Order: 1},
		{Left: 0, Top: midY, Right: midX, Bottom: height, Label: LabelBottomLeft, Order: 2},
		{Left: midX, Top: midY, Right: width, Bottom: height, Label: LabelBottomRight, Order: 3},
	}
}

// ForImage computes tiles for img, offset by its bounds origin.
func ForImage(img image.Image, mode Mode) []TileSpec {
	b := img.Bounds()
	specs := ComputeTiles(b.Dx(), b.Dy(), mode)
	if b.Min == (image.Point{}) {
		return specs
	}
	for i := range specs {
		specs[i].Left += b.Min.X
		specs[i].Right += b.Min.X
		specs[i].Top += b.Min.Y
		specs[i].Bottom += b.Min.Y
	}
	return specs
}
