package playback

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/example/trafficwatch/internal/models"
)

// ActiveWindow is how close a mark must be to the clock to be shown
const ActiveWindow = 0.5

const (
	strokeWidth = 3
	labelWidth  = 100
	labelHeight = 20
)

// Box is a mark laid out on the rendered surface
type Box struct {
	X           float64             `json:"x"`
	Y           float64             `json:"y"`
	Width       float64             `json:"width"`
	Height      float64             `json:"height"`
	Color       string              `json:"color"`
	Label       string              `json:"label"`
	Description string              `json:"description,omitempty"`
	Category    models.MarkCategory `json:"category"`
}

var categoryColors = map[models.MarkCategory]string{
	models.MarkSpeed:        "#EF4444",
	models.MarkAccident:     "#F59E0B",
	models.MarkLane:         "#3B82F6",
	models.MarkTrafficLight: "#10B981",
	models.MarkRoadSign:     "#8B5CF6",
}

// DefaultColor is used for categories without a colour of their own
const DefaultColor = "#6B7280"

// CategoryColor returns the overlay colour for a mark category
func CategoryColor(c models.MarkCategory) string {
	if hex, ok := categoryColors[c]; ok {
		return hex
	}
	return DefaultColor
}

// ActiveMarks returns the marks within ActiveWindow of t, in input order
func ActiveMarks(marks []models.AnnotationMark, t float64) []models.AnnotationMark {
	var out []models.AnnotationMark
	for _, m := range marks {
		if math.Abs(t-m.TimeSeconds) < ActiveWindow {
			out = append(out, m)
		}
	}
	return out
}

// Layout scales the normalised boxes of marks to size. Marks without a box
// are not drawn.
func Layout(marks []models.AnnotationMark, size Size) []Box {
	boxes := make([]Box, 0, len(marks))
	for _, m := range marks {
		if m.BoundingBox == nil {
			continue
		}
		bb := m.BoundingBox
		boxes = append(boxes, Box{
			X:           bb.X * size.Width,
			Y:           bb.Y * size.Height,
			Width:       bb.Width * size.Width,
			Height:      bb.Height * size.Height,
			Color:       CategoryColor(m.Category),
			Label:       string(m.Category),
			Description: m.Description,
			Category:    m.Category,
		})
	}
	return boxes
}

// FormatTime renders seconds as M:SS
func FormatTime(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		seconds = 0
	}
	total := int(math.Floor(seconds))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// ParseColor reads a #RRGGBB colour
func ParseColor(hex string) (color.RGBA, error) {
	var c color.RGBA
	if len(hex) != 7 || hex[0] != '#' {
		return c, fmt.Errorf("invalid colour %q", hex)
	}
	if _, err := fmt.Sscanf(hex[1:], "%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
		return c, fmt.Errorf("invalid colour %q: %w", hex, err)
	}
	c.A = 0xff
	return c, nil
}

// DrawOverlay strokes each box and puts its label tag above the top-left
// corner. Drawing is clipped to dst.
func DrawOverlay(dst draw.Image, boxes []Box) {
	for _, b := range boxes {
		c, err := ParseColor(b.Color)
		if err != nil {
			c, _ = ParseColor(DefaultColor)
		}
		fill := image.NewUniform(c)

		x0 := int(math.Round(b.X))
		y0 := int(math.Round(b.Y))
		x1 := int(math.Round(b.X + b.Width))
		y1 := int(math.Round(b.Y + b.Height))

		// the stroke straddles the edge like a canvas strokeRect
		half := strokeWidth / 2
		edges := []image.Rectangle{
			image.Rect(x0-half, y0-half, x1+half+1, y0+half+1),
			image.Rect(x0-half, y1-half, x1+half+1, y1+half+1),
			image.Rect(x0-half, y0-half, x0+half+1, y1+half+1),
			image.Rect(x1-half, y0-half, x1+half+1, y1+half+1),
		}
		for _, r := range edges {
			draw.Draw(dst, r, fill, image.Point{}, draw.Src)
		}

		draw.Draw(dst, image.Rect(x0, y0-labelHeight, x0+labelWidth, y0), fill, image.Point{}, draw.Src)

		d := &font.Drawer{
			Dst:  dst,
			Src:  image.White,
			Face: basicfont.Face7x13,
			Dot:  fixed.P(x0+5, y0-5),
		}
		d.DrawString(b.Label)
	}
}

// RenderPNG draws boxes onto a transparent canvas and encodes it
func RenderPNG(w io.Writer, boxes []Box, size Size) error {
	width, height := int(size.Width), int(size.Height)
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid overlay size %dx%d", width, height)
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	DrawOverlay(img, boxes)
	return png.Encode(w, img)
}
