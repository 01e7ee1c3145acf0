// Package gui is an immediate-mode overlay recorded into the swapchain render pass.
//
// Widgets are rebuilt every frame between NewFrame and Render. Solid shapes and text are
// drawn as attachment clears, so the overlay needs no pipeline of its own; images go
// through the renderer's textured quad.
package gui

import (
	"image"
	"time"

	"github.com/FilipHusnjak/Neon-sub000/renderer"
	"github.com/vkngwrapper/core/v3/core1_0"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Color is linear RGBA.
type Color [4]float32

var (
	White = Color{1, 1, 1, 1}
	Black = Color{0, 0, 0, 1}
	Green = Color{0.2, 0.8, 0.3, 1}
	Red   = Color{0.9, 0.2, 0.2, 1}
	Panel = Color{0.08, 0.08, 0.1, 1}
)

type fill struct {
	rect  image.Rectangle
	color Color
}

type imageDraw struct {
	set  core1_0.DescriptorSet
	rect image.Rectangle
}

// Overlay collects the widgets of one frame.
type Overlay struct {
	// TextScale enlarges every glyph pixel to a TextScale x TextScale square.
	TextScale int

	face   font.Face
	width  int
	height int
	fills  []fill
	images []imageDraw
}

func New() *Overlay {
	return &Overlay{
		TextScale: 1,
		face:      basicfont.Face7x13,
	}
}

// NewFrame discards the previous frame's widgets.
func (o *Overlay) NewFrame(width, height int) {
	o.width, o.height = width, height
	o.fills = o.fills[:0]
	o.images = o.images[:0]
}

// Rect fills r.
func (o *Overlay) Rect(r image.Rectangle, c Color) {
	r = r.Canon().Intersect(image.Rect(0, 0, o.width, o.height))
	if r.Empty() {
		return
	}
	o.fills = append(o.fills, fill{rect: r, color: c})
}

// Text draws s with its top-left corner at (x, y) and returns the label bounds.
func (o *Overlay) Text(x, y int, s string, c Color) image.Rectangle {
	scale := o.TextScale
	if scale < 1 {
		scale = 1
	}

	metrics := o.face.Metrics()
	ascent := metrics.Ascent.Ceil()
	dot := fixed.P(0, ascent)

	for _, r := range s {
		dr, mask, maskp, advance, ok := o.face.Glyph(dot, r)
		if ok {
			o.glyph(x, y, scale, dr, mask, maskp, c)
		}
		dot.X += advance
	}

	return image.Rect(x, y, x+dot.X.Ceil()*scale, y+metrics.Height.Ceil()*scale)
}

// glyph emits one rect per horizontal run of covered mask pixels.
func (o *Overlay) glyph(x, y, scale int, dr image.Rectangle, mask image.Image, maskp image.Point, c Color) {
	for row := 0; row < dr.Dy(); row++ {
		start := -1
		for col := 0; col <= dr.Dx(); col++ {
			covered := false
			if col < dr.Dx() {
				_, _, _, a := mask.At(maskp.X+col, maskp.Y+row).RGBA()
				covered = a >= 0x8000
			}
			switch {
			case covered && start < 0:
				start = col
			case !covered && start >= 0:
				px := x + (dr.Min.X+start)*scale
				py := y + (dr.Min.Y+row)*scale
				o.Rect(image.Rect(px, py, px+(col-start)*scale, py+scale), c)
				start = -1
			}
		}
	}
}

// FrameGraph draws one bar per sample inside r. A bar reaching the top of r took budget;
// slower frames are clamped and drawn in red.
func (o *Overlay) FrameGraph(r image.Rectangle, samples []time.Duration, budget time.Duration) {
	o.Rect(r, Panel)
	if len(samples) == 0 || budget <= 0 || r.Dx() <= 0 {
		return
	}

	barWidth := r.Dx() / len(samples)
	if barWidth < 1 {
		barWidth = 1
		samples = samples[len(samples)-r.Dx():]
	}

	for i, sample := range samples {
		c := Green
		h := int(int64(r.Dy()) * int64(sample) / int64(budget))
		if h > r.Dy() {
			h = r.Dy()
			c = Red
		}
		if h <= 0 {
			continue
		}
		x := r.Min.X + i*barWidth
		o.Rect(image.Rect(x, r.Max.Y-h, x+barWidth, r.Max.Y), c)
	}
}

// Image draws the sampled image in set into r.
func (o *Overlay) Image(set core1_0.DescriptorSet, r image.Rectangle) {
	r = r.Canon()
	if r.Empty() {
		return
	}
	o.images = append(o.images, imageDraw{set: set, rect: r})
}

type clearBatch struct {
	color Color
	rects []core1_0.ClearRect
}

// batches groups fills by color in first-use order. Overlapping fills of different
// colors keep their relative order only within a color.
func (o *Overlay) batches() []clearBatch {
	var out []clearBatch
	index := map[Color]int{}
	for _, f := range o.fills {
		i, ok := index[f.color]
		if !ok {
			i = len(out)
			index[f.color] = i
			out = append(out, clearBatch{color: f.color})
		}
		out[i].rects = append(out[i].rects, core1_0.ClearRect{
			Rect: core1_0.Rect2D{
				Offset: core1_0.Offset2D{X: f.rect.Min.X, Y: f.rect.Min.Y},
				Extent: core1_0.Extent2D{Width: f.rect.Dx(), Height: f.rect.Dy()},
			},
			BaseArrayLayer: 0,
			LayerCount:     1,
		})
	}
	return out
}

// Render records the frame's widgets into target's open render pass.
func (o *Overlay) Render(target renderer.OverlayTarget) error {
	width, height := target.Extent()
	if width != o.width || height != o.height {
		// Widgets were laid out for another size; clear rects must stay inside the pass.
		o.clip(width, height)
	}

	driver := target.Driver()
	cmd := target.CommandBuffer().Handle()
	for _, batch := range o.batches() {
		driver.CmdClearAttachments(cmd,
			[]core1_0.ClearAttachment{
				{
					AspectMask:      core1_0.ImageAspectColor,
					ColorAttachment: 0,
					ClearValue:      core1_0.ClearValueFloat(batch.color),
				},
			},
			batch.rects,
		)
	}

	for _, img := range o.images {
		err := target.DrawImage(img.set,
			float32(img.rect.Min.X), float32(img.rect.Min.Y),
			float32(img.rect.Dx()), float32(img.rect.Dy()))
		if err != nil {
			return err
		}
	}
	return nil
}

func (o *Overlay) clip(width, height int) {
	bounds := image.Rect(0, 0, width, height)
	kept := o.fills[:0]
	for _, f := range o.fills {
		f.rect = f.rect.Intersect(bounds)
		if !f.rect.Empty() {
			kept = append(kept, f)
		}
	}
	o.fills = kept
	o.width, o.height = width, height
}

var _ renderer.Overlay = (*Overlay)(nil)
