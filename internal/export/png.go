/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package export

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"storyboard/internal/canvas"
	"storyboard/internal/textlayout"
	"storyboard/internal/vector"
)

var fonts = textlayout.NewFontLibrary()

// PNG encodes the frame as a PNG of Viewport.W x Viewport.H times the pixel ratio.
func PNG(w io.Writer, f canvas.Frame, opt Options) error {
	img, err := Rasterize(f, opt)
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// Rasterize paints the frame into a new RGBA image.
func Rasterize(f canvas.Frame, opt Options) (*image.RGBA, error) {
	ratio := opt.ratio()
	pixW := int(math.Round(f.Viewport.W * ratio))
	pixH := int(math.Round(f.Viewport.H * ratio))
	if pixW <= 0 || pixH <= 0 {
		return nil, fmt.Errorf("empty canvas %gx%g", f.Viewport.W, f.Viewport.H)
	}
	r := &raster{
		img:   image.NewRGBA(image.Rect(0, 0, pixW, pixH)),
		vp:    f.Viewport,
		ratio: ratio,
	}
	face, err := fonts.Face(opt.FontFile, captionSize*r.scale())
	if err != nil {
		return nil, err
	}
	r.face = face
	draw.Draw(r.img, r.img.Bounds(), &image.Uniform{C: colBackground}, image.Point{}, draw.Src)

	for _, g := range f.Grid {
		r.line(g.From, g.To, 1, colGrid)
	}
	for _, a := range f.Arrows {
		r.arrow(a)
	}
	for _, c := range f.Cards {
		r.card(c, opt)
	}
	return r.img, nil
}

type raster struct {
	img   *image.RGBA
	vp    vector.Viewport
	ratio float64
	face  font.Face
}

func (r *raster) scale() float64 { return vector.ClampScale(r.vp.Scale) * r.ratio }

func (r *raster) pt(p vector.Pt) vector.Pt { return r.vp.ToScreen(p).Mul(r.ratio) }

func (r *raster) rect(x, y, w, h float64) image.Rectangle {
	a := r.pt(vector.Pt{X: x, Y: y})
	b := r.pt(vector.Pt{X: x + w, Y: y + h})
	return image.Rect(int(math.Round(a.X)), int(math.Round(a.Y)), int(math.Round(b.X)), int(math.Round(b.Y)))
}

func (r *raster) fill(rc image.Rectangle, col color.RGBA) {
	draw.Draw(r.img, rc.Intersect(r.img.Bounds()), &image.Uniform{C: col}, image.Point{}, draw.Over)
}

// stroke draws a border of t device pixels inside rc.
func (r *raster) stroke(rc image.Rectangle, t int, col color.RGBA) {
	if t < 1 {
		t = 1
	}
	r.fill(image.Rect(rc.Min.X, rc.Min.Y, rc.Max.X, rc.Min.Y+t), col)
	r.fill(image.Rect(rc.Min.X, rc.Max.Y-t, rc.Max.X, rc.Max.Y), col)
	r.fill(image.Rect(rc.Min.X, rc.Min.Y, rc.Min.X+t, rc.Max.Y), col)
	r.fill(image.Rect(rc.Max.X-t, rc.Min.Y, rc.Max.X, rc.Max.Y), col)
}

// line steps along a..b (canvas space) stamping squares of width device pixels.
func (r *raster) line(a, b vector.Pt, width float64, col color.RGBA) {
	p, q := r.pt(a), r.pt(b)
	wpx := math.Max(1, math.Round(width*r.ratio))
	n := int(math.Ceil(p.Dist(q)))
	half := wpx / 2
	for i := 0; i <= n; i++ {
		t := 0.0
		if n > 0 {
			t = float64(i) / float64(n)
		}
		x := p.X + (q.X-p.X)*t
		y := p.Y + (q.Y-p.Y)*t
		r.fill(image.Rect(int(x-half), int(y-half), int(x-half+wpx), int(y-half+wpx)), col)
	}
}

// triangle fills the triangle a, b, c given in canvas space.
func (r *raster) triangle(a, b, c vector.Pt, col color.RGBA) {
	p0, p1, p2 := r.pt(a), r.pt(b), r.pt(c)
	minX := int(math.Floor(math.Min(p0.X, math.Min(p1.X, p2.X))))
	maxX := int(math.Ceil(math.Max(p0.X, math.Max(p1.X, p2.X))))
	minY := int(math.Floor(math.Min(p0.Y, math.Min(p1.Y, p2.Y))))
	maxY := int(math.Ceil(math.Max(p0.Y, math.Max(p1.Y, p2.Y))))
	bounds := r.img.Bounds()
	for y := max(minY, bounds.Min.Y); y <= min(maxY, bounds.Max.Y-1); y++ {
		for x := max(minX, bounds.Min.X); x <= min(maxX, bounds.Max.X-1); x++ {
			pt := vector.Pt{X: float64(x) + 0.5, Y: float64(y) + 0.5}
			d0, d1, d2 := edge(p0, p1, pt), edge(p1, p2, pt), edge(p2, p0, pt)
			neg := d0 < 0 || d1 < 0 || d2 < 0
			pos := d0 > 0 || d1 > 0 || d2 > 0
			if !(neg && pos) {
				r.img.SetRGBA(x, y, col)
			}
		}
	}
}

func edge(a, b, p vector.Pt) float64 { return (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X) }

func (r *raster) text(s string, x, baseline float64, col color.RGBA) {
	d := &font.Drawer{
		Dst:  r.img,
		Src:  image.NewUniform(col),
		Face: r.face,
		Dot:  fixed.Point26_6{X: fixed.Int26_6(x * 64), Y: fixed.Int26_6(baseline * 64)},
	}
	d.DrawString(s)
}

func (r *raster) arrow(a canvas.ArrowView) {
	r.line(a.Arrow.From, a.Arrow.Tip, 2, colArrow)
	r.triangle(a.Arrow.Tip, a.Arrow.HeadLeft, a.Arrow.HeadRight, colArrow)
	if a.Label != "" {
		mid := r.pt(vector.Pt{X: (a.Arrow.From.X + a.Arrow.Tip.X) / 2, Y: (a.Arrow.From.Y + a.Arrow.Tip.Y) / 2})
		r.text(a.Label, mid.X+4, mid.Y-4, colText)
	}
}

func (r *raster) card(c canvas.CardView, opt Options) {
	b := c.Bounds
	outer := r.rect(b.X, b.Y, b.W, b.H)
	r.fill(outer, colCardFill)

	ix, iy, iw, ih := imageArea(c)
	area := r.rect(ix, iy, iw, ih)
	if src, ok := opt.image(c.ImageURL); ok {
		xdraw.CatmullRom.Scale(r.img, contain(area, src.Bounds()), src, src.Bounds(), xdraw.Over, nil)
	} else {
		ph := c.Placeholder
		if ph == canvas.PlaceholderNone {
			ph = canvas.PlaceholderLoading
		}
		r.fill(area, placeholderFill(ph))
		m := textlayout.FaceMeasurer{Face: r.face}
		label := ph.Text()
		cx := float64(area.Min.X+area.Max.X)/2 - m.Width(label)/2
		cy := float64(area.Min.Y+area.Max.Y) / 2
		r.text(label, cx, cy, colArrow)
	}

	m := textlayout.FaceMeasurer{Face: r.face}
	maxW := (b.W - 2*captionPad) * r.scale()
	lines := textlayout.Clip(m, textlayout.Wrap(m, c.Caption, maxW), maxCaption, maxW)
	lh := textlayout.LineHeight(r.face)
	top := r.pt(vector.Pt{X: b.X + captionPad, Y: b.Y + b.H - captionHeight + captionPad})
	for i, ln := range lines {
		r.text(ln, top.X, top.Y+lh*float64(i+1)-lh/4, colText)
	}

	col, t := border(c)
	r.stroke(outer, int(math.Round(t*r.ratio)), col)
}

// contain fits src's aspect ratio into dst, centered.
func contain(dst, src image.Rectangle) image.Rectangle {
	dw, dh := float64(dst.Dx()), float64(dst.Dy())
	sw, sh := float64(src.Dx()), float64(src.Dy())
	if dw <= 0 || dh <= 0 || sw <= 0 || sh <= 0 {
		return dst
	}
	k := math.Min(dw/sw, dh/sh)
	w, h := int(sw*k), int(sh*k)
	x := dst.Min.X + (dst.Dx()-w)/2
	y := dst.Min.Y + (dst.Dy()-h)/2
	return image.Rect(x, y, x+w, y+h)
}
