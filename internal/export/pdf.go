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
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/jung-kurt/gofpdf"

	"storyboard/internal/canvas"
	"storyboard/internal/textlayout"
	"storyboard/internal/vector"
)

// PDF writes the frame as a single page the size of the canvas, one point per
// canvas pixel. Landscape or portrait follows the canvas shape.
func PDF(w io.Writer, f canvas.Frame, opt Options) error {
	pageW, pageH := f.Viewport.W, f.Viewport.H
	if pageW <= 0 || pageH <= 0 {
		return fmt.Errorf("empty canvas %gx%g", pageW, pageH)
	}
	orientation := "P"
	size := gofpdf.SizeType{Wd: pageW, Ht: pageH}
	if pageW > pageH {
		orientation = "L"
		size = gofpdf.SizeType{Wd: pageH, Ht: pageW}
	}
	pdf := gofpdf.NewCustom(&gofpdf.InitType{UnitStr: "pt", Size: size, OrientationStr: orientation})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	title := f.Title
	if title == "" {
		title = "Storyboard"
	}
	pdf.SetTitle(title, true)
	pdf.SetCreator("storyboard", false)
	pdf.AddPageFormat(orientation, size)

	if opt.RasterPDF {
		if err := embedRaster(pdf, f, opt, pageW, pageH); err != nil {
			return err
		}
	} else {
		v := &vectorPDF{pdf: pdf, vp: f.Viewport, tr: pdf.UnicodeTranslatorFromDescriptor("")}
		v.paint(f, opt)
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// embedRaster places a PNG rendering over the whole page.
func embedRaster(pdf *gofpdf.Fpdf, f canvas.Frame, opt Options, pageW, pageH float64) error {
	var buf bytes.Buffer
	if err := PNG(&buf, f, opt); err != nil {
		return err
	}
	o := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("canvas", o, &buf)
	pdf.ImageOptions("canvas", 0, 0, pageW, pageH, false, o, 0, "")
	return pdf.Error()
}

type vectorPDF struct {
	pdf    *gofpdf.Fpdf
	vp     vector.Viewport
	tr     func(string) string
	images int
}

func (v *vectorPDF) Width(s string) float64 { return v.pdf.GetStringWidth(v.tr(s)) }

func (v *vectorPDF) scale() float64 { return vector.ClampScale(v.vp.Scale) }

func (v *vectorPDF) pt(p vector.Pt) vector.Pt { return v.vp.ToScreen(p) }

func (v *vectorPDF) draw(c color.RGBA) { v.pdf.SetDrawColor(int(c.R), int(c.G), int(c.B)) }
func (v *vectorPDF) fill(c color.RGBA) { v.pdf.SetFillColor(int(c.R), int(c.G), int(c.B)) }

func (v *vectorPDF) rect(x, y, w, h float64, style string) {
	p := v.pt(vector.Pt{X: x, Y: y})
	s := v.scale()
	v.pdf.Rect(p.X, p.Y, w*s, h*s, style)
}

func (v *vectorPDF) paint(f canvas.Frame, opt Options) {
	pdf := v.pdf
	v.fill(colBackground)
	pdf.Rect(0, 0, f.Viewport.W, f.Viewport.H, "F")

	v.draw(colGrid)
	pdf.SetLineWidth(0.5)
	for _, g := range f.Grid {
		a, b := v.pt(g.From), v.pt(g.To)
		pdf.Line(a.X, a.Y, b.X, b.Y)
	}

	pdf.SetFont("Helvetica", "", captionSize*v.scale())
	v.draw(colArrow)
	v.fill(colArrow)
	pdf.SetLineWidth(2 * v.scale())
	for _, a := range f.Arrows {
		from, tip := v.pt(a.Arrow.From), v.pt(a.Arrow.Tip)
		pdf.Line(from.X, from.Y, tip.X, tip.Y)
		l, r := v.pt(a.Arrow.HeadLeft), v.pt(a.Arrow.HeadRight)
		pdf.Polygon([]gofpdf.PointType{{X: tip.X, Y: tip.Y}, {X: l.X, Y: l.Y}, {X: r.X, Y: r.Y}}, "F")
		if a.Label != "" {
			pdf.SetTextColor(int(colText.R), int(colText.G), int(colText.B))
			pdf.Text((from.X+tip.X)/2+4, (from.Y+tip.Y)/2-4, v.tr(a.Label))
		}
	}

	for _, c := range f.Cards {
		v.card(c, opt)
	}
}

func (v *vectorPDF) card(c canvas.CardView, opt Options) {
	pdf := v.pdf
	b := c.Bounds
	s := v.scale()
	v.fill(colCardFill)
	v.rect(b.X, b.Y, b.W, b.H, "F")

	ix, iy, iw, ih := imageArea(c)
	drawn := false
	if src, ok := opt.image(c.ImageURL); ok {
		drawn = v.image(src, ix, iy, iw, ih)
	}
	if !drawn {
		ph := c.Placeholder
		if ph == canvas.PlaceholderNone {
			ph = canvas.PlaceholderLoading
		}
		v.fill(placeholderFill(ph))
		v.rect(ix, iy, iw, ih, "F")
		label := ph.Text()
		center := v.pt(vector.Pt{X: ix + iw/2, Y: iy + ih/2})
		pdf.SetTextColor(int(colArrow.R), int(colArrow.G), int(colArrow.B))
		pdf.Text(center.X-v.Width(label)/2, center.Y, v.tr(label))
	}

	maxW := (b.W - 2*captionPad) * s
	lines := textlayout.Clip(v, textlayout.Wrap(v, c.Caption, maxW), maxCaption, maxW)
	top := v.pt(vector.Pt{X: b.X + captionPad, Y: b.Y + b.H - captionHeight + captionPad})
	lh := captionSize * 1.2 * s
	pdf.SetTextColor(int(colText.R), int(colText.G), int(colText.B))
	for i, ln := range lines {
		pdf.Text(top.X, top.Y+lh*float64(i+1)-lh/4, v.tr(ln))
	}

	col, t := border(c)
	v.draw(col)
	pdf.SetLineWidth(t * s)
	v.rect(b.X, b.Y, b.W, b.H, "D")
}

// image embeds src fitted into the canvas rectangle; false when it could not be encoded.
func (v *vectorPDF) image(src image.Image, x, y, w, h float64) bool {
	sb := src.Bounds()
	if sb.Dx() <= 0 || sb.Dy() <= 0 {
		return false
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		return false
	}
	v.images++
	name := fmt.Sprintf("scene-%d", v.images)
	o := gofpdf.ImageOptions{ImageType: "PNG"}
	v.pdf.RegisterImageOptionsReader(name, o, &buf)
	k := math.Min(w/float64(sb.Dx()), h/float64(sb.Dy()))
	dw, dh := float64(sb.Dx())*k, float64(sb.Dy())*k
	p := v.pt(vector.Pt{X: x + (w-dw)/2, Y: y + (h-dh)/2})
	s := v.scale()
	v.pdf.ImageOptions(name, p.X, p.Y, dw*s, dh*s, false, o, 0, "")
	return v.pdf.Ok()
}
