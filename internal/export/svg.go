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
	"bufio"
	"fmt"
	"html"
	"image/color"
	"io"
	"unicode/utf8"

	"storyboard/internal/canvas"
	"storyboard/internal/textlayout"
	"storyboard/internal/vector"
)

// SVG writes the frame as an SVG document of Viewport.W x Viewport.H pixels.
// Scene images are linked by URL, not embedded.
func SVG(w io.Writer, f canvas.Frame) error {
	if f.Viewport.W <= 0 || f.Viewport.H <= 0 {
		return fmt.Errorf("empty canvas %gx%g", f.Viewport.W, f.Viewport.H)
	}
	bw := bufio.NewWriter(w)
	var werr error
	wf := func(format string, args ...any) {
		if werr != nil {
			return
		}
		_, werr = fmt.Fprintf(bw, format, args...)
	}
	s := vector.ClampScale(f.Viewport.Scale)

	wf("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	wf("<svg xmlns=\"http://www.w3.org/2000/svg\" xmlns:xlink=\"http://www.w3.org/1999/xlink\" version=\"1.1\" width=\"%g\" height=\"%g\" viewBox=\"0 0 %g %g\">\n",
		f.Viewport.W, f.Viewport.H, f.Viewport.W, f.Viewport.H)
	if f.Title != "" {
		wf("  <title>%s</title>\n", html.EscapeString(f.Title))
	}
	wf("  <rect x=\"0\" y=\"0\" width=\"%g\" height=\"%g\" fill=\"%s\"/>\n", f.Viewport.W, f.Viewport.H, svgColor(colBackground))
	wf("  <defs><marker id=\"head\" markerWidth=\"12\" markerHeight=\"10\" refX=\"12\" refY=\"5\" orient=\"auto\" markerUnits=\"userSpaceOnUse\"><path d=\"M0,0 L12,5 L0,10 z\" fill=\"%s\"/></marker></defs>\n", svgColor(colArrow))
	wf("  <g transform=\"matrix(%g 0 0 %g %g %g)\" font-family=\"Helvetica, Arial, sans-serif\" font-size=\"%g\">\n",
		s, s, f.Viewport.OffsetX, f.Viewport.OffsetY, captionSize)

	wf("    <g stroke=\"%s\" stroke-width=\"1\">\n", svgColor(colGrid))
	for _, g := range f.Grid {
		wf("      <line x1=\"%g\" y1=\"%g\" x2=\"%g\" y2=\"%g\"/>\n", g.From.X, g.From.Y, g.To.X, g.To.Y)
	}
	wf("    </g>\n")

	for _, a := range f.Arrows {
		wf("    <line x1=\"%g\" y1=\"%g\" x2=\"%g\" y2=\"%g\" stroke=\"%s\" stroke-width=\"2\" marker-end=\"url(#head)\"/>\n",
			a.Arrow.From.X, a.Arrow.From.Y, a.Arrow.Tip.X, a.Arrow.Tip.Y, svgColor(colArrow))
		if a.Label != "" {
			wf("    <text x=\"%g\" y=\"%g\" fill=\"%s\">%s</text>\n",
				(a.Arrow.From.X+a.Arrow.Tip.X)/2+4, (a.Arrow.From.Y+a.Arrow.Tip.Y)/2-4, svgColor(colText), html.EscapeString(a.Label))
		}
	}

	m := emMeasurer(captionSize)
	for _, c := range f.Cards {
		b := c.Bounds
		col, t := border(c)
		wf("    <g id=\"scene-%s\">\n", html.EscapeString(c.SceneID))
		wf("      <rect x=\"%g\" y=\"%g\" width=\"%g\" height=\"%g\" fill=\"%s\"/>\n", b.X, b.Y, b.W, b.H, svgColor(colCardFill))
		ix, iy, iw, ih := imageArea(c)
		if c.ImageURL != "" && c.Placeholder != canvas.PlaceholderFailed {
			wf("      <image x=\"%g\" y=\"%g\" width=\"%g\" height=\"%g\" preserveAspectRatio=\"xMidYMid meet\" xlink:href=\"%s\"/>\n",
				ix, iy, iw, ih, html.EscapeString(c.ImageURL))
		} else {
			wf("      <rect x=\"%g\" y=\"%g\" width=\"%g\" height=\"%g\" fill=\"%s\"/>\n", ix, iy, iw, ih, svgColor(placeholderFill(c.Placeholder)))
			wf("      <text x=\"%g\" y=\"%g\" text-anchor=\"middle\" fill=\"%s\">%s</text>\n",
				ix+iw/2, iy+ih/2, svgColor(colArrow), html.EscapeString(c.Placeholder.Text()))
		}
		maxW := b.W - 2*captionPad
		lines := textlayout.Clip(m, textlayout.Wrap(m, c.Caption, maxW), maxCaption, maxW)
		lh := captionSize * 1.2
		top := b.Y + b.H - captionHeight + captionPad
		for i, ln := range lines {
			wf("      <text x=\"%g\" y=\"%g\" fill=\"%s\">%s</text>\n", b.X+captionPad, top+lh*float64(i+1)-lh/4, svgColor(colText), html.EscapeString(ln))
		}
		wf("      <rect x=\"%g\" y=\"%g\" width=\"%g\" height=\"%g\" fill=\"none\" stroke=\"%s\" stroke-width=\"%g\"/>\n", b.X, b.Y, b.W, b.H, svgColor(col), t)
		wf("    </g>\n")
	}
	wf("  </g>\n</svg>\n")
	if werr != nil {
		return fmt.Errorf("build svg: %w", werr)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write svg: %w", err)
	}
	return nil
}

func svgColor(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// emMeasurer estimates proportional text at an average advance of 0.55em.
type emMeasurer float64

func (m emMeasurer) Width(s string) float64 {
	return float64(utf8.RuneCountInString(s)) * 0.55 * float64(m)
}
