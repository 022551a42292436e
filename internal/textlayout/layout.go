/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package textlayout breaks captions into lines that fit a card. Widths come
// from a Measurer so the same wrapping serves pixel fonts and terminal cells.
package textlayout

import (
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

// Measurer returns the rendered width of s.
type Measurer interface {
	Width(s string) float64
}

// FaceMeasurer measures with a font face, in pixels.
type FaceMeasurer struct{ Face font.Face }

func (m FaceMeasurer) Width(s string) float64 {
	d := &font.Drawer{Face: m.Face}
	return float64(d.MeasureString(s)) / 64
}

// CellMeasurer measures in terminal cells.
type CellMeasurer struct{}

func (CellMeasurer) Width(s string) float64 { return float64(runewidth.StringWidth(s)) }

// Basic is the built-in 7x13 bitmap face; it needs no font files.
func Basic() font.Face { return basicfont.Face7x13 }

// LineHeight is the distance between baselines for face.
func LineHeight(face font.Face) float64 {
	return float64(face.Metrics().Height) / 64
}

// Wrap breaks text on spaces into lines no wider than maxWidth. Words that do
// not fit on a line of their own are split between runes. Explicit newlines
// are kept. A non-positive maxWidth returns the text's lines unchanged.
func Wrap(m Measurer, text string, maxWidth float64) []string {
	var out []string
	for _, para := range strings.Split(text, "\n") {
		if maxWidth <= 0 {
			out = append(out, para)
			continue
		}
		out = append(out, wrapParagraph(m, para, maxWidth)...)
	}
	return out
}

func wrapParagraph(m Measurer, para string, maxWidth float64) []string {
	words := strings.Fields(para)
	if len(words) == 0 {
		return []string{""}
	}
	var lines []string
	cur := ""
	for _, w := range words {
		cand := w
		if cur != "" {
			cand = cur + " " + w
		}
		if m.Width(cand) <= maxWidth {
			cur = cand
			continue
		}
		if cur != "" {
			lines = append(lines, cur)
			cur = ""
		}
		for m.Width(w) > maxWidth {
			head, rest := splitAt(m, w, maxWidth)
			lines = append(lines, head)
			w = rest
		}
		cur = w
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}

// splitAt returns the longest prefix of w that fits, at least one rune.
func splitAt(m Measurer, w string, maxWidth float64) (string, string) {
	cut := 0
	for i := range w {
		if i > 0 && m.Width(w[:i]) > maxWidth {
			break
		}
		cut = i
	}
	if cut == 0 {
		_, size := utf8.DecodeRuneInString(w)
		cut = size
	}
	return w[:cut], w[cut:]
}

// Clip keeps at most n lines. When lines are dropped the last kept line ends
// with an ellipsis, shortened until it fits maxWidth.
func Clip(m Measurer, lines []string, n int, maxWidth float64) []string {
	if n <= 0 {
		return nil
	}
	if len(lines) <= n {
		return lines
	}
	out := append([]string(nil), lines[:n]...)
	last := strings.TrimRight(out[n-1], " ")
	for last != "" && maxWidth > 0 && m.Width(last+"...") > maxWidth {
		_, size := utf8.DecodeLastRuneInString(last)
		last = last[:len(last)-size]
	}
	out[n-1] = last + "..."
	return out
}
