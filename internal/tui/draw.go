/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package tui

import (
	"fmt"
	"math"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"storyboard/internal/canvas"
	"storyboard/internal/textlayout"
	"storyboard/internal/vector"
)

var (
	styleBase     = tcell.StyleDefault
	styleGrid     = tcell.StyleDefault.Foreground(tcell.ColorDimGray)
	styleArrow    = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleCard     = tcell.StyleDefault.Foreground(tcell.ColorSilver)
	styleHovered  = tcell.StyleDefault.Foreground(tcell.ColorWhite)
	styleSelected = tcell.StyleDefault.Foreground(tcell.ColorSlateBlue).Bold(true)
	styleConnect  = tcell.StyleDefault.Foreground(tcell.ColorMediumSeaGreen).Bold(true)
	styleCaption  = tcell.StyleDefault.Foreground(tcell.ColorWhite)
	styleStatus   = tcell.StyleDefault.Reverse(true)
	styleError    = tcell.StyleDefault.Foreground(tcell.ColorRed).Reverse(true)
	styleHelp     = tcell.StyleDefault.Foreground(tcell.ColorGray)
)

func placeholderStyle(p canvas.Placeholder) tcell.Style {
	switch p {
	case canvas.PlaceholderLoading:
		return tcell.StyleDefault.Foreground(tcell.ColorYellow)
	case canvas.PlaceholderFailed:
		return tcell.StyleDefault.Foreground(tcell.ColorRed)
	default:
		return tcell.StyleDefault.Foreground(tcell.ColorGray)
	}
}

type boxRunes struct{ tl, tr, bl, br, h, v rune }

var (
	singleBox = boxRunes{'┌', '┐', '└', '┘', '─', '│'}
	doubleBox = boxRunes{'╔', '╗', '╚', '╝', '═', '║'}
)

// painter clips drawing to the canvas rows.
type painter struct {
	s    tcell.Screen
	w, h int
	vp   vector.Viewport
}

func (p painter) set(x, y int, r rune, st tcell.Style) {
	if x < 0 || y < 0 || x >= p.w || y >= p.h {
		return
	}
	p.s.SetContent(x, y, r, nil, st)
}

func (p painter) text(x, y int, s string, st tcell.Style) {
	for _, r := range s {
		p.set(x, y, r, st)
		x += max(runewidth.RuneWidth(r), 1)
	}
}

// cell maps a canvas point to the terminal cell containing it.
func (p painter) cell(pt vector.Pt) (int, int) {
	s := p.vp.ToScreen(pt)
	return int(math.Floor(s.X / CellWidth)), int(math.Floor(s.Y / CellHeight))
}

// Draw paints the current frame, the input or help line and the status bar.
func (a *App) Draw() {
	a.screen.Clear()
	w, h := a.screen.Size()
	f := a.sess.Controller().Frame()
	p := painter{s: a.screen, w: w, h: a.canvasRows(), vp: f.Viewport}

	for _, g := range f.Grid {
		p.grid(g)
	}
	for _, ar := range f.Arrows {
		p.arrow(ar)
	}
	for _, c := range f.Cards {
		p.card(c)
	}
	a.drawChrome(w, h, f)
	a.screen.Show()
}

func (p painter) grid(g canvas.GridLine) {
	x0, y0 := p.cell(g.From)
	x1, y1 := p.cell(g.To)
	if g.Vertical {
		for y := max(y0, 0); y <= min(y1, p.h-1); y++ {
			p.set(x0, y, '┊', styleGrid)
		}
		return
	}
	for x := max(x0, 0); x <= min(x1, p.w-1); x++ {
		p.set(x, y0, '┄', styleGrid)
	}
}

func (p painter) arrow(a canvas.ArrowView) {
	x0, y0 := p.cell(a.Arrow.From)
	x1, y1 := p.cell(a.Arrow.Tip)
	steps := max(abs(x1-x0), abs(y1-y0))
	for i := 0; i < steps; i++ {
		t := float64(i) / float64(steps)
		x := x0 + int(math.Round(float64(x1-x0)*t))
		y := y0 + int(math.Round(float64(y1-y0)*t))
		p.set(x, y, '·', styleArrow)
	}
	p.set(x1, y1, head(a.Arrow.Angle), styleArrow)
	if a.Label != "" {
		p.text((x0+x1)/2, (y0+y1)/2, a.Label, styleArrow)
	}
}

// head picks the arrowhead glyph closest to angle (radians, y down).
func head(angle float64) rune {
	deg := math.Mod(angle*180/math.Pi+360, 360)
	switch {
	case deg < 45 || deg >= 315:
		return '▶'
	case deg < 135:
		return '▼'
	case deg < 225:
		return '◀'
	default:
		return '▲'
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func (p painter) card(c canvas.CardView) {
	b := c.Bounds
	x0, y0 := p.cell(b.Min())
	x1, y1 := p.cell(b.Max())
	x1, y1 = x1-1, y1-1

	style, box := styleCard, singleBox
	switch {
	case c.Selected || c.ConnectSource:
		style, box = styleSelected, doubleBox
	case c.Hovered:
		style = styleHovered
	}
	if x1-x0 < 2 || y1-y0 < 2 {
		p.set(x0, y0, '■', style)
		return
	}

	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			p.set(x, y, ' ', styleBase)
		}
	}
	for x := x0 + 1; x < x1; x++ {
		p.set(x, y0, box.h, style)
		p.set(x, y1, box.h, style)
	}
	for y := y0 + 1; y < y1; y++ {
		p.set(x0, y, box.v, style)
		p.set(x1, y, box.v, style)
	}
	p.set(x0, y0, box.tl, style)
	p.set(x1, y0, box.tr, style)
	p.set(x0, y1, box.bl, style)
	p.set(x1, y1, box.br, style)

	inner := x1 - x0 - 1
	rows := y1 - y0 - 1
	capRows := min(2, rows)
	m := textlayout.CellMeasurer{}
	lines := textlayout.Clip(m, textlayout.Wrap(m, c.Caption, float64(inner)), capRows, float64(inner))
	for i, ln := range lines {
		p.text(x0+1, y1-capRows+i, ln, styleCaption)
	}

	if imgRows := rows - capRows; imgRows > 0 {
		label := c.Placeholder.Text()
		if c.Placeholder == canvas.PlaceholderNone {
			label = "[image]"
		}
		if runewidth.StringWidth(label) <= inner {
			lx := x0 + 1 + (inner-runewidth.StringWidth(label))/2
			p.text(lx, y0+1+(imgRows-1)/2, label, placeholderStyle(c.Placeholder))
		}
	}

	bx, by := p.cell(c.ConnectButton.Center())
	btn := '+'
	if c.ConnectSource {
		btn = '×'
	}
	if bx > x0 && bx < x1 && by > y0 && by < y1 {
		p.set(bx, by, btn, styleConnect)
	}
}

func (a *App) drawChrome(w, h int, f canvas.Frame) {
	p := painter{s: a.screen, w: w, h: h}
	line := h - 2
	switch a.input {
	case inputPrompt:
		p.text(0, line, "Scene prompt: "+string(a.buf)+"▏", styleBase)
	case inputCaption:
		p.text(0, line, "Caption: "+string(a.buf)+"▏", styleBase)
	default:
		help := "n new  c caption  r regenerate  d delete  u/U undo/redo  s save  tab select  arrows pan  +/- zoom  q quit"
		if f.Mode == canvas.Connecting {
			help = "Click another scene's + to connect, its own + or Esc to cancel"
		}
		p.text(0, line, help, styleHelp)
	}

	for x := 0; x < w; x++ {
		p.set(x, h-1, ' ', styleStatus)
	}
	title := f.Title
	if title == "" {
		title = "(no project)"
	}
	saved := "saved"
	if a.sess.Autosave().Pending() {
		saved = "unsaved"
	}
	if a.sess.Busy() {
		saved = "generating"
	}
	left := fmt.Sprintf(" %s │ %s │ %d scenes │ %d%% │ %s ", title, f.Mode, len(f.Cards), int(math.Round(vector.ClampScale(f.Viewport.Scale)*100)), saved)
	p.text(0, h-1, left, styleStatus)
	if a.status != "" {
		st := styleStatus
		if a.isError {
			st = styleError
		}
		p.text(runewidth.StringWidth(left)+1, h-1, a.status, st)
	}
}
