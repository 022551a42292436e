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
	"image/color"

	"storyboard/internal/canvas"
)

// Canvas palette shared by every renderer.
var (
	colBackground = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	colGrid       = color.RGBA{R: 240, G: 240, B: 240, A: 255}
	colCardFill   = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	colCardBorder = color.RGBA{R: 209, G: 213, B: 219, A: 255}
	colSelected   = color.RGBA{R: 79, G: 70, B: 229, A: 255}
	colArrow      = color.RGBA{R: 102, G: 102, B: 102, A: 255}
	colText       = color.RGBA{R: 31, G: 41, B: 55, A: 255}
	colConnectBtn = color.RGBA{R: 16, G: 185, B: 129, A: 255}
)

// Card layout in canvas units.
const (
	captionHeight = 40.0
	captionPad    = 8.0
	cardPad       = 4.0
	captionSize   = 12.0
	maxCaption    = 2
)

func placeholderFill(p canvas.Placeholder) color.RGBA {
	switch p {
	case canvas.PlaceholderLoading:
		return color.RGBA{R: 254, G: 243, B: 199, A: 255}
	case canvas.PlaceholderFailed:
		return color.RGBA{R: 254, G: 226, B: 226, A: 255}
	default:
		return color.RGBA{R: 243, G: 244, B: 246, A: 255}
	}
}

func border(c canvas.CardView) (color.RGBA, float64) {
	if c.Selected || c.ConnectSource {
		return colSelected, 3
	}
	return colCardBorder, 1
}

// imageArea is the part of a card above the caption strip.
func imageArea(c canvas.CardView) (x, y, w, h float64) {
	b := c.Bounds
	h = b.H - captionHeight - cardPad
	if h < 0 {
		h = 0
	}
	return b.X + cardPad, b.Y + cardPad, b.W - 2*cardPad, h
}
