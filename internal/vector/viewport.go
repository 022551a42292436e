/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package vector

// Zoom limits.
const (
	MinScale = 0.1
	MaxScale = 5.0
)

// Viewport maps canvas space to screen space: screen = canvas*Scale + Offset.
// W and H are the screen size of the drawing surface.
type Viewport struct {
	Scale   float64
	OffsetX float64
	OffsetY float64
	W, H    float64
}

// ClampScale limits s to [MinScale, MaxScale]; a non-positive scale means 1.
func ClampScale(s float64) float64 {
	if s <= 0 {
		return 1
	}
	return min(max(s, MinScale), MaxScale)
}

func (v Viewport) scale() float64 {
	if v.Scale <= 0 {
		return 1
	}
	return v.Scale
}

// Transform returns the canvas-to-screen transform.
func (v Viewport) Transform() Affine2D {
	s := v.scale()
	return Translate(v.OffsetX, v.OffsetY).Mul(Scale(s, s))
}

// ToCanvas converts a screen point into canvas space.
func (v Viewport) ToCanvas(p Pt) Pt {
	s := v.scale()
	return Pt{X: (p.X - v.OffsetX) / s, Y: (p.Y - v.OffsetY) / s}
}

// ToScreen converts a canvas point into screen space.
func (v Viewport) ToScreen(p Pt) Pt { return v.Transform().Apply(p) }

// ZoomAt multiplies the scale by factor, keeping the canvas point under screen fixed.
func (v Viewport) ZoomAt(screen Pt, factor float64) Viewport {
	anchor := v.ToCanvas(screen)
	v.Scale = ClampScale(v.scale() * factor)
	v.OffsetX = screen.X - anchor.X*v.Scale
	v.OffsetY = screen.Y - anchor.Y*v.Scale
	return v
}

// Pan moves the view by a screen-space delta.
func (v Viewport) Pan(dx, dy float64) Viewport {
	v.OffsetX += dx
	v.OffsetY += dy
	return v
}

// VisibleCanvas is the canvas-space rectangle covered by the drawing surface.
func (v Viewport) VisibleCanvas() Rect {
	s := v.scale()
	tl := v.ToCanvas(Pt{})
	return Rect{X: tl.X, Y: tl.Y, W: v.W / s, H: v.H / s}
}
