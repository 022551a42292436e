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

import (
	"math"
	"testing"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestRectContainsAndInset(t *testing.T) {
	r := R(10, 20, 100, 50)
	if !r.Contains(Pt{10, 20}) || !r.Contains(Pt{110, 70}) {
		t.Fatalf("expected edge points to be contained")
	}
	if r.Contains(Pt{9.99, 20}) {
		t.Fatalf("point left of rect reported inside")
	}
	in := r.Inset(5, 5)
	if in.X != 15 || in.Y != 25 || in.W != 90 || in.H != 40 {
		t.Fatalf("unexpected inset: %+v", in)
	}
	if c := r.Center(); c.X != 60 || c.Y != 45 {
		t.Fatalf("unexpected center: %+v", c)
	}
}

func TestUnionAndIntersects(t *testing.T) {
	u := R(0, 0, 10, 10).Union(R(20, -5, 5, 5))
	if u.X != 0 || u.Y != -5 || u.W != 25 || u.H != 15 {
		t.Fatalf("unexpected union: %+v", u)
	}
	if !R(0, 0, 10, 10).Intersects(R(5, 5, 10, 10)) || R(0, 0, 10, 10).Intersects(R(11, 0, 1, 1)) {
		t.Fatalf("intersects mismatch")
	}
}

func TestAffineBasic(t *testing.T) {
	m := Translate(10, 5).Mul(Scale(2, 3))
	p := m.Apply(Pt{1, 1})
	if p.X != 12 || p.Y != 8 {
		t.Fatalf("unexpected transform result: %+v", p)
	}
	back := m.Invert().Apply(p)
	if !near(back.X, 1) || !near(back.Y, 1) {
		t.Fatalf("inverse did not round-trip: %+v", back)
	}
	if (Affine2D{}).Invert() != Identity {
		t.Fatalf("singular matrix must invert to identity")
	}
}

func TestViewportRoundTrip(t *testing.T) {
	v := Viewport{Scale: 2, OffsetX: 30, OffsetY: -10, W: 800, H: 600}
	c := Pt{X: 100, Y: 50}
	s := v.ToScreen(c)
	if s.X != 230 || s.Y != 90 {
		t.Fatalf("ToScreen = %+v", s)
	}
	if got := v.ToCanvas(s); !near(got.X, c.X) || !near(got.Y, c.Y) {
		t.Fatalf("ToCanvas = %+v", got)
	}
	if vis := v.VisibleCanvas(); !near(vis.W, 400) || !near(vis.X, -15) {
		t.Fatalf("VisibleCanvas = %+v", vis)
	}
}

func TestZoomAtKeepsAnchorAndClamps(t *testing.T) {
	v := Viewport{Scale: 1}
	anchor := Pt{X: 200, Y: 100}
	before := v.ToCanvas(anchor)
	z := v.ZoomAt(anchor, 2)
	if z.Scale != 2 {
		t.Fatalf("scale = %v", z.Scale)
	}
	if after := z.ToCanvas(anchor); !near(after.X, before.X) || !near(after.Y, before.Y) {
		t.Fatalf("anchor moved: %+v vs %+v", after, before)
	}
	if z = v.ZoomAt(anchor, 1000); z.Scale != MaxScale {
		t.Fatalf("zoom in not clamped: %v", z.Scale)
	}
	if z = v.ZoomAt(anchor, 0.0001); z.Scale != MinScale {
		t.Fatalf("zoom out not clamped: %v", z.Scale)
	}
	if p := v.Pan(5, -5); p.OffsetX != 5 || p.OffsetY != -5 {
		t.Fatalf("pan = %+v", p)
	}
}

func TestComputeArrowCenterToCenter(t *testing.T) {
	from := R(0, 0, 300, 200)
	to := R(500, 0, 300, 200)
	a, ok := ComputeArrow(from, to, ArrowOptions{})
	if !ok {
		t.Fatalf("expected arrow")
	}
	if a.From != (Pt{150, 100}) || a.To != (Pt{650, 100}) {
		t.Fatalf("arrow must join centers: %+v", a)
	}
	if a.Tip != (Pt{500, 100}) {
		t.Fatalf("tip should sit on the target's left edge: %+v", a.Tip)
	}
	if a.HeadLeft.X != 488 || a.HeadRight.X != 488 || a.HeadLeft.Y == a.HeadRight.Y {
		t.Fatalf("unexpected head: %+v", a)
	}
}

func TestComputeArrowOverlappingCards(t *testing.T) {
	if _, ok := ComputeArrow(R(0, 0, 10, 10), R(0, 0, 10, 10), ArrowOptions{}); ok {
		t.Fatalf("coincident centers have no direction")
	}
	// target center inside the source card: the tip falls back to the target center
	a, ok := ComputeArrow(R(0, 0, 300, 200), R(10, 0, 300, 200), ArrowOptions{})
	if !ok || a.Tip.X > a.To.X+1e-9 {
		t.Fatalf("unexpected tip for overlapping cards: %+v", a)
	}
}

func TestFloatRound(t *testing.T) {
	if FloatRound(1.23456, 3) != 1.235 || FloatRound(1.5, -1) != 1.5 {
		t.Fatalf("FloatRound mismatch")
	}
}
