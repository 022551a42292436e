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

import "math"

// ArrowOptions controls the arrowhead size in canvas units.
type ArrowOptions struct {
	HeadLength float64
	HeadWidth  float64
}

// Arrow is a directed edge drawn from the center of one card to the center of
// another. The head sits where the shaft crosses the target card's border so it
// stays visible when cards are painted over the arrows.
type Arrow struct {
	From, To  Pt
	Tip       Pt
	HeadLeft  Pt
	HeadRight Pt
	Angle     float64 // radians, direction from source to target
}

// ComputeArrow builds the arrow between two card rectangles. It reports false when
// the centers coincide and no direction exists.
func ComputeArrow(from, to Rect, opts ArrowOptions) (Arrow, bool) {
	if opts.HeadLength <= 0 {
		opts.HeadLength = 12
	}
	if opts.HeadWidth <= 0 {
		opts.HeadWidth = 10
	}
	a, b := from.Center(), to.Center()
	d := b.Sub(a)
	mag := d.Len()
	if mag == 0 {
		return Arrow{}, false
	}
	u := d.Mul(1 / mag)

	tip := b
	if exit, ok := RayExit(to, u.Mul(-1)); ok && exit.Dist(b) < mag {
		tip = exit
	}

	base := tip.Sub(u.Mul(opts.HeadLength))
	perp := Pt{X: -u.Y, Y: u.X}.Mul(opts.HeadWidth / 2)
	return Arrow{
		From:      a,
		To:        b,
		Tip:       round3(tip),
		HeadLeft:  round3(base.Add(perp)),
		HeadRight: round3(base.Sub(perp)),
		Angle:     math.Atan2(u.Y, u.X),
	}, true
}

// RayExit returns where a ray from r's center in direction dir leaves r.
func RayExit(r Rect, dir Pt) (Pt, bool) {
	if dir.X == 0 && dir.Y == 0 {
		return Pt{}, false
	}
	c := r.Center()
	hw, hh := r.W/2, r.H/2
	t := math.Inf(1)
	if dir.X != 0 {
		t = min(t, hw/math.Abs(dir.X))
	}
	if dir.Y != 0 {
		t = min(t, hh/math.Abs(dir.Y))
	}
	return c.Add(dir.Mul(t)), true
}

func round3(p Pt) Pt { return Pt{X: FloatRound(p.X, 3), Y: FloatRound(p.Y, 3)} }
