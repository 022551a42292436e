/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package canvas

import (
	"math"

	"storyboard/internal/domain"
	"storyboard/internal/store"
	"storyboard/internal/vector"
)

// Placeholder is what a card shows instead of its image.
type Placeholder int

const (
	PlaceholderNone Placeholder = iota // the image itself is shown
	PlaceholderNoImage
	PlaceholderLoading
	PlaceholderFailed
)

// Text is the label painted in the image area.
func (p Placeholder) Text() string {
	switch p {
	case PlaceholderNoImage:
		return "No image"
	case PlaceholderLoading:
		return "Loading..."
	case PlaceholderFailed:
		return "Failed to load"
	default:
		return ""
	}
}

func placeholderFor(url string, s ImageState) Placeholder {
	if url == "" {
		return PlaceholderNoImage
	}
	switch s {
	case ImageLoaded:
		return PlaceholderNone
	case ImageFailed:
		return PlaceholderFailed
	default:
		return PlaceholderLoading
	}
}

// GridLine is one background line in canvas space.
type GridLine struct {
	From, To vector.Pt
	Vertical bool
}

// CardView is one scene card ready to paint.
type CardView struct {
	SceneID       string
	Bounds        vector.Rect
	Caption       string
	ImageURL      string
	Image         ImageState
	Placeholder   Placeholder
	Selected      bool
	Hovered       bool
	ConnectSource bool
	ConnectButton vector.Rect
}

// ArrowView is one connection ready to paint.
type ArrowView struct {
	ConnectionID string
	FromSceneID  string
	ToSceneID    string
	Label        string
	Arrow        vector.Arrow
}

// Frame is the render model for one paint, in paint order: grid, arrows, cards.
// All geometry is in canvas space; Viewport maps it to the screen.
type Frame struct {
	Viewport       vector.Viewport
	Title          string
	Mode           Mode
	ConnectingFrom string
	Grid           []GridLine
	Arrows         []ArrowView
	Cards          []CardView
}

// PendingImages lists image URLs no load has been started for.
func (f Frame) PendingImages() []string {
	var out []string
	seen := map[string]bool{}
	for _, c := range f.Cards {
		if c.ImageURL != "" && c.Image == ImageUnset && !seen[c.ImageURL] {
			seen[c.ImageURL] = true
			out = append(out, c.ImageURL)
		}
	}
	return out
}

// FrameInput carries the render inputs that do not live in the store.
type FrameInput struct {
	Hovered string
	Images  *ImageTracker
	// GridArea overrides the area covered by grid lines; zero means the visible canvas.
	GridArea vector.Rect
}

// Frame builds the render model of the current state.
func (c *Controller) Frame() Frame {
	return BuildFrame(c.st.State(), c.Viewport(), FrameInput{Hovered: c.Hovered(), Images: c.images})
}

// BuildFrame derives a frame from a store state. Arrow geometry is computed from
// the endpoint cards every time; connections with a missing endpoint are skipped.
func BuildFrame(st store.State, vp vector.Viewport, in FrameInput) Frame {
	f := Frame{Viewport: vp}
	if st.Project != nil {
		f.Title = st.Project.Title
	}
	if st.IsConnecting {
		f.Mode = Connecting
		f.ConnectingFrom = st.ConnectingFromSceneID
	}

	area := in.GridArea
	if area.W <= 0 || area.H <= 0 {
		area = vp.VisibleCanvas()
	}
	f.Grid = GridLines(area, GridSize)

	byID := make(map[string]domain.Scene, len(st.Scenes))
	for _, s := range st.Scenes {
		byID[s.ID] = s
	}
	for _, cn := range st.Connections {
		from, ok1 := byID[cn.FromSceneID]
		to, ok2 := byID[cn.ToSceneID]
		if !ok1 || !ok2 {
			continue
		}
		a, ok := vector.ComputeArrow(SceneRect(from), SceneRect(to), vector.ArrowOptions{})
		if !ok {
			continue
		}
		f.Arrows = append(f.Arrows, ArrowView{
			ConnectionID: cn.ID,
			FromSceneID:  cn.FromSceneID,
			ToSceneID:    cn.ToSceneID,
			Label:        cn.Label,
			Arrow:        a,
		})
	}

	for _, s := range st.Scenes {
		img := ImageUnset
		if in.Images != nil && s.ImageURL != "" {
			img = in.Images.State(s.ImageURL)
		}
		f.Cards = append(f.Cards, CardView{
			SceneID:       s.ID,
			Bounds:        SceneRect(s),
			Caption:       s.DisplayCaption(),
			ImageURL:      s.ImageURL,
			Image:         img,
			Placeholder:   placeholderFor(s.ImageURL, img),
			Selected:      s.ID == st.SelectedSceneID,
			Hovered:       s.ID == in.Hovered,
			ConnectSource: st.IsConnecting && s.ID == st.ConnectingFromSceneID,
			ConnectButton: ConnectButton(s),
		})
	}
	return f
}

// GridLines returns lines at every multiple of size inside area.
func GridLines(area vector.Rect, size float64) []GridLine {
	if size <= 0 || area.W <= 0 || area.H <= 0 {
		return nil
	}
	var out []GridLine
	for x := math.Ceil(area.X/size) * size; x <= area.X+area.W; x += size {
		out = append(out, GridLine{From: vector.Pt{X: x, Y: area.Y}, To: vector.Pt{X: x, Y: area.Y + area.H}, Vertical: true})
	}
	for y := math.Ceil(area.Y/size) * size; y <= area.Y+area.H; y += size {
		out = append(out, GridLine{From: vector.Pt{X: area.X, Y: y}, To: vector.Pt{X: area.X + area.W, Y: y}})
	}
	return out
}

// ContentBounds is the union of all card rectangles.
func ContentBounds(scenes []domain.Scene) (vector.Rect, bool) {
	if len(scenes) == 0 {
		return vector.Rect{}, false
	}
	r := SceneRect(scenes[0])
	for _, s := range scenes[1:] {
		r = r.Union(SceneRect(s))
	}
	return r, true
}

// FitViewport returns a 1:1 viewport whose surface holds every card plus margin.
// An empty storyboard gets an 800x600 surface at the origin.
func FitViewport(scenes []domain.Scene, margin float64) vector.Viewport {
	b, ok := ContentBounds(scenes)
	if !ok {
		return vector.Viewport{Scale: 1, W: 800, H: 600}
	}
	return vector.Viewport{
		Scale:   1,
		OffsetX: margin - b.X,
		OffsetY: margin - b.Y,
		W:       math.Ceil(b.W + 2*margin),
		H:       math.Ceil(b.H + 2*margin),
	}
}
