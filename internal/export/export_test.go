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
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"storyboard/internal/canvas"
	"storyboard/internal/domain"
	"storyboard/internal/store"
)

func sampleState() store.State {
	return store.State{
		Project: &domain.Project{ID: "p", Title: "Pilot"},
		Scenes: []domain.Scene{
			{ID: "a", ProjectID: "p", PromptText: "sunset", Caption: "Tom & Jerry at sunset", ImageURL: "https://img.example/a.png", X: 0, Y: 0, Width: 300, Height: 200},
			{ID: "b", ProjectID: "p", PromptText: "night", X: 500, Y: 0, Width: 300, Height: 200},
		},
		Connections:     []domain.Connection{{ID: "c1", ProjectID: "p", FromSceneID: "a", ToSceneID: "b", Label: "later"}},
		SelectedSceneID: "a",
		Scale:           1,
	}
}

func TestFitCoversAllCards(t *testing.T) {
	f := Fit(sampleState(), DefaultMargin)
	if f.Viewport.W != 900 || f.Viewport.H != 300 {
		t.Fatalf("unexpected surface %vx%v", f.Viewport.W, f.Viewport.H)
	}
	if len(f.Cards) != 2 || len(f.Arrows) != 1 {
		t.Fatalf("cards=%d arrows=%d", len(f.Cards), len(f.Arrows))
	}
	for _, c := range f.Cards {
		if c.Selected {
			t.Fatalf("selection must not be exported: %+v", c)
		}
	}
	if len(f.Grid) == 0 {
		t.Fatal("expected grid lines")
	}
}

func TestPNGSizeAndBorders(t *testing.T) {
	f := Fit(sampleState(), DefaultMargin)
	var buf bytes.Buffer
	if err := PNG(&buf, f, Options{}); err != nil {
		t.Fatalf("png: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 1800 || b.Dy() != 600 {
		t.Fatalf("want 1800x600 at ratio 2, got %v", b)
	}
	// card a starts at canvas 0,0 which sits at the 50px margin
	r, g, b, _ := img.At(100, 100).RGBA()
	if uint8(r>>8) != colCardBorder.R || uint8(g>>8) != colCardBorder.G || uint8(b>>8) != colCardBorder.B {
		t.Fatalf("expected card border at 100,100, got %v %v %v", r>>8, g>>8, b>>8)
	}
	r, g, b, _ = img.At(5, 5).RGBA()
	if r>>8 != 255 || g>>8 != 255 || b>>8 != 255 {
		t.Fatalf("expected background at 5,5, got %v %v %v", r>>8, g>>8, b>>8)
	}
}

func solid(c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestPNGPaintsSceneImage(t *testing.T) {
	red := color.RGBA{R: 255, A: 255}
	opt := Options{PixelRatio: 2, Images: func(url string) (image.Image, bool) {
		if url == "https://img.example/a.png" {
			return solid(red), true
		}
		return nil, false
	}}
	img, err := Rasterize(Fit(sampleState(), DefaultMargin), opt)
	if err != nil {
		t.Fatal(err)
	}
	if c := img.RGBAAt(400, 264); c.R < 200 || c.G > 50 || c.B > 50 {
		t.Fatalf("expected scene image pixel, got %+v", c)
	}
	// scene b has no image and shows the "No image" tint
	want := placeholderFill(canvas.PlaceholderNoImage)
	if c := img.RGBAAt(2*(50+500+20), 2*(50+20)); c != want {
		t.Fatalf("expected placeholder tint %+v, got %+v", want, c)
	}
}

func TestPDFPageMatchesCanvas(t *testing.T) {
	f := Fit(sampleState(), DefaultMargin)
	for _, raster := range []bool{false, true} {
		var buf bytes.Buffer
		if err := PDF(&buf, f, Options{RasterPDF: raster, PixelRatio: 1}); err != nil {
			t.Fatalf("pdf raster=%v: %v", raster, err)
		}
		out := buf.String()
		if !strings.HasPrefix(out, "%PDF-") {
			t.Fatalf("not a pdf: %q", out[:min(len(out), 16)])
		}
		if !strings.Contains(out, "900.00 300.00") {
			t.Fatalf("media box should be 900x300 (raster=%v)", raster)
		}
	}
}

func TestSVGEscapesAndLinksImages(t *testing.T) {
	var buf bytes.Buffer
	if err := SVG(&buf, Fit(sampleState(), DefaultMargin)); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		`width="900" height="300"`,
		`<title>Pilot</title>`,
		`Tom &amp; Jerry`,
		`xlink:href="https://img.example/a.png"`,
		`id="scene-b"`,
		`No image`,
		`marker-end="url(#head)"`,
		`>later<`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("svg missing %q", want)
		}
	}
}

func TestEmptyCanvasIsAnError(t *testing.T) {
	var buf bytes.Buffer
	if err := PNG(&buf, canvas.Frame{}, Options{}); err == nil {
		t.Fatal("expected error for zero-size canvas")
	}
}

func TestEmptyStoryboardExports(t *testing.T) {
	f := Fit(store.State{Scale: 1}, DefaultMargin)
	if f.Viewport.W != 800 || f.Viewport.H != 600 {
		t.Fatalf("unexpected surface %vx%v", f.Viewport.W, f.Viewport.H)
	}
	var buf bytes.Buffer
	if err := PNG(&buf, f, Options{PixelRatio: 1}); err != nil {
		t.Fatal(err)
	}
}

func TestFileName(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	cases := map[string]string{
		"My Board": "My Board-1700000000000.png",
		"":         "storyboard-1700000000000.png",
		"  ":       "storyboard-1700000000000.png",
		"a/b:c":    "abc-1700000000000.png",
	}
	for title, want := range cases {
		if got := FileName(title, FormatPNG, now); got != want {
			t.Fatalf("FileName(%q) = %q, want %q", title, got, want)
		}
	}
}

func TestWriteFileByExtension(t *testing.T) {
	dir := t.TempDir()
	f := Fit(sampleState(), DefaultMargin)
	for _, name := range []string{"out.png", "nested/out.PDF", "out.svg"} {
		path := filepath.Join(dir, name)
		if err := WriteFile(context.Background(), f, path, Options{PixelRatio: 1}); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		st, err := os.Stat(path)
		if err != nil || st.Size() == 0 {
			t.Fatalf("%s not written: %v", name, err)
		}
	}
	if err := WriteFile(context.Background(), f, filepath.Join(dir, "out.gif"), Options{}); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

func TestBatchPreset(t *testing.T) {
	p, err := LookupPreset(" Retina ")
	if err != nil {
		t.Fatal(err)
	}
	paths, err := Batch(context.Background(), Fit(sampleState(), DefaultMargin), t.TempDir(), "pilot", p, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 || filepath.Ext(paths[0]) != ".png" || filepath.Ext(paths[1]) != ".svg" {
		t.Fatalf("unexpected outputs %v", paths)
	}
	if _, err := LookupPreset("poster"); err == nil {
		t.Fatal("expected unknown preset error")
	}
}

func TestFetchImagesSkipsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ok.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_ = png.Encode(w, solid(color.RGBA{G: 255, A: 255}))
	}))
	defer srv.Close()

	src := FetchImages(context.Background(), srv.Client(), []string{srv.URL + "/ok.png", srv.URL + "/missing.png", ""}, nil)
	if img, ok := src(srv.URL + "/ok.png"); !ok || img.Bounds().Dx() != 10 {
		t.Fatalf("expected decoded image, got %v %v", img, ok)
	}
	if _, ok := src(srv.URL + "/missing.png"); ok {
		t.Fatal("missing image should be absent")
	}
}
