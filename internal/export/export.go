/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package export renders a storyboard canvas to PNG, PDF or SVG files. All
// renderers paint the same canvas.Frame the interactive canvas shows: grid,
// then arrows, then cards.
package export

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"storyboard/internal/canvas"
	"storyboard/internal/store"
	"storyboard/internal/vector"
)

// Format is an output file type.
type Format string

const (
	FormatPNG Format = "png"
	FormatPDF Format = "pdf"
	FormatSVG Format = "svg"
)

// DefaultPixelRatio matches a high-density display.
const DefaultPixelRatio = 2.0

// DefaultMargin surrounds the cards when a frame is fitted to its content.
const DefaultMargin = 50.0

// ImageSource returns the decoded image for a scene image URL.
type ImageSource func(url string) (image.Image, bool)

// Options tunes the renderers. The zero value is usable.
type Options struct {
	// PixelRatio multiplies the raster size; 0 means DefaultPixelRatio. Ignored by SVG.
	PixelRatio float64
	// FontFile is a TTF/OTF used for captions in raster output; empty uses a built-in face.
	FontFile string
	// Images supplies scene images; cards without one paint their placeholder.
	Images ImageSource
	// RasterPDF embeds a PNG rendering in the PDF instead of vector drawing.
	RasterPDF bool
}

func (o Options) ratio() float64 {
	if o.PixelRatio <= 0 {
		return DefaultPixelRatio
	}
	return o.PixelRatio
}

func (o Options) image(url string) (image.Image, bool) {
	if o.Images == nil || url == "" {
		return nil, false
	}
	return o.Images(url)
}

var unsafeName = regexp.MustCompile(`[^\p{L}\p{N} ._-]+`)

// FileName is "<title>-<unix millis>.<ext>", with "storyboard" for an empty title.
func FileName(title string, f Format, now time.Time) string {
	title = strings.TrimSpace(unsafeName.ReplaceAllString(title, ""))
	if title == "" {
		title = "storyboard"
	}
	return fmt.Sprintf("%s-%d.%s", title, now.UnixMilli(), f)
}

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")); ext {
	case "png":
		return FormatPNG, nil
	case "pdf":
		return FormatPDF, nil
	case "svg":
		return FormatSVG, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", ext)
	}
}

// Fit builds a frame of st laid out so every card is visible with margin
// around it, at scale 1. Selection and hover are not exported.
func Fit(st store.State, margin float64) canvas.Frame {
	st.SelectedSceneID = ""
	st.IsConnecting = false
	vp := canvas.FitViewport(st.Scenes, margin)
	area := vector.R(-vp.OffsetX, -vp.OffsetY, vp.W, vp.H)
	return canvas.BuildFrame(st, vp, canvas.FrameInput{GridArea: area})
}

// WriteFile renders f into path, choosing the format from the extension.
// Missing parent directories are created.
func WriteFile(ctx context.Context, f canvas.Frame, path string, opt Options) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", format, err)
	}
	switch format {
	case FormatPNG:
		err = PNG(out, f, opt)
	case FormatPDF:
		err = PDF(out, f, opt)
	case FormatSVG:
		err = SVG(out, f)
	}
	if err != nil {
		_ = out.Close()
		_ = os.Remove(path)
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", format, err)
	}
	return nil
}
