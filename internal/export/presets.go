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
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"storyboard/internal/canvas"
)

// PresetName names a bundle of export settings.
type PresetName string

const (
	PresetScreen PresetName = "screen"
	PresetRetina PresetName = "retina"
	PresetPrint  PresetName = "print"
)

// Preset is a set of formats written together at one pixel ratio.
type Preset struct {
	Name       PresetName
	Formats    []Format
	PixelRatio float64
}

// Presets lists the built-in presets.
var Presets = map[PresetName]Preset{
	PresetScreen: {Name: PresetScreen, Formats: []Format{FormatPNG}, PixelRatio: 1},
	PresetRetina: {Name: PresetRetina, Formats: []Format{FormatPNG, FormatSVG}, PixelRatio: DefaultPixelRatio},
	PresetPrint:  {Name: PresetPrint, Formats: []Format{FormatPDF, FormatPNG}, PixelRatio: 4},
}

// LookupPreset finds a preset by case-insensitive name.
func LookupPreset(name string) (Preset, error) {
	p, ok := Presets[PresetName(strings.ToLower(strings.TrimSpace(name)))]
	if !ok {
		return Preset{}, fmt.Errorf("unknown export preset %q", name)
	}
	return p, nil
}

// Batch writes f once per format of p into dir as <base>.<ext> and returns the
// written paths. opt.PixelRatio is replaced by the preset's.
func Batch(ctx context.Context, f canvas.Frame, dir, base string, p Preset, opt Options) ([]string, error) {
	if base == "" {
		base = "storyboard"
	}
	opt.PixelRatio = p.PixelRatio
	var out []string
	for _, format := range p.Formats {
		path := filepath.Join(dir, base+"."+string(format))
		if err := WriteFile(ctx, f, path, opt); err != nil {
			return out, fmt.Errorf("export %s: %w", format, err)
		}
		out = append(out, path)
	}
	return out, nil
}
