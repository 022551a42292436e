/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package textlayout

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
)

// FontLibrary caches parsed OpenType fonts by path.
type FontLibrary struct {
	mu    sync.Mutex
	fonts map[string]*opentype.Font
}

func NewFontLibrary() *FontLibrary { return &FontLibrary{fonts: make(map[string]*opentype.Font)} }

func (fl *FontLibrary) load(path string) (*opentype.Font, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if f, ok := fl.fonts[path]; ok {
		return f, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read font %s: %w", path, err)
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font %s: %w", path, err)
	}
	fl.fonts[path] = f
	return f, nil
}

// Face returns a face of the font at path sized sizePx pixels at 72 DPI.
// An empty path yields the built-in bitmap face.
func (fl *FontLibrary) Face(path string, sizePx float64) (font.Face, error) {
	if path == "" {
		return Basic(), nil
	}
	f, err := fl.load(path)
	if err != nil {
		return nil, err
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: sizePx, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, fmt.Errorf("face %s: %w", path, err)
	}
	return face, nil
}
