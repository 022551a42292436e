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
	"path/filepath"
	"strings"
	"testing"
)

// fixed measures every rune as one unit.
type fixed struct{}

func (fixed) Width(s string) float64 { return float64(len([]rune(s))) }

func TestWrapBreaksOnSpaces(t *testing.T) {
	got := Wrap(fixed{}, "the quick brown fox", 10)
	want := []string{"the quick", "brown fox"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestWrapSplitsLongWords(t *testing.T) {
	got := Wrap(fixed{}, "abcdefghij xy", 4)
	want := []string{"abcd", "efgh", "ij", "xy"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestWrapKeepsNewlines(t *testing.T) {
	got := Wrap(fixed{}, "one\n\ntwo", 20)
	if len(got) != 3 || got[1] != "" {
		t.Fatalf("got %q", got)
	}
}

func TestClipAddsEllipsis(t *testing.T) {
	got := Clip(fixed{}, []string{"first line", "second line", "third"}, 2, 8)
	if len(got) != 2 || got[1] != "secon..." {
		t.Fatalf("got %q", got)
	}
	if same := Clip(fixed{}, []string{"a"}, 3, 8); len(same) != 1 || same[0] != "a" {
		t.Fatalf("short input changed: %q", same)
	}
}

func TestFaceMeasurerDeterministic(t *testing.T) {
	m := FaceMeasurer{Face: Basic()}
	if m.Width("ABC") != 3*m.Width("A") {
		t.Fatalf("basic face should be monospaced: %v vs %v", m.Width("ABC"), m.Width("A"))
	}
	lines := Wrap(m, "Hello world from Go", 50)
	if len(lines) < 2 {
		t.Fatalf("expected wrapping into multiple lines, got %q", lines)
	}
	if LineHeight(Basic()) <= 0 {
		t.Fatal("line height must be positive")
	}
}

func TestCellMeasurerWideRunes(t *testing.T) {
	if w := (CellMeasurer{}).Width("日本"); w != 4 {
		t.Fatalf("wide runes take two cells, got %v", w)
	}
}

func TestFontLibraryFallbackAndMissingFile(t *testing.T) {
	fl := NewFontLibrary()
	face, err := fl.Face("", 14)
	if err != nil || face == nil {
		t.Fatalf("empty path should give the basic face: %v", err)
	}
	if _, err := fl.Face(filepath.Join(t.TempDir(), "missing.ttf"), 14); err == nil {
		t.Fatal("expected error for a missing font file")
	}
}
