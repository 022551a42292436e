/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package imagegen turns scene prompts into image URLs. A Generator talks to a provider,
// an Uploader copies the result into object storage, and Service ties both together
// behind a circuit breaker.
package imagegen

import (
	"context"
	"net/url"
)

// Generator produces an image for a prompt and returns the provider's URL.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

const (
	placeholderBase    = "https://via.placeholder.com/1024x1024/4F46E5/FFFFFF?text="
	placeholderMaxRune = 30
)

// Placeholder returns a deterministic placeholder image URL that embeds the start
// of the prompt. It never fails and needs no credentials.
type Placeholder struct{}

func (Placeholder) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return PlaceholderURL(prompt), nil
}

// PlaceholderURL embeds the first 30 runes of prompt, query-escaped.
func PlaceholderURL(prompt string) string {
	r := []rune(prompt)
	if len(r) > placeholderMaxRune {
		r = r[:placeholderMaxRune]
	}
	return placeholderBase + url.QueryEscape(string(r))
}
