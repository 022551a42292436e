/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package imagegen

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const DefaultModel = "dall-e-3"

// OpenAI generates 1024x1024 standard quality images with the Images API.
type OpenAI struct {
	client openai.Client
	model  string
}

// OpenAIOption tunes the client; BaseURL is used by tests and proxies.
type OpenAIOption func(*openAIOptions)

type openAIOptions struct {
	baseURL string
	model   string
}

func WithBaseURL(u string) OpenAIOption { return func(o *openAIOptions) { o.baseURL = u } }
func WithModel(m string) OpenAIOption   { return func(o *openAIOptions) { o.model = m } }

// NewOpenAI builds a provider. Retries are left to the caller's circuit breaker.
func NewOpenAI(apiKey string, opts ...OpenAIOption) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key not set")
	}
	o := openAIOptions{model: DefaultModel}
	for _, fn := range opts {
		fn(&o)
	}
	if o.model == "" {
		o.model = DefaultModel
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if o.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(o.baseURL))
	}
	return &OpenAI{client: openai.NewClient(reqOpts...), model: o.model}, nil
}

func (p *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openai.ImageModel(p.model),
		Size:           openai.ImageGenerateParamsSize1024x1024,
		Quality:        openai.ImageGenerateParamsQualityStandard,
		ResponseFormat: openai.ImageGenerateParamsResponseFormatURL,
		N:              openai.Int(1),
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate image: %w", err)
	}
	if resp == nil || len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", errors.New("failed to generate image: empty response")
	}
	return resp.Data[0].URL, nil
}
