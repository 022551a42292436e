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
	"fmt"

	"storyboard/internal/config"
)

const (
	ProviderOpenAI      = "openai"
	ProviderPlaceholder = "placeholder"
)

// NewGenerator picks the provider named in the configuration.
func NewGenerator(c config.ImagesConfig, sec config.Secrets) (Generator, error) {
	switch c.Provider {
	case ProviderOpenAI:
		return NewOpenAI(sec.OpenAIKey, WithModel(c.Model))
	case ProviderPlaceholder, "":
		return Placeholder{}, nil
	default:
		return nil, fmt.Errorf("unknown image provider %q", c.Provider)
	}
}

// NewUploader returns nil when no bucket is configured; images then keep their provider URL.
func NewUploader(ctx context.Context, c config.ImagesConfig, sec config.Secrets) (Uploader, error) {
	if c.S3Bucket == "" {
		return nil, nil
	}
	return NewS3Uploader(ctx, S3Config{
		Bucket:    c.S3Bucket,
		Region:    c.S3Region,
		Endpoint:  c.S3Endpoint,
		PublicURL: c.S3PublicURL,
		AccessKey: sec.S3AccessKey,
		SecretKey: sec.S3SecretKey,
	})
}

// FromConfig builds the full service: provider, optional S3 copy, breaker.
func FromConfig(ctx context.Context, c config.ImagesConfig, sec config.Secrets, opts ...Option) (*Service, error) {
	gen, err := NewGenerator(c, sec)
	if err != nil {
		return nil, err
	}
	up, err := NewUploader(ctx, c, sec)
	if err != nil {
		return nil, err
	}
	if up != nil {
		opts = append([]Option{WithUploader(up)}, opts...)
	}
	return NewService(gen, opts...), nil
}
