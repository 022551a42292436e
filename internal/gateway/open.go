/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package gateway

import (
	"context"
	"fmt"

	"storyboard/internal/config"
	"storyboard/internal/gateway/httpclient"
	"storyboard/internal/gateway/local"
	"storyboard/internal/imagegen"
)

var (
	_ Projects    = (*httpclient.Projects)(nil)
	_ Scenes      = (*httpclient.Scenes)(nil)
	_ Connections = (*httpclient.Connections)(nil)
	_ Images      = (*httpclient.Images)(nil)

	_ Projects    = (*local.Projects)(nil)
	_ Scenes      = (*local.Scenes)(nil)
	_ Connections = (*local.Connections)(nil)
	_ Images      = (*local.Images)(nil)
)

// Open builds the gateways selected by cfg.Gateway.Mode.
func Open(cfg config.AppConfig, sec config.Secrets) (*Set, error) {
	switch cfg.Gateway.Mode {
	case config.ModeRemote:
		return Remote(cfg.Gateway, sec.BackendToken), nil
	case config.ModeLocal, "":
		dir, err := cfg.Gateway.ResolvedDataDir()
		if err != nil {
			return nil, fmt.Errorf("resolve data dir: %w", err)
		}
		gen, err := imagegen.NewGenerator(cfg.Images, sec)
		if err != nil {
			return nil, err
		}
		return Local(dir, local.WithLatency(cfg.Gateway.Latency()), local.WithGenerator(gen))
	default:
		return nil, fmt.Errorf("unknown gateway mode %q", cfg.Gateway.Mode)
	}
}

// Remote talks to the API server at g.BaseURL.
func Remote(g config.GatewayConfig, token string) *Set {
	opts := []httpclient.Option{httpclient.WithTimeout(g.Timeout())}
	if g.TLSInsecure {
		opts = append(opts, httpclient.WithInsecureTLS())
	}
	c := httpclient.New(g.BaseURL, token, opts...)
	return &Set{
		Projects:    c.Projects(),
		Scenes:      c.Scenes(),
		Connections: c.Connections(),
		Images:      c.Images(),
		Mode:        config.ModeRemote,
	}
}

// Local keeps everything under dir.
func Local(dir string, opts ...local.Option) (*Set, error) {
	st, err := local.Open(dir, opts...)
	if err != nil {
		return nil, err
	}
	return &Set{
		Projects:    st.Projects(),
		Scenes:      st.Scenes(),
		Connections: st.Connections(),
		Images:      st.Images(),
		Mode:        config.ModeLocal,
	}, nil
}

// Ping checks that the backend answers by listing projects.
func (s *Set) Ping(ctx context.Context) error {
	_, err := s.Projects.List(ctx)
	return err
}
