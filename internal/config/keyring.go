/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

// Secrets are kept in the OS keychain, never in the YAML file. Each one can be
// supplied through an environment variable instead, which wins over the keychain.
type Secrets struct {
	BackendToken string
	OpenAIKey    string
	S3AccessKey  string
	S3SecretKey  string
}

const keyringService = "Storyboard"

// keychain entries and their env fallbacks
const (
	keyBackendToken = "backend_token"
	keyOpenAI       = "openai_api_key"
	keyS3Access     = "s3_access_key"
	keyS3Secret     = "s3_secret_key"

	EnvBackendToken = "SB_BACKEND_TOKEN"
	EnvOpenAIKey    = "SB_OPENAI_API_KEY"
	EnvS3AccessKey  = "SB_S3_ACCESS_KEY"
	EnvS3SecretKey  = "SB_S3_SECRET_KEY"
)

// SecretStore abstracts the keychain so tests can stub it.
type SecretStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error        { return keyring.Delete(service, key) }

var secretStore SecretStore = osKeyring{}

func lookupSecret(key, env string, fallbacks ...string) string {
	for _, e := range append([]string{env}, fallbacks...) {
		if v := strings.TrimSpace(os.Getenv(e)); v != "" {
			return v
		}
	}
	v, err := secretStore.Get(keyringService, key)
	if err != nil {
		return ""
	}
	return v
}

func loadSecrets(_ AppConfig) Secrets {
	return Secrets{
		BackendToken: lookupSecret(keyBackendToken, EnvBackendToken),
		OpenAIKey:    lookupSecret(keyOpenAI, EnvOpenAIKey, "OPENAI_API_KEY"),
		S3AccessKey:  lookupSecret(keyS3Access, EnvS3AccessKey, "AWS_ACCESS_KEY_ID"),
		S3SecretKey:  lookupSecret(keyS3Secret, EnvS3SecretKey, "AWS_SECRET_ACCESS_KEY"),
	}
}

func saveSecrets(sec Secrets) error {
	var errs []error
	for key, v := range map[string]string{
		keyBackendToken: sec.BackendToken,
		keyOpenAI:       sec.OpenAIKey,
		keyS3Access:     sec.S3AccessKey,
		keyS3Secret:     sec.S3SecretKey,
	} {
		if v == "" {
			continue
		}
		if err := secretStore.Set(keyringService, key, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ClearBackendToken removes the stored backend token. A missing entry is not an error.
func ClearBackendToken() error {
	err := secretStore.Delete(keyringService, keyBackendToken)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
