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
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime. Secrets never
// live in this struct; see Secrets.
//
// config_version: bump when the structure changes in a backward-incompatible way.
type AppConfig struct {
	ConfigVersion int             `yaml:"config_version"`
	General       GeneralConfig   `yaml:"general"`
	Gateway       GatewayConfig   `yaml:"gateway"`
	Autosave      AutosaveConfig  `yaml:"autosave"`
	Server        ServerConfig    `yaml:"server"`
	Images        ImagesConfig    `yaml:"images"`
	Logging       LoggingConfig   `yaml:"logging"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
}

type GeneralConfig struct {
	TelemetryOptIn bool   `yaml:"telemetry_opt_in"`
	ExportDir      string `yaml:"export_dir"`
}

// Gateway modes.
const (
	ModeRemote = "remote"
	ModeLocal  = "local"
)

// GatewayConfig selects where the editor persists projects.
type GatewayConfig struct {
	Mode        string `yaml:"mode"` // "remote" | "local"
	BaseURL     string `yaml:"base_url"`
	TimeoutMs   int    `yaml:"timeout_ms"`
	TLSInsecure bool   `yaml:"tls_insecure"`
	DataDir     string `yaml:"data_dir"`
	LatencyMs   int    `yaml:"latency_ms"`
}

type AutosaveConfig struct {
	DelayMs       int `yaml:"delay_ms"`
	RetryAttempts int `yaml:"retry_attempts"`
}

type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	DBDriver    string   `yaml:"db_driver"` // "postgres" | "sqlite"
	DBDSN       string   `yaml:"db_dsn"`
	CORSOrigins []string `yaml:"cors_origins"`
	AuthSecret  string   `yaml:"auth_secret"`
}

type ImagesConfig struct {
	Provider    string `yaml:"provider"` // "openai" | "placeholder"
	Model       string `yaml:"model"`
	S3Bucket    string `yaml:"s3_bucket"`
	S3Region    string `yaml:"s3_region"`
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3PublicURL string `yaml:"s3_public_url"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		Gateway: GatewayConfig{
			Mode:      ModeLocal,
			BaseURL:   "http://localhost:8000",
			TimeoutMs: 15000,
			LatencyMs: 0,
		},
		Autosave: AutosaveConfig{DelayMs: 1000},
		Server: ServerConfig{
			Addr:        ":8000",
			DBDriver:    "sqlite",
			DBDSN:       "storyboard.db",
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Images:  ImagesConfig{Provider: "placeholder", Model: "dall-e-3", S3Region: "us-east-1"},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvConfigFile        = "SB_CONFIG"
	EnvGatewayMode       = "SB_GATEWAY_MODE"
	EnvBackendURL        = "SB_BACKEND_URL"
	EnvBackendTimeoutMs  = "SB_BACKEND_TIMEOUT_MS"
	EnvBackendTLSInsec   = "SB_TLS_INSECURE"
	EnvDataDir           = "SB_DATA_DIR"
	EnvLatencyMs         = "SB_LATENCY_MS"
	EnvAutosaveDelayMs   = "SB_AUTOSAVE_DELAY_MS"
	EnvAutosaveRetries   = "SB_AUTOSAVE_RETRIES"
	EnvServerAddr        = "SB_SERVER_ADDR"
	EnvDBDriver          = "SB_DB_DRIVER"
	EnvDBDSN             = "SB_DB_DSN"
	EnvCORSOrigins       = "SB_CORS_ORIGINS"
	EnvAuthSecret        = "SB_AUTH_SECRET"
	EnvImageProvider     = "SB_IMAGE_PROVIDER"
	EnvS3Bucket          = "SB_S3_BUCKET"
	EnvS3Region          = "SB_S3_REGION"
	EnvS3Endpoint        = "SB_S3_ENDPOINT"
	EnvTelemetryOptIn    = "SB_TELEMETRY_OPT_IN"
	EnvTelemetryEndpoint = "SB_TELEMETRY_ENDPOINT"
	EnvLogLevel          = "SB_LOG_LEVEL"
	EnvLogFormat         = "SB_LOG_FORMAT"
	EnvLogSource         = "SB_LOG_SOURCE"
	EnvLogFile           = "SB_LOG_FILE"
)

// ConfigPath returns the per-user config file path. SB_CONFIG overrides it.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigFile)); p != "" {
		return p, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "Storyboard")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "Storyboard")
	default:
		if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
			base = filepath.Join(x, "storyboard")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "storyboard")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults, and merges
// environment overrides. Secrets are resolved from the keychain with env fallbacks.
func Load() (AppConfig, Secrets, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, Secrets{}, err
	}
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, Secrets{}, fmt.Errorf("parse %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
	} else if !errors.Is(err, os.ErrNotExist) {
		return cfg, Secrets{}, fmt.Errorf("read %s: %w", path, err)
	}
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, Secrets{}, err
	}
	return cfg, loadSecrets(cfg), nil
}

// Save writes the user config YAML and persists non-empty secrets into the OS keychain.
func Save(cfg AppConfig, sec Secrets) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	return saveSecrets(sec)
}

// Validate rejects values the rest of the program cannot work with.
func (c AppConfig) Validate() error {
	switch c.Gateway.Mode {
	case ModeRemote, ModeLocal:
	default:
		return fmt.Errorf("gateway.mode %q: want %q or %q", c.Gateway.Mode, ModeRemote, ModeLocal)
	}
	switch c.Server.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("server.db_driver %q: want postgres or sqlite", c.Server.DBDriver)
	}
	switch c.Images.Provider {
	case "openai", "placeholder":
	default:
		return fmt.Errorf("images.provider %q: want openai or placeholder", c.Images.Provider)
	}
	if c.Autosave.DelayMs < 0 || c.Autosave.RetryAttempts < 0 {
		return errors.New("autosave values must not be negative")
	}
	return nil
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	// booleans: copy directly from src (file) so user preferences persist
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	setStr(&dst.General.ExportDir, src.General.ExportDir)

	if m := strings.ToLower(strings.TrimSpace(src.Gateway.Mode)); m != "" {
		dst.Gateway.Mode = m
	}
	setStr(&dst.Gateway.BaseURL, src.Gateway.BaseURL)
	setInt(&dst.Gateway.TimeoutMs, src.Gateway.TimeoutMs)
	dst.Gateway.TLSInsecure = src.Gateway.TLSInsecure
	setStr(&dst.Gateway.DataDir, src.Gateway.DataDir)
	setInt(&dst.Gateway.LatencyMs, src.Gateway.LatencyMs)

	setInt(&dst.Autosave.DelayMs, src.Autosave.DelayMs)
	setInt(&dst.Autosave.RetryAttempts, src.Autosave.RetryAttempts)

	setStr(&dst.Server.Addr, src.Server.Addr)
	if d := strings.ToLower(strings.TrimSpace(src.Server.DBDriver)); d != "" {
		dst.Server.DBDriver = d
	}
	setStr(&dst.Server.DBDSN, src.Server.DBDSN)
	if len(src.Server.CORSOrigins) > 0 {
		dst.Server.CORSOrigins = append([]string(nil), src.Server.CORSOrigins...)
	}
	setStr(&dst.Server.AuthSecret, src.Server.AuthSecret)

	if p := strings.ToLower(strings.TrimSpace(src.Images.Provider)); p != "" {
		dst.Images.Provider = p
	}
	setStr(&dst.Images.Model, src.Images.Model)
	setStr(&dst.Images.S3Bucket, src.Images.S3Bucket)
	setStr(&dst.Images.S3Region, src.Images.S3Region)
	setStr(&dst.Images.S3Endpoint, src.Images.S3Endpoint)
	setStr(&dst.Images.S3PublicURL, src.Images.S3PublicURL)

	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	setStr(&dst.Logging.File, src.Logging.File)

	setStr(&dst.Telemetry.Endpoint, src.Telemetry.Endpoint)
}

func setStr(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func envBool(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func applyEnvOverrides(cfg *AppConfig) {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	flag := func(key string, dst *bool) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = envBool(v)
		}
	}

	if v := strings.TrimSpace(os.Getenv(EnvGatewayMode)); v != "" {
		cfg.Gateway.Mode = strings.ToLower(v)
	}
	str(EnvBackendURL, &cfg.Gateway.BaseURL)
	num(EnvBackendTimeoutMs, &cfg.Gateway.TimeoutMs)
	flag(EnvBackendTLSInsec, &cfg.Gateway.TLSInsecure)
	str(EnvDataDir, &cfg.Gateway.DataDir)
	num(EnvLatencyMs, &cfg.Gateway.LatencyMs)
	num(EnvAutosaveDelayMs, &cfg.Autosave.DelayMs)
	num(EnvAutosaveRetries, &cfg.Autosave.RetryAttempts)
	str(EnvServerAddr, &cfg.Server.Addr)
	if v := strings.TrimSpace(os.Getenv(EnvDBDriver)); v != "" {
		cfg.Server.DBDriver = strings.ToLower(v)
	}
	str(EnvDBDSN, &cfg.Server.DBDSN)
	if v := strings.TrimSpace(os.Getenv(EnvCORSOrigins)); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.Server.CORSOrigins = origins
	}
	str(EnvAuthSecret, &cfg.Server.AuthSecret)
	if v := strings.TrimSpace(os.Getenv(EnvImageProvider)); v != "" {
		cfg.Images.Provider = strings.ToLower(v)
	}
	str(EnvS3Bucket, &cfg.Images.S3Bucket)
	str(EnvS3Region, &cfg.Images.S3Region)
	str(EnvS3Endpoint, &cfg.Images.S3Endpoint)
	flag(EnvTelemetryOptIn, &cfg.General.TelemetryOptIn)
	str(EnvTelemetryEndpoint, &cfg.Telemetry.Endpoint)
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	flag(EnvLogSource, &cfg.Logging.Source)
	str(EnvLogFile, &cfg.Logging.File)
}

var envByKey = map[string]string{
	"gateway.mode":             EnvGatewayMode,
	"gateway.base_url":         EnvBackendURL,
	"gateway.timeout_ms":       EnvBackendTimeoutMs,
	"gateway.tls_insecure":     EnvBackendTLSInsec,
	"gateway.data_dir":         EnvDataDir,
	"gateway.latency_ms":       EnvLatencyMs,
	"autosave.delay_ms":        EnvAutosaveDelayMs,
	"autosave.retry_attempts":  EnvAutosaveRetries,
	"server.addr":              EnvServerAddr,
	"server.db_driver":         EnvDBDriver,
	"server.db_dsn":            EnvDBDSN,
	"server.cors_origins":      EnvCORSOrigins,
	"server.auth_secret":       EnvAuthSecret,
	"images.provider":          EnvImageProvider,
	"images.s3_bucket":         EnvS3Bucket,
	"images.s3_region":         EnvS3Region,
	"images.s3_endpoint":       EnvS3Endpoint,
	"general.telemetry_opt_in": EnvTelemetryOptIn,
	"telemetry.endpoint":       EnvTelemetryEndpoint,
	"logging.level":            EnvLogLevel,
	"logging.format":           EnvLogFormat,
	"logging.source":           EnvLogSource,
	"logging.file":             EnvLogFile,
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	env, ok := envByKey[key]
	if !ok || os.Getenv(env) == "" {
		return "", false
	}
	return env, true
}

// Timeout returns the gateway request timeout, falling back to the default.
func (g GatewayConfig) Timeout() time.Duration {
	if g.TimeoutMs <= 0 {
		return time.Duration(Defaults().Gateway.TimeoutMs) * time.Millisecond
	}
	return time.Duration(g.TimeoutMs) * time.Millisecond
}

// Latency is the simulated delay of the local gateway.
func (g GatewayConfig) Latency() time.Duration {
	if g.LatencyMs <= 0 {
		return 0
	}
	return time.Duration(g.LatencyMs) * time.Millisecond
}

// ResolvedDataDir returns the local gateway directory, defaulting next to the config file.
func (g GatewayConfig) ResolvedDataDir() (string, error) {
	if g.DataDir != "" {
		return g.DataDir, nil
	}
	p, err := ConfigPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(p), "data"), nil
}

// Delay returns the auto-save debounce delay.
func (a AutosaveConfig) Delay() time.Duration {
	if a.DelayMs <= 0 {
		return time.Duration(Defaults().Autosave.DelayMs) * time.Millisecond
	}
	return time.Duration(a.DelayMs) * time.Millisecond
}
