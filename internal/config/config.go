// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"

	"github.com/jeranaias/tierchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete tierchat configuration.
//
// A *Config handed out by a Store is a snapshot and must not be mutated;
// use Store.Update to change settings.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Tiers holds one endpoint per backend role.
	Tiers TiersConfig `toml:"tiers" json:"tiers"`

	// Routing tunes prompt handling.
	Routing RoutingConfig `toml:"routing" json:"routing"`

	// Phrasebook holds canned replies answered without a network call.
	Phrasebook []PhraseConfig `toml:"phrasebook" json:"phrasebook,omitempty"`

	// Health configures the background prober.
	Health HealthConfig `toml:"health" json:"health"`

	// Journal configures the attempt journal.
	Journal JournalConfig `toml:"journal" json:"journal"`

	// Log configures logrus.
	Log LogConfig `toml:"log" json:"log"`
}

// TiersConfig contains the three backend roles.
type TiersConfig struct {
	// Fast answers greetings and everyday prompts.
	Fast TierConfig `toml:"fast" json:"fast"`
	// Smart is the local backup for reasoning prompts.
	Smart TierConfig `toml:"smart" json:"smart"`
	// Remote is the primary reasoner, usually a bigger machine on the LAN.
	Remote TierConfig `toml:"remote" json:"remote"`
}

// TierConfig describes one inference backend.
type TierConfig struct {
	// Host is an address or hostname; scheme and port are optional.
	Host string `toml:"host" json:"host"`
	// Model is the model name the backend should load.
	Model string `toml:"model" json:"model"`
	// TimeoutSecs bounds one request to this tier.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
}

// Timeout returns TimeoutSecs as a duration.
func (t TierConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutSecs) * time.Second
}

// RoutingConfig contains prompt routing configuration.
type RoutingConfig struct {
	// DeepTemplate wraps reasoning prompts; "%s" marks the user text.
	DeepTemplate string `toml:"deep_template" json:"deep_template"`
	// NumCtx is sent as options.num_ctx on every request.
	NumCtx int `toml:"num_ctx" json:"num_ctx"`
	// PhrasebookCutoff is the minimum similarity (0-1] for a phrasebook hit.
	PhrasebookCutoff float64 `toml:"phrasebook_cutoff" json:"phrasebook_cutoff"`
}

// PhraseConfig is one canned reply.
type PhraseConfig struct {
	Prompt string `toml:"prompt" json:"prompt"`
	Reply  string `toml:"reply" json:"reply"`
}

// HealthConfig contains prober configuration.
type HealthConfig struct {
	// Enabled turns the periodic prober on.
	Enabled bool `toml:"enabled" json:"enabled"`
	// ProbeIntervalSecs is the time between probe rounds.
	ProbeIntervalSecs int `toml:"probe_interval_secs" json:"probe_interval_secs"`
	// ProbeTimeoutMs bounds a single probe.
	ProbeTimeoutMs int `toml:"probe_timeout_ms" json:"probe_timeout_ms"`
}

// Interval returns ProbeIntervalSecs as a duration.
func (h HealthConfig) Interval() time.Duration {
	return time.Duration(h.ProbeIntervalSecs) * time.Second
}

// Timeout returns ProbeTimeoutMs as a duration.
func (h HealthConfig) Timeout() time.Duration {
	return time.Duration(h.ProbeTimeoutMs) * time.Millisecond
}

// JournalConfig contains attempt journal configuration.
type JournalConfig struct {
	Enabled bool `toml:"enabled" json:"enabled"`
	// Path is the SQLite file (empty = ~/.tierchat/journal.db).
	Path string `toml:"path" json:"path"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	// Level is a logrus level name: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level"`
	// Format is "text" or "json".
	Format string `toml:"format" json:"format"`
	// Path is the log file used by the interactive chat (empty = ~/.tierchat/tierchat.log).
	Path string `toml:"path" json:"path"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// DefaultDeepTemplate is the analytical persona wrapped around reasoning prompts.
const DefaultDeepTemplate = "أنت محلل خبير ودقيق. فكّر في المسألة خطوة بخطوة، " +
	"وحلّل الافتراضات والبدائل قبل أن تكتب الإجابة النهائية بشكل منظم.\n\n" +
	"المسألة: %s"

// DefaultIntroReply answers "who are you" without a backend.
const DefaultIntroReply = "أنا tierchat، مساعد يوجّه أسئلتك إلى نماذج تعمل على أجهزتك وعلى الخادم البعيد."

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Tiers: TiersConfig{
			Fast: TierConfig{
				Host:        "127.0.0.1",
				Model:       "qwen2.5:1.5b",
				TimeoutSecs: 30,
			},
			Smart: TierConfig{
				Host:        "127.0.0.1",
				Model:       "qwen2.5:7b",
				TimeoutSecs: 120,
			},
			Remote: TierConfig{
				Host:        "192.168.1.10",
				Model:       "qwen2.5:32b",
				TimeoutSecs: 180,
			},
		},

		Routing: RoutingConfig{
			DeepTemplate:     DefaultDeepTemplate,
			NumCtx:           4096,
			PhrasebookCutoff: 0.7,
		},

		Phrasebook: []PhraseConfig{
			{Prompt: "من انت", Reply: DefaultIntroReply},
		},

		Health: HealthConfig{
			Enabled:           true,
			ProbeIntervalSecs: 10,
			ProbeTimeoutMs:    1000,
		},

		Journal: JournalConfig{
			Enabled: true,
		},

		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the tierchat configuration directory path.
// TIERCHAT_HOME overrides the default ~/.tierchat.
func ConfigDir() (string, error) {
	if dir := os.Getenv("TIERCHAT_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".tierchat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// DefaultPath returns the config file that Load would read: the TOML file,
// or the JSON file when only that one exists.
func DefaultPath() (string, error) {
	tomlPath, err := ConfigPathTOML()
	if err != nil {
		return "", err
	}
	if _, statErr := os.Stat(tomlPath); statErr == nil {
		return tomlPath, nil
	}
	jsonPath, err := ConfigPathJSON()
	if err != nil {
		return "", err
	}
	if _, statErr := os.Stat(jsonPath); statErr == nil {
		return jsonPath, nil
	}
	return tomlPath, nil
}

// DataPath returns name inside the config directory.
func DataPath(name string) (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads the config from DefaultPath. A missing file is not an error:
// defaults are returned. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific file. Absent keys fall
// back to defaults; a missing file yields pure defaults.
//
// A tier without a host is not fatal here: requests to that tier fail with
// a config error and the router falls back. Only saving rejects it.
func LoadFromPath(path string) (*Config, error) {
	_, live, err := loadLayers(path)
	return live, err
}

// loadLayers returns the configuration as written in the file (defaults
// filled in) and the live configuration with environment overrides applied.
func loadLayers(path string) (file, live *Config, err error) {
	file = Default()

	if _, statErr := os.Stat(path); statErr == nil {
		if strings.HasSuffix(path, ".json") {
			if err := loadJSON(file, path); err != nil {
				return nil, nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
			}
		} else {
			if err := loadTOML(file, path); err != nil {
				return nil, nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
			}
		}
	} else if !errors.Is(statErr, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("failed to stat config %s: %w", path, statErr)
	}
	file.fillDefaults()

	live = file.Clone()
	live.ApplyEnvOverrides()
	live.fillDefaults()
	if err := live.validate(false); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	for _, field := range live.EmptyHosts() {
		log.WithField("field", field).Warn("Tier has no host configured; requests to it will fail over")
	}
	return file, live, nil
}

// loadTOML decodes on top of the defaults already in cfg, so absent keys
// keep their default values.
func loadTOML(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		log.WithFields(log.Fields{
			"path": path,
			"keys": fmt.Sprint(undecoded),
		}).Warn("Ignoring unknown config keys")
	}
	return nil
}

func loadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// fillDefaults repairs zero values that a config file may have set
// explicitly (e.g. timeout_secs = 0).
func (c *Config) fillDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}

	fillTier(&c.Tiers.Fast, defaults.Tiers.Fast)
	fillTier(&c.Tiers.Smart, defaults.Tiers.Smart)
	fillTier(&c.Tiers.Remote, defaults.Tiers.Remote)

	if strings.TrimSpace(c.Routing.DeepTemplate) == "" {
		c.Routing.DeepTemplate = defaults.Routing.DeepTemplate
	}
	if c.Routing.NumCtx <= 0 {
		c.Routing.NumCtx = defaults.Routing.NumCtx
	}
	if c.Routing.PhrasebookCutoff <= 0 {
		c.Routing.PhrasebookCutoff = defaults.Routing.PhrasebookCutoff
	}

	if c.Health.ProbeIntervalSecs <= 0 {
		c.Health.ProbeIntervalSecs = defaults.Health.ProbeIntervalSecs
	}
	if c.Health.ProbeTimeoutMs <= 0 {
		c.Health.ProbeTimeoutMs = defaults.Health.ProbeTimeoutMs
	}

	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
}

// fillTier only repairs the model and timeout. An empty host is left empty
// so the user sees a config error instead of traffic to a default address.
func fillTier(t *TierConfig, def TierConfig) {
	if t.Model == "" {
		t.Model = def.Model
	}
	if t.TimeoutSecs <= 0 {
		t.TimeoutSecs = def.TimeoutSecs
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// SaveTOML writes the configuration atomically with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf strings.Builder
	buf.WriteString("# tierchat configuration file\n")
	buf.WriteString("# Edit with care; tierchat reloads this file when it changes.\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, []byte(buf.String()), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes the configuration atomically as indented JSON.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveToPath picks the encoder from the file extension.
func SaveToPath(cfg *Config, path string) error {
	if strings.HasSuffix(path, ".json") {
		return SaveJSON(cfg, path)
	}
	return SaveTOML(cfg, path)
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	return c.validate(true)
}

// EmptyHosts lists the host fields that are blank.
func (c *Config) EmptyHosts() []string {
	var fields []string
	for _, t := range c.namedTiers() {
		if strings.TrimSpace(t.tier.Host) == "" {
			fields = append(fields, t.name+".host")
		}
	}
	return fields
}

type namedTier struct {
	name string
	tier TierConfig
}

func (c *Config) namedTiers() []namedTier {
	return []namedTier{
		{"tiers.fast", c.Tiers.Fast},
		{"tiers.smart", c.Tiers.Smart},
		{"tiers.remote", c.Tiers.Remote},
	}
}

// validate checks every field. Blank hosts are only reported when
// requireHosts is set.
func (c *Config) validate(requireHosts bool) error {
	var errs ValidateErrors

	for _, t := range c.namedTiers() {
		host := strings.TrimSpace(t.tier.Host)
		if host == "" && requireHosts {
			errs = append(errs, ValidationError{Field: t.name + ".host", Message: "host must not be empty"})
		} else if strings.ContainsAny(host, " \t\n") {
			errs = append(errs, ValidationError{Field: t.name + ".host", Message: fmt.Sprintf("invalid host %q", t.tier.Host)})
		}
		if strings.TrimSpace(t.tier.Model) == "" {
			errs = append(errs, ValidationError{Field: t.name + ".model", Message: "model must not be empty"})
		}
		if t.tier.TimeoutSecs < 1 || t.tier.TimeoutSecs > 3600 {
			errs = append(errs, ValidationError{
				Field:   t.name + ".timeout_secs",
				Message: fmt.Sprintf("timeout %d out of range (1-3600)", t.tier.TimeoutSecs),
			})
		}
	}

	if strings.Count(c.Routing.DeepTemplate, "%s") != 1 {
		errs = append(errs, ValidationError{
			Field:   "routing.deep_template",
			Message: "template must contain exactly one %s placeholder",
		})
	}
	if c.Routing.NumCtx < 256 || c.Routing.NumCtx > 1<<20 {
		errs = append(errs, ValidationError{
			Field:   "routing.num_ctx",
			Message: fmt.Sprintf("num_ctx %d out of range (256-1048576)", c.Routing.NumCtx),
		})
	}
	if c.Routing.PhrasebookCutoff <= 0 || c.Routing.PhrasebookCutoff > 1 {
		errs = append(errs, ValidationError{
			Field:   "routing.phrasebook_cutoff",
			Message: fmt.Sprintf("cutoff %.2f out of range (0-1]", c.Routing.PhrasebookCutoff),
		})
	}
	for i, p := range c.Phrasebook {
		if strings.TrimSpace(p.Prompt) == "" || strings.TrimSpace(p.Reply) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("phrasebook[%d]", i),
				Message: "prompt and reply must not be empty",
			})
		}
	}

	if c.Health.ProbeIntervalSecs < 1 {
		errs = append(errs, ValidationError{Field: "health.probe_interval_secs", Message: "interval must be at least 1 second"})
	}
	if c.Health.ProbeTimeoutMs < 50 || c.Health.ProbeTimeoutMs > 30000 {
		errs = append(errs, ValidationError{
			Field:   "health.probe_timeout_ms",
			Message: fmt.Sprintf("probe timeout %d out of range (50-30000)", c.Health.ProbeTimeoutMs),
		})
	}

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, ValidationError{Field: "log.level", Message: fmt.Sprintf("invalid level '%s'", c.Log.Level)})
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		errs = append(errs, ValidationError{Field: "log.format", Message: fmt.Sprintf("invalid format '%s', must be text or json", c.Log.Format)})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported environment variables:
//   - TIERCHAT_FAST_HOST, TIERCHAT_SMART_HOST, TIERCHAT_REMOTE_HOST
//   - TIERCHAT_FAST_MODEL, TIERCHAT_SMART_MODEL, TIERCHAT_REMOTE_MODEL
//   - TIERCHAT_LOG_LEVEL
func (c *Config) ApplyEnvOverrides() {
	overrides := []struct {
		env    string
		target *string
	}{
		{"TIERCHAT_FAST_HOST", &c.Tiers.Fast.Host},
		{"TIERCHAT_SMART_HOST", &c.Tiers.Smart.Host},
		{"TIERCHAT_REMOTE_HOST", &c.Tiers.Remote.Host},
		{"TIERCHAT_FAST_MODEL", &c.Tiers.Fast.Model},
		{"TIERCHAT_SMART_MODEL", &c.Tiers.Smart.Model},
		{"TIERCHAT_REMOTE_MODEL", &c.Tiers.Remote.Model},
		{"TIERCHAT_LOG_LEVEL", &c.Log.Level},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.target = v
		}
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g. "tiers.fast.host").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g. "tiers.fast.host").
// String values are converted to the field's type.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(part[:1]))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strings.TrimSpace(strVal), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %w", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strings.TrimSpace(strVal), 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %w", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			boolVal, err := strconv.ParseBool(strings.TrimSpace(strVal))
			if err != nil {
				lower := strings.ToLower(strings.TrimSpace(strVal))
				if lower != "yes" && lower != "no" {
					return fmt.Errorf("invalid boolean value: %q", strVal)
				}
				boolVal = lower == "yes"
			}
			field.SetBool(boolVal)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) && val.Kind() != reflect.String {
		field.Set(val.Convert(field.Type()))
		return nil
	}

	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// Keys returns all settable configuration keys in dot notation.
func Keys() []string {
	return []string{
		"tiers.fast.host",
		"tiers.fast.model",
		"tiers.fast.timeout_secs",
		"tiers.smart.host",
		"tiers.smart.model",
		"tiers.smart.timeout_secs",
		"tiers.remote.host",
		"tiers.remote.model",
		"tiers.remote.timeout_secs",
		"routing.deep_template",
		"routing.num_ctx",
		"routing.phrasebook_cutoff",
		"health.enabled",
		"health.probe_interval_secs",
		"health.probe_timeout_ms",
		"journal.enabled",
		"journal.path",
		"log.level",
		"log.format",
		"log.path",
	}
}

// =============================================================================
// COPY / DISPLAY
// =============================================================================

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Phrasebook != nil {
		clone.Phrasebook = make([]PhraseConfig, len(c.Phrasebook))
		copy(clone.Phrasebook, c.Phrasebook)
	}
	return &clone
}

// String returns an indented JSON rendering for `config show` and debug logs.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
