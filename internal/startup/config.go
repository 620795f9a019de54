package startup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"media-variants/internal/mediatypes"
	"media-variants/internal/variant"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override, e.g. MV_MEDIA_DIR.
const EnvPrefix = "MV_"

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched in order when no path is given.
var DefaultConfigPaths = []string{
	"media-variants.yaml",
	"media-variants.yml",
	"/etc/media-variants/config.yaml",
}

// Rewrite policies accepted by publish_rewrite_policy.
const (
	PolicyNone     = "none"
	PolicyExplicit = "explicit"
	PolicyAuto     = "auto"
)

// Config holds all application configuration. It is loaded and validated
// once, then passed to the components that need it.
type Config struct {
	MediaDir       string `koanf:"media_dir" validate:"required"`
	BaseURL        string `koanf:"base_url" validate:"required"`
	DatabasePath   string `koanf:"database_path" validate:"required"`
	LockDir        string `koanf:"lock_dir" validate:"required"`
	ListenAddr     string `koanf:"listen_addr" validate:"required"`
	MetricsAddr    string `koanf:"metrics_addr" validate:"required_if=MetricsEnabled true"`
	MetricsEnabled bool   `koanf:"metrics_enabled"`
	LogLevel       string `koanf:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	EnabledFormats []string          `koanf:"enabled_formats" validate:"dive,oneof=webm_vp9 webm_av1 avif webp"`
	QualityParams  map[string]int    `koanf:"quality_params" validate:"dive,keys,oneof=webm_vp9 webm_av1 avif webp poster,endkeys"`
	BitrateParams  map[string]string `koanf:"bitrate_params" validate:"dive,keys,oneof=webm_vp9 webm_av1,endkeys,bitrate"`
	MaxOutputWidth int               `koanf:"max_output_width" validate:"gte=0"`
	GeneratePoster bool              `koanf:"generate_poster"`

	DeleteOriginals         bool     `koanf:"delete_originals"`
	PublishRewritePolicy    string   `koanf:"publish_rewrite_policy" validate:"oneof=none explicit auto"`
	PublishRewriteFormat    string   `koanf:"publish_rewrite_format" validate:"omitempty,oneof=webm_vp9 webm_av1 avif webp"`
	RuntimeRewriteEnabled   bool     `koanf:"runtime_rewrite_enabled"`
	DeliveryPreferenceOrder []string `koanf:"delivery_preference_order" validate:"dive,oneof=webm_vp9 webm_av1 avif webp"`

	EncoderBinaryPath string        `koanf:"encoder_binary_path"`
	CwebpPath         string        `koanf:"cwebp_path"`
	AvifencPath       string        `koanf:"avifenc_path"`
	ExecEnabled       bool          `koanf:"exec_enabled"`
	VipsEnabled       bool          `koanf:"vips_enabled"`
	EncodeTimeout     time.Duration `koanf:"encode_timeout" validate:"gte=0"`

	RetryDelay        time.Duration `koanf:"retry_delay" validate:"gt=0"`
	RetryMaxDelay     time.Duration `koanf:"retry_max_delay" validate:"gte=0"`
	RetryMaxAttempts  int           `koanf:"retry_max_attempts" validate:"gte=0"`
	RetryPollInterval time.Duration `koanf:"retry_poll_interval" validate:"gt=0"`
	RetryLease        time.Duration `koanf:"retry_lease" validate:"gt=0"`

	// Workers bounds bulk reprocess concurrency; 0 means one per CPU.
	Workers int `koanf:"workers" validate:"gte=0"`

	// ScanInterval is how often serve rescans MediaDir; 0 disables.
	ScanInterval time.Duration `koanf:"scan_interval" validate:"gte=0"`
}

// DefaultConfig returns the built-in defaults, applied before the config
// file and environment.
func DefaultConfig() *Config {
	return &Config{
		MediaDir:             "/media",
		BaseURL:              "/media",
		DatabasePath:         "/database/media-variants.db",
		LockDir:              "/database/locks",
		ListenAddr:           ":8080",
		MetricsAddr:          ":9090",
		MetricsEnabled:       true,
		LogLevel:             "info",
		EnabledFormats:       []string{"webm_vp9", "webm_av1", "avif", "webp"},
		QualityParams:        map[string]int{},
		BitrateParams:        map[string]string{},
		GeneratePoster:       true,
		PublishRewritePolicy: PolicyAuto,
		DeliveryPreferenceOrder: []string{
			"avif", "webp", "webm_av1", "webm_vp9",
		},
		ExecEnabled:       true,
		VipsEnabled:       true,
		EncodeTimeout:     30 * time.Minute,
		RetryDelay:        5 * time.Minute,
		RetryMaxDelay:     6 * time.Hour,
		RetryMaxAttempts:  8,
		RetryPollInterval: 15 * time.Second,
		RetryLease:        time.Hour,
	}
}

// sliceKeys may arrive from the environment as comma-separated strings.
var sliceKeys = []string{
	"enabled_formats",
	"delivery_preference_order",
}

// LoadConfig layers defaults, the YAML file at path (or the first default
// location that exists), and MV_ environment variables, then validates.
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := splitSliceKeys(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envKey maps MV_QUALITY_AVIF to quality_params.avif, MV_BITRATE_WEBM_VP9
// to bitrate_params.webm_vp9 and every other MV_FOO_BAR to foo_bar.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	for _, group := range []string{"quality", "bitrate"} {
		if rest, ok := strings.CutPrefix(key, group+"_"); ok && rest != "params" {
			return group + "_params." + rest
		}
	}
	return key
}

func splitSliceKeys(k *koanf.Koanf) error {
	for _, key := range sliceKeys {
		s, ok := k.Get(key).(string)
		if !ok {
			continue
		}
		parts := make([]string, 0)
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(key, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}
	return nil
}

// Normalize resolves paths and fills derived values.
func (c *Config) Normalize() error {
	abs, err := filepath.Abs(c.MediaDir)
	if err != nil {
		return fmt.Errorf("failed to resolve media directory path: %w", err)
	}
	c.MediaDir = abs

	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	c.LogLevel = strings.ToLower(c.LogLevel)
	c.PublishRewritePolicy = strings.ToLower(c.PublishRewritePolicy)
	if c.RetryMaxDelay > 0 && c.RetryMaxDelay < c.RetryDelay {
		c.RetryMaxDelay = c.RetryDelay
	}
	return nil
}

var bitratePattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?[kKmM]?$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("bitrate", func(fl validator.FieldLevel) bool {
		return bitratePattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// Validate runs struct tag validation followed by cross-field checks.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	var errs []error
	if c.PublishRewritePolicy == PolicyExplicit && c.PublishRewriteFormat == "" {
		errs = append(errs, errors.New("publish_rewrite_format is required when publish_rewrite_policy=explicit"))
	}
	if c.DeleteOriginals && c.PublishRewritePolicy == PolicyNone {
		errs = append(errs, errors.New("delete_originals requires a publish_rewrite_policy other than none"))
	}
	if !c.ExecEnabled && !c.VipsEnabled {
		errs = append(errs, errors.New("at least one of exec_enabled or vips_enabled must be true"))
	}
	return errors.Join(errs...)
}

// VariantSettings converts the format options into the variant model.
func (c *Config) VariantSettings() variant.Settings {
	s := variant.Settings{
		Enabled:        make(map[variant.FormatKey]bool),
		Quality:        make(map[variant.FormatKey]int),
		Bitrate:        make(map[variant.FormatKey]string),
		MaxWidth:       c.MaxOutputWidth,
		GeneratePoster: c.GeneratePoster,
	}
	for _, f := range c.EnabledFormats {
		s.Enabled[variant.FormatKey(f)] = true
	}
	for k, q := range c.QualityParams {
		s.Quality[variant.FormatKey(k)] = q
	}
	for k, b := range c.BitrateParams {
		s.Bitrate[variant.FormatKey(k)] = b
	}
	return s
}

// DeliveryOrder returns the configured preference order as format keys.
func (c *Config) DeliveryOrder() []variant.FormatKey {
	return toKeys(c.DeliveryPreferenceOrder)
}

// RewriteOrder is the auto-policy order for kind.
func (c *Config) RewriteOrder(kind mediatypes.Kind) []variant.FormatKey {
	return variant.PreferenceFor(kind, c.DeliveryOrder())
}

func toKeys(in []string) []variant.FormatKey {
	out := make([]variant.FormatKey, 0, len(in))
	for _, s := range in {
		out = append(out, variant.FormatKey(s))
	}
	return out
}
