// Package startup loads configuration and handles startup and shutdown
// logging.
//
// # Configuration
//
// [LoadConfig] layers three sources, later ones winning:
//
//   - built-in defaults from [DefaultConfig]
//   - a YAML file given by --config, CONFIG_PATH, or the first of
//     [DefaultConfigPaths] that exists
//   - environment variables prefixed with MV_, e.g. MV_MEDIA_DIR,
//     MV_ENABLED_FORMATS=avif,webp, MV_QUALITY_WEBM_VP9=32
//
// The result is validated once with struct tags and cross-field checks. The
// returned [Config] is passed explicitly to every component; nothing reads
// configuration from globals afterwards.
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
package startup
