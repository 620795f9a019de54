package startup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"media-variants/internal/logging"

	"github.com/gorilla/mux"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// LogConfig prints the banner, system information and the effective
// configuration, then prepares the directories the process writes to.
func LogConfig(cfg *Config) error {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  MEDIA_DIR:                 %s", cfg.MediaDir)
	logging.Info("  BASE_URL:                  %s", cfg.BaseURL)
	logging.Info("  DATABASE_PATH:             %s", cfg.DatabasePath)
	logging.Info("  LOCK_DIR:                  %s", cfg.LockDir)
	logging.Info("  LISTEN_ADDR:               %s", cfg.ListenAddr)
	logging.Info("  METRICS_ADDR:              %s", cfg.MetricsAddr)
	logging.Info("  METRICS_ENABLED:           %v", cfg.MetricsEnabled)
	logging.Info("  LOG_LEVEL:                 %s", logging.GetLevel())
	logging.Info("  ENABLED_FORMATS:           %s", strings.Join(cfg.EnabledFormats, ","))
	logging.Info("  QUALITY_PARAMS:            %s", formatParams(cfg.QualityParams))
	logging.Info("  BITRATE_PARAMS:            %s", formatParams(cfg.BitrateParams))
	logging.Info("  MAX_OUTPUT_WIDTH:          %d", cfg.MaxOutputWidth)
	logging.Info("  GENERATE_POSTER:           %v", cfg.GeneratePoster)
	logging.Info("  DELETE_ORIGINALS:          %v", cfg.DeleteOriginals)
	logging.Info("  PUBLISH_REWRITE_POLICY:    %s", cfg.PublishRewritePolicy)
	if cfg.PublishRewritePolicy == PolicyExplicit {
		logging.Info("  PUBLISH_REWRITE_FORMAT:    %s", cfg.PublishRewriteFormat)
	}
	logging.Info("  RUNTIME_REWRITE_ENABLED:   %v", cfg.RuntimeRewriteEnabled)
	logging.Info("  DELIVERY_PREFERENCE_ORDER: %s", strings.Join(cfg.DeliveryPreferenceOrder, ","))
	logging.Info("  EXEC_ENABLED:              %v", cfg.ExecEnabled)
	logging.Info("  VIPS_ENABLED:              %v", cfg.VipsEnabled)
	logging.Info("  ENCODER_BINARY_PATH:       %s", valueOr(cfg.EncoderBinaryPath, "(auto-detect)"))
	logging.Info("  ENCODE_TIMEOUT:            %v", cfg.EncodeTimeout)
	logging.Info("  RETRY_DELAY:               %v", cfg.RetryDelay)
	logging.Info("  RETRY_MAX_DELAY:           %v", cfg.RetryMaxDelay)
	logging.Info("  RETRY_MAX_ATTEMPTS:        %s", attemptsString(cfg.RetryMaxAttempts))

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	if err := ensureDirectory(cfg.MediaDir, "media"); err != nil {
		logging.Warn("  Media directory issue: %v", err)
	}

	dbDir := filepath.Dir(cfg.DatabasePath)
	if err := ensureDirectory(dbDir, "database"); err != nil {
		return fmt.Errorf("database directory error: %w", err)
	}
	logging.Debug("  Testing database directory write access...")
	if err := testWriteAccess(dbDir); err != nil {
		return fmt.Errorf("database directory is not writable (required for database): %w", err)
	}
	logging.Info("  [OK] Database directory is writable")

	if err := ensureDirectory(cfg.LockDir, "lock"); err != nil {
		return fmt.Errorf("lock directory error: %w", err)
	}
	logging.Info("  [OK] Lock directory ready")
	return nil
}

func formatParams[V any](params map[string]V) string {
	if len(params) == 0 {
		return "(defaults)"
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}
	return strings.Join(parts, ",")
}

func attemptsString(n int) string {
	if n == 0 {
		return "unbounded"
	}
	return fmt.Sprintf("%d", n)
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DATABASE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Database initialized in %v", duration)
}

// LogEncoderInit logs which encoder backends are usable.
func LogEncoderInit(cfg *Config, vipsStarted bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("ENCODER INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  libvips:  %s", enabledString(vipsStarted))

	if !cfg.ExecEnabled {
		logging.Warn("  Subprocess execution disabled")
		logging.Warn("  Video derivatives will be recorded as environment failures")
		return
	}

	if err := checkFFmpeg(cfg.EncoderBinaryPath); err != nil {
		logging.Warn("  FFmpeg check failed: %v", err)
		logging.Warn("  Video derivatives will not be generated")
	} else {
		logging.Info("  [OK] FFmpeg is available")
	}

	for _, tool := range []struct{ name, path string }{
		{"cwebp", cfg.CwebpPath},
		{"avifenc", cfg.AvifencPath},
	} {
		bin := valueOr(tool.path, tool.name)
		if p, err := exec.LookPath(bin); err == nil {
			logging.Debug("  %s path: %s", tool.name, p)
		} else {
			logging.Debug("  %s not found", tool.name)
		}
	}
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			// prefix-only routes have no template
			pathTemplate, err = route.GetPathRegexp()
			if err != nil {
				return err
			}
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes at debug level
func LogHTTPRoutes(router *mux.Router) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if !logging.IsDebugEnabled() {
		return
	}

	routes, err := GetRoutes(router)
	if err != nil {
		logging.Warn("error walking routes: %v", err)
	}

	logging.Debug("  Registered routes (%d total):", len(routes))

	groups := make(map[string][]RouteInfo)
	for _, route := range routes {
		prefix := getRouteGroup(route.Path)
		groups[prefix] = append(groups[prefix], route)
	}

	groupKeys := make([]string, 0, len(groups))
	for k := range groups {
		groupKeys = append(groupKeys, k)
	}
	sort.Strings(groupKeys)

	for _, group := range groupKeys {
		if group != "" {
			logging.Debug("  [%s]", group)
		} else {
			logging.Debug("  [root]")
		}
		for _, route := range groups[group] {
			logging.Debug("    %-6s %s", route.Method, route.Path)
		}
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}

	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	ListenAddr      string
	MetricsAddr     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("  API:             %s", config.ListenAddr)
	if config.MetricsEnabled {
		logging.Info("  Metrics:         %s/metrics", config.MetricsAddr)
	} else {
		logging.Info("  Metrics:         DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(reason string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (%s)", reason)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

func printBanner() {
	banner := `
------------------------------------------------------------
  media-variants  ::  derivative transcoding pipeline
------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}
	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func checkFFmpeg(binary string) error {
	if binary == "" {
		binary = "ffmpeg"
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return fmt.Errorf("%s not found", binary)
	}
	logging.Debug("  FFmpeg path: %s", path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return fmt.Errorf("failed to get ffmpeg version: %w", err)
	}

	lines := strings.Split(string(output), "\n")
	if len(lines) > 0 {
		logging.Debug("  FFmpeg version: %s", strings.TrimSpace(lines[0]))
	}
	return nil
}
