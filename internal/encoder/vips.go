package encoder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"media-variants/internal/logging"
	"media-variants/internal/variant"

	"github.com/davidbyttow/govips/v2/vips"
)

var (
	vipsInitMutex sync.Mutex
	vipsAvailable bool
)

// InitVips starts libvips with its log output routed through the logging
// package at a verbosity matching the application level. Call once at
// startup; later calls are no-ops.
func InitVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsAvailable {
		return
	}

	vipsLevel := vips.LogLevelWarning
	switch logging.GetLevel() {
	case logging.LevelDebug:
		vipsLevel = vips.LogLevelInfo
	case logging.LevelWarn:
		vipsLevel = vips.LogLevelError
	case logging.LevelError:
		vipsLevel = vips.LogLevelCritical
	}

	vips.LoggingSettings(func(domain string, level vips.LogLevel, msg string) {
		switch {
		case level <= vips.LogLevelCritical:
			logging.Error("[%s] %s", domain, msg)
		case level == vips.LogLevelWarning:
			logging.Warn("[%s] %s", domain, msg)
		default:
			logging.Debug("[%s] %s", domain, msg)
		}
	}, vipsLevel)

	// one image at a time keeps memory predictable alongside ffmpeg
	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheMem:      50 * 1024 * 1024,
		MaxCacheSize:     100,
	})

	vipsAvailable = true
	logging.Info("libvips initialized successfully (version: %s)", vips.Version)
}

// ShutdownVips releases libvips resources.
func ShutdownVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsAvailable {
		vips.Shutdown()
		vipsAvailable = false
		logging.Info("libvips shutdown complete")
	}
}

// IsVipsAvailable returns whether libvips is initialized.
func IsVipsAvailable() bool {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()
	return vipsAvailable
}

// vipsBackend exports avif or webp in-process.
type vipsBackend struct{ a *Adapter }

func (b *vipsBackend) name() string { return "vips" }

func (b *vipsBackend) available() error {
	if !b.a.vipsReady() {
		return errors.New("libvips not started")
	}
	return nil
}

func (b *vipsBackend) encode(_ context.Context, src, out string, spec variant.TargetFormatSpec) (string, string, error) {
	quality := variant.ClampQuality(spec.Key, spec.Quality)
	command := fmt.Sprintf("vips %ssave Q=%d", spec.Key, quality)

	ref, err := vips.LoadImageFromFile(src, vips.NewImportParams())
	if err != nil {
		return command, "", fmt.Errorf("load: %w", err)
	}
	defer ref.Close()

	if err := ref.AutoRotate(); err != nil {
		return command, "", fmt.Errorf("autorotate: %w", err)
	}

	if spec.MaxWidth > 0 && ref.Width() > spec.MaxWidth {
		scale := float64(spec.MaxWidth) / float64(ref.Width())
		if err := ref.Resize(scale, vips.KernelLanczos3); err != nil {
			return command, "", fmt.Errorf("resize: %w", err)
		}
		command += fmt.Sprintf(" width=%d", spec.MaxWidth)
	}

	var data []byte
	switch spec.Key {
	case variant.FormatAVIF:
		params := vips.NewAvifExportParams()
		params.Quality = quality
		params.StripMetadata = true
		data, _, err = ref.ExportAvif(params)
	case variant.FormatWebP:
		params := vips.NewWebpExportParams()
		params.Quality = quality
		params.StripMetadata = true
		data, _, err = ref.ExportWebp(params)
	default:
		return command, "", fmt.Errorf("unsupported format %s", spec.Key)
	}
	if err != nil {
		return command, "", fmt.Errorf("export: %w", err)
	}

	if err := os.WriteFile(out, data, 0o644); err != nil {
		return command, "", err
	}
	return command, "", nil
}
