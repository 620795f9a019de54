package memory

import (
	"math"
	"os"
	"runtime/debug"
	"strconv"

	"media-variants/internal/logging"
)

// DefaultMemoryRatio is the share of the container limit given to the Go
// heap. ffmpeg and libvips allocate outside it.
const DefaultMemoryRatio = 0.6

// Environment variables read by ConfigureFromEnv.
const (
	EnvLimit = "MV_MEMORY_LIMIT"
	EnvRatio = "MV_MEMORY_RATIO"
)

var (
	defaultSetMemoryLimit = debug.SetMemoryLimit
	setMemoryLimit        = defaultSetMemoryLimit
)

// Result describes what ConfigureFromEnv did.
type Result struct {
	Configured bool
	// Source is "GOMEMLIMIT", EnvLimit or "none".
	Source         string
	ContainerLimit int64
	GoMemLimit     int64
	Ratio          float64
}

// ConfigureFromEnv sets GOMEMLIMIT from the container limit. Call it before
// significant allocations. An explicit GOMEMLIMIT always wins.
func ConfigureFromEnv() Result {
	return configure(os.Getenv)
}

func configure(getenv func(string) string) Result {
	if v := getenv("GOMEMLIMIT"); v != "" {
		result := Result{Source: "GOMEMLIMIT"}
		if limit := setMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
			result.Configured = true
			result.GoMemLimit = limit
		}
		logging.Info("GOMEMLIMIT set via environment: %s", v)
		return result
	}

	raw := getenv(EnvLimit)
	if raw == "" {
		logging.Debug("%s not set, GOMEMLIMIT left unconfigured", EnvLimit)
		return Result{Source: "none"}
	}
	limit, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || limit <= 0 {
		logging.Warn("Ignoring invalid %s %q", EnvLimit, raw)
		return Result{Source: "none"}
	}

	ratio := DefaultMemoryRatio
	if rs := getenv(EnvRatio); rs != "" {
		r, err := strconv.ParseFloat(rs, 64)
		switch {
		case err != nil:
			logging.Warn("Failed to parse %s %q, using %.2f", EnvRatio, rs, DefaultMemoryRatio)
		case r <= 0 || r > 1:
			logging.Warn("%s %q out of range (0.0-1.0], using %.2f", EnvRatio, rs, DefaultMemoryRatio)
		default:
			ratio = r
		}
	}

	goLimit := int64(float64(limit) * ratio)
	setMemoryLimit(goLimit)

	logging.Info("Configured GOMEMLIMIT: %s (%.0f%% of %s)",
		formatBytes(goLimit), ratio*100, formatBytes(limit))

	return Result{
		Configured:     true,
		Source:         EnvLimit,
		ContainerLimit: limit,
		GoMemLimit:     goLimit,
		Ratio:          ratio,
	}
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(b)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}
