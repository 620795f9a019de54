package workers

import (
	"os"
	"runtime"
	"strconv"
)

// EnvOverride names the environment variable that pins the pool size when
// the config leaves workers at 0.
const EnvOverride = "MV_WORKERS"

// Size resolves the number of concurrent orchestrator runs. A positive
// configured value wins, then MV_WORKERS, then one per usable CPU.
// GOMAXPROCS already reflects container CPU limits.
func Size(configured int) int {
	if configured > 0 {
		return configured
	}
	if v := os.Getenv(EnvOverride); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return max(runtime.GOMAXPROCS(0), 1)
}

// Batch sizes a pool for a bulk run over items assets. It never starts more
// goroutines than there are assets.
func Batch(configured, items int) int {
	return max(min(Size(configured), items), 1)
}
