// Package memory sets GOMEMLIMIT from the container memory limit.
//
// Go derives GOMAXPROCS from cgroup CPU limits but not a heap limit. Call
// [ConfigureFromEnv] early in main:
//
//   - GOMEMLIMIT, when set, is left alone.
//   - MV_MEMORY_LIMIT is the container limit in bytes, typically from the
//     Kubernetes Downward API (resource: limits.memory).
//   - MV_MEMORY_RATIO is the heap share of that limit, default 0.6. The rest
//     stays free for ffmpeg subprocesses and libvips buffers.
package memory
