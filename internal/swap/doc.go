// Package swap replaces an asset's original file with one of its
// derivatives and deletes originals only while a counterpart is on disk.
//
// Both checks happen at call time under the per-path lock; nothing decided
// earlier in a run is trusted.
package swap
