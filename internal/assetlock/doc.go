// Package assetlock serializes work on one asset or file path across
// goroutines and processes.
//
// A lock is an in-process semaphore per key plus an flock(2) lock file in
// the lock directory, so a CLI reprocess and the daemon's retry worker never
// encode the same asset at the same time.
package assetlock
