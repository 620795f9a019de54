// Package filesystem provides the file primitives the derivative pipeline
// relies on: existence checks that tolerate stale NFS handles, and
// temp-then-rename writes so a derivative is never visible half-written.
//
// Media libraries are frequently mounted over NFS, where a file replaced by
// another host can briefly return ESTALE. StatWithRetry retries only that
// error with capped exponential backoff; every other error is returned
// immediately.
package filesystem
