// Package variant defines the derivative bookkeeping model: format keys,
// target format specs, and the per-asset transcode state that records which
// derivatives exist, which failed, and whether a retry is pending.
//
// A variant entry is only meaningful while its file exists. Callers reconcile
// with Reconcile before trusting Variants, and use SetVariant/SetError so a
// key never carries both a variant and an error.
package variant
