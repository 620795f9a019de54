/*
Package orchestrator drives one derivative pass over an asset.

A pass reconciles recorded variants against the disk, checks that the
environment can encode at all, encodes each enabled target that is still
missing, retracts disabled targets, produces a best-effort poster for
videos, updates retry bookkeeping and finally promotes a derivative when
originals are configured to be deleted.

Process is pure with respect to the store: it takes a state and returns a
new one. Run wraps it with the per-asset lock and persistence, and is what
the CLI, the HTTP API and the retry worker call.

Outcomes:

	success               every enabled target satisfied, at least one created
	partial               some targets failed while others are satisfied
	failed                targets failed and none are satisfied
	pending               nothing failed but a retry is still needed
	noop                  nothing to do
	environment-failure   encoding is impossible until an operator acts
	skipped-missing-source, skipped-unsupported
*/
package orchestrator
