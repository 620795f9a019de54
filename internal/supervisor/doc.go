// Package supervisor runs the long-lived services of the media-variants
// server under a suture supervisor tree.
//
// The tree has two layers:
//   - work: the retry worker draining the derivative retry queue
//   - api: the API and metrics HTTP servers
//
// A crash in one layer is restarted with backoff without taking the other
// layer down.
package supervisor
