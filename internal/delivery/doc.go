// Package delivery picks the derivative to serve for a request, from what
// is on disk and what the client's Accept header admits. It never changes
// stored state.
package delivery
