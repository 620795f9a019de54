// Package handlers provides the HTTP API of the media-variants service.
//
// It includes handlers for:
//   - Reprocessing an asset and reading its derivative state
//   - Publishing a document through the content rewriter
//   - Serving media with Accept-based derivative selection, through a
//     time-bounded writer
//   - Health checks and version information
package handlers
