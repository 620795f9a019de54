// Package indexer finds source media under the media directory and
// registers it in the asset registry.
//
// A scan walks the tree, skipping hidden files and directories, and
// registers every supported source (jpg, jpeg, png, mp4, m4v, mov) that is
// not yet known. Files that are themselves derivatives of a sibling source,
// such as clip.jpg next to clip.mp4, are ignored. Newly registered assets are
// handed to an optional callback, which the server uses to run the
// orchestrator on them.
//
// The Indexer also runs as a supervised service that rescans on a fixed
// interval.
package indexer
