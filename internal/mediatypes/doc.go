// Package mediatypes provides shared type definitions for source media assets
// across the media-variants application.
//
// This package exists as a dependency-free foundation that can be imported by other
// packages without creating import cycles. It contains the Asset type, the
// supported source extensions, and MIME lookups for both sources and derivatives.
//
// # Kinds
//
// The package defines a Kind enum for categorizing assets:
//
//	mediatypes.KindImage // Convertible still images (jpg, jpeg, png)
//	mediatypes.KindVideo // Convertible videos (mp4, m4v, mov)
//	mediatypes.KindOther // Everything else, including already-modern formats
//
// # Source Detection
//
// Use SourceKind to decide whether an asset is eligible for derivative generation.
// Both the extension and the recorded MIME type must agree:
//
//	kind := mediatypes.SourceKind(asset.Path, asset.MimeType)
//	if kind == mediatypes.KindOther {
//	    // skip silently
//	}
//
// # MIME Types
//
// GetMimeType covers source and derivative extensions (avif, webp, webm) so a
// promoted derivative can be given the right MIME type.
package mediatypes
