package mediatypes

import (
	"path/filepath"
	"strings"
)

// Kind represents the broad category of a source asset.
type Kind string

const (
	// KindImage represents a convertible still image.
	KindImage Kind = "image"
	// KindVideo represents a convertible video.
	KindVideo Kind = "video"
	// KindOther represents an unknown or unsupported file.
	KindOther Kind = "other"
)

// Asset is a media-library entry. The library owns it; the derivative
// pipeline only reads it and, on a primary swap, repoints it.
type Asset struct {
	ID       int64  `json:"id"`
	Path     string `json:"path"`
	MimeType string `json:"mimeType"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// ImageExtensions maps source extensions that can be converted to modern image formats.
var ImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// VideoExtensions maps source extensions that can be converted to WebM.
var VideoExtensions = map[string]bool{
	".mp4": true,
	".m4v": true,
	".mov": true,
}

// SourceMimeTypes lists the MIME types accepted as conversion sources.
var SourceMimeTypes = map[string]Kind{
	"image/jpeg":      KindImage,
	"image/png":       KindImage,
	"video/mp4":       KindVideo,
	"video/x-m4v":     KindVideo,
	"video/quicktime": KindVideo,
}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	// Sources
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",

	// Derivatives
	".avif": "image/avif",
	".webp": "image/webp",
	".webm": "video/webm",
	".gif":  "image/gif",
}

// GetKind returns the Kind for a given file extension.
// The extension should be lowercase and include the leading dot (e.g., ".jpg").
func GetKind(ext string) Kind {
	if ImageExtensions[ext] {
		return KindImage
	}
	if VideoExtensions[ext] {
		return KindVideo
	}
	return KindOther
}

// GetMimeType returns the MIME type for a given file extension.
// Returns "application/octet-stream" if the extension is not recognized.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[strings.ToLower(ext)]; ok {
		return mime
	}
	return "application/octet-stream"
}

// SourceKind classifies an asset by path and recorded MIME type. An empty
// MIME type falls back to the extension alone; a MIME type that disagrees
// with the extension's kind yields KindOther.
func SourceKind(path, mimeType string) Kind {
	kind := GetKind(strings.ToLower(filepath.Ext(path)))
	if kind == KindOther {
		return KindOther
	}
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if mimeType == "" {
		return kind
	}
	if base, _, found := strings.Cut(mimeType, ";"); found {
		mimeType = strings.TrimSpace(base)
	}
	if SourceMimeTypes[mimeType] != kind {
		return KindOther
	}
	return kind
}

// IsSupportedSource reports whether an asset can have derivatives generated.
func IsSupportedSource(path, mimeType string) bool {
	return SourceKind(path, mimeType) != KindOther
}
