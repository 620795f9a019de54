// Package encoder produces one derivative file from one source file.
//
// Each format has a fixed chain of interchangeable backends, tried in order
// until one yields a verified output:
//
//	avif, webp   libvips export -> avifenc / cwebp -> ffmpeg
//	webm_vp9     ffmpeg libvpx-vp9
//	webm_av1     ffmpeg libsvtav1 -> ffmpeg libaom-av1
//	poster       ffmpeg frame grab -> imaging resize -> JPEG
//
// Backends write to a hidden temp file next to the destination. The file is
// checked (non-empty, container magic or decodable header) and only then
// renamed over the destination, so readers never see a partial file.
//
// Diagnostics separate a backend that could not run ("[environment] ...")
// from one that ran and failed ("[encode] ...").
package encoder
