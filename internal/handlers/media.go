package handlers

import (
	"errors"
	"net/http"
	"path/filepath"

	"media-variants/internal/delivery"
	"media-variants/internal/filesystem"
	"media-variants/internal/logging"
	"media-variants/internal/mediatypes"
	"media-variants/internal/metrics"
	"media-variants/internal/streaming"
)

// ServeMedia serves a file under the media root. When runtime rewriting is
// enabled and the file is a managed source, the best derivative the client
// accepts is served in its place.
func (h *Handlers) ServeMedia(w http.ResponseWriter, r *http.Request) {
	file, ok := h.resolver.FilePath(r.URL.Path)
	if !ok {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}

	if h.opts.RuntimeRewrite {
		if _, _, managed := h.resolver.Resolve(r.URL.Path); managed {
			caps := delivery.CapabilitiesFromAccept(r.Header.Get("Accept"))
			choice := h.selector.Choose(r.URL.Path, caps, h.opts.Order)
			w.Header().Add("Vary", "Accept")
			if choice.Key != "" {
				logging.Debug("Serving %s for %s", choice.Key, r.URL.Path)
				file = choice.Path
			}
		}
	}

	if !filesystem.Exists(file) {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", mediatypes.GetMimeType(filepath.Ext(file)))

	sw := streaming.Wrap(r.Context(), w, h.stream)
	http.ServeFile(sw, r, file)
	_ = sw.Close()

	written, elapsed := sw.Stats()
	metrics.MediaBytesServed.Add(float64(written))
	if err := sw.Err(); err != nil {
		metrics.MediaStreamAborts.WithLabelValues(abortReason(err)).Inc()
		logging.Debug("Stream of %s ended after %d bytes in %v: %v", file, written, elapsed, err)
	}
}

func abortReason(err error) string {
	switch {
	case errors.Is(err, streaming.ErrClientGone):
		return "client_gone"
	case errors.Is(err, streaming.ErrWriteTimeout):
		return "timeout"
	case errors.Is(err, streaming.ErrStreamCanceled):
		return "idle"
	default:
		return "write_error"
	}
}
