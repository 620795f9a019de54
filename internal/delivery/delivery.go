package delivery

import (
	"strings"

	"media-variants/internal/metrics"
	"media-variants/internal/rewrite"
	"media-variants/internal/variant"

	"github.com/munnerz/goautoneg"
)

// Capabilities is the set of media types a client accepts.
type Capabilities struct {
	exact     map[string]bool
	wildcards map[string]bool
}

// CapabilitiesFromAccept parses an Accept header. Entries with q=0 are
// refusals and are dropped. A bare */* does not imply support for any
// modern format; clients advertise those explicitly.
func CapabilitiesFromAccept(header string) Capabilities {
	c := Capabilities{exact: map[string]bool{}, wildcards: map[string]bool{}}
	if strings.TrimSpace(header) == "" {
		return c
	}
	for _, a := range goautoneg.ParseAccept(header) {
		if a.Q <= 0 {
			continue
		}
		typ := strings.ToLower(a.Type)
		sub := strings.ToLower(a.SubType)
		switch {
		case typ == "*":
		case sub == "*":
			c.wildcards[typ] = true
		default:
			c.exact[typ+"/"+sub] = true
		}
	}
	return c
}

// NewCapabilities returns capabilities for an explicit list of types.
func NewCapabilities(types ...string) Capabilities {
	c := Capabilities{exact: map[string]bool{}, wildcards: map[string]bool{}}
	for _, t := range types {
		c.exact[strings.ToLower(t)] = true
	}
	return c
}

// Accepts reports whether mimeType (parameters ignored) is acceptable.
func (c Capabilities) Accepts(mimeType string) bool {
	base, _, _ := strings.Cut(strings.ToLower(mimeType), ";")
	base = strings.TrimSpace(base)
	if c.exact[base] {
		return true
	}
	typ, _, _ := strings.Cut(base, "/")
	return c.wildcards[typ]
}

// Choice is the selected representation.
type Choice struct {
	// Key is empty when the original is served.
	Key  variant.FormatKey
	URL  string
	Path string
}

// Selector chooses derivatives through a PathResolver.
type Selector struct {
	resolver rewrite.Resolver
}

// NewSelector returns a Selector over resolver.
func NewSelector(resolver rewrite.Resolver) *Selector {
	return &Selector{resolver: resolver}
}

// Select returns the URL to serve for originalURL.
func (s *Selector) Select(originalURL string, caps Capabilities, order []variant.FormatKey) string {
	return s.Choose(originalURL, caps, order).URL
}

// Choose returns the first derivative in order that exists on disk and is
// acceptable to the client, or the original.
func (s *Selector) Choose(originalURL string, caps Capabilities, order []variant.FormatKey) Choice {
	original := Choice{URL: originalURL}
	file, kind, ok := s.resolver.Resolve(originalURL)
	if !ok {
		return original
	}
	original.Path = file

	for _, c := range s.resolver.Candidates(originalURL, variant.PreferenceFor(kind, order)) {
		f, _ := variant.Lookup(c.Key)
		if caps.Accepts(f.MimeType) {
			metrics.DeliverySelectionsTotal.WithLabelValues(string(c.Key)).Inc()
			return Choice{Key: c.Key, URL: c.URL, Path: c.Path}
		}
	}
	metrics.DeliverySelectionsTotal.WithLabelValues("original").Inc()
	return original
}
