package rewrite

import (
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func getAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	attrs := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			continue
		}
		attrs = append(attrs, a)
	}
	n.Attr = attrs
}

func children(n *html.Node, a atom.Atom) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			out = append(out, c)
		}
	}
	return out
}

func firstChild(n *html.Node, a atom.Atom) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			return c
		}
	}
	return nil
}

// sameSources reports whether the existing <source> elements already carry
// exactly want, in order.
func sameSources(sources []*html.Node, urlAttr string, want []sourceEntry) bool {
	if len(sources) != len(want) {
		return false
	}
	for i, s := range sources {
		u, _ := getAttr(s, urlAttr)
		t, _ := getAttr(s, "type")
		if u != want[i].url || t != want[i].typ {
			return false
		}
	}
	return true
}

// replaceSources removes every <source> child of n and inserts one per
// entry ahead of the remaining children. An empty type is omitted.
func replaceSources(n *html.Node, urlAttr string, entries []sourceEntry) {
	for _, s := range children(n, atom.Source) {
		n.RemoveChild(s)
	}
	anchor := n.FirstChild
	for _, e := range entries {
		src := &html.Node{
			Type:     html.ElementNode,
			Data:     "source",
			DataAtom: atom.Source,
			Attr: []html.Attribute{{Key: urlAttr, Val: e.url}},
		}
		if e.typ != "" {
			src.Attr = append(src.Attr, html.Attribute{Key: "type", Val: e.typ})
		}
		n.InsertBefore(src, anchor)
	}
}

type srcsetEntry struct {
	url, descriptor string
}

func parseSrcset(s string) []srcsetEntry {
	var out []srcsetEntry
	for _, part := range strings.Split(s, ",") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		out = append(out, srcsetEntry{url: fields[0], descriptor: strings.Join(fields[1:], " ")})
	}
	return out
}

func formatSrcset(entries []srcsetEntry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.descriptor == "" {
			parts = append(parts, e.url)
			continue
		}
		parts = append(parts, e.url+" "+e.descriptor)
	}
	return strings.Join(parts, ", ")
}

func extOf(file string) string {
	return strings.ToLower(filepath.Ext(file))
}
