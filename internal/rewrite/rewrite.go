package rewrite

import (
	"bytes"
	"fmt"
	"strings"

	"media-variants/internal/mediatypes"
	"media-variants/internal/metrics"
	"media-variants/internal/variant"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Policy selects which derivatives the rewriter may substitute.
type Policy string

const (
	PolicyNone     Policy = "none"
	PolicyExplicit Policy = "explicit"
	PolicyAuto     Policy = "auto"
)

// ParsePolicy validates a configured policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyNone, PolicyExplicit, PolicyAuto:
		return p, nil
	case "":
		return PolicyNone, nil
	default:
		return "", fmt.Errorf("unknown rewrite policy %q", s)
	}
}

// Options controls a rewrite.
type Options struct {
	Policy Policy
	// Format is the single key tried under PolicyExplicit.
	Format variant.FormatKey
	// Order is the preference order tried under PolicyAuto. It is filtered
	// per element kind; an empty order uses the default preference.
	Order           []variant.FormatKey
	DeleteOriginals bool
}

// Keys returns the format keys to try for a source of kind.
func (o Options) Keys(kind mediatypes.Kind) []variant.FormatKey {
	switch o.Policy {
	case PolicyExplicit:
		if f, ok := variant.Lookup(o.Format); ok && f.Kind == kind && !f.Auxiliary {
			return []variant.FormatKey{o.Format}
		}
		return nil
	case PolicyAuto:
		return variant.PreferenceFor(kind, o.Order)
	default:
		return nil
	}
}

// Result is the outcome of a rewrite.
type Result struct {
	Markup  string
	Changed bool
	// DeletionCandidates are original files no longer referenced by the
	// rewritten markup. They are only collected when deletion is enabled.
	DeletionCandidates []string
}

type rewriter struct {
	r          Resolver
	opts       Options
	changed    bool
	candidates []string
}

// Rewrite substitutes derivative URLs into markup.
func Rewrite(markup string, r Resolver, opts Options) (Result, error) {
	unchanged := Result{Markup: markup}
	if opts.Policy == PolicyNone || opts.Policy == "" || strings.TrimSpace(markup) == "" {
		return unchanged, nil
	}

	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), ctx)
	if err != nil {
		return unchanged, fmt.Errorf("failed to parse markup: %w", err)
	}

	rw := &rewriter{r: r, opts: opts}
	for _, n := range nodes {
		rw.walk(n)
	}
	if !rw.changed {
		metrics.RewritesTotal.WithLabelValues("unchanged").Inc()
		return unchanged, nil
	}

	var buf bytes.Buffer
	for _, n := range nodes {
		if err := html.Render(&buf, n); err != nil {
			return unchanged, fmt.Errorf("failed to render markup: %w", err)
		}
	}

	res := Result{Markup: buf.String(), Changed: true}
	if opts.DeleteOriginals {
		res.DeletionCandidates = rw.unreferenced(nodes)
	}
	metrics.RewritesTotal.WithLabelValues("changed").Inc()
	return res, nil
}

func (rw *rewriter) walk(n *html.Node) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Audio:
			return
		case atom.Video:
			rw.video(n)
			return
		case atom.Picture:
			rw.picture(n)
			return
		case atom.Img:
			rw.img(n)
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		rw.walk(c)
	}
}

type sourceEntry struct {
	url, typ string
}

// video turns every managed source that has derivatives into a run of
// <source> elements, derivatives first. Other sources keep their place.
func (rw *rewriter) video(n *html.Node) {
	var entries []sourceEntry
	if src, ok := getAttr(n, "src"); ok {
		e := sourceEntry{url: src}
		if file, _, managed := rw.r.Resolve(src); managed {
			e.typ = mediatypes.GetMimeType(extOf(file))
		}
		entries = append(entries, e)
	}
	for _, s := range children(n, atom.Source) {
		if src, ok := getAttr(s, "src"); ok {
			typ, _ := getAttr(s, "type")
			entries = append(entries, sourceEntry{url: src, typ: typ})
		}
	}

	want := make([]sourceEntry, 0, len(entries)+2)
	seen := make(map[string]bool)
	add := func(e sourceEntry) {
		if !seen[e.url] {
			seen[e.url] = true
			want = append(want, e)
		}
	}

	var expanded []string
	for _, e := range entries {
		file, kind, managed := rw.r.Resolve(e.url)
		var cands []Candidate
		if managed && kind == mediatypes.KindVideo {
			cands = rw.r.Candidates(e.url, rw.opts.Keys(kind))
		}
		if len(cands) == 0 {
			add(e)
			continue
		}
		for _, c := range cands {
			add(sourceEntry{url: c.URL, typ: c.Type})
		}
		if !rw.opts.DeleteOriginals {
			add(sourceEntry{url: e.url, typ: mediatypes.GetMimeType(extOf(file))})
		}
		expanded = append(expanded, file)
	}
	if len(expanded) == 0 {
		return
	}

	_, hasSrc := getAttr(n, "src")
	if !hasSrc && sameSources(children(n, atom.Source), "src", want) {
		return
	}

	removeAttr(n, "src")
	replaceSources(n, "src", want)
	rw.changed = true
	for _, file := range expanded {
		rw.candidate(file)
	}
}

func (rw *rewriter) picture(n *html.Node) {
	img := firstChild(n, atom.Img)
	var urls []string
	if img != nil {
		if src, ok := getAttr(img, "src"); ok {
			urls = append(urls, src)
		}
	}
	for _, s := range children(n, atom.Source) {
		if srcset, ok := getAttr(s, "srcset"); ok {
			for _, e := range parseSrcset(srcset) {
				urls = append(urls, e.url)
			}
		}
	}

	orig, file, cands := rw.firstManaged(urls, mediatypes.KindImage)
	if len(cands) == 0 {
		return
	}

	want := make([]sourceEntry, 0, len(cands))
	for _, c := range cands {
		want = append(want, sourceEntry{url: c.URL, typ: c.Type})
	}

	changed := !sameSources(children(n, atom.Source), "srcset", want)
	if changed {
		replaceSources(n, "srcset", want)
	}
	if img != nil && rw.opts.DeleteOriginals {
		if src, _ := getAttr(img, "src"); src == orig {
			setAttr(img, "src", cands[0].URL)
			changed = true
		}
		if rw.rewriteSrcset(img) {
			changed = true
		}
	}
	if changed {
		rw.changed = true
		rw.candidate(file)
	}
}

func (rw *rewriter) img(n *html.Node) {
	changed := false
	if src, ok := getAttr(n, "src"); ok {
		if file, kind, managed := rw.r.Resolve(src); managed && kind == mediatypes.KindImage {
			if cands := rw.r.Candidates(src, rw.opts.Keys(kind)); len(cands) > 0 {
				setAttr(n, "src", cands[0].URL)
				changed = true
				rw.candidate(file)
			}
		}
	}
	if rw.rewriteSrcset(n) {
		changed = true
	}
	if changed {
		rw.changed = true
	}
}

// rewriteSrcset replaces each srcset entry that has a derivative.
func (rw *rewriter) rewriteSrcset(n *html.Node) bool {
	srcset, ok := getAttr(n, "srcset")
	if !ok {
		return false
	}
	entries := parseSrcset(srcset)
	changed := false
	for i, e := range entries {
		file, kind, managed := rw.r.Resolve(e.url)
		if !managed || kind != mediatypes.KindImage {
			continue
		}
		if cands := rw.r.Candidates(e.url, rw.opts.Keys(kind)); len(cands) > 0 {
			entries[i].url = cands[0].URL
			changed = true
			rw.candidate(file)
		}
	}
	if changed {
		setAttr(n, "srcset", formatSrcset(entries))
	}
	return changed
}

// firstManaged returns the first URL that resolves to a managed source of
// kind along with its file and on-disk candidates.
func (rw *rewriter) firstManaged(urls []string, kind mediatypes.Kind) (string, string, []Candidate) {
	for _, u := range urls {
		file, k, ok := rw.r.Resolve(u)
		if !ok || k != kind {
			continue
		}
		return u, file, rw.r.Candidates(u, rw.opts.Keys(kind))
	}
	return "", "", nil
}

func (rw *rewriter) candidate(file string) {
	if !rw.opts.DeleteOriginals {
		return
	}
	for _, c := range rw.candidates {
		if c == file {
			return
		}
	}
	rw.candidates = append(rw.candidates, file)
}

// unreferenced filters the collected candidates down to files that no
// attribute in the rewritten tree still points at.
func (rw *rewriter) unreferenced(nodes []*html.Node) []string {
	referenced := make(map[string]bool)
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for _, a := range n.Attr {
				switch a.Key {
				case "src", "href", "poster", "data-src":
					if file, _, ok := rw.r.Resolve(a.Val); ok {
						referenced[file] = true
					}
				case "srcset":
					for _, e := range parseSrcset(a.Val) {
						if file, _, ok := rw.r.Resolve(e.url); ok {
							referenced[file] = true
						}
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	for _, n := range nodes {
		visit(n)
	}

	var out []string
	for _, c := range rw.candidates {
		if !referenced[c] {
			out = append(out, c)
		}
	}
	return out
}
