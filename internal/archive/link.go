package archive

import (
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
)

// Link is one archive discovered on a dump listing page.
type Link struct {
	// Href is the link target as it appeared in the listing.
	Href string
	// URL is Href resolved against the listing page URL.
	URL string
	// Key orders links by the numbers embedded in Href.
	Key Key
}

// NewLink resolves href against the listing page URL.
func NewLink(base *url.URL, href string) (Link, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return Link{}, fmt.Errorf("parse link %q: %w", href, err)
	}
	return Link{
		Href: href,
		URL:  base.ResolveReference(ref).String(),
		Key:  NaturalKey(href),
	}, nil
}

// Filename returns the last path segment of the link, without query or
// fragment. It names the archive inside the working directory.
func (l Link) Filename() string {
	return Filename(l.URL)
}

// Filename extracts the file name from a URL or relative link.
func Filename(rawURL string) string {
	s := rawURL
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		s = s[i+1:]
	}
	return path.Clean("/" + s)[1:]
}

// List is a non-empty sequence of links in natural order.
type List []Link

// Sort orders the list by natural key. Links with equal keys keep their
// relative order.
func (l List) Sort() {
	sort.SliceStable(l, func(i, j int) bool {
		if c := l[i].Key.Compare(l[j].Key); c != 0 {
			return c < 0
		}
		return l[i].Href < l[j].Href
	})
}

// Hrefs returns the link targets in list order.
func (l List) Hrefs() []string {
	out := make([]string, len(l))
	for i, link := range l {
		out[i] = link.Href
	}
	return out
}
