package listing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/thomasvonl/jsonpedia/internal/archive"
	dumphttp "github.com/thomasvonl/jsonpedia/internal/http"
)

// Discovery errors.
var (
	ErrDiscovery  = errors.New("listing: archive discovery failed")
	ErrNoArchives = fmt.Errorf("%w: no archive links found, the listing layout may have changed", ErrDiscovery)
)

// DefaultWiki is the dump name prefix used when none is configured.
const DefaultWiki = "enwiki"

// ArchivePattern matches the multi-part article dumps of wiki, for example
// enwiki-latest-pages-articles1.xml-p1p41242.bz2.
func ArchivePattern(wiki string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(wiki) +
		`-latest-pages-articles[0-9]+\.xml-p[0-9]+p[0-9]+\.bz2$`)
}

// Getter fetches a URL. *http.Client implements it.
type Getter interface {
	Get(ctx context.Context, url string) (*dumphttp.Response, error)
}

// Fetcher discovers the archives published on a dump listing page.
type Fetcher struct {
	client  Getter
	url     string
	pattern *regexp.Regexp
}

// NewFetcher returns a Fetcher for the listing at listingURL that keeps the
// article dumps of wiki.
func NewFetcher(client Getter, listingURL, wiki string) *Fetcher {
	if wiki == "" {
		wiki = DefaultWiki
	}
	return &Fetcher{
		client:  client,
		url:     directoryURL(listingURL),
		pattern: ArchivePattern(wiki),
	}
}

// directoryURL adds the trailing slash a directory listing needs for its
// relative links to resolve inside it, as in ".../enwiki/latest/". URLs
// naming a file, such as ".../index.html", are kept.
func directoryURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	switch {
	case u.Path == "":
		u.Path = "/"
	case strings.HasSuffix(u.Path, "/"), strings.Contains(path.Base(u.Path), "."):
		return raw
	default:
		u.Path += "/"
		if u.RawPath != "" {
			u.RawPath += "/"
		}
	}
	return u.String()
}

// URL returns the listing page URL.
func (f *Fetcher) URL() string {
	return f.url
}

// Fetch downloads the listing page and returns the matching archives in
// natural order. It never returns an empty list without an error.
func (f *Fetcher) Fetch(ctx context.Context) (archive.List, error) {
	base, err := url.Parse(f.url)
	if err != nil {
		return nil, fmt.Errorf("%w: parse listing url: %v", ErrDiscovery, err)
	}

	resp, err := f.client.Get(ctx, f.url)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %w", ErrDiscovery, f.url, err)
	}
	defer resp.Body.Close()

	return ParseListing(resp.Body, base, f.pattern)
}

// ParseListing extracts the archive links from the preformatted block of a
// directory listing. Links are resolved against base and filtered by
// pattern; duplicates are dropped.
func ParseListing(r io.Reader, base *url.URL, pattern *regexp.Regexp) (archive.List, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %v", ErrDiscovery, err)
	}

	var (
		list    archive.List
		linkErr error
		seen    = make(map[string]bool)
	)
	doc.Find("pre a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if !ok || seen[href] || !pattern.MatchString(href) {
			return true
		}
		seen[href] = true

		link, err := archive.NewLink(base, href)
		if err != nil {
			linkErr = err
			return false
		}
		list = append(list, link)
		return true
	})
	if linkErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrDiscovery, linkErr)
	}

	if len(list) == 0 {
		return nil, ErrNoArchives
	}

	list.Sort()
	return list, nil
}
