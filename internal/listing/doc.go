// Package listing discovers dump archives on an HTML directory listing.
//
// Wikimedia mirrors publish a plain index page whose <pre> block holds one
// anchor per file. Only the multi-part article dumps are kept:
//
//	enwiki-latest-pages-articles1.xml-p1p41242.bz2
//	enwiki-latest-pages-articles2.xml-p41243p151573.bz2
//	...
//
// A listing without any matching anchor is an error (ErrNoArchives): it
// means the page layout changed or the request silently failed.
package listing
