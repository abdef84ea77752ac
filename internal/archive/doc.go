// Package archive models the dump archives found on a listing page.
//
// Archives are ordered naturally, so that
// enwiki-latest-pages-articles2.xml-p... comes before
// enwiki-latest-pages-articles10.xml-p..., and selected with a range
// expression:
//
//	3     archives 0, 1, 2 and 3
//	2:5   archives 2, 3, 4 and 5
//
// Ranges are parsed without knowing how many archives exist. Call
// [Range.Validate] once the list is known.
package archive
