// Package batch drives a loading run: discover the published archives,
// select a range of them by position, then download and ingest each one in
// order.
//
// Archives are processed strictly one after another. The working directory
// doubles as a cache, so rerunning the same range skips archives that were
// already downloaded.
package batch
