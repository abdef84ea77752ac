// Package progress provides progress reporting for archive downloads.
//
// The reporter counts bytes written to it and periodically prints the
// completion percentage, transfer speed and ETA.
//
// # Usage
//
//	reporter := progress.NewReporter(progress.Options{
//	    TotalSize: resp.ContentLength,
//	    Name:      filename,
//	})
//
//	reporter.Start()
//	defer reporter.Stop()
//
//	io.Copy(dst, io.TeeReader(resp.Body, reporter))
//
// # Output Format
//
//	Downloading enwiki-latest-pages-articles1.xml-p1p41242.bz2 (262.08 MB)
//	Progress: 45.2% | 118.46 MB / 262.08 MB | Speed: 11.20 MB/s | ETA: 13s
//	Transferred 262.08 MB in 24s | Average speed: 10.92 MB/s
package progress
