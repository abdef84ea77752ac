// Package downloader fetches dump archives into the working directory.
//
// The working directory doubles as a cache: an archive already present
// under its final name is never downloaded again. Downloads go to a
// temporary file named <filename>_DOWNLOADING and are renamed into place
// only after the whole body has been written, so an interrupted run leaves
// the temporary file behind and the next run fetches the archive again.
//
// # Usage
//
//	m := downloader.New(client, downloader.Options{Progress: true})
//	res, err := m.Fetch(ctx, link.URL, "work", link.Filename())
//
// Failures are returned as *DownloadError, which matches ErrDownload.
package downloader
