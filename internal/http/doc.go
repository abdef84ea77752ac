// Package http provides the HTTP client used for dump listings and archive
// downloads.
//
// This package handles:
//   - GET requests with a configurable User-Agent
//   - Retry with exponential backoff on connection errors and 5xx responses
//   - Mapping of 401/403/404 to sentinel errors
//
// # Usage
//
//	client := http.NewClient(http.DefaultOptions())
//
//	resp, err := client.Get(ctx, url)
//	if err != nil {
//	    return err
//	}
//	defer resp.Body.Close()
//	// resp.ContentLength, resp.ETag
package http
