// Package logstore archives ingestion logs in object storage.
//
// The working directory only keeps the logs of the machine that ran the
// batch. When a log bucket is configured, every <archive>.log is copied
// to <bucket>/<prefix>/<archive>.log after its ingestion finishes. The
// bucket is opened with gocloud.dev/blob, so any of its URL schemes work:
//
//	file:///var/lib/jsonpedia/logs
//	s3://my-bucket?region=eu-west-1
//	gs://my-bucket
package logstore
