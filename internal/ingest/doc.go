// Package ingest runs the external ingestion job for a downloaded archive.
//
// The job is opaque: it receives two positional arguments,
// <config-path> <input-path>, and succeeds if it exits with status 0.
// Everything it prints goes to <input-path>.log.
//
// The process boundary is the Invoker interface so that callers can run
// the job through os/exec (ExecInvoker) or substitute a recording stub.
// A failed job is returned as *IngestionError; callers decide whether
// that stops a batch.
package ingest
