// Package storage holds uploaded files between the moment a multipart body is
// drained and the moment a handler decides what to do with them.
//
// A TempStore saves a stream under an opaque handle and can reopen or remove
// it later. LocalStore writes to a directory on disk. S3Store writes to an
// S3-compatible bucket under a key prefix. Both implement Sweep so a
// scheduled job can reclaim files nobody claimed.
//
// Content types are detected from magic bytes with gabriel-vasile/mimetype.
package storage
