// Package errs defines the sentinel error kinds shared across the capture
// and muxing core, so callers can classify a failure with errors.Is
// instead of string matching.
package errs

import "errors"

// ErrConfigurationFatal marks an error that leaves the grabber unable to
// attach to its shared-memory contract at all. The only valid response
// is to log and terminate the host process.
var ErrConfigurationFatal = errors.New("configuration fatal")

// ErrCaptureTransient marks a graphics-API error during capture. The
// frame is skipped and the error is logged, when debug is enabled, on
// every occurrence; it is never fatal.
var ErrCaptureTransient = errors.New("capture transient")

// ErrMuxerFatal marks a write failure (header, trailer, or packet) that
// terminates the muxer worker goroutine.
var ErrMuxerFatal = errors.New("muxer fatal")

// ErrMuxerOperational marks a synchronous construction-time failure
// (format not found, context allocation, output open failure).
var ErrMuxerOperational = errors.New("muxer operational")
