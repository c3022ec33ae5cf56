// Package memory provides in-memory JobStore and BlobStore implementations
// for development and tests.
package memory
