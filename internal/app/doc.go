// Package app contains the core application logic. It loads pipeline
// definitions, builds the object graph they describe, evaluates the
// requested frames and writes a report, decoupled from any specific
// entrypoint like a CLI or server.
package app
