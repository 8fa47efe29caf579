// Package registry maps the type names used in pipeline definition files
// (e.g. "cutoff") to the Go factories that create the corresponding
// modifiers and sources.
//
// Modules add their types during application startup by implementing the
// Module interface. Registration happens once, before any definition file is
// loaded, and registering a type name twice is a programming error.
package registry
