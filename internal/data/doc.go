// Package data holds the payload that flows through a pipeline.
//
// A Collection is an ordered set of data objects, currently column tables.
// Collections, tables and attribute maps are persistent values: every
// modification returns a new value and leaves the receiver untouched, so a
// state handed to the next pipeline stage can be modified there without
// affecting cached upstream results.
package data
