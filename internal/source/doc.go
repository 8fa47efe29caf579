// Package source provides data source nodes at the upstream end of a
// pipeline.
//
// Generator synthesizes a table of rows per animation frame on the worker
// executor and caches it like any other caching node. Static serves a fixed
// state and is mostly useful to feed hand-made states into a pipeline.
package source
