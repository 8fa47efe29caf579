// Package scene holds the consumers of pipelines.
//
// A Pipeline is the terminal holder of a modification pipeline. It keeps two
// caches in front of the last stage: one serves interactive evaluation and
// one serves final output, which precomputes every animation frame when
// trajectory caching is switched on. A Scene is the root object that owns
// all pipelines of a document.
package scene
