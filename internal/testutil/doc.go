// Package testutil contains helpers shared by the tests of several packages:
// log capturing, environments and instrumented modifiers.
package testutil
