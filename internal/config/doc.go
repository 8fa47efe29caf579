// Package config loads pipeline definition files.
//
// Definitions are written in HCL. A file declares modifier groups, named
// modifiers with their parameters and pipelines that apply the modifiers to a
// source:
//
//	group "filters" { enabled = true }
//	modifier "cutoff" "small" { cutoff = 3.0 }
//	pipeline "main" {
//	  source "generator" { frames = 10 }
//	  apply "small" { group = "filters" }
//	}
//
// Parameter bodies stay undecoded in the Model; the factory registered for
// the modifier or source type decodes them.
package config
