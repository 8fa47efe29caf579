package source

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"

	"github.com/specialistvlad/ovipipe/internal/pipeline"
	"github.com/specialistvlad/ovipipe/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the source types with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterSource("generator", &registry.RegisteredSource{
		Description: "Synthetic particle table with one value column that moves with the frame number.",
		New:         newGeneratorFromBody,
	})
}

func newGeneratorFromBody(env *pipeline.Env, body hcl.Body) (pipeline.Node, hcl.Diagnostics) {
	params := DefaultGeneratorParams()
	if diags := gohcl.DecodeBody(body, nil, &params); diags.HasErrors() {
		return nil, diags
	}
	g, err := NewGenerator(env, params)
	if err != nil {
		return nil, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Invalid generator parameters",
			Detail:   err.Error(),
			Subject:  body.MissingItemRange().Ptr(),
		}}
	}
	return g, nil
}
