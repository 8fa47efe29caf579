package compute

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"

	"github.com/specialistvlad/ovipipe/internal/pipeline"
	"github.com/specialistvlad/ovipipe/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the modifier type with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterModifier(TypeName, &registry.RegisteredModifier{
		Description: "Computes a column from an expression evaluated for every row.",
		New:         newFromBody,
	})
}

func newFromBody(env *pipeline.Env, title string, body hcl.Body) (pipeline.Modifier, hcl.Diagnostics) {
	params := DefaultParams()
	if diags := gohcl.DecodeBody(body, nil, &params); diags.HasErrors() {
		return nil, diags
	}
	mod, err := New(env, title, params)
	if err != nil {
		return nil, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Invalid compute expression",
			Detail:   err.Error(),
			Subject:  body.MissingItemRange().Ptr(),
		}}
	}
	return mod, nil
}
