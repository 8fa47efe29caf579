package app

import (
	"github.com/specialistvlad/ovipipe/internal/registry"
	"github.com/specialistvlad/ovipipe/internal/source"
	"github.com/specialistvlad/ovipipe/modules/compute"
	"github.com/specialistvlad/ovipipe/modules/cutoff"
	"github.com/specialistvlad/ovipipe/modules/reference"
	"github.com/specialistvlad/ovipipe/modules/scale"
)

// coreModules is the definitive list of all modules that are compiled into
// the ovipipe binary.
var coreModules = []registry.Module{
	&source.Module{},
	&cutoff.Module{},
	&scale.Module{},
	&compute.Module{},
	&reference.Module{},
}

// CoreModules returns the modules compiled into the binary.
func CoreModules() []registry.Module {
	return append([]registry.Module(nil), coreModules...)
}
