package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/specialistvlad/ovipipe/internal/ctxlog"
)

// fileRoot is used to decode all possible top-level blocks from any file.
type fileRoot struct {
	Groups    []*groupBlock    `hcl:"group,block"`
	Modifiers []*modifierBlock `hcl:"modifier,block"`
	Pipelines []*pipelineBlock `hcl:"pipeline,block"`
}

type groupBlock struct {
	Name    string  `hcl:"name,label"`
	Title   *string `hcl:"title,optional"`
	Enabled *bool   `hcl:"enabled,optional"`
}

type modifierBlock struct {
	Type    string   `hcl:"type,label"`
	Name    string   `hcl:"name,label"`
	Title   *string  `hcl:"title,optional"`
	Enabled *bool    `hcl:"enabled,optional"`
	Body    hcl.Body `hcl:",remain"`
}

type pipelineBlock struct {
	Name              string        `hcl:"name,label"`
	TrajectoryCaching *bool         `hcl:"trajectory_caching,optional"`
	Source            *sourceBlock  `hcl:"source,block"`
	Apply             []*applyBlock `hcl:"apply,block"`
}

type sourceBlock struct {
	Type string   `hcl:"type,label"`
	Body hcl.Body `hcl:",remain"`
}

type applyBlock struct {
	Modifier string  `hcl:"modifier,label"`
	Group    *string `hcl:"group,optional"`
}

// Load parses every .hcl file found under paths and merges their blocks into
// one model. Directories are searched recursively. Paths that do not exist
// are skipped.
func Load(ctx context.Context, paths ...string) (*Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := findAllHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	parser := hclparse.NewParser()
	model := newModel()
	var diags hcl.Diagnostics
	for _, file := range files {
		hclFile, parseDiags := parser.ParseHCLFile(file)
		if parseDiags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, parseDiags)
		}
		var root fileRoot
		if decodeDiags := gohcl.DecodeBody(hclFile.Body, nil, &root); decodeDiags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, decodeDiags)
		}
		diags = append(diags, model.merge(&root)...)
	}
	if diags.HasErrors() {
		return nil, diags
	}

	logger.Debug("HCL loading complete.", "groups", len(model.Groups), "modifiers", len(model.Modifiers), "pipelines", len(model.Pipelines))
	return model, nil
}

// LoadBytes parses a single definition held in memory.
func LoadBytes(src []byte, filename string) (*Model, error) {
	hclFile, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	var root fileRoot
	if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}
	model := newModel()
	if diags := model.merge(&root); diags.HasErrors() {
		return nil, diags
	}
	return model, nil
}

func (m *Model) merge(root *fileRoot) hcl.Diagnostics {
	var diags hcl.Diagnostics
	duplicate := func(kind, name string, subject *hcl.Range) {
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  fmt.Sprintf("Duplicate %s", kind),
			Detail:   fmt.Sprintf("A %s named %q was already declared.", kind, name),
			Subject:  subject,
		})
	}

	for _, b := range root.Groups {
		if _, ok := m.Groups[b.Name]; ok {
			duplicate("group", b.Name, nil)
			continue
		}
		m.Groups[b.Name] = &Group{
			Name:    b.Name,
			Title:   valueOr(b.Title, b.Name),
			Enabled: valueOr(b.Enabled, true),
		}
	}
	for _, b := range root.Modifiers {
		if _, ok := m.Modifiers[b.Name]; ok {
			duplicate("modifier", b.Name, b.Body.MissingItemRange().Ptr())
			continue
		}
		m.Modifiers[b.Name] = &Modifier{
			Type:    b.Type,
			Name:    b.Name,
			Title:   valueOr(b.Title, b.Name),
			Enabled: valueOr(b.Enabled, true),
			Body:    b.Body,
		}
	}
	for _, b := range root.Pipelines {
		if _, ok := m.Pipeline(b.Name); ok {
			duplicate("pipeline", b.Name, nil)
			continue
		}
		p := &Pipeline{
			Name:              b.Name,
			TrajectoryCaching: valueOr(b.TrajectoryCaching, false),
		}
		if b.Source != nil {
			p.Source = &Source{Type: b.Source.Type, Body: b.Source.Body}
		}
		for _, a := range b.Apply {
			p.Apply = append(p.Apply, &Apply{Modifier: a.Modifier, Group: valueOr(a.Group, "")})
		}
		m.Pipelines = append(m.Pipelines, p)
	}
	return diags
}

func valueOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

// findAllHCLFiles walks all given paths and returns a flat list of all .hcl files found.
func findAllHCLFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, wasSeen := seen[p]; !wasSeen {
			allFiles = append(allFiles, p)
			seen[p] = struct{}{}
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if !info.IsDir() {
			if filepath.Ext(path) == ".hcl" {
				add(path)
			}
			continue
		}
		err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && filepath.Ext(p) == ".hcl" {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return allFiles, nil
}
