package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hashicorp/hcl/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/ovipipe/internal/config"
	"github.com/specialistvlad/ovipipe/internal/pipeline"
	"github.com/specialistvlad/ovipipe/internal/registry"
)

const definition = `
group "filters" {
  title = "Filters"
}

modifier "cutoff" "small" {
  cutoff = 3.0
}

modifier "scale" "double" {
  title   = "Double"
  enabled = false
  factor  = 2
}

pipeline "main" {
  trajectory_caching = true

  source "generator" {
    frames = 10
  }

  apply "small" {
    group = "filters"
  }
  apply "double" {}
}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadBytes(t *testing.T) {
	m, err := config.LoadBytes([]byte(definition), "main.hcl")
	require.NoError(t, err)

	want := map[string]*config.Group{
		"filters": {Name: "filters", Title: "Filters", Enabled: true},
	}
	if diff := cmp.Diff(want, m.Groups); diff != "" {
		t.Errorf("groups mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, m.Modifiers, 2)
	small := m.Modifiers["small"]
	assert.Equal(t, "cutoff", small.Type)
	assert.Equal(t, "small", small.Title, "title defaults to the name")
	assert.True(t, small.Enabled)
	double := m.Modifiers["double"]
	assert.Equal(t, "Double", double.Title)
	assert.False(t, double.Enabled)

	p, ok := m.Pipeline("main")
	require.True(t, ok)
	assert.True(t, p.TrajectoryCaching)
	require.NotNil(t, p.Source)
	assert.Equal(t, "generator", p.Source.Type)
	if diff := cmp.Diff([]*config.Apply{
		{Modifier: "small", Group: "filters"},
		{Modifier: "double"},
	}, p.Apply); diff != "" {
		t.Errorf("apply mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadBytes_ParameterBodyIsKept(t *testing.T) {
	m, err := config.LoadBytes([]byte(definition), "main.hcl")
	require.NoError(t, err)

	attrs, diags := m.Modifiers["double"].Body.JustAttributes()
	require.False(t, diags.HasErrors(), diags.Error())
	assert.Contains(t, attrs, "factor")
	assert.NotContains(t, attrs, "title")
	assert.NotContains(t, attrs, "enabled")
}

func TestLoadBytes_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		src     string
		wantErr string
	}{
		{
			name:    "syntax error",
			src:     `pipeline "p" {`,
			wantErr: "failed to parse",
		},
		{
			name:    "unknown block",
			src:     `widget "w" {}`,
			wantErr: "failed to decode",
		},
		{
			name:    "duplicate modifier",
			src:     "modifier \"cutoff\" \"a\" {}\nmodifier \"scale\" \"a\" {}\n",
			wantErr: "Duplicate modifier",
		},
		{
			name:    "duplicate pipeline",
			src:     "pipeline \"p\" {}\npipeline \"p\" {}\n",
			wantErr: "Duplicate pipeline",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.LoadBytes([]byte(tc.src), "bad.hcl")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoad_MergesDirectories(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "modifiers.hcl", `modifier "cutoff" "small" { cutoff = 1 }`)
	writeFile(t, dir, "nested/pipeline.hcl", `
pipeline "main" {
  source "generator" {}
  apply "small" {}
}
`)
	writeFile(t, dir, "notes.txt", `not hcl`)

	m, err := config.Load(context.Background(), dir, filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Contains(t, m.Modifiers, "small")
	require.Len(t, m.Pipelines, 1)
	assert.Equal(t, "main", m.Pipelines[0].Name)
}

func TestLoad_DuplicateAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.hcl", `group "g" {}`)
	b := writeFile(t, dir, "b.hcl", `group "g" {}`)

	_, err := config.Load(context.Background(), a, b, a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Duplicate group")
}

func testRegistry() *registry.Registry {
	reg := registry.New()
	reg.RegisterModifier("cutoff", &registry.RegisteredModifier{
		New: func(*pipeline.Env, string, hcl.Body) (pipeline.Modifier, hcl.Diagnostics) { return nil, nil },
	})
	reg.RegisterSource("generator", &registry.RegisteredSource{
		New: func(*pipeline.Env, hcl.Body) (pipeline.Node, hcl.Diagnostics) { return nil, nil },
	})
	return reg
}

func TestValidate(t *testing.T) {
	t.Run("valid model", func(t *testing.T) {
		m, err := config.LoadBytes([]byte(`
modifier "cutoff" "small" {}
pipeline "main" {
  source "generator" {}
  apply "small" {}
}
`), "ok.hcl")
		require.NoError(t, err)
		assert.NoError(t, config.Validate(m, testRegistry()))
	})

	t.Run("reports every problem", func(t *testing.T) {
		m, err := config.LoadBytes([]byte(definition+`
pipeline "orphan" {
  apply "ghost" { group = "nobody" }
}
pipeline "alien" {
  source "importer" {}
}
`), "bad.hcl")
		require.NoError(t, err)

		err = config.Validate(m, testRegistry())
		require.Error(t, err)
		msg := err.Error()
		assert.Contains(t, msg, "modifier 'double': unknown modifier type 'scale'")
		assert.Contains(t, msg, "pipeline 'orphan': missing source block")
		assert.Contains(t, msg, "pipeline 'orphan' apply[0]: undefined modifier 'ghost'")
		assert.Contains(t, msg, "pipeline 'orphan' apply[0]: undefined group 'nobody'")
		assert.Contains(t, msg, "pipeline 'alien': unknown source type 'importer'")
		assert.NotContains(t, msg, "'small'")
	})
}
