package app

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/specialistvlad/ovipipe/internal/data"
	"github.com/specialistvlad/ovipipe/internal/interval"
	"github.com/specialistvlad/ovipipe/internal/pipeline"
	"github.com/specialistvlad/ovipipe/internal/scene"
)

// Report is the result of one evaluation run.
type Report struct {
	Pipelines []PipelineReport `yaml:"pipelines"`
}

// PipelineReport describes one evaluated pipeline.
type PipelineReport struct {
	Name              string        `yaml:"name"`
	Status            string        `yaml:"status"`
	TrajectoryCaching bool          `yaml:"trajectory_caching"`
	Stages            []StageReport `yaml:"stages"`
	Frames            []FrameReport `yaml:"frames"`
	// CachedIntervals are the validity intervals held by the evaluated cache
	// after the run.
	CachedIntervals []string `yaml:"cached_intervals,omitempty"`
}

// StageReport describes the source or one modifier application.
type StageReport struct {
	Title   string `yaml:"title"`
	Type    string `yaml:"type"`
	Enabled bool   `yaml:"enabled"`
	Status  string `yaml:"status"`
}

// FrameReport describes the output of a pipeline at one frame.
type FrameReport struct {
	Frame      int            `yaml:"frame"`
	Time       int64          `yaml:"time"`
	Status     string         `yaml:"status"`
	Validity   string         `yaml:"validity"`
	Objects    []ObjectReport `yaml:"objects,omitempty"`
	Attributes map[string]any `yaml:"attributes,omitempty"`
}

// ObjectReport summarizes one data object of a frame.
type ObjectReport struct {
	ID      string   `yaml:"id"`
	Rows    int      `yaml:"rows,omitempty"`
	Columns []string `yaml:"columns,omitempty"`
}

func stageReports(p *scene.Pipeline) []StageReport {
	var stages []StageReport
	if src := p.Source(); src != nil {
		stages = append(stages, StageReport{Title: src.Title(), Type: "source", Enabled: true, Status: src.Status().String()})
	}
	for _, app := range p.Applications() {
		st := StageReport{Title: app.Title(), Enabled: app.IsEffectivelyEnabled(), Status: app.Status().String()}
		if mod := app.Modifier(); mod != nil {
			st.Type = mod.TypeName()
		}
		stages = append(stages, st)
	}
	return stages
}

func frameReport(frame int, t interval.Time, st pipeline.FlowState) FrameReport {
	fr := FrameReport{
		Frame:    frame,
		Time:     int64(t),
		Status:   st.Status.String(),
		Validity: st.Validity.String(),
	}
	for _, obj := range st.Data.Objects() {
		or := ObjectReport{ID: obj.Identifier()}
		if table, ok := obj.(*data.Table); ok {
			or.Rows = table.Rows()
			or.Columns = table.ColumnNames()
		}
		fr.Objects = append(fr.Objects, or)
	}
	if st.Attributes.Len() > 0 {
		fr.Attributes = st.Attributes.Map()
	}
	return fr
}

func cachedIntervals(c *pipeline.Cache) []string {
	var out []string
	for _, iv := range c.Validity() {
		out = append(out, iv.String())
	}
	return out
}

// writeReport writes r in the given format.
func writeReport(w io.Writer, format string, r *Report) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
		return enc.Close()
	case "text":
		return writeText(w, r)
	}
	return fmt.Errorf("unknown output format '%s'", format)
}

func writeText(w io.Writer, r *Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, p := range r.Pipelines {
		fmt.Fprintf(tw, "pipeline %s\t%s\n", p.Name, p.Status)
		for _, s := range p.Stages {
			enabled := "on"
			if !s.Enabled {
				enabled = "off"
			}
			fmt.Fprintf(tw, "  stage\t%s\t%s\t%s\t%s\n", s.Title, s.Type, enabled, s.Status)
		}
		for _, f := range p.Frames {
			var objs []string
			for _, o := range f.Objects {
				objs = append(objs, fmt.Sprintf("%s(%d rows)", o.ID, o.Rows))
			}
			fmt.Fprintf(tw, "  frame %d\tt=%d\t%s\t%s\t%s\n", f.Frame, f.Time, f.Validity, f.Status, strings.Join(objs, " "))
		}
	}
	return tw.Flush()
}
