package cutoff

import (
	"context"
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/specialistvlad/ovipipe/internal/pipeline"
	"github.com/specialistvlad/ovipipe/internal/refgraph"
	"github.com/specialistvlad/ovipipe/internal/source"
	"github.com/specialistvlad/ovipipe/internal/tasks"
)

// TypeName is the registered type of the modifier.
const TypeName = "cutoff"

var (
	thresholdField = refgraph.FieldDescriptor{Name: "cutoff"}
	columnField    = refgraph.FieldDescriptor{Name: "column"}
)

// Params configures a Modifier.
type Params struct {
	Cutoff float64 `hcl:"cutoff"`
	Column string  `hcl:"column,optional"`
	Table  string  `hcl:"table,optional"`
}

// DefaultParams returns the parameters used for omitted settings.
func DefaultParams() Params {
	return Params{Column: "value", Table: source.TableID}
}

// Modifier removes the rows whose column value lies above the cutoff.
type Modifier struct {
	pipeline.ModifierBase
	table     string
	threshold refgraph.Property[float64]
	column    refgraph.Property[string]
}

// New creates a cutoff modifier.
func New(env *pipeline.Env, title string, params Params) *Modifier {
	m := &Modifier{table: params.Table}
	m.InitModifier(TypeName, title)
	m.threshold.Init(&thresholdField, params.Cutoff)
	m.column.Init(&columnField, params.Column)
	env.Graph.Add(m)
	return m
}

// Cutoff returns the threshold.
func (m *Modifier) Cutoff() float64 { return m.threshold.Get() }

// SetCutoff changes the threshold.
func (m *Modifier) SetCutoff(v float64) { m.threshold.Set(m, v) }

// Column returns the name of the filtered column.
func (m *Modifier) Column() string { return m.column.Get() }

// SetColumn changes the filtered column.
func (m *Modifier) SetColumn(name string) { m.column.Set(m, name) }

// Evaluate filters the input table.
func (m *Modifier) Evaluate(_ context.Context, _ pipeline.Request, _ *pipeline.ModifierApplication, input pipeline.FlowState) tasks.Future[pipeline.FlowState] {
	threshold, column := m.Cutoff(), m.Column()
	return tasks.Run(tasks.Inline, func() (pipeline.FlowState, error) {
		return m.apply(input, threshold, column)
	})
}

// EvaluateSynchronous filters the preview state. Filtering is cheap enough
// to do without waiting for a full evaluation.
func (m *Modifier) EvaluateSynchronous(_ context.Context, _ pipeline.Request, _ *pipeline.ModifierApplication, st *pipeline.FlowState) {
	out, err := m.apply(*st, m.Cutoff(), m.Column())
	if err != nil {
		st.Status = pipeline.Error(err.Error())
		return
	}
	*st = out
}

func (m *Modifier) apply(st pipeline.FlowState, threshold float64, column string) (pipeline.FlowState, error) {
	table, ok := st.Table(m.table)
	if !ok {
		return pipeline.FlowState{}, fmt.Errorf("input contains no table '%s'", m.table)
	}
	values, ok := table.Column(column)
	if !ok {
		return pipeline.FlowState{}, fmt.Errorf("table '%s' has no column '%s'", m.table, column)
	}

	keep := make([]bool, len(values))
	removed := 0
	for i, v := range values {
		keep[i] = v <= threshold
		if !keep[i] {
			removed++
		}
	}
	filtered, err := table.Filter(keep)
	if err != nil {
		return pipeline.FlowState{}, err
	}

	out := st.WithObject(filtered)
	if err := out.SetAttribute(m.Title()+".removed", cty.NumberIntVal(int64(removed))); err != nil {
		return pipeline.FlowState{}, err
	}
	out.Status = pipeline.Success(fmt.Sprintf("%d of %d rows removed", removed, len(values)))
	return out, nil
}
