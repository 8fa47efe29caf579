package compute

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/specialistvlad/ovipipe/internal/interval"
	"github.com/specialistvlad/ovipipe/internal/pipeline"
	"github.com/specialistvlad/ovipipe/internal/refgraph"
	"github.com/specialistvlad/ovipipe/internal/source"
	"github.com/specialistvlad/ovipipe/internal/tasks"
)

// TypeName is the registered type of the modifier.
const TypeName = "compute"

// Variables that expressions can use besides the table columns.
const (
	rowVar  = "row"
	timeVar = "time"
	attrVar = "attr"
)

var expressionField = refgraph.FieldDescriptor{Name: "expression"}

var functions = map[string]function.Function{
	"abs":    stdlib.AbsoluteFunc,
	"ceil":   stdlib.CeilFunc,
	"floor":  stdlib.FloorFunc,
	"log":    stdlib.LogFunc,
	"max":    stdlib.MaxFunc,
	"min":    stdlib.MinFunc,
	"pow":    stdlib.PowFunc,
	"signum": stdlib.SignumFunc,
}

// Params configures a Modifier.
type Params struct {
	Expression string `hcl:"expression"`
	Output     string `hcl:"output,optional"`
	Table      string `hcl:"table,optional"`
}

// DefaultParams returns the parameters used for omitted settings.
func DefaultParams() Params {
	return Params{Output: "result", Table: source.TableID}
}

// Modifier evaluates an HCL expression for every row of a table and stores
// the results in the output column.
//
// Every column is available as a variable of the same name. row is the row
// index, time the animation time of the request and attr an object holding
// the attributes of the input state.
type Modifier struct {
	pipeline.ModifierBase
	table      string
	output     string
	expression refgraph.Property[string]
}

// New creates a compute modifier. It fails if the expression does not parse.
func New(env *pipeline.Env, title string, params Params) (*Modifier, error) {
	if _, err := parse(params.Expression); err != nil {
		return nil, err
	}
	m := &Modifier{table: params.Table, output: params.Output}
	m.InitModifier(TypeName, title)
	m.expression.Init(&expressionField, params.Expression)
	env.Graph.Add(m)
	return m, nil
}

// Expression returns the expression source.
func (m *Modifier) Expression() string { return m.expression.Get() }

// SetExpression replaces the expression. An expression that does not parse
// is rejected and the old one stays in place.
func (m *Modifier) SetExpression(src string) error {
	if _, err := parse(src); err != nil {
		return err
	}
	m.expression.Set(m, src)
	return nil
}

func parse(src string) (hclsyntax.Expression, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(src), "expression", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("invalid expression %q: %w", src, diags)
	}
	return expr, nil
}

// Evaluate computes the output column on the worker executor.
func (m *Modifier) Evaluate(_ context.Context, req pipeline.Request, app *pipeline.ModifierApplication, input pipeline.FlowState) tasks.Future[pipeline.FlowState] {
	src := m.Expression()
	return tasks.RunTask(app.Env().Workers, func(p tasks.Promise[pipeline.FlowState]) (pipeline.FlowState, error) {
		p.SetProgressText(fmt.Sprintf("Computing column '%s'", m.output))
		return m.apply(input, src, req.Time, p.SetProgressValue)
	})
}

// ValidityInterval limits the result to the requested time if the
// expression depends on it.
func (m *Modifier) ValidityInterval(req pipeline.Request, _ *pipeline.ModifierApplication) interval.Interval {
	expr, err := parse(m.Expression())
	if err != nil || !usesVariable(expr, timeVar) {
		return interval.Infinite()
	}
	return interval.Instant(req.Time)
}

func usesVariable(expr hclsyntax.Expression, name string) bool {
	for _, tr := range expr.Variables() {
		if tr.RootName() == name {
			return true
		}
	}
	return false
}

func (m *Modifier) apply(st pipeline.FlowState, src string, t interval.Time, progress func(int64) bool) (pipeline.FlowState, error) {
	expr, err := parse(src)
	if err != nil {
		return pipeline.FlowState{}, err
	}
	table, ok := st.Table(m.table)
	if !ok {
		return pipeline.FlowState{}, fmt.Errorf("input contains no table '%s'", m.table)
	}

	names := table.ColumnNames()
	columns := make([][]float64, len(names))
	for i, name := range names {
		columns[i], _ = table.Column(name)
	}
	attrs := make(map[string]cty.Value, st.Attributes.Len())
	for _, k := range st.Attributes.Keys() {
		attrs[k], _ = st.Attributes.Get(k)
	}

	vars := map[string]cty.Value{
		timeVar: cty.NumberIntVal(int64(t)),
		attrVar: cty.ObjectVal(attrs),
	}
	evalCtx := &hcl.EvalContext{Variables: vars, Functions: functions}
	results := make([]float64, table.Rows())
	for row := range results {
		if !progress(int64(row)) {
			return pipeline.FlowState{}, tasks.ErrCanceled
		}
		vars[rowVar] = cty.NumberIntVal(int64(row))
		for i, name := range names {
			vars[name] = cty.NumberFloatVal(columns[i][row])
		}
		v, diags := expr.Value(evalCtx)
		if diags.HasErrors() {
			return pipeline.FlowState{}, fmt.Errorf("row %d: %w", row, diags)
		}
		if results[row], err = toFloat(v); err != nil {
			return pipeline.FlowState{}, fmt.Errorf("row %d: %w", row, err)
		}
	}

	computed, err := table.WithColumn(m.output, results)
	if err != nil {
		return pipeline.FlowState{}, err
	}
	out := st.WithObject(computed)
	if usesVariable(expr, timeVar) {
		out.IntersectValidity(interval.Instant(t))
	}
	return out, nil
}

func toFloat(v cty.Value) (float64, error) {
	if v.IsNull() || !v.IsKnown() {
		return 0, fmt.Errorf("expression produced no value")
	}
	num, err := convert.Convert(v, cty.Number)
	if err != nil {
		return 0, fmt.Errorf("expression must produce a number, got %s", v.Type().FriendlyName())
	}
	var f float64
	if err := gocty.FromCtyValue(num, &f); err != nil {
		return 0, err
	}
	return f, nil
}
