package pipeline

import "github.com/specialistvlad/ovipipe/internal/refgraph"

var (
	groupEnabledField = refgraph.FieldDescriptor{Name: "enabled", ChangeEvent: refgraph.TargetEnabledOrDisabled}
	groupTitleField   = refgraph.FieldDescriptor{Name: "title", Flags: refgraph.NoChangeMessage, ChangeEvent: refgraph.TitleChanged}
)

// ModifierGroup enables or disables several modifier applications at once.
// A group is owned by its members and deletes itself when the last one
// leaves.
type ModifierGroup struct {
	refgraph.Target
	enabled refgraph.Property[bool]
	title   refgraph.Property[string]
}

// NewModifierGroup creates an enabled group.
func NewModifierGroup(env *Env, title string) *ModifierGroup {
	g := &ModifierGroup{}
	g.enabled.Init(&groupEnabledField, true)
	g.title.Init(&groupTitleField, title)
	env.Graph.Add(g)
	return g
}

// TypeName names the type in logs.
func (g *ModifierGroup) TypeName() string { return "ModifierGroup" }

// Title returns the display title.
func (g *ModifierGroup) Title() string { return g.title.Get() }

// SetTitle changes the display title.
func (g *ModifierGroup) SetTitle(title string) { g.title.Set(g, title) }

// IsEnabled reports whether the members of the group are active.
func (g *ModifierGroup) IsEnabled() bool { return g.enabled.Get() }

// SetEnabled switches all members on or off.
func (g *ModifierGroup) SetEnabled(enabled bool) { g.enabled.Set(g, enabled) }

// Members returns the modifier applications in the group.
func (g *ModifierGroup) Members() []*ModifierApplication {
	var apps []*ModifierApplication
	for _, dep := range g.Dependents() {
		if app, ok := dep.(*ModifierApplication); ok {
			apps = append(apps, app)
		}
	}
	return apps
}
