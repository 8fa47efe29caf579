package objpath

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind is the kind of object an Address points to.
type Kind int

const (
	KindModifier Kind = iota + 1
	KindGroup
	KindPipeline
	KindSource
	KindApplication
)

func (k Kind) String() string {
	switch k {
	case KindModifier:
		return "modifier"
	case KindGroup:
		return "group"
	case KindPipeline:
		return "pipeline"
	case KindSource:
		return "source"
	case KindApplication:
		return "apply"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Address identifies one object of a pipeline definition. For sources and
// applications Name is the name of the pipeline. Index is -1 unless Kind is
// KindApplication.
type Address struct {
	Kind  Kind
	Name  string
	Index int
}

// Modifier returns the address of a modifier definition.
func Modifier(name string) Address { return Address{Kind: KindModifier, Name: name, Index: -1} }

// Group returns the address of a modifier group.
func Group(name string) Address { return Address{Kind: KindGroup, Name: name, Index: -1} }

// Pipeline returns the address of a pipeline.
func Pipeline(name string) Address { return Address{Kind: KindPipeline, Name: name, Index: -1} }

// Source returns the address of the source of a pipeline.
func Source(pipeline string) Address { return Address{Kind: KindSource, Name: pipeline, Index: -1} }

// Application returns the address of the index-th modifier application of a
// pipeline.
func Application(pipeline string, index int) Address {
	return Address{Kind: KindApplication, Name: pipeline, Index: index}
}

// String returns the canonical path of the address.
func (a Address) String() string {
	switch a.Kind {
	case KindModifier, KindGroup, KindPipeline:
		return a.Kind.String() + "." + a.Name
	case KindSource:
		return "pipeline." + a.Name + ".source"
	case KindApplication:
		return fmt.Sprintf("pipeline.%s.apply[%d]", a.Name, a.Index)
	}
	return ""
}

// segmentRegex matches a single segment of a path, e.g. `name` or `name[1]`.
var segmentRegex = regexp.MustCompile(`^([a-zA-Z0-9_-]+)(?:\[(\d+)\])?$`)

type segment struct {
	name  string
	index int
}

func parseSegment(s string) (segment, error) {
	if s == "" {
		return segment{}, fmt.Errorf("path contains empty segment")
	}
	m := segmentRegex.FindStringSubmatch(s)
	if m == nil || m[1] == "-" {
		return segment{}, fmt.Errorf("invalid path segment %q", s)
	}
	seg := segment{name: m[1], index: -1}
	if m[2] != "" {
		i, err := strconv.Atoi(m[2])
		if err != nil {
			return segment{}, fmt.Errorf("invalid index in segment %q: %w", s, err)
		}
		seg.index = i
	}
	return seg, nil
}

// Parse parses the canonical path of an address.
func Parse(raw string) (Address, error) {
	if raw == "" {
		return Address{}, fmt.Errorf("address cannot be empty")
	}
	parts := strings.Split(raw, ".")
	segs := make([]segment, len(parts))
	for i, p := range parts {
		seg, err := parseSegment(p)
		if err != nil {
			return Address{}, fmt.Errorf("parsing address %q: %w", raw, err)
		}
		segs[i] = seg
	}
	for _, seg := range segs[:min(2, len(segs))] {
		if seg.index != -1 {
			return Address{}, fmt.Errorf("parsing address %q: unexpected index in %q", raw, seg.name)
		}
	}

	switch {
	case len(segs) == 2 && segs[0].name == "modifier":
		return Modifier(segs[1].name), nil
	case len(segs) == 2 && segs[0].name == "group":
		return Group(segs[1].name), nil
	case len(segs) == 2 && segs[0].name == "pipeline":
		return Pipeline(segs[1].name), nil
	case len(segs) == 3 && segs[0].name == "pipeline" && segs[2].name == "source" && segs[2].index == -1:
		return Source(segs[1].name), nil
	case len(segs) == 3 && segs[0].name == "pipeline" && segs[2].name == "apply" && segs[2].index != -1:
		return Application(segs[1].name, segs[2].index), nil
	}
	return Address{}, fmt.Errorf("parsing address %q: unknown object path", raw)
}
