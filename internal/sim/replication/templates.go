package replication

import "sort"

// Template holds the reference attributes replacement items are cloned from.
type Template struct {
	Kind               string  `json:"kind"`
	ReferenceName      string  `json:"reference_name"`
	Temperature        float64 `json:"temperature"`
	ContaminationIdx   uint8   `json:"contamination_idx"`
	ContaminationCount int     `json:"contamination_count"`
}

// TemplateOf captures the current attributes of it.
func TemplateOf(it Item) Template {
	idx, count := it.Contamination()
	return Template{
		Kind:               it.Kind(),
		ReferenceName:      it.Name(),
		Temperature:        it.Temperature(),
		ContaminationIdx:   idx,
		ContaminationCount: count,
	}
}

// Registry maps container id -> kind -> template. It is never persisted; it is
// rebuilt from live contents whenever a replicating container is found without
// templates.
type Registry struct {
	byContainer map[string]map[string]Template
}

func NewRegistry() *Registry {
	return &Registry{byContainer: map[string]map[string]Template{}}
}

// Capture registers it's kind for c unless a template for that kind already
// exists. It reports whether a new template was added.
func (r *Registry) Capture(c Container, it Item) bool {
	if c == nil || it == nil {
		return false
	}
	kind := it.Kind()
	if kind == "" {
		return false
	}
	m := r.byContainer[c.ID()]
	if m == nil {
		m = map[string]Template{}
		r.byContainer[c.ID()] = m
	}
	if _, ok := m[kind]; ok {
		return false
	}
	m[kind] = TemplateOf(it)
	return true
}

func (r *Registry) Get(containerID, kind string) (Template, bool) {
	t, ok := r.byContainer[containerID][kind]
	return t, ok
}

func (r *Registry) Len(containerID string) int {
	return len(r.byContainer[containerID])
}

// Templates returns the container's templates sorted by kind.
func (r *Registry) Templates(containerID string) []Template {
	m := r.byContainer[containerID]
	if len(m) == 0 {
		return nil
	}
	out := make([]Template, 0, len(m))
	for _, t := range m {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// EnsurePopulated rebuilds templates for a replicating container that lost them
// (reload) while still holding items. It reports whether a rebuild ran.
func (r *Registry) EnsurePopulated(c Container) bool {
	if c == nil || !c.Replicating() || r.Len(c.ID()) > 0 {
		return false
	}
	items := c.Items()
	if len(items) == 0 {
		return false
	}
	for _, it := range items {
		r.Capture(c, it)
	}
	return true
}

func (r *Registry) Clear(containerID string) {
	delete(r.byContainer, containerID)
}

// ClearAll forgets every container's templates, e.g. before a state reload.
func (r *Registry) ClearAll() {
	r.byContainer = map[string]map[string]Template{}
}
