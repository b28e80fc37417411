// Package depgraph answers which modules produce or consume which event
// types, and which modules can ever take part in a scan.
package depgraph

import (
	"sort"

	"footprint/internal/module"
)

// Resolver runs set queries over a fixed table of module descriptors
type Resolver struct {
	descs  []module.Descriptor
	byName map[string]module.Descriptor
}

// New builds a resolver. Later descriptors with a duplicate name replace
// earlier ones.
func New(descs []module.Descriptor) *Resolver {
	r := &Resolver{byName: make(map[string]module.Descriptor, len(descs))}
	for _, d := range descs {
		if d.Name == "" {
			continue
		}
		r.byName[d.Name] = d
	}
	for _, d := range r.byName {
		r.descs = append(r.descs, d)
	}
	sort.Slice(r.descs, func(i, j int) bool { return r.descs[i].Name < r.descs[j].Name })
	return r
}

// ModulesProducing returns modules whose produced types intersect events.
// A "*" in events matches every module; a module producing "*" matches any
// non-empty query.
func (r *Resolver) ModulesProducing(events []string) []string {
	return r.match(events, func(d module.Descriptor) []string { return d.Produced })
}

// ModulesConsuming returns modules whose watched types intersect events
func (r *Resolver) ModulesConsuming(events []string) []string {
	return r.match(events, func(d module.Descriptor) []string { return d.Watched })
}

func (r *Resolver) match(events []string, field func(module.Descriptor) []string) []string {
	if len(events) == 0 {
		return []string{}
	}
	want := toSet(events)
	all := want[module.Wildcard]

	set := make(map[string]bool)
	for _, d := range r.descs {
		if all {
			set[d.Name] = true
			continue
		}
		for _, et := range field(d) {
			if et == module.Wildcard || want[et] {
				set[d.Name] = true
				break
			}
		}
	}
	return sorted(set)
}

// EventsFromModules returns the union of produced types of the named modules.
// Unknown names are ignored.
func (r *Resolver) EventsFromModules(names []string) []string {
	return r.union(names, func(d module.Descriptor) []string { return d.Produced })
}

// EventsToModules returns the union of watched types of the named modules
func (r *Resolver) EventsToModules(names []string) []string {
	return r.union(names, func(d module.Descriptor) []string { return d.Watched })
}

func (r *Resolver) union(names []string, field func(module.Descriptor) []string) []string {
	set := make(map[string]bool)
	for _, n := range names {
		d, ok := r.byName[n]
		if !ok {
			continue
		}
		for _, et := range field(d) {
			set[et] = true
		}
	}
	return sorted(set)
}

// Closure is the result of a reachability walk
type Closure struct {
	Events  []string `json:"events" yaml:"events"`
	Modules []string `json:"modules" yaml:"modules"`
}

// HasModule reports whether name can receive an event in the closure
func (c Closure) HasModule(name string) bool {
	i := sort.SearchStrings(c.Modules, name)
	return i < len(c.Modules) && c.Modules[i] == name
}

// Reachable applies ModulesConsuming then EventsFromModules from seed until
// no new event type appears.
//
// A module producing "*" makes every type reachable, which in turn pulls in
// every module watching anything.
func (r *Resolver) Reachable(seed []string) Closure {
	events := toSet(seed)
	modules := make(map[string]bool)
	if events[module.Wildcard] {
		for _, d := range r.descs {
			modules[d.Name] = true
			for _, et := range d.Produced {
				events[et] = true
			}
		}
		return Closure{Events: sorted(events), Modules: sorted(modules)}
	}

	frontier := sorted(events)
	for len(frontier) > 0 {
		var next []string
		for _, name := range r.ModulesConsuming(frontier) {
			if modules[name] {
				continue
			}
			modules[name] = true
			d := r.byName[name]
			if contains(d.Produced, module.Wildcard) {
				for _, other := range r.descs {
					for _, et := range other.Watched {
						if et != module.Wildcard && !events[et] {
							events[et] = true
							next = append(next, et)
						}
					}
				}
				continue
			}
			for _, et := range d.Produced {
				if !events[et] {
					events[et] = true
					next = append(next, et)
				}
			}
		}
		frontier = next
	}

	return Closure{Events: sorted(events), Modules: sorted(modules)}
}

// Prune returns the modules that can never receive an event reachable from
// seed
func (r *Resolver) Prune(seed []string) []string {
	c := r.Reachable(seed)
	var out []string
	for _, d := range r.descs {
		if !c.HasModule(d.Name) {
			out = append(out, d.Name)
		}
	}
	sort.Strings(out)
	return out
}

func toSet(list []string) map[string]bool {
	set := make(map[string]bool, len(list))
	for _, v := range list {
		if v != "" {
			set[v] = true
		}
	}
	return set
}

func sorted(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
