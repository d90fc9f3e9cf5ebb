package module

import (
	"fmt"
	"sort"
)

// LoadOrder sorts descriptors so that every module comes after its hard and
// soft dependencies. Dependencies outside the given set are ignored; the
// Manager rejects those at start time. Unload in the reverse order.
func LoadOrder(descs []Descriptor) ([]Descriptor, error) {
	return sortDescriptors(descs, func(d Descriptor) []string {
		return append(cloneStrings(d.Dependencies), d.SoftDependencies...)
	})
}

// StartOrder sorts descriptors so that every module comes after its hard
// dependencies. Stop in the reverse order.
func StartOrder(descs []Descriptor) ([]Descriptor, error) {
	return sortDescriptors(descs, func(d Descriptor) []string {
		return d.Dependencies
	})
}

// Reverse returns descs in reverse order without modifying the input.
func Reverse(descs []Descriptor) []Descriptor {
	out := make([]Descriptor, len(descs))
	for i, d := range descs {
		out[len(descs)-1-i] = d
	}
	return out
}

// Descriptors collects the descriptors of mods.
func Descriptors(mods []*Module) []Descriptor {
	out := make([]Descriptor, 0, len(mods))
	for _, mod := range mods {
		out = append(out, mod.Descriptor())
	}
	return out
}

func sortDescriptors(descs []Descriptor, edges func(Descriptor) []string) ([]Descriptor, error) {
	byName := make(map[string]Descriptor, len(descs))
	names := make([]string, 0, len(descs))
	for _, d := range descs {
		if _, dup := byName[d.Name]; dup {
			return nil, fmt.Errorf("module: duplicate module name %s", d.Name)
		}
		byName[d.Name] = d
		names = append(names, d.Name)
	}
	sort.Strings(names)

	const (
		unvisited = iota
		visiting
		done
	)
	marks := make(map[string]int, len(names))
	ordered := make([]Descriptor, 0, len(names))
	var stack []string
	var visit func(string) error
	visit = func(name string) error {
		switch marks[name] {
		case done:
			return nil
		case visiting:
			return &CycleError{Modules: cyclePath(stack, name)}
		}
		marks[name] = visiting
		stack = append(stack, name)
		deps := append([]string(nil), edges(byName[name])...)
		sort.Strings(deps)
		for _, dep := range deps {
			if _, known := byName[dep]; !known {
				continue
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		marks[name] = done
		ordered = append(ordered, byName[name])
		return nil
	}
	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}

func cyclePath(stack []string, repeated string) []string {
	for i, name := range stack {
		if name == repeated {
			return append(append([]string(nil), stack[i:]...), repeated)
		}
	}
	return []string{repeated}
}
