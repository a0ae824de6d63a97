package saga

// Definition is the ordered, named list of steps for one saga type.
type Definition[D any] interface {
	SagaType() string
	Steps() []Step[D]
}

// Registry resolves saga types to definitions. It is built once at startup
// and injected into the Manager; registration is not safe after that.
type Registry[D any] struct {
	definitions map[string]Definition[D]
}

func NewRegistry[D any](defs ...Definition[D]) *Registry[D] {
	r := &Registry[D]{definitions: make(map[string]Definition[D], len(defs))}
	for _, def := range defs {
		r.definitions[def.SagaType()] = def
	}
	return r
}

func (r *Registry[D]) Find(sagaType string) (Definition[D], bool) {
	def, ok := r.definitions[sagaType]
	return def, ok
}

// findStep returns the named step of a definition, or nil.
func findStep[D any](def Definition[D], name string) Step[D] {
	for _, s := range def.Steps() {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// nextStep returns the first step, in definition order, whose name is not in
// completed. Selection is strictly sequential, no fan-out or branching. Nil
// means every step has completed.
func nextStep[D any](def Definition[D], completed []string) Step[D] {
	done := make(map[string]bool, len(completed))
	for _, name := range completed {
		done[name] = true
	}
	for _, s := range def.Steps() {
		if !done[s.Name()] {
			return s
		}
	}
	return nil
}
