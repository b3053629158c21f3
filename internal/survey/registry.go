package survey

import (
	"fmt"
)

// Registry is the immutable, process-wide catalogue of survey steps.
// Construct it once at start-up; a failed validity check is a configuration
// error and must abort the process, never surface at transition time.
type Registry struct {
	steps map[StepID]Definition
	order []StepID
	entry StepID
}

// NewRegistry builds a registry from an ordered step list and verifies the
// step graph: unique ids, known edge targets, no cycles, every step reachable
// from the entry, and COMPLETE as the single sink.
func NewRegistry(defs []Definition) (*Registry, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("survey: empty step catalogue")
	}

	steps := make(map[StepID]Definition, len(defs))
	order := make([]StepID, 0, len(defs))
	for _, def := range defs {
		if def.ID == "" || def.ID == StepComplete {
			return nil, fmt.Errorf("survey: invalid step id %q", def.ID)
		}
		if _, dup := steps[def.ID]; dup {
			return nil, fmt.Errorf("survey: duplicate step id %q", def.ID)
		}
		if def.AnswerKey == "" {
			return nil, fmt.Errorf("survey: step %q has no answer key", def.ID)
		}
		switch def.Kind {
		case KindChoice, KindMulti:
			if len(def.Options) == 0 {
				return nil, fmt.Errorf("survey: step %q of kind %q has no options", def.ID, def.Kind)
			}
		case KindText, KindContact:
			if def.Validate == nil {
				return nil, fmt.Errorf("survey: step %q of kind %q has no validator", def.ID, def.Kind)
			}
		default:
			return nil, fmt.Errorf("survey: step %q has unknown kind %q", def.ID, def.Kind)
		}
		steps[def.ID] = def
		order = append(order, def.ID)
	}

	r := &Registry{steps: steps, order: order, entry: order[0]}
	if err := r.check(); err != nil {
		return nil, err
	}
	return r, nil
}

// EntryStep returns the id of the initial step.
func (r *Registry) EntryStep() StepID {
	return r.entry
}

// Get looks up a step definition by id.
func (r *Registry) Get(id StepID) (Definition, bool) {
	def, ok := r.steps[id]
	return def, ok
}

// Steps returns step ids in catalogue order.
func (r *Registry) Steps() []StepID {
	return append([]StepID(nil), r.order...)
}

// Position returns the 1-based position of a step and the catalogue length,
// used by transports to render progress.
func (r *Registry) Position(id StepID) (int, int) {
	for i, s := range r.order {
		if s == id {
			return i + 1, len(r.order)
		}
	}
	return 0, len(r.order)
}

// check asserts the acyclic/single-sink invariant over all next edges.
func (r *Registry) check() error {
	for id, def := range r.steps {
		for _, target := range def.Next.Targets() {
			if target == StepComplete {
				continue
			}
			if _, ok := r.steps[target]; !ok {
				return fmt.Errorf("survey: step %q routes to unknown step %q", id, target)
			}
		}
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[StepID]int, len(r.steps))
	completeReachable := false

	var visit func(id StepID) error
	visit = func(id StepID) error {
		if id == StepComplete {
			completeReachable = true
			return nil
		}
		switch state[id] {
		case visiting:
			return fmt.Errorf("survey: step graph has a cycle through %q", id)
		case done:
			return nil
		}
		state[id] = visiting
		for _, target := range r.steps[id].Next.Targets() {
			if err := visit(target); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}

	if err := visit(r.entry); err != nil {
		return err
	}
	if !completeReachable {
		return fmt.Errorf("survey: terminal step not reachable from entry %q", r.entry)
	}
	for id := range r.steps {
		if state[id] != done {
			return fmt.Errorf("survey: step %q is unreachable from entry %q", id, r.entry)
		}
	}
	return nil
}
