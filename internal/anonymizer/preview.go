package anonymizer

// FieldChange describes the effect a plan would have on one address.
type FieldChange struct {
	Address Address    `json:"address"`
	Action  ActionKind `json:"action"`
	Before  *Value     `json:"before,omitempty"`
	After   *Value     `json:"after,omitempty"`
}

// Preview reports, without modifying store, what Apply would do. Entries
// follow the order Apply uses; Keep actions are omitted. Before is the value
// the address holds when Apply reaches the entry, so a removal listed after a
// change of the same field reports the changed value.
func Preview(plan Plan, store Store) ([]FieldChange, error) {
	p := previewer{store: store, pending: map[Address]*Value{}}
	var out []FieldChange
	for _, n := range namedSteps(plan) {
		if n.action.IsKeep() {
			continue
		}
		fc, err := p.step(n.addr, n.action.Kind(), n.action.Ptr())
		if err != nil {
			return nil, err
		}
		out = append(out, fc)
	}
	for _, addr := range plan.RemoveTags {
		fc, err := p.step(addr, ActionRemove, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, fc)
	}
	return out, nil
}

// previewer tracks what earlier steps would have written. A nil pending
// value marks a removed address.
type previewer struct {
	store   Store
	pending map[Address]*Value
}

func (p *previewer) step(addr Address, kind ActionKind, after *Value) (FieldChange, error) {
	fc := FieldChange{Address: addr, Action: kind, After: after}
	if v, ok := p.pending[addr]; ok {
		fc.Before = v
	} else {
		before, ok, err := p.store.Get(addr)
		if err != nil {
			return FieldChange{}, &StoreError{Op: "get", Address: addr, Err: err}
		}
		if ok {
			fc.Before = &before
		}
	}
	p.pending[addr] = after
	return fc, nil
}
