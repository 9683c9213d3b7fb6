package anonymizer

import (
	"fmt"

	"github.com/goccy/go-json"
)

// ActionKind enumerates the three things an anonymization run can do to a
// field.
type ActionKind uint8

const (
	// ActionKeep leaves the field untouched. It is the zero value.
	ActionKeep ActionKind = iota
	// ActionChange overwrites the field with a new value.
	ActionChange
	// ActionRemove deletes the field.
	ActionRemove
)

func (k ActionKind) String() string {
	switch k {
	case ActionKeep:
		return "keep"
	case ActionChange:
		return "change"
	case ActionRemove:
		return "remove"
	default:
		return fmt.Sprintf("ActionKind(%d)", uint8(k))
	}
}

// ParseActionKind is the inverse of ActionKind.String.
func ParseActionKind(s string) (ActionKind, error) {
	switch s {
	case "keep":
		return ActionKeep, nil
	case "change":
		return ActionChange, nil
	case "remove":
		return ActionRemove, nil
	}
	return ActionKeep, fmt.Errorf("unknown action %q (want keep, change or remove)", s)
}

func (k ActionKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *ActionKind) UnmarshalText(text []byte) error {
	parsed, err := ParseActionKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Action is a tri-state instruction for a field holding values of type T.
// The zero value is Keep.
type Action[T any] struct {
	kind  ActionKind
	value T
}

// Keep returns the no-op action.
func Keep[T any]() Action[T] { return Action[T]{} }

// Change returns an action that overwrites the field with v.
func Change[T any](v T) Action[T] { return Action[T]{kind: ActionChange, value: v} }

// Remove returns an action that deletes the field.
func Remove[T any]() Action[T] { return Action[T]{kind: ActionRemove} }

// FromPtr builds an action from an optional value: nil is Keep, anything else
// is Change.
func FromPtr[T any](v *T) Action[T] {
	if v == nil {
		return Keep[T]()
	}
	return Change(*v)
}

// Map transforms the payload of a Change action and leaves Keep and Remove
// untouched.
func Map[T, U any](a Action[T], f func(T) U) Action[U] {
	switch a.kind {
	case ActionChange:
		return Change(f(a.value))
	case ActionRemove:
		return Remove[U]()
	default:
		return Keep[U]()
	}
}

// Kind reports which variant a holds.
func (a Action[T]) Kind() ActionKind { return a.kind }

// IsKeep reports whether a is the no-op action.
func (a Action[T]) IsKeep() bool { return a.kind == ActionKeep }

// Value returns the Change payload. ok is false for Keep and Remove.
func (a Action[T]) Value() (v T, ok bool) {
	if a.kind != ActionChange {
		return v, false
	}
	return a.value, true
}

// Ptr converts a back to an optional value. This is lossy: Keep and Remove
// both come back as nil.
func (a Action[T]) Ptr() *T {
	if a.kind != ActionChange {
		return nil
	}
	v := a.value
	return &v
}

func (a Action[T]) String() string {
	if a.kind == ActionChange {
		return fmt.Sprintf("change(%v)", a.value)
	}
	return a.kind.String()
}

type actionJSON[T any] struct {
	Action string `json:"action"`
	Value  *T     `json:"value,omitempty"`
}

// MarshalJSON renders {"action":"change","value":...}, {"action":"keep"} or
// {"action":"remove"}.
func (a Action[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(actionJSON[T]{Action: a.kind.String(), Value: a.Ptr()})
}

// UnmarshalJSON accepts the form produced by MarshalJSON.
func (a *Action[T]) UnmarshalJSON(data []byte) error {
	var raw actionJSON[T]
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	kind, err := ParseActionKind(raw.Action)
	if err != nil {
		return err
	}
	switch kind {
	case ActionChange:
		if raw.Value == nil {
			return fmt.Errorf("action change requires a value")
		}
		*a = Change(*raw.Value)
	case ActionRemove:
		*a = Remove[T]()
	default:
		*a = Keep[T]()
	}
	return nil
}
