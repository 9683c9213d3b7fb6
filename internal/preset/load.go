package preset

import (
	"fmt"
	"time"

	"github.com/ehr/dicom-tools/internal/anonymizer"
)

// Load maps a parsed YAML/JSON tree to the Document variant named by its
// version marker. Unknown keys are ignored.
func Load(tree map[string]any) (Document, error) {
	raw, present := tree["version"]
	v, err := resolveVersion(raw, present)
	if err != nil {
		return nil, err
	}

	cfg, err := configSection(tree)
	if err != nil {
		return nil, err
	}

	switch v {
	case Version10:
		return loadV10(cfg)
	case Version11:
		return loadV11(cfg)
	}
	return nil, &UnsupportedVersionError{Version: v, Supported: supportedVersions}
}

func configSection(tree map[string]any) (map[string]any, error) {
	raw, ok := tree["config"]
	if !ok {
		return nil, &ShapeError{Key: "config", Want: "required mapping is missing"}
	}
	if raw == nil {
		return map[string]any{}, nil
	}
	cfg, ok := asMapping(raw)
	if !ok {
		return nil, &ShapeError{Key: "config", Want: "a mapping", Got: describe(raw)}
	}
	return cfg, nil
}

func loadV10(cfg map[string]any) (*DocumentV10, error) {
	var (
		doc DocumentV10
		err error
	)
	if doc.PatientName, err = optional(cfg, anonymizer.FieldPatientName, parseName); err != nil {
		return nil, err
	}
	if doc.PatientBirthDay, err = optional(cfg, anonymizer.FieldPatientBirthDay, parseBirthDay); err != nil {
		return nil, err
	}
	if doc.PatientSex, err = optional(cfg, anonymizer.FieldPatientSex, parseSex); err != nil {
		return nil, err
	}
	if raw, ok := cfg[anonymizer.FieldRemoveTags]; ok {
		if doc.RemoveTags, err = parseTagList(raw); err != nil {
			return nil, err
		}
	}
	return &doc, nil
}

func loadV11(cfg map[string]any) (*DocumentV11, error) {
	var (
		doc DocumentV11
		err error
	)
	if doc.PatientName, err = action(cfg, anonymizer.FieldPatientName, parseName); err != nil {
		return nil, err
	}
	if doc.PatientBirthDay, err = action(cfg, anonymizer.FieldPatientBirthDay, parseBirthDay); err != nil {
		return nil, err
	}
	if doc.PatientSex, err = action(cfg, anonymizer.FieldPatientSex, parseSex); err != nil {
		return nil, err
	}
	doc.RemoveTags = []anonymizer.Address{}
	if raw, ok := cfg[anonymizer.FieldRemoveTags]; ok {
		if doc.RemoveTags, err = parseTagList(raw); err != nil {
			return nil, err
		}
	}
	return &doc, nil
}

// LoadFields reads the named fields of a 1.1-style config mapping. It is used
// for override objects that share the document encoding, such as the HTTP
// session API.
func LoadFields(cfg map[string]any) (*DocumentV11, error) {
	return loadV11(cfg)
}

// optional reads a 1.0 field: absent keys stay nil, present ones must parse.
func optional[T any](cfg map[string]any, key string, parse func(key string, raw any) (T, error)) (*T, error) {
	raw, ok := cfg[key]
	if !ok {
		return nil, nil
	}
	v, err := parse(key, raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// action reads a 1.1 field. A plain value means change; a mapping carries
// an explicit action and, for change, a value.
func action[T any](cfg map[string]any, key string, parse func(key string, raw any) (T, error)) (anonymizer.Action[T], error) {
	raw, ok := cfg[key]
	if !ok {
		return anonymizer.Keep[T](), nil
	}

	m, isMapping := asMapping(raw)
	if !isMapping {
		v, err := parse(key, raw)
		if err != nil {
			return anonymizer.Action[T]{}, err
		}
		return anonymizer.Change(v), nil
	}

	rawKind, ok := m["action"].(string)
	if !ok {
		return anonymizer.Action[T]{}, &ShapeError{Key: key + ".action", Want: "one of keep, change, remove", Got: describe(m["action"])}
	}
	kind, err := anonymizer.ParseActionKind(rawKind)
	if err != nil {
		return anonymizer.Action[T]{}, &ShapeError{Key: key + ".action", Want: "one of keep, change, remove", Got: fmt.Sprintf("%q", rawKind)}
	}

	rawValue, hasValue := m["value"]
	switch kind {
	case anonymizer.ActionChange:
		if !hasValue {
			return anonymizer.Action[T]{}, &ShapeError{Key: key + ".value", Want: "required when action is change"}
		}
		v, err := parse(key+".value", rawValue)
		if err != nil {
			return anonymizer.Action[T]{}, err
		}
		return anonymizer.Change(v), nil
	case anonymizer.ActionRemove:
		if hasValue {
			return anonymizer.Action[T]{}, &ShapeError{Key: key + ".value", Want: "not allowed when action is remove"}
		}
		return anonymizer.Remove[T](), nil
	default:
		if hasValue {
			return anonymizer.Action[T]{}, &ShapeError{Key: key + ".value", Want: "not allowed when action is keep"}
		}
		return anonymizer.Keep[T](), nil
	}
}

func parseName(key string, raw any) (string, error) {
	s, ok := raw.(string)
	if !ok {
		return "", &ShapeError{Key: key, Want: "a string", Got: describe(raw)}
	}
	return s, nil
}

func parseBirthDay(key string, raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, time.UTC), nil
	case string:
		t, err := anonymizer.ParseBirthDate(v)
		if err != nil {
			return time.Time{}, fmt.Errorf("config document key %q: %w", key, err)
		}
		return t, nil
	}
	return time.Time{}, &ShapeError{Key: key, Want: "a date string", Got: describe(raw)}
}

func parseSex(key string, raw any) (anonymizer.PatientSex, error) {
	s, ok := raw.(string)
	if !ok {
		return "", &ShapeError{Key: key, Want: "one of M, F, O", Got: describe(raw)}
	}
	sex, err := anonymizer.ParsePatientSex(s)
	if err != nil {
		return "", fmt.Errorf("config document key %q: %w", key, err)
	}
	return sex, nil
}

func parseTagList(raw any) ([]anonymizer.Address, error) {
	key := anonymizer.FieldRemoveTags
	items, ok := raw.([]any)
	if !ok {
		return nil, &ShapeError{Key: key, Want: "a list of tags", Got: describe(raw)}
	}
	out := make([]anonymizer.Address, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, &ShapeError{Key: fmt.Sprintf("%s[%d]", key, i), Want: "a tag string", Got: describe(item)}
		}
		addr, err := anonymizer.ParseAddress(s)
		if err != nil {
			return nil, fmt.Errorf("config document key %q: %w", fmt.Sprintf("%s[%d]", key, i), err)
		}
		out = append(out, addr)
	}
	return out, nil
}

// asMapping accepts both map flavours produced by YAML and JSON decoders.
func asMapping(raw any) (map[string]any, bool) {
	switch m := raw.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			ks, ok := k.(string)
			if !ok {
				ks = fmt.Sprint(k)
			}
			out[ks] = v
		}
		return out, true
	}
	return nil, false
}
