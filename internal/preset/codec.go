package preset

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ehr/dicom-tools/internal/anonymizer"
)

const birthDayLayout = "2006-01-02"

// Decode parses a YAML or JSON document and loads it. source names the
// document in error messages.
func Decode(data []byte, source string) (Document, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, &LoadError{Source: source, Err: err}
	}
	var root any
	if len(node.Content) > 0 {
		if err := node.Content[0].Decode(&root); err != nil {
			return nil, &LoadError{Source: source, Err: err}
		}
	}
	if root == nil {
		return nil, &LoadError{Source: source, Err: errors.New("document is empty")}
	}
	tree, ok := asMapping(root)
	if !ok {
		return nil, &LoadError{Source: source, Err: fmt.Errorf("top level must be a mapping, got %s", describe(root))}
	}
	if text, ok := numericVersion(node.Content[0]); ok {
		tree["version"] = versionScalar(text)
	}
	return Load(tree)
}

// numericVersion returns the source text of an unquoted numeric version
// marker, which the generic decode would turn into a float.
func numericVersion(root *yaml.Node) (string, bool) {
	if root.Kind != yaml.MappingNode {
		return "", false
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		if key.Value != "version" || val.Kind != yaml.ScalarNode {
			continue
		}
		switch val.ShortTag() {
		case "!!int", "!!float":
			return val.Value, true
		}
	}
	return "", false
}

// LoadFile reads and decodes the document at path.
func LoadFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Source: path, Err: err}
	}
	return Decode(data, path)
}

type fileV10 struct {
	Version string    `yaml:"version"`
	Config  configV10 `yaml:"config"`
}

type configV10 struct {
	PatientName     *string  `yaml:"patient_name,omitempty"`
	PatientBirthDay *string  `yaml:"patient_birth_day,omitempty"`
	PatientSex      *string  `yaml:"patient_sex,omitempty"`
	RemoveTags      []string `yaml:"remove_tags,omitempty"`
}

type fileV11 struct {
	Version string    `yaml:"version"`
	Config  configV11 `yaml:"config"`
}

type configV11 struct {
	PatientName     any      `yaml:"patient_name,omitempty"`
	PatientBirthDay any      `yaml:"patient_birth_day,omitempty"`
	PatientSex      any      `yaml:"patient_sex,omitempty"`
	RemoveTags      []string `yaml:"remove_tags"`
}

// Encode renders d as YAML in its own schema version.
func Encode(d Document) ([]byte, error) {
	var out any
	switch doc := d.(type) {
	case *DocumentV10:
		cfg := configV10{
			PatientName: doc.PatientName,
			RemoveTags:  tagStrings(doc.RemoveTags),
		}
		if doc.PatientBirthDay != nil {
			s := doc.PatientBirthDay.Format(birthDayLayout)
			cfg.PatientBirthDay = &s
		}
		if doc.PatientSex != nil {
			s := doc.PatientSex.String()
			cfg.PatientSex = &s
		}
		out = fileV10{Version: Version10, Config: cfg}
	case *DocumentV11:
		out = fileV11{Version: Version11, Config: configV11{
			PatientName:     encodeAction(doc.PatientName, func(s string) string { return s }),
			PatientBirthDay: encodeAction(doc.PatientBirthDay, func(t time.Time) string { return t.Format(birthDayLayout) }),
			PatientSex:      encodeAction(doc.PatientSex, anonymizer.PatientSex.String),
			RemoveTags:      tagStrings(doc.RemoveTags),
		}}
	default:
		return nil, fmt.Errorf("encode config document: unsupported type %T", d)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return nil, fmt.Errorf("encode config document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode config document: %w", err)
	}
	return buf.Bytes(), nil
}

// encodeAction renders Change as a plain scalar, Remove as an explicit
// action mapping and Keep as an absent key.
func encodeAction[T any](a anonymizer.Action[T], text func(T) string) any {
	switch a.Kind() {
	case anonymizer.ActionChange:
		v, _ := a.Value()
		return text(v)
	case anonymizer.ActionRemove:
		return map[string]string{"action": anonymizer.ActionRemove.String()}
	}
	return nil
}

func tagStrings(addrs []anonymizer.Address) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return out
}
