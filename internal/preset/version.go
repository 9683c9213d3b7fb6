package preset

import (
	"fmt"
	"strconv"

	"github.com/hashicorp/go-version"
)

var supportedVersions = []string{Version10, Version11}

// resolveVersion maps the raw version marker to one of the supported schema
// versions. Only the exact markers are accepted; "1", "1.0.0" or "v1.1" are
// errors. A marker that parses as a version newer than the latest supported
// one is reported as such.
func resolveVersion(raw any, present bool) (string, error) {
	if !present {
		return DefaultVersion, nil
	}

	var text string
	switch v := raw.(type) {
	case string:
		text = v
	case versionScalar:
		text = string(v)
	case int:
		text = strconv.Itoa(v)
	case float64:
		// JSON numbers lose their text; 1.10 arrives here as 1.1.
		text = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return "", &ShapeError{Key: "version", Want: "a string", Got: describe(raw)}
	}

	for _, s := range supportedVersions {
		if text == s {
			return s, nil
		}
	}
	return "", &UnsupportedVersionError{Version: text, Supported: supportedVersions, Newer: newerThanSupported(text)}
}

// newerThanSupported reports whether text parses as a version above every
// supported one.
func newerThanSupported(text string) bool {
	parsed, err := version.NewVersion(text)
	if err != nil {
		return false
	}
	latest := version.Must(version.NewVersion(supportedVersions[len(supportedVersions)-1]))
	return parsed.GreaterThan(latest)
}

// versionScalar is the literal text of an unquoted numeric version marker.
type versionScalar string

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "a string"
	case []any:
		return "a list"
	case map[string]any, map[any]any:
		return "a mapping"
	default:
		return fmt.Sprintf("%T", v)
	}
}
