package runtime

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ResolvePath evaluates a "$.field.0.nested" style path against value,
// stripping the leading "$." (or bare "$") root marker before delegating
// to gjson's dot path syntax, where array indices are dot segments
// ("emails.1"); bracket indices such as "emails[1]" are not supported.
func ResolvePath(value any, path string) (any, error) {
	expr := strings.TrimPrefix(path, "$")
	expr = strings.TrimPrefix(expr, ".")
	if expr == "" {
		return value, nil
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value for path resolution: %w", err)
	}

	result := gjson.GetBytes(raw, expr)
	if !result.Exists() {
		return nil, fmt.Errorf("path %q did not match any value", path)
	}

	return result.Value(), nil
}
