// Package template substitutes {{field}} placeholders in action payloads
// using an enrollment's context bag.
package template

import (
	"fmt"
	"regexp"
	"strconv"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.]+)\s*\}\}`)

// Interpolate replaces every {{key}} occurrence with the stringified context
// value. A key absent from context is left as the literal placeholder so
// authors can spot missing bindings in delivered copy.
func Interpolate(template string, context map[string]any) string {
	if template == "" || len(context) == 0 {
		return template
	}

	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]

		value, ok := context[key]
		if !ok {
			return match
		}

		return stringify(value)
	})
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}
