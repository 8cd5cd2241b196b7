package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInterpolate(t *testing.T) {
	context := map[string]any{
		"name":        "Akiko",
		"total_spent": 1250.5,
		"vip":         true,
	}

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"single placeholder", "Hi {{name}}!", "Hi Akiko!"},
		{"numeric value", "You spent {{total_spent}} yen", "You spent 1250.5 yen"},
		{"boolean value", "vip={{vip}}", "vip=true"},
		{"whitespace inside braces", "Hi {{ name }}!", "Hi Akiko!"},
		{"repeated placeholder", "{{name}} {{name}}", "Akiko Akiko"},
		{"no placeholders", "plain text", "plain text"},
		{"empty template", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Interpolate(tt.template, context))
		})
	}
}

func TestInterpolate_MissingKeyLeftLiteral(t *testing.T) {
	context := map[string]any{"name": "Akiko"}

	got := Interpolate("Hi {{name}}, your plan is {{plan_name}}", context)

	assert.Equal(t, "Hi Akiko, your plan is {{plan_name}}", got)
}

func TestInterpolate_EmptyContext(t *testing.T) {
	assert.Equal(t, "Hi {{name}}", Interpolate("Hi {{name}}", nil))
	assert.Equal(t, "Hi {{name}}", Interpolate("Hi {{name}}", map[string]any{}))
}

func TestInterpolate_NilValue(t *testing.T) {
	got := Interpolate("value: {{missing}}", map[string]any{"missing": nil})

	assert.Equal(t, "value: ", got)
}
