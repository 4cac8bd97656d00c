package variables

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInterpolate(t *testing.T) {
	bag := NewBag()
	bag[ScopeSession]["name"] = "Ada"
	bag[ScopeUser]["score"] = 42

	cases := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"Hello {{name}}!", "Hello Ada!"},
		{"Score: {{ score }}", "Score: 42"},
		{"{{name}} and {{name}}", "Ada and Ada"},
		{"gone {{missing}} gone", "gone  gone"},
		{"not a {placeholder}", "not a {placeholder}"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, Interpolate(tc.in, bag), tc.in)
	}
}
