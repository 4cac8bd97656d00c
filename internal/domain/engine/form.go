package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/botforgehq/botforge-go/internal/domain/entities/flow"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 ()-]{5,19}$`)
)

// formTempKey is the session-scoped holding slot for in-progress form
// answers; they are promoted to the configured scope only on completion.
func formTempKey(nodeID string) string {
	return "_form_" + nodeID
}

// validateFieldInput checks one answer against the field's type. It returns
// the value to store (numbers are stored as float64) or an error describing
// the rejection for the retry prompt.
func validateFieldInput(field flow.FormField, input string) (any, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		if field.Required {
			return nil, fmt.Errorf("field %s is required", field.Name)
		}
		return "", nil
	}

	switch field.Type {
	case flow.FieldNumber:
		n, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, fmt.Errorf("field %s expects a number", field.Name)
		}
		return n, nil
	case flow.FieldEmail:
		if !emailPattern.MatchString(trimmed) {
			return nil, fmt.Errorf("field %s expects an email address", field.Name)
		}
	case flow.FieldPhone:
		if !phonePattern.MatchString(trimmed) {
			return nil, fmt.Errorf("field %s expects a phone number", field.Name)
		}
	case flow.FieldRegex:
		re, err := regexp.Compile(field.Validation)
		if err != nil {
			return nil, fmt.Errorf("field %s has an invalid validation pattern", field.Name)
		}
		if !re.MatchString(trimmed) {
			return nil, fmt.Errorf("field %s does not match the expected format", field.Name)
		}
	}
	return trimmed, nil
}
