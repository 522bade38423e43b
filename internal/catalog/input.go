package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrInvalidInput marks operation input that failed validation.
var ErrInvalidInput = errors.New("invalid operation input")

// ValidationError lists every problem found in one operation input.
type ValidationError struct {
	Operation string
	Problems  []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input for %s: %s", e.Operation, strings.Join(e.Problems, "; "))
}

// Unwrap lets callers match ErrInvalidInput.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// Normalize coerces loosely typed model input toward the declared schema:
// numeric strings become numbers, numbers become strings for string params,
// strings are trimmed, enum values are matched case-insensitively, and empty
// or null values are treated as absent. Unknown fields are dropped and
// reported as warnings.
func (c *Catalog) Normalize(name string, raw json.RawMessage) (map[string]any, []string, error) {
	e, ok := c.byName[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	input := map[string]any{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		decoder := json.NewDecoder(bytes.NewReader(trimmed))
		decoder.UseNumber()
		if err := decoder.Decode(&input); err != nil {
			return nil, nil, &ValidationError{Operation: name, Problems: []string{"input must be a JSON object"}}
		}
	}

	out := make(map[string]any, len(input))
	var warnings []string
	for key, value := range input {
		param, ok := e.def.Param(key)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("ignored unknown parameter %q", key))
			continue
		}
		if normalized, present := normalizeValue(param, value); present {
			out[key] = normalized
		}
	}
	sort.Strings(warnings)
	return out, warnings, nil
}

func normalizeValue(p Param, value any) (any, bool) {
	switch v := value.(type) {
	case nil:
		return nil, false
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, false
		}
		switch p.Type {
		case TypeNumber:
			if n, err := strconv.ParseFloat(s, 64); err == nil {
				return n, true
			}
			return s, true
		case TypeEnum:
			for _, allowed := range p.AllowedValues {
				if strings.EqualFold(allowed, s) {
					return allowed, true
				}
			}
			return s, true
		default:
			return s, true
		}
	case json.Number:
		if p.Type == TypeNumber {
			if n, err := v.Float64(); err == nil {
				return n, true
			}
		}
		return v.String(), true
	case bool:
		if p.Type == TypeString {
			return strconv.FormatBool(v), true
		}
		return v, true
	default:
		return v, true
	}
}

// Validate checks normalized input against the operation's JSON Schema.
func (c *Catalog) Validate(name string, input map[string]any) error {
	e, ok := c.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if input == nil {
		input = map[string]any{}
	}

	// Round-trip so the validator sees plain JSON values.
	payload, err := json.Marshal(input)
	if err != nil {
		return &ValidationError{Operation: name, Problems: []string{err.Error()}}
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return &ValidationError{Operation: name, Problems: []string{err.Error()}}
	}

	if err := e.schema.Validate(decoded); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return &ValidationError{Operation: name, Problems: flattenProblems(verr)}
		}
		return &ValidationError{Operation: name, Problems: []string{err.Error()}}
	}
	return nil
}

func flattenProblems(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		location := strings.TrimPrefix(verr.InstanceLocation, "/")
		if location == "" {
			return []string{verr.Message}
		}
		return []string{location + ": " + verr.Message}
	}
	var problems []string
	for _, cause := range verr.Causes {
		problems = append(problems, flattenProblems(cause)...)
	}
	return problems
}

// Decode normalizes and validates raw input, then decodes it into dst.
// The returned warnings describe dropped fields.
func (c *Catalog) Decode(name string, raw json.RawMessage, dst any) ([]string, error) {
	input, warnings, err := c.Normalize(name, raw)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(name, input); err != nil {
		return warnings, err
	}
	payload, err := json.Marshal(input)
	if err != nil {
		return warnings, &ValidationError{Operation: name, Problems: []string{err.Error()}}
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return warnings, &ValidationError{Operation: name, Problems: []string{err.Error()}}
	}
	return warnings, nil
}
