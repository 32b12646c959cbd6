package schema

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
)

// Mode selects how violations are handled (§4.3).
type Mode string

const (
	ModeStrict Mode = "strict"
	ModeWarn   Mode = "warn"
	ModeIgnore Mode = "ignore"
)

// ViolationError reports every constraint a document failed, in field
// order, for the caller to classify as a schema error (§7).
type ViolationError struct {
	Violations []string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("schema: %d violation(s): %v", len(e.Violations), e.Violations)
}

// Validator enforces a Schema at the write boundary.
type Validator struct {
	schema Schema
	mode   Mode
	rules  *RuleEngine
	nested map[string]*gojsonschema.Schema
	log    zerolog.Logger
}

// New builds a validator for schema under mode. A nil/zero logger
// discards warn-mode messages.
func New(s Schema, mode Mode, log zerolog.Logger) (*Validator, error) {
	if mode == "" {
		mode = ModeStrict
	}
	rules, err := NewRuleEngine()
	if err != nil {
		return nil, err
	}

	v := &Validator{schema: s, mode: mode, rules: rules, nested: make(map[string]*gojsonschema.Schema), log: log}
	for name, field := range s {
		if field.Type != TypeObject || field.NestedSchema == "" {
			continue
		}
		loader := gojsonschema.NewStringLoader(field.NestedSchema)
		compiled, err := gojsonschema.NewSchema(loader)
		if err != nil {
			return nil, fmt.Errorf("schema: field %q: invalid nested json schema: %w", name, err)
		}
		v.nested[name] = compiled
	}
	return v, nil
}

// Apply runs the five validation steps of §4.3 against doc, mutating it
// in place to fill in defaults. In ModeIgnore, only defaults and the
// required check run.
func (v *Validator) Apply(doc map[string]interface{}) error {
	v.applyDefaults(doc)

	var violations []string
	var requiredViolations []string
	for _, name := range v.orderedFields() {
		field := v.schema[name]
		val, present := doc[name]

		if field.Required && !present {
			msg := fmt.Sprintf("%q is required", name)
			violations = append(violations, msg)
			requiredViolations = append(requiredViolations, msg)
			continue
		}
		if !present {
			continue
		}
		if v.mode == ModeIgnore {
			continue
		}

		if msg, ok := checkType(name, field.Type, val); !ok {
			violations = append(violations, msg)
			continue
		}
		if msgs := checkConstraints(name, field, val); len(msgs) > 0 {
			violations = append(violations, msgs...)
		}
		if schema, ok := v.nested[name]; ok {
			if msg, ok := checkNested(name, schema, val); !ok {
				violations = append(violations, msg)
			}
		}
		if field.Rule != "" {
			ok, err := v.rules.Evaluate(field.Rule, val)
			if err != nil {
				violations = append(violations, fmt.Sprintf("%q: rule error: %v", name, err))
			} else if !ok {
				violations = append(violations, fmt.Sprintf("%q failed rule %q", name, field.Rule))
			}
		}
		if field.Validate != nil {
			if ok, msg := field.Validate(val); !ok {
				if msg == "" {
					msg = "failed custom validation"
				}
				violations = append(violations, fmt.Sprintf("%q: %s", name, msg))
			}
		}
	}

	if len(violations) == 0 {
		return nil
	}

	switch v.mode {
	case ModeStrict:
		return &ViolationError{Violations: violations}
	case ModeWarn:
		v.log.Warn().Strs("violations", violations).Msg("schema validation warnings")
		return nil
	default: // ModeIgnore: required-field violations still surface
		if len(requiredViolations) > 0 {
			return &ViolationError{Violations: requiredViolations}
		}
		return nil
	}
}

func (v *Validator) orderedFields() []string {
	names := make([]string, 0, len(v.schema))
	for n := range v.schema {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (v *Validator) applyDefaults(doc map[string]interface{}) {
	for name, field := range v.schema {
		if _, present := doc[name]; present || field.Default == nil {
			continue
		}
		if producer, ok := field.Default.(func() interface{}); ok {
			doc[name] = producer()
		} else {
			doc[name] = field.Default
		}
	}
}

func checkType(name string, t FieldType, val interface{}) (string, bool) {
	ok := false
	switch t {
	case TypeString:
		_, ok = val.(string)
	case TypeNumber:
		_, ok = toFloat(val)
	case TypeBoolean:
		_, ok = val.(bool)
	case TypeObject:
		_, isMap := val.(map[string]interface{})
		ok = isMap
	case TypeArray:
		_, ok = val.([]interface{})
	case TypeDate:
		_, isStr := val.(string)
		ok = isStr
	case TypeBuffer:
		_, isStr := val.(string)
		ok = isStr
	default:
		ok = true
	}
	if !ok {
		return fmt.Sprintf("%q: expected type %s", name, t), false
	}
	return "", true
}

func checkConstraints(name string, field Field, val interface{}) []string {
	var msgs []string

	if field.Min != nil || field.Max != nil {
		size, ok := sizeOf(val)
		if ok {
			if field.Min != nil && size < *field.Min {
				msgs = append(msgs, fmt.Sprintf("%q: below minimum %v", name, *field.Min))
			}
			if field.Max != nil && size > *field.Max {
				msgs = append(msgs, fmt.Sprintf("%q: above maximum %v", name, *field.Max))
			}
		}
	}

	if field.Pattern != "" {
		if s, ok := val.(string); ok {
			if re, err := regexp.Compile(field.Pattern); err == nil && !re.MatchString(s) {
				msgs = append(msgs, fmt.Sprintf("%q: does not match pattern %q", name, field.Pattern))
			}
		}
	}

	if len(field.Enum) > 0 {
		found := false
		for _, allowed := range field.Enum {
			if fmt.Sprintf("%v", allowed) == fmt.Sprintf("%v", val) {
				found = true
				break
			}
		}
		if !found {
			msgs = append(msgs, fmt.Sprintf("%q: not one of allowed values %v", name, field.Enum))
		}
	}

	return msgs
}

func checkNested(name string, compiled *gojsonschema.Schema, val interface{}) (string, bool) {
	result, err := compiled.Validate(gojsonschema.NewGoLoader(val))
	if err != nil {
		return fmt.Sprintf("%q: nested schema error: %v", name, err), false
	}
	if !result.Valid() {
		return fmt.Sprintf("%q: nested schema violated: %v", name, result.Errors()), false
	}
	return "", true
}

func sizeOf(val interface{}) (float64, bool) {
	if f, ok := toFloat(val); ok {
		return f, true
	}
	if s, ok := val.(string); ok {
		return float64(len([]rune(s))), true
	}
	if arr, ok := val.([]interface{}); ok {
		return float64(len(arr)), true
	}
	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
