// Package schema implements the write-boundary schema validator (§4.3):
// defaults, required fields, type checks, range/pattern/enum
// constraints, and custom predicates, plus a handful of built-in field
// templates.
package schema

// FieldType is one of the declared scalar/structural types from §3.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeObject  FieldType = "object"
	TypeArray   FieldType = "array"
	TypeDate    FieldType = "date"
	TypeBuffer  FieldType = "buffer"
)

// Predicate is a custom validator. It returns (true, "") when the value
// is acceptable, or (false, message) naming why it isn't.
type Predicate func(value interface{}) (bool, string)

// Field is one schema field descriptor (§3's "Schema field").
type Field struct {
	Type     FieldType
	Required bool

	// Default is either a literal value or a zero-arg producer func()
	// interface{}, materialized when the field is missing on insert.
	Default interface{}

	Unique bool
	Index  bool

	Min, Max *float64
	Pattern  string
	Enum     []interface{}

	// Ref is advisory only (§9(c)): the core never follows it.
	Ref string

	// Validate is an optional Go predicate, evaluated after the built-in
	// constraint checks.
	Validate Predicate

	// Rule is an optional CEL expression alternative to Validate,
	// compiled once and cached by the Validator (grounded on bundoc's
	// rules.RulesEngine program cache). The field's value under
	// validation is bound to the CEL variable `value`. If both Rule and Validate are
	// set, Rule runs first.
	Rule string

	// NestedSchema, when Type is TypeObject, is a JSON-Schema document
	// (draft-07 subset, as accepted by gojsonschema) applied to the
	// field's value for structured sub-document validation beyond the
	// scalar constraints above.
	NestedSchema string
}

// Schema is an unordered set of named field descriptors; the Validator
// visits fields in name order.
type Schema map[string]Field
