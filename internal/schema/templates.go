package schema

// emailPattern, urlPattern, phonePattern and uuidPattern back the
// built-in field templates; they're plain descriptors, not special
// cased by the validator (§4.3: "the validator does not special-case
// them").
var (
	emailPattern = `^[^\s@]+@[^\s@]+\.[^\s@]+$`
	urlPattern   = `^https?://[^\s]+$`
	phonePattern = `^\+?[0-9\-() ]{7,20}$`
	uuidPattern  = `^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`
)

// Email returns a string-with-email-pattern field template. The field
// is not marked Required.
func Email() Field {
	return Field{Type: TypeString, Pattern: emailPattern}
}

// URL returns a string field constrained to http(s) URLs.
func URL() Field {
	return Field{Type: TypeString, Pattern: urlPattern}
}

// Phone returns a loosely-patterned phone number field.
func Phone() Field {
	return Field{Type: TypeString, Pattern: phonePattern}
}

// UUID returns a string field constrained to canonical UUID form.
func UUID() Field {
	return Field{Type: TypeString, Pattern: uuidPattern}
}

// BoundedString returns a string field with an inclusive length range,
// expressed via Min/Max against the string's rune count.
func BoundedString(min, max float64) Field {
	return Field{Type: TypeString, Min: &min, Max: &max}
}

// BoundedNumber returns a number field with an inclusive value range.
func BoundedNumber(min, max float64) Field {
	return Field{Type: TypeNumber, Min: &min, Max: &max}
}
