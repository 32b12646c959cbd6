package queryengine

import "fmt"

var metadataFields = map[string]bool{
	"id": true, "created_at": true, "updated_at": true, "version": true,
}

// ValidateProjection enforces §4.7 step 9's construction-time rule:
// mixing 0 and 1 across non-metadata fields is a query-shape error.
func ValidateProjection(spec map[string]int) error {
	sawInclude, sawExclude := false, false
	for field, mode := range spec {
		if metadataFields[field] {
			continue
		}
		switch mode {
		case 1:
			sawInclude = true
		case 0:
			sawExclude = true
		default:
			return fmt.Errorf("queryengine: projection value for %q must be 0 or 1", field)
		}
	}
	if sawInclude && sawExclude {
		return fmt.Errorf("queryengine: projection mixes include and exclude modes")
	}
	return nil
}

// Project applies spec to doc. An empty spec is a no-op. Include mode
// (any field, metadata or not, mapped to 1) keeps only the named fields —
// reserved metadata fields are included only if explicitly named, even
// a projection naming nothing but metadata. Exclude mode drops fields
// mapped to 0 and keeps everything else, including metadata.
func Project(doc map[string]interface{}, spec map[string]int) map[string]interface{} {
	if len(spec) == 0 {
		return doc
	}

	includeMode := false
	for _, mode := range spec {
		if mode == 1 {
			includeMode = true
			break
		}
	}

	out := make(map[string]interface{})
	if includeMode {
		for field, mode := range spec {
			if mode != 1 {
				continue
			}
			if v, ok := doc[field]; ok {
				out[field] = v
			}
		}
		return out
	}

	for field, v := range doc {
		if mode, excluded := spec[field]; excluded && mode == 0 {
			continue
		}
		out[field] = v
	}
	return out
}
