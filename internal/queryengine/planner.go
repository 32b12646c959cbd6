package queryengine

import "github.com/kartikbazzad/nubodb/internal/index"

// resolveCandidates implements §4.7 step 3. It returns the intersected
// candidate id set, whether any field contributed an index (so the
// caller should trust the candidate set instead of full-scanning), and
// whether that set is definitely empty.
func resolveCandidates(filter *Filter, catalog *index.Catalog) (ids []string, used bool, empty bool) {
	grouped := make(map[string][]FieldCondition)
	var order []string
	for _, c := range filter.TopLevel {
		if _, ok := grouped[c.Field]; !ok {
			order = append(order, c.Field)
		}
		grouped[c.Field] = append(grouped[c.Field], c)
	}

	var sets []map[string]struct{}
	consumed := false

	for _, field := range order {
		conds := grouped[field]
		if hasNegated(conds) {
			continue
		}

		indexNames := catalog.IndexesForField(field)
		if len(indexNames) == 0 {
			continue
		}
		idxName := indexNames[0]
		def, _ := catalog.Definition(idxName)
		position := fieldPosition(def.Fields, field)

		eqVals, inVals, minB, maxB, minIncl, maxIncl, unsupported := classify(conds)
		if unsupported {
			continue
		}

		if def.Composite() {
			if minB != nil || maxB != nil || (len(eqVals) == 0 && len(inVals) == 0) {
				continue
			}
			set := make(map[string]struct{})
			for _, v := range append(eqVals, inVals...) {
				if matched, ok := catalog.PartialMatch(idxName, position, v); ok {
					addAll(set, matched)
				}
			}
			sets = append(sets, set)
			consumed = true
			continue
		}

		set := make(map[string]struct{})
		usedThisField := false

		if len(eqVals) > 0 || len(inVals) > 0 {
			for _, v := range append(eqVals, inVals...) {
				if matched, ok := catalog.Lookup(idxName, []interface{}{v}); ok {
					addAll(set, matched)
				}
			}
			usedThisField = true
		}

		if minB != nil || maxB != nil {
			if !catalog.IsRangeCapable(idxName) {
				continue
			}
			if matched, ok := catalog.RangeIDs(idxName, minB, maxB, minIncl, maxIncl); ok {
				addAll(set, matched)
				usedThisField = true
			}
		}

		if !usedThisField {
			continue
		}
		sets = append(sets, set)
		consumed = true
	}

	if !consumed {
		return nil, false, false
	}

	result := sets[0]
	for _, s := range sets[1:] {
		result = intersect(result, s)
	}
	out := idsOf(result)
	return out, true, len(out) == 0
}

func hasNegated(conds []FieldCondition) bool {
	for _, c := range conds {
		if c.Negate {
			return true
		}
	}
	return false
}

func classify(conds []FieldCondition) (eqVals, inVals []interface{}, minB, maxB *float64, minIncl, maxIncl bool, unsupported bool) {
	minIncl, maxIncl = true, true
	for _, c := range conds {
		switch c.Operator {
		case OpEq:
			eqVals = append(eqVals, c.Value)
		case OpIn:
			arr, ok := c.Value.([]interface{})
			if !ok {
				unsupported = true
				return
			}
			inVals = append(inVals, arr...)
		case OpGte, OpGt:
			f, ok := toFloat(c.Value)
			if !ok {
				unsupported = true
				return
			}
			if minB == nil || f > *minB {
				v := f
				minB = &v
				minIncl = c.Operator == OpGte
			}
		case OpLte, OpLt:
			f, ok := toFloat(c.Value)
			if !ok {
				unsupported = true
				return
			}
			if maxB == nil || f < *maxB {
				v := f
				maxB = &v
				maxIncl = c.Operator == OpLte
			}
		default:
			unsupported = true
			return
		}
	}
	return
}

func fieldPosition(fields []string, field string) int {
	for i, f := range fields {
		if f == field {
			return i
		}
	}
	return -1
}

func addAll(set map[string]struct{}, ids []string) {
	for _, id := range ids {
		set[id] = struct{}{}
	}
}

func intersect(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	small, big := a, b
	if len(b) < len(a) {
		small, big = b, a
	}
	for id := range small {
		if _, ok := big[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

func idsOf(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
