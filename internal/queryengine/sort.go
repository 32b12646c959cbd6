package queryengine

import (
	"sort"
	"strings"
	"time"
)

// SortField is one key of a (possibly compound) sort spec.
type SortField struct {
	Field string
	Desc  bool
}

// SortDocuments stably sorts docs in place using spec, comparing keys in
// declared order (§4.7 step 7).
func SortDocuments(docs []map[string]interface{}, spec []SortField) {
	if len(spec) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, s := range spec {
			cmp := compareField(docs[i][s.Field], docs[j][s.Field])
			if s.Desc {
				cmp = -cmp
			}
			if cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})
}

// compareField implements the null/undefined-first symmetry rule: a
// missing value always raw-compares as less than a present one, so a
// caller-applied sign flip for descending order naturally moves it to
// the end. Strings compare byte-wise via strings.Compare (no locale
// collation is applied), numbers arithmetically,
// timestamps by epoch, and genuinely mismatched types compare equal to
// preserve stability rather than impose an arbitrary order.
func compareField(a, b interface{}) int {
	aNil, bNil := a == nil, b == nil
	if aNil && bNil {
		return 0
	}
	if aNil {
		return -1
	}
	if bNil {
		return 1
	}

	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
		return 0
	}

	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		if at, aerr := time.Parse(time.RFC3339Nano, as); aerr == nil {
			if bt, berr := time.Parse(time.RFC3339Nano, bs); berr == nil {
				switch {
				case at.Before(bt):
					return -1
				case at.After(bt):
					return 1
				default:
					return 0
				}
			}
		}
		return strings.Compare(as, bs)
	}

	return 0
}
