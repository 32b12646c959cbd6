package queryengine

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Options mirrors the query_options surface from §4.7/§6.
type Options struct {
	Limit      int // honored only when LimitSet; a set Limit of 0 returns no documents
	LimitSet   bool
	Skip       int
	Sort       []SortField
	Projection map[string]int
}

// Fingerprint builds the stable cache key from §4.6: filter key/value
// pairs in sorted key order, plus limit/skip/sort/projection suffixes.
// generation is folded in so a write invalidates every previously
// computed fingerprint for the collection without needing a second
// lookup (design note b in §4.6).
func Fingerprint(raw map[string]interface{}, opts Options, generation uint64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "g%d|f:", generation)
	writeCanonicalMap(&b, raw)

	fmt.Fprintf(&b, "|l:%d:%t|s:%d|sort:", opts.Limit, opts.LimitSet, opts.Skip)
	for _, s := range opts.Sort {
		fmt.Fprintf(&b, "%s:%t,", s.Field, s.Desc)
	}

	b.WriteString("|proj:")
	keys := make([]string, 0, len(opts.Projection))
	for k := range opts.Projection {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s:%d,", k, opts.Projection[k])
	}

	return b.String()
}

func writeCanonicalMap(b *strings.Builder, m map[string]interface{}) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(b, "%q:", k)
		writeCanonicalValue(b, m[k])
	}
	b.WriteByte('}')
}

func writeCanonicalValue(b *strings.Builder, v interface{}) {
	switch val := v.(type) {
	case map[string]interface{}:
		writeCanonicalMap(b, val)
	case []interface{}:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonicalValue(b, item)
		}
		b.WriteByte(']')
	default:
		data, err := json.Marshal(val)
		if err != nil {
			fmt.Fprintf(b, "%v", val)
			return
		}
		b.Write(data)
	}
}
