// Package queryengine implements the query planner/executor core
// (§4.7): filter parsing and evaluation, index-assisted candidate
// resolution, residual filtering, sort, pagination and projection.
package queryengine

import (
	"fmt"
	"regexp"
)

// Operator is one of the wire-contract comparison, membership or
// existence operators from §6. Logical operators are modeled as
// LogicalNode instead.
type Operator string

const (
	OpEq     Operator = "$eq"
	OpNe     Operator = "$ne"
	OpGt     Operator = "$gt"
	OpGte    Operator = "$gte"
	OpLt     Operator = "$lt"
	OpLte    Operator = "$lte"
	OpIn     Operator = "$in"
	OpNin    Operator = "$nin"
	OpExists Operator = "$exists"
	OpRegex  Operator = "$regex"
	OpNot    Operator = "$not"
)

var scalarOperators = map[Operator]bool{
	OpEq: true, OpNe: true, OpGt: true, OpGte: true, OpLt: true, OpLte: true,
	OpIn: true, OpNin: true, OpExists: true, OpRegex: true, OpNot: true,
}

// Node is any evaluable piece of a parsed filter tree.
type Node interface {
	Matches(doc map[string]interface{}) bool
}

// FieldCondition constrains a single field, possibly with a negated
// wrapped operator ($not).
type FieldCondition struct {
	Field    string
	Operator Operator
	Value    interface{}
	Negate   bool
}

// LogicalNode implements $and/$or/$nor over a list of children.
type LogicalNode struct {
	Operator string // "$and", "$or", "$nor"
	Children []Node
}

// Filter is a parsed, ready-to-evaluate query filter plus the top-level
// field conditions the planner's index phase operates on (§4.7 step 3:
// "For each top-level, non-logical (field, value) in the filter").
type Filter struct {
	Root       *LogicalNode
	TopLevel   []FieldCondition
	fieldCount int
}

// Empty reports whether the filter has no constraints at all, enabling
// the fast path of §4.7 step 2.
func (f *Filter) Empty() bool { return f.fieldCount == 0 }

// Parse converts a raw Mongo-style filter map into a Filter tree,
// rejecting unknown operators and shapes as query-shape errors before
// any I/O happens (§7).
func Parse(raw map[string]interface{}) (*Filter, error) {
	root, top, count, err := parseGroup(raw, true)
	if err != nil {
		return nil, err
	}
	return &Filter{Root: root, TopLevel: top, fieldCount: count}, nil
}

// parseGroup parses one filter object level. topLevel controls whether
// direct FieldCondition children are collected for index resolution.
func parseGroup(raw map[string]interface{}, topLevel bool) (*LogicalNode, []FieldCondition, int, error) {
	group := &LogicalNode{Operator: "$and"}
	var top []FieldCondition
	count := 0

	for key, val := range raw {
		switch key {
		case "$and", "$or", "$nor":
			list, ok := val.([]interface{})
			if !ok {
				return nil, nil, 0, fmt.Errorf("queryengine: %s requires an array", key)
			}
			children := make([]Node, 0, len(list))
			for _, item := range list {
				sub, ok := item.(map[string]interface{})
				if !ok {
					return nil, nil, 0, fmt.Errorf("queryengine: %s element must be an object", key)
				}
				subNode, _, subCount, err := parseGroup(sub, false)
				if err != nil {
					return nil, nil, 0, err
				}
				children = append(children, subNode)
				count += subCount
			}
			group.Children = append(group.Children, &LogicalNode{Operator: key, Children: children})
		default:
			cond, err := parseFieldValue(key, val)
			if err != nil {
				return nil, nil, 0, err
			}
			group.Children = append(group.Children, cond)
			count++
			if topLevel {
				top = append(top, cond)
			}
		}
	}

	return group, top, count, nil
}

func parseFieldValue(field string, val interface{}) (FieldCondition, error) {
	opMap, ok := val.(map[string]interface{})
	if !ok {
		return FieldCondition{Field: field, Operator: OpEq, Value: val}, nil
	}

	// An operator map may only contain recognized operator keys; a
	// field value that happens to be a plain object (no $-prefixed
	// keys) is still an equality constraint against that object.
	hasOperatorKey := false
	for k := range opMap {
		if len(k) > 0 && k[0] == '$' {
			hasOperatorKey = true
			break
		}
	}
	if !hasOperatorKey {
		return FieldCondition{Field: field, Operator: OpEq, Value: val}, nil
	}

	if len(opMap) != 1 {
		return FieldCondition{}, fmt.Errorf("queryengine: field %q: only one operator per clause is supported", field)
	}
	for opKey, opVal := range opMap {
		op := Operator(opKey)
		if op == OpNot {
			inner, ok := opVal.(map[string]interface{})
			if !ok {
				return FieldCondition{}, fmt.Errorf("queryengine: $not requires an operator object")
			}
			innerCond, err := parseFieldValue(field, inner)
			if err != nil {
				return FieldCondition{}, err
			}
			innerCond.Negate = !innerCond.Negate
			return innerCond, nil
		}
		if !scalarOperators[op] {
			return FieldCondition{}, fmt.Errorf("queryengine: unsupported operator %q", opKey)
		}
		return FieldCondition{Field: field, Operator: op, Value: opVal}, nil
	}
	panic("unreachable")
}

// Matches evaluates the whole filter tree against doc.
func (f *Filter) Matches(doc map[string]interface{}) bool {
	return f.Root.Matches(doc)
}

func (n *LogicalNode) Matches(doc map[string]interface{}) bool {
	switch n.Operator {
	case "$and":
		for _, c := range n.Children {
			if !c.Matches(doc) {
				return false
			}
		}
		return true
	case "$or":
		for _, c := range n.Children {
			if c.Matches(doc) {
				return true
			}
		}
		return len(n.Children) == 0
	case "$nor":
		for _, c := range n.Children {
			if c.Matches(doc) {
				return false
			}
		}
		return true
	}
	return false
}

func (c FieldCondition) Matches(doc map[string]interface{}) bool {
	result := c.evaluate(doc)
	if c.Negate {
		return !result
	}
	return result
}

func (c FieldCondition) evaluate(doc map[string]interface{}) bool {
	val, exists := doc[c.Field]

	switch c.Operator {
	case OpExists:
		want, _ := c.Value.(bool)
		return exists == want
	case OpEq:
		if !exists {
			return false
		}
		return equalValues(val, c.Value)
	case OpNe:
		if !exists {
			return true
		}
		return !equalValues(val, c.Value)
	case OpGt, OpGte, OpLt, OpLte:
		if !exists {
			return false
		}
		cmp, ok := compareNumeric(val, c.Value)
		if !ok {
			// non-number operand yields no effect (§4.7 residual filter guard)
			return false
		}
		switch c.Operator {
		case OpGt:
			return cmp > 0
		case OpGte:
			return cmp >= 0
		case OpLt:
			return cmp < 0
		case OpLte:
			return cmp <= 0
		}
	case OpIn:
		if !exists {
			return false
		}
		set, _ := c.Value.([]interface{})
		for _, item := range set {
			if equalValues(val, item) {
				return true
			}
		}
		return false
	case OpNin:
		if !exists {
			return true
		}
		set, _ := c.Value.([]interface{})
		for _, item := range set {
			if equalValues(val, item) {
				return false
			}
		}
		return true
	case OpRegex:
		s, ok := val.(string)
		if !exists || !ok {
			return false
		}
		pattern, _ := c.Value.(string)
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(s)
	}
	return false
}

func equalValues(a, b interface{}) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// compareNumeric compares two values numerically; ok is false when
// either side isn't representable as a number.
func compareNumeric(a, b interface{}) (int, bool) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return 0, false
	}
	switch {
	case af < bf:
		return -1, true
	case af > bf:
		return 1, true
	default:
		return 0, true
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
