package engine

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
)

// lookup walks a dotted path such as "budget.amount" through nested maps.
func lookup(data map[string]any, path string) (any, bool) {
	var cur any = data
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case domain.JSONMap:
		return m, true
	}
	return nil, false
}

// missingFields lists the fields of non-optional conditions absent from data.
func missingFields(steps []domain.StepDefinition, data map[string]any) []string {
	var missing []string
	seen := map[string]bool{}
	for _, s := range steps {
		for _, c := range s.Conditions {
			if c.Optional || c.Operator == domain.OpExists || c.Operator == domain.OpNotExists || seen[c.Field] {
				continue
			}
			if _, ok := lookup(data, c.Field); !ok {
				missing = append(missing, c.Field)
				seen[c.Field] = true
			}
		}
	}
	return missing
}

// conditionsHold reports whether every condition of the step is satisfied.
// A step without conditions always runs.
func conditionsHold(conds []domain.Condition, data map[string]any) bool {
	for _, c := range conds {
		if !evaluate(c, data) {
			return false
		}
	}
	return true
}

func evaluate(c domain.Condition, data map[string]any) bool {
	v, ok := lookup(data, c.Field)
	switch c.Operator {
	case domain.OpExists:
		return ok && v != nil
	case domain.OpNotExists:
		return !ok || v == nil
	}
	if !ok {
		return false
	}
	switch c.Operator {
	case domain.OpEq:
		return equal(v, c.Value)
	case domain.OpNe:
		return !equal(v, c.Value)
	case domain.OpGt, domain.OpGte, domain.OpLt, domain.OpLte:
		cmp, ok := compare(v, c.Value)
		if !ok {
			return false
		}
		switch c.Operator {
		case domain.OpGt:
			return cmp > 0
		case domain.OpGte:
			return cmp >= 0
		case domain.OpLt:
			return cmp < 0
		default:
			return cmp <= 0
		}
	case domain.OpIn:
		return containsValue(c.Value, v)
	case domain.OpNotIn:
		return !containsValue(c.Value, v)
	case domain.OpContains:
		if s, ok := v.(string); ok {
			return strings.Contains(s, fmt.Sprint(c.Value))
		}
		return containsValue(v, c.Value)
	}
	return false
}

func toFloat(v any) (float64, bool) {
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
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func compare(a, b any) (int, bool) {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	sa, okA := a.(string)
	sb, okB := b.(string)
	if okA && okB {
		return strings.Compare(sa, sb), true
	}
	return 0, false
}

func equal(a, b any) bool {
	_, aStr := a.(string)
	_, bStr := b.(string)
	if !aStr || !bStr {
		fa, okA := toFloat(a)
		fb, okB := toFloat(b)
		if okA && okB {
			return fa == fb
		}
	}
	return reflect.DeepEqual(a, b)
}

// containsValue reports whether list (a slice of any element type) holds v.
func containsValue(list any, v any) bool {
	rv := reflect.ValueOf(list)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return equal(list, v)
	}
	for i := 0; i < rv.Len(); i++ {
		if equal(rv.Index(i).Interface(), v) {
			return true
		}
	}
	return false
}
