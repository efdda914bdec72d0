package query

import "github.com/cuemby/jsonkv/internal/index"

// Eval walks a parsed expression and composes per-leaf key-sets via set
// operations (spec §4.L9). And short-circuits: if the left side is empty,
// the right side is never evaluated.
func Eval(e Expr, registry *index.Registry) map[string]struct{} {
	switch n := e.(type) {
	case *Cond:
		idx, ok := registry.Lookup(n.Field)
		if !ok {
			return map[string]struct{}{}
		}
		return idx.Query(n.Op, n.Value)
	case *And:
		left := Eval(n.Left, registry)
		if len(left) == 0 {
			return left
		}
		right := Eval(n.Right, registry)
		return intersect(left, right)
	case *Or:
		left := Eval(n.Left, registry)
		right := Eval(n.Right, registry)
		return union(left, right)
	case *Group:
		return Eval(n.Inner, registry)
	default:
		return map[string]struct{}{}
	}
}

func intersect(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	small, big := a, b
	if len(b) < len(a) {
		small, big = b, a
	}
	for k := range small {
		if _, ok := big[k]; ok {
			out[k] = struct{}{}
		}
	}
	return out
}

func union(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}
