package query

import (
	"testing"

	"github.com/cuemby/jsonkv/internal/config"
	"github.com/cuemby/jsonkv/internal/index"
)

func setupRegistry(t *testing.T) *index.Registry {
	t.Helper()
	reg := index.NewRegistry([]config.FieldSpec{
		{Field: "age", IndexType: config.IndexNumeric},
		{Field: "city", IndexType: config.IndexString},
	})
	insert := func(key string, age float64, city string) {
		reg.IndexInsert(key, map[string]any{"age": age, "city": city})
	}
	insert("u1", 20, "Austin")
	insert("u2", 40, "San Antonio")
	insert("u3", 60, "San Antonio")
	return reg
}

func evalStr(t *testing.T, reg *index.Registry, q string) map[string]struct{} {
	t.Helper()
	e, err := Parse(q)
	if err != nil {
		t.Fatalf("parse %q: %v", q, err)
	}
	return Eval(e, reg)
}

func TestEvalAndIntersection(t *testing.T) {
	reg := setupRegistry(t)
	got := evalStr(t, reg, `age >= 40 AND city = "San Antonio"`)
	want := map[string]struct{}{"u2": {}, "u3": {}}
	assertSetEqual(t, got, want)
}

func TestEvalOrUnion(t *testing.T) {
	reg := setupRegistry(t)
	got := evalStr(t, reg, `age = 20 OR age = 60`)
	want := map[string]struct{}{"u1": {}, "u3": {}}
	assertSetEqual(t, got, want)
}

func TestEvalParenPrecedence(t *testing.T) {
	reg := setupRegistry(t)
	got := evalStr(t, reg, `city = "Austin" OR (age > 30 AND age < 50)`)
	want := map[string]struct{}{"u1": {}, "u2": {}}
	assertSetEqual(t, got, want)
}

func TestEvalAndShortCircuitsOnEmptyLeft(t *testing.T) {
	reg := setupRegistry(t)
	got := evalStr(t, reg, `age = 999 AND city = "Austin"`)
	assertSetEqual(t, got, map[string]struct{}{})
}

func TestEvalUnknownFieldIsEmpty(t *testing.T) {
	reg := setupRegistry(t)
	got := evalStr(t, reg, `nosuchfield = 1`)
	assertSetEqual(t, got, map[string]struct{}{})
}

func assertSetEqual(t *testing.T, got, want map[string]struct{}) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k := range want {
		if _, ok := got[k]; !ok {
			t.Fatalf("missing %q: got %v, want %v", k, got, want)
		}
	}
}
