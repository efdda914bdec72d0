package query

import "testing"

func TestParseSimpleCond(t *testing.T) {
	e, err := Parse(`age = 30`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	c, ok := e.(*Cond)
	if !ok {
		t.Fatalf("expected *Cond, got %T", e)
	}
	if c.Field != "age" || c.Op != "=" || c.Value != "30" {
		t.Fatalf("unexpected cond: %+v", c)
	}
}

func TestParseAndBindsTighterThanOr(t *testing.T) {
	e, err := Parse(`age > 25 AND city = "X" OR age < 10`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	or, ok := e.(*Or)
	if !ok {
		t.Fatalf("expected top-level Or, got %T", e)
	}
	if _, ok := or.Left.(*And); !ok {
		t.Fatalf("expected left of Or to be an And (AND binds tighter), got %T", or.Left)
	}
	if _, ok := or.Right.(*Cond); !ok {
		t.Fatalf("expected right of Or to be a Cond, got %T", or.Right)
	}
}

func TestParseParensOverridePrecedence(t *testing.T) {
	e, err := Parse(`age > 25 AND (city = "X" OR city = "Y")`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	and, ok := e.(*And)
	if !ok {
		t.Fatalf("expected top-level And, got %T", e)
	}
	group, ok := and.Right.(*Group)
	if !ok {
		t.Fatalf("expected right of And to be a Group, got %T", and.Right)
	}
	if _, ok := group.Inner.(*Or); !ok {
		t.Fatalf("expected group to contain an Or, got %T", group.Inner)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []string{
		`age > 25 AND`,
		`(age = 1`,
		`age`,
		`age =`,
		`age = 1 )`,
		`age = 1 city = 2`,
	}
	for _, s := range cases {
		if _, err := Parse(s); err == nil {
			t.Errorf("expected parse error for %q", s)
		}
	}
}
