package query

import (
	"testing"

	"github.com/kailas-cloud/fedsearch/internal/domain/docref"
	"github.com/kailas-cloud/fedsearch/internal/domain/expression"
)

func TestNewKey_Parses(t *testing.T) {
	k := NewKey()
	got, err := ParseKey(" " + k.String() + " ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != k {
		t.Errorf("ParseKey = %q, want %q", got, k)
	}
	if _, err := ParseKey("not-a-uuid"); err == nil {
		t.Error("expected error")
	}
}

func TestNew(t *testing.T) {
	ds := docref.New(docref.TypeDataSource, "events")
	q, err := New(ds, expression.AndOf(expression.NewTerm("UserId", expression.Equals, "user5")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.DataSource() != ds {
		t.Errorf("unexpected data source %v", q.DataSource())
	}

	if _, err := New(docref.DocRef{}, expression.AndOf()); err == nil {
		t.Error("expected error for missing data source")
	}
	if _, err := New(ds, expression.NewTerm("", expression.Equals, "x")); err == nil {
		t.Error("expected error for invalid expression")
	}
}
