package compiler

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/docref"
	"github.com/kailas-cloud/fedsearch/internal/domain/expression"
	"github.com/kailas-cloud/fedsearch/internal/domain/field"
)

func testCatalog(t *testing.T) field.Catalog {
	t.Helper()
	mk := func(name string, ft field.Type, queryable bool) field.Field {
		f, err := field.New(name, ft, queryable)
		if err != nil {
			t.Fatal(err)
		}
		return f
	}
	feed, err := field.NewDocRef("Feed", docref.TypeDataSource, true)
	if err != nil {
		t.Fatal(err)
	}
	return field.MustCatalog(
		mk("UserId", field.Text, true),
		mk("Size", field.Numeric, true),
		mk("EventTime", field.Date, true),
		mk("Raw", field.Text, false),
		mk("host-name", field.Text, true),
		feed,
	)
}

func compile(t *testing.T, expr expression.Item, opts ...Option) Compiled {
	t.Helper()
	opts = append([]Option{WithTime(time.UTC, time.Date(2024, 3, 13, 12, 0, 0, 0, time.UTC))}, opts...)
	got, err := New(testCatalog(t), opts...).Compile(context.Background(), expr)
	if err != nil {
		t.Fatalf("Compile(%s): %v", expr, err)
	}
	return got
}

func TestCompile_Queries(t *testing.T) {
	tests := []struct {
		name string
		expr expression.Item
		want string
	}{
		{"tag equals", expression.NewTerm("UserId", expression.Equals, "user5"), "@UserId:{user5}"},
		{"tag escapes", expression.NewTerm("UserId", expression.Equals, "a b-c"), `@UserId:{a\ b\-c}`},
		{"tag wildcard", expression.NewTerm("UserId", expression.Contains, "user*"), "@UserId:{w'user*'}"},
		{"tag in", expression.NewTerm("UserId", expression.In, "a b"), "@UserId:{a | b}"},
		{"tag in mixed wildcard", expression.NewTerm("UserId", expression.In, "a b*"),
			"(@UserId:{a} | @UserId:{w'b*'})"},
		{"attr escaped", expression.NewTerm("host-name", expression.Equals, "h1"), `@host\-name:{h1}`},
		{"numeric equals", expression.NewTerm("Size", expression.Equals, "5"), "@Size:[5 5]"},
		{"numeric gt", expression.NewTerm("Size", expression.GreaterThan, "5"), "@Size:[(5 +inf]"},
		{"numeric gte", expression.NewTerm("Size", expression.GreaterThanOrEqualTo, "5"), "@Size:[5 +inf]"},
		{"numeric lt", expression.NewTerm("Size", expression.LessThan, "5"), "@Size:[-inf (5]"},
		{"numeric lte", expression.NewTerm("Size", expression.LessThanOrEqualTo, "5"), "@Size:[-inf 5]"},
		{"numeric between", expression.NewTerm("Size", expression.Between, "1,9"), "@Size:[1 9]"},
		{"numeric in", expression.NewTerm("Size", expression.In, "1,2"), "(@Size:[1 1] | @Size:[2 2])"},
		{"date relative", expression.NewTerm("EventTime", expression.GreaterThanOrEqualTo, "day()"),
			"@EventTime:[1710288000000 +inf]"},
		{"is null", expression.NewTerm("Size", expression.IsNull, ""), "ismissing(@Size)"},
		{"is not null", expression.NewTerm("Size", expression.IsNotNull, ""), "-ismissing(@Size)"},
		{"and", expression.AndOf(
			expression.NewTerm("UserId", expression.Equals, "u"),
			expression.NewTerm("Size", expression.Equals, "1"),
		), "(@UserId:{u} @Size:[1 1])"},
		{"or", expression.OrOf(
			expression.NewTerm("UserId", expression.Equals, "u"),
			expression.NewTerm("Size", expression.Equals, "1"),
		), "(@UserId:{u} | @Size:[1 1])"},
		{"not", expression.NotOf(expression.NewTerm("UserId", expression.Equals, "u")), "-(@UserId:{u})"},
		{"single child unwrapped", expression.AndOf(expression.NewTerm("UserId", expression.Equals, "u")),
			"@UserId:{u}"},
		{"disabled skipped", expression.AndOf(
			expression.NewTerm("UserId", expression.Equals, "u"),
			expression.NewTerm("Size", expression.Equals, "1").Disabled(),
		), "@UserId:{u}"},
		{"empty and", expression.AndOf(), MatchAll},
		{"empty or", expression.OrOf(), MatchNone},
		{"disabled root", expression.AndOf().Disabled(), MatchNone},
		{"doc ref", expression.NewDocRefTerm("Feed", expression.IsDocRef,
			docref.DocRef{Type: docref.TypeDataSource, UUID: "0b7b3c2e-7d43"}), `@Feed:{0b7b3c2e\-7d43}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := compile(t, tt.expr).Query; got != tt.want {
				t.Errorf("Compile(%s)\n got  %s\n want %s", tt.expr, got, tt.want)
			}
		})
	}
}

func TestCompile_Highlights(t *testing.T) {
	expr := expression.AndOf(
		expression.NewTerm("UserId", expression.Equals, "user5*"),
		expression.NewTerm("UserId", expression.In, "alpha user5 beta"),
		expression.NewTerm("Size", expression.Equals, "7"),
		expression.NotOf(expression.NewTerm("UserId", expression.Equals, "hidden")),
		expression.NewTerm("UserId", expression.Equals, "off").Disabled(),
	)
	got := compile(t, expr).Highlights
	want := []string{"user5", "alpha", "beta"}
	if !slices.Equal(got, want) {
		t.Errorf("highlights = %v, want %v", got, want)
	}

	// Double negation is not a highlight either: only terms outside any NOT are.
	doubleNot := expression.NotOf(expression.NotOf(expression.NewTerm("UserId", expression.Equals, "x")))
	if h := compile(t, doubleNot).Highlights; len(h) != 0 {
		t.Errorf("expected no highlights under NOT, got %v", h)
	}
}

type words map[string][]string

func (w words) Words(_ context.Context, ref docref.DocRef) ([]string, error) { return w[ref.UUID], nil }

type folders []docref.DocRef

func (f folders) Descendants(context.Context, docref.DocRef, string) ([]docref.DocRef, error) {
	return f, nil
}

func TestCompile_Providers(t *testing.T) {
	dict := docref.DocRef{Type: docref.TypeDictionary, UUID: "d1"}
	folder := docref.DocRef{Type: docref.TypeFolder, UUID: "f1"}
	opts := []Option{
		WithWordLists(words{"d1": {"a b", "c"}}),
		WithFolders(folders{{UUID: "x1"}, {UUID: "x2"}}),
	}

	got := compile(t, expression.NewDocRefTerm("UserId", expression.InDictionary, dict), opts...).Query
	if got != "@UserId:{a | b | c}" {
		t.Errorf("dictionary query = %s", got)
	}
	got = compile(t, expression.NewDocRefTerm("Feed", expression.InFolder, folder), opts...).Query
	if got != "@Feed:{x1 | x2}" {
		t.Errorf("folder query = %s", got)
	}
	got = compile(t, expression.NewDocRefTerm("Feed", expression.InFolder, folder)).Query
	if got != MatchNone {
		t.Errorf("folder query without provider = %s", got)
	}
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name   string
		expr   expression.Item
		target error
	}{
		{"unknown field", expression.NewTerm("Nope", expression.Equals, "x"), domain.ErrFieldNotFound},
		{"not queryable", expression.NewTerm("Raw", expression.Equals, "x"), domain.ErrMatch},
		{"missing value", expression.NewTerm("UserId", expression.Equals, ""), domain.ErrMatch},
		{"bad number", expression.NewTerm("Size", expression.Equals, "x"), domain.ErrMatch},
		{"between reversed", expression.NewTerm("Size", expression.Between, "9,1"), domain.ErrMatch},
		{"not arity", expression.NotOf(), domain.ErrMatch},
		{"regex", expression.NewTerm("UserId", expression.MatchesRegex, "u.*"), domain.ErrUnsupportedCondition},
		{"doc ref on numeric", expression.NewDocRefTerm("Size", expression.IsDocRef,
			docref.DocRef{UUID: "f"}), domain.ErrUnsupportedCondition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(testCatalog(t)).Compile(context.Background(), tt.expr)
			if !errors.Is(err, tt.target) {
				t.Errorf("expected %v, got %v", tt.target, err)
			}
		})
	}
}
