package pipeline

import (
	"reflect"
	"testing"

	"flipflow/internal/patterns"
)

func TestExtractCompoundOrderNumber(t *testing.T) {
	lib := patterns.Default()
	e := NewExtractor(nil)

	res := e.Extract("Order number: 75573966-75473725", lib.OrderNumber)
	if res.Value == nil {
		t.Fatal("no value")
	}
	if *res.Value != "75473725" {
		t.Fatalf("got %q want second group 75473725", *res.Value)
	}
	if res.MatchedRuleName == nil || *res.MatchedRuleName != "order_compound" {
		t.Fatalf("matched rule %v", res.MatchedRuleName)
	}
}

func TestExtractMarketplaceOrderID(t *testing.T) {
	lib := patterns.Default()
	e := NewExtractor(nil)

	res := e.Extract("Your order 01-95H9NC36ST is confirmed", lib.OrderNumber)
	if res.Value == nil || *res.Value != "01-95H9NC36ST" {
		t.Fatalf("res=%+v", res)
	}
}

func TestExtractLabeledAndHashForms(t *testing.T) {
	lib := patterns.Default()
	e := NewExtractor(nil)

	cases := []struct {
		name    string
		content string
		want    string
	}{
		{name: "labeled", content: "Order number: 12345678", want: "12345678"},
		{name: "hash", content: "your purchase #87654321 shipped", want: "87654321"},
		{name: "standalone fallback", content: "confirmation 11223344 attached", want: "11223344"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := e.Extract(tc.content, lib.OrderNumber)
			if res.Value == nil {
				t.Fatal("no value")
			}
			if *res.Value != tc.want {
				t.Fatalf("got %q want %q", *res.Value, tc.want)
			}
		})
	}
}

func TestExtractNotFound(t *testing.T) {
	lib := patterns.Default()
	e := NewExtractor(nil)

	res := e.Extract("thanks for signing up!", lib.OrderNumber)
	if res.Value != nil {
		t.Fatalf("want nil, got %q", *res.Value)
	}
	if res.MatchedRuleName != nil {
		t.Fatalf("rule should be nil")
	}
}

func TestExtractPoisonSizeSkipped(t *testing.T) {
	lib := patterns.Default()
	e := NewExtractor(lib.PoisonSizes)

	res := e.Extract("Size: 15", lib.Size)
	if res.Value != nil {
		t.Fatalf("poison value returned: %q", *res.Value)
	}
	if len(res.AllCandidates) == 0 {
		t.Fatal("poison match should still appear in trail")
	}
	for _, c := range res.AllCandidates {
		if c.Valid {
			t.Fatalf("poison candidate marked valid: %+v", c)
		}
	}
}

func TestExtractSizeForms(t *testing.T) {
	lib := patterns.Default()
	e := NewExtractor(lib.PoisonSizes)

	cases := []struct {
		name    string
		content string
		want    string
	}{
		{name: "labeled numeric", content: "Size: 9.5", want: "US 9.5"},
		{name: "subject parenthetical", content: "Order Delivered: Jordan 1 (Size 10)", want: "US 10"},
		{name: "us prefixed", content: "Nike Dunk Low US 11", want: "US 11"},
		{name: "letter size", content: "Supreme Box Logo Hoodie Size: XL", want: "US XL"},
		{name: "html table cell", content: "<table><tr><td>US 8.5</td></tr></table>", want: "US 8.5"},
		{name: "html list item", content: "<ul><li>Size: 12</li></ul>", want: "US 12"},
		{name: "html span", content: "<span>US 7</span>", want: "US 7"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := e.Extract(tc.content, lib.Size)
			if res.Value == nil {
				t.Fatal("no value")
			}
			if *res.Value != tc.want {
				t.Fatalf("got %q want %q", *res.Value, tc.want)
			}
		})
	}
}

func TestExtractDeterministic(t *testing.T) {
	lib := patterns.Default()
	e := NewExtractor(lib.PoisonSizes)
	content := "Order number: 75573966-75473725 #87654321 Size: 9.5 and 11223344"

	first := e.Extract(content, lib.OrderNumber)
	second := e.Extract(content, lib.OrderNumber)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("extract not deterministic:\n%+v\n%+v", first, second)
	}
}

func TestExtractFailureReason(t *testing.T) {
	lib := patterns.Default()
	e := NewExtractor(nil)

	res := e.Extract("Unfortunately your item did not pass our verification.", lib.FailureReason)
	if res.Value == nil || *res.Value != "failed verification" {
		t.Fatalf("res=%+v", res)
	}
}
