package pipeline

import (
	"testing"

	"flipflow/internal"
	"flipflow/internal/patterns"
)

func TestCategorizeDeliveredBeforeShipped(t *testing.T) {
	lib := patterns.Default()

	// "Xpress Ship" subjects loosely match Shipped phrasing; Delivered is
	// checked first and must win.
	match := Categorize("🎉 Xpress Ship Order Delivered: Nike Air Jordan 1", lib.Categories)
	if match == nil {
		t.Fatal("no category")
	}
	if match.Status != internal.StatusDelivered {
		t.Fatalf("status=%s", match.Status)
	}
}

func TestCategorize(t *testing.T) {
	lib := patterns.Default()

	cases := []struct {
		subject string
		want    internal.OrderStatus
	}{
		{subject: "Order Shipped: Nike Dunk Low", want: internal.StatusShipped},
		{subject: "Your package is on its way", want: internal.StatusShipped},
		{subject: "Order Delivered: Yeezy 350", want: internal.StatusDelivered},
		{subject: "Your Order Has Been Canceled", want: internal.StatusCanceled},
		{subject: "There's an issue with your order", want: internal.StatusCanceled},
	}

	for _, tc := range cases {
		t.Run(tc.subject, func(t *testing.T) {
			match := Categorize(tc.subject, lib.Categories)
			if match == nil {
				t.Fatal("no category")
			}
			if match.Status != tc.want {
				t.Fatalf("got %s want %s", match.Status, tc.want)
			}
			if match.Priority != internal.StatusPriority(tc.want) {
				t.Fatalf("priority=%d", match.Priority)
			}
		})
	}
}

func TestCategorizeIrrelevantSubject(t *testing.T) {
	lib := patterns.Default()

	if match := Categorize("Weekly drops you might like", lib.Categories); match != nil {
		t.Fatalf("want nil, got %+v", match)
	}
}
