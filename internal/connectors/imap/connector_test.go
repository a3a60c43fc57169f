package imap

import (
	"testing"

	"github.com/emersion/go-imap"
)

func TestSearchCriteriaSenderFilter(t *testing.T) {
	criteria := searchCriteria("stockx.com")

	if len(criteria.WithoutFlags) != 1 || criteria.WithoutFlags[0] != imap.SeenFlag {
		t.Fatalf("withoutFlags=%v", criteria.WithoutFlags)
	}
	if got := criteria.Header.Get("From"); got != "stockx.com" {
		t.Fatalf("from=%q", got)
	}
}

func TestSearchCriteriaNoFilter(t *testing.T) {
	for _, filter := range []string{"", "   "} {
		criteria := searchCriteria(filter)
		if got := criteria.Header.Get("From"); got != "" {
			t.Fatalf("filter %q produced from=%q", filter, got)
		}
		if len(criteria.WithoutFlags) != 1 {
			t.Fatalf("withoutFlags=%v", criteria.WithoutFlags)
		}
	}
}

func TestFormatAddresses(t *testing.T) {
	cases := []struct {
		name  string
		addrs []*imap.Address
		want  string
	}{
		{name: "empty", addrs: nil, want: ""},
		{
			name:  "bare address",
			addrs: []*imap.Address{{MailboxName: "noreply", HostName: "stockx.com"}},
			want:  "noreply@stockx.com",
		},
		{
			name:  "personal name",
			addrs: []*imap.Address{{PersonalName: "StockX", MailboxName: "orders", HostName: "stockx.com"}},
			want:  "StockX <orders@stockx.com>",
		},
		{
			name: "multiple",
			addrs: []*imap.Address{
				{MailboxName: "noreply", HostName: "stockx.com"},
				nil,
				{MailboxName: "orders", HostName: "stockx.com"},
			},
			want: "noreply@stockx.com, orders@stockx.com",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := formatAddresses(tc.addrs); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}
