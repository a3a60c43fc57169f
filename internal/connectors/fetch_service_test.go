package connectors

import (
	"os"
	"path/filepath"
	"testing"

	"flipflow/internal"
	"flipflow/internal/storage"
)

type fakeConnector struct {
	messages []internal.FetchedMailMessage
}

func (f *fakeConnector) FetchInbox(label string, max int) ([]internal.FetchedMailMessage, error) {
	return f.messages, nil
}

func TestFetchAndStoreSkipsAlreadyStoredMail(t *testing.T) {
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	messages := []internal.FetchedMailMessage{
		{Provider: "imap", MessageID: "m1", Subject: "Order Shipped: Nike Dunk Low", From: "noreply@stockx.com", ReceivedAt: "2026-02-01T00:00:00Z", Raw: []byte("raw shipped")},
		{Provider: "imap", MessageID: "m2", Subject: "Order Delivered: Nike Dunk Low", From: "noreply@stockx.com", ReceivedAt: "2026-02-03T00:00:00Z", Raw: []byte("raw delivered")},
	}
	rawDir := filepath.Join(tmp, "raw")
	svc := NewFetchService(db, rawDir, &fakeConnector{messages: messages})

	res, err := svc.FetchAndStore("INBOX", 50)
	if err != nil {
		t.Fatal(err)
	}
	if res.Fetched != 2 || res.Stored != 2 || res.Skipped != 0 {
		t.Fatalf("first pass: %+v", res)
	}

	// Re-fetching unchanged mail rewrites nothing.
	res, err = svc.FetchAndStore("INBOX", 50)
	if err != nil {
		t.Fatal(err)
	}
	if res.Fetched != 2 || res.Stored != 0 || res.Skipped != 2 {
		t.Fatalf("second pass: %+v", res)
	}

	entries, err := os.ReadDir(rawDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("raw files=%d", len(entries))
	}

	row, err := db.MustEmailByProviderMessageID("imap", "m1")
	if err != nil {
		t.Fatal(err)
	}
	if row.Status != "fetched" {
		t.Fatalf("status=%q", row.Status)
	}
}
