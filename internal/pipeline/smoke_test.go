package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"flipflow/internal"
	"flipflow/internal/config"
	"flipflow/internal/patterns"
	"flipflow/internal/storage"
)

func TestSmokeEmailToXLSX(t *testing.T) {
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	cfg, _ := config.Load()
	orch := NewOrchestrator(patterns.New(cfg.PoisonSizes))
	proc := NewProcessingService(db, cfg, orch)

	stage := func(fixture, messageID, subject, receivedAt string) internal.EmailRow {
		t.Helper()
		blob, err := os.ReadFile(filepath.Join("testdata", fixture))
		if err != nil {
			t.Fatal(err)
		}
		rawPath := filepath.Join(tmp, fixture)
		if err := os.WriteFile(rawPath, blob, 0o644); err != nil {
			t.Fatal(err)
		}
		email, err := db.UpsertEmail("gmail", messageID, subject, "noreply@stockx.com", receivedAt, "hash-"+messageID, rawPath, "fetched")
		if err != nil {
			t.Fatal(err)
		}
		return email
	}

	shipped := stage("sample_shipped.eml", "msg-shipped", "Order Shipped: Nike Air Jordan 1", "2026-02-10T09:00:00Z")
	stage("sample_delivered.eml", "msg-delivered", "Order Delivered: Nike Air Jordan 1", "2026-02-12T15:30:00Z")

	res, err := proc.ProcessPending(50, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Emails != 2 || res.Orders != 1 || res.Skipped != 0 {
		t.Fatalf("res=%+v", res)
	}

	orders, err := db.ListOrders()
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != 1 {
		t.Fatalf("orders=%d", len(orders))
	}
	rec := orders[0]
	if rec.OrderNumber != "01-95H9NC36ST" {
		t.Fatalf("orderNumber=%q", rec.OrderNumber)
	}
	if rec.Status != internal.StatusDelivered {
		t.Fatalf("status=%s", rec.Status)
	}
	if rec.TrackingNumber == nil || *rec.TrackingNumber != "1Z24WA430206362750" {
		t.Fatalf("tracking=%v", rec.TrackingNumber)
	}
	if rec.Carrier != internal.CarrierUPS {
		t.Fatalf("carrier=%s", rec.Carrier)
	}
	if rec.Size == nil || *rec.Size != "US 9.5" {
		t.Fatalf("size=%v", rec.Size)
	}
	if len(rec.SourceEmailIDs) != 2 {
		t.Fatalf("sources=%d", len(rec.SourceEmailIDs))
	}

	// Re-processing the shipped email must not regress the stored record.
	if _, err := proc.ProcessByProviderMessageID("gmail", shipped.MessageID); err != nil {
		t.Fatal(err)
	}
	orders, err = db.ListOrders()
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != 1 || orders[0].Status != internal.StatusDelivered {
		t.Fatalf("reprocess changed record: %+v", orders)
	}

	rows, err := db.GetExportRows()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("export rows=%d", len(rows))
	}

	out := filepath.Join(tmp, "orders.xlsx")
	if err := ExportOrdersToXLSX(rows, out); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatal(err)
	}
}
