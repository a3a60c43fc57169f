package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"flipflow/internal"
	"flipflow/internal/config"
	"flipflow/internal/connectors"
	gmailconnector "flipflow/internal/connectors/gmail"
	imapconnector "flipflow/internal/connectors/imap"
	"flipflow/internal/listener"
	"flipflow/internal/market"
	"flipflow/internal/patterns"
	"flipflow/internal/pipeline"
	"flipflow/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	cmd := os.Args[1]
	switch cmd {
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", "gmail", "gmail|imap")
		label := fs.String("label", "INBOX", "mailbox/label")
		max := fs.Int("max", 50, "max messages")
		_ = fs.Parse(os.Args[2:])
		conn, err := makeConnector(cfg, *provider)
		must(err)
		fetch := connectors.NewFetchService(db, cfg.RawMailDir, conn)
		result, err := fetch.FetchAndStore(*label, *max)
		must(err)
		fmt.Printf("mail fetch done provider=%s fetched=%d stored=%d skipped=%d\n", *provider, result.Fetched, result.Stored, result.Skipped)
	case "mail:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", "gmail", "gmail|imap")
		messageID := fs.String("messageId", "", "specific message-id")
		batch := fs.Int("batch", 25, "batch size")
		_ = fs.Parse(os.Args[2:])
		processor := pipeline.NewProcessingService(db, cfg, pipeline.NewOrchestrator(patterns.New(cfg.PoisonSizes)))
		if strings.TrimSpace(*messageID) != "" {
			res, err := processor.ProcessByProviderMessageID(*provider, *messageID)
			must(err)
			fmt.Printf("processed emails=%d orders=%d skipped=%d\n", res.Emails, res.Orders, res.Skipped)
			return
		}
		res, err := processor.ProcessPending(*batch, *provider)
		must(err)
		fmt.Printf("processed emails=%d orders=%d skipped=%d\n", res.Emails, res.Orders, res.Skipped)
	case "mail:listen":
		s := listener.NewService(db, cfg)
		must(s.Run(context.Background()))
	case "orders:list":
		records, err := db.ListOrders()
		must(err)
		// Collapse duplicate rows the same way orders:dedupe would persist,
		// without mutating the database.
		records = pipeline.DedupeRecords(records)
		pipeline.SortRecords(records)
		if len(records) == 0 {
			fmt.Println("no orders")
			return
		}
		for _, rec := range records {
			fmt.Printf("order=%s status=%s tracking=%s carrier=%s size=%s sources=%d\n",
				rec.OrderNumber, rec.Status, deref(rec.TrackingNumber), rec.Carrier, deref(rec.Size), len(rec.SourceEmailIDs))
		}
	case "orders:dedupe":
		deleted, err := db.DedupeOrders()
		must(err)
		fmt.Printf("dedupe done removed=%d\n", deleted)
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*out) == "" {
			must(fmt.Errorf("--out is required"))
		}
		rows, err := db.GetExportRows()
		must(err)
		if len(rows) == 0 {
			must(fmt.Errorf("no orders to export"))
		}
		must(pipeline.ExportOrdersToXLSX(rows, *out))
		fmt.Printf("exported %d rows to %s\n", len(rows), *out)
	case "market:sync":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		query := fs.String("query", "", "catalog search query")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*query) == "" {
			must(fmt.Errorf("--query is required"))
		}
		svc := market.NewSyncService(db, cfg)
		count, err := svc.SyncQuery(context.Background(), *query)
		must(err)
		fmt.Printf("market sync complete query=%q products=%d\n", *query, count)
	case "run":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "path to a raw .eml file")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*input) == "" {
			must(fmt.Errorf("--input is required"))
		}
		blob, err := os.ReadFile(*input)
		must(err)
		raw, err := pipeline.DecodeRawEmail(blob, internal.EmailRow{
			MessageID:  *input,
			ReceivedAt: time.Now().UTC().Format(time.RFC3339),
		})
		must(err)
		orch := pipeline.NewOrchestrator(patterns.New(cfg.PoisonSizes))
		records := orch.Run([]internal.RawEmail{raw})
		if len(records) == 0 {
			fmt.Println("no order record extracted")
			return
		}
		for _, rec := range records {
			fmt.Printf("order=%s status=%s tracking=%s carrier=%s size=%s\n",
				rec.OrderNumber, rec.Status, deref(rec.TrackingNumber), rec.Carrier, deref(rec.Size))
		}
	default:
		usage()
		os.Exit(1)
	}
}

func makeConnector(cfg config.Config, provider string) (connectors.MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gmail":
		return gmailconnector.NewConnector(cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func deref(v *string) string {
	if v == nil {
		return "-"
	}
	return *v
}

func usage() {
	fmt.Println("usage: flipflow <command>")
	fmt.Println("commands:")
	fmt.Println("  mail:fetch --provider=gmail|imap --label=INBOX --max=50")
	fmt.Println("  mail:process --provider=gmail|imap [--messageId=...] [--batch=25]")
	fmt.Println("  mail:listen")
	fmt.Println("  orders:list")
	fmt.Println("  orders:dedupe")
	fmt.Println("  export:xlsx --out=./out/orders.xlsx")
	fmt.Println("  market:sync --query=\"jordan 1\"")
	fmt.Println("  run --input=./message.eml")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
