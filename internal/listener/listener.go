package listener

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"flipflow/internal/config"
	"flipflow/internal/connectors"
	gmailconnector "flipflow/internal/connectors/gmail"
	imapconnector "flipflow/internal/connectors/imap"
	"flipflow/internal/patterns"
	"flipflow/internal/pipeline"
	"flipflow/internal/storage"
)

type Service struct {
	db  *storage.DB
	cfg config.Config
}

func NewService(db *storage.DB, cfg config.Config) *Service {
	return &Service{db: db, cfg: cfg}
}

func (s *Service) Run(ctx context.Context) error {
	for {
		if err := s.runCycle(ctx); err != nil {
			fmt.Printf("listener cycle error: %v\n", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Duration(s.cfg.MailListenerIntervalSec) * time.Second):
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	provider := strings.ToLower(strings.TrimSpace(s.cfg.MailListenerProvider))
	mailConnector, err := s.makeConnector(provider)
	if err != nil {
		return err
	}

	fetchService := connectors.NewFetchService(s.db, s.cfg.RawMailDir, mailConnector)
	fetchResult, err := fetchService.FetchAndStore(s.cfg.MailListenerLabel, s.cfg.MailListenerFetchMax)
	if err != nil {
		return err
	}

	orch := pipeline.NewOrchestrator(patterns.New(s.cfg.PoisonSizes))
	processor := pipeline.NewProcessingService(s.db, s.cfg, orch)
	procResult, err := processor.ProcessPending(s.cfg.MailListenerProcessBatch, provider)
	if err != nil {
		return err
	}

	deduped, err := s.db.DedupeOrders()
	if err != nil {
		return err
	}

	if s.cfg.MailListenerAutoExport {
		if err := s.exportOrders(); err != nil {
			return err
		}
	}

	fmt.Printf("listener cycle done provider=%s fetched=%d stored=%d skipped=%d emails=%d orders=%d deduped=%d\n",
		provider, fetchResult.Fetched, fetchResult.Stored, fetchResult.Skipped, procResult.Emails, procResult.Orders, deduped)
	return nil
}

func (s *Service) exportOrders() error {
	rows, err := s.db.GetExportRows()
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	filename := fmt.Sprintf("orders_%s.xlsx", time.Now().UTC().Format("20060102T150405"))
	return pipeline.ExportOrdersToXLSX(rows, filepath.Join(s.cfg.OutputDir, "listener", filename))
}

func (s *Service) makeConnector(provider string) (connectors.MailConnector, error) {
	switch provider {
	case "gmail":
		return gmailconnector.NewConnector(s.cfg)
	case "imap":
		return imapconnector.NewConnector(s.cfg)
	default:
		return nil, fmt.Errorf("unsupported listener provider: %s", provider)
	}
}
