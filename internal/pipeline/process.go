package pipeline

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"
	pdf "github.com/ledongthuc/pdf"

	"flipflow/internal"
	"flipflow/internal/config"
	"flipflow/internal/storage"
	"flipflow/internal/util"
)

type ProcessingService struct {
	db   *storage.DB
	cfg  config.Config
	orch *Orchestrator
}

func NewProcessingService(db *storage.DB, cfg config.Config, orch *Orchestrator) *ProcessingService {
	return &ProcessingService{db: db, cfg: cfg, orch: orch}
}

type ProcessResult struct {
	Emails  int
	Orders  int
	Skipped int
}

// ProcessPending decodes fetched emails, runs the extraction pipeline over
// the batch, and upserts the merged records. A failed persistence write
// leaves the emails in 'fetched' state so the next run retries; the merge
// invariants make re-processing safe.
func (s *ProcessingService) ProcessPending(limit int, provider string) (ProcessResult, error) {
	pending, err := s.db.ListEmailsByStatus("fetched", limit)
	if err != nil {
		return ProcessResult{}, err
	}

	batch := make([]internal.EmailRow, 0, len(pending))
	for _, email := range pending {
		if provider != "" && email.Provider != provider {
			continue
		}
		batch = append(batch, email)
	}
	return s.ProcessBatch(batch)
}

func (s *ProcessingService) ProcessByProviderMessageID(provider, messageID string) (ProcessResult, error) {
	email, err := s.db.MustEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return ProcessResult{}, err
	}
	return s.ProcessBatch([]internal.EmailRow{email})
}

func (s *ProcessingService) ProcessBatch(batch []internal.EmailRow) (ProcessResult, error) {
	start := time.Now()

	raws := make([]internal.RawEmail, 0, len(batch))
	for _, email := range batch {
		blob, err := os.ReadFile(email.RawRef)
		if err != nil {
			return ProcessResult{}, err
		}
		raw, err := DecodeRawEmail(blob, email)
		if err != nil {
			return ProcessResult{}, err
		}
		raws = append(raws, raw)
	}

	records := s.orch.Run(raws)
	if err := s.db.UpsertOrders(records); err != nil {
		return ProcessResult{}, err
	}

	touched := map[string]struct{}{}
	for _, rec := range records {
		for id := range rec.SourceEmailIDs {
			touched[id] = struct{}{}
		}
	}

	skipped := 0
	for _, email := range batch {
		status := "processed"
		if _, ok := touched[email.MessageID]; !ok {
			status = "skipped"
			skipped++
		}
		if err := s.db.UpdateEmailStatus(email.ID, status); err != nil {
			return ProcessResult{}, err
		}
	}

	_ = s.db.InsertRun(traceID(), len(batch),
		map[string]float64{"totalMs": float64(time.Since(start).Milliseconds())},
		map[string]int{"emails": len(batch), "orders": len(records), "skipped": skipped})

	return ProcessResult{Emails: len(batch), Orders: len(records), Skipped: skipped}, nil
}

// DecodeRawEmail turns a stored RFC822 blob into the pipeline's input shape.
// PDF attachments are assumed to be shipping labels; their text is carried
// separately so tracking rules can scan it.
func DecodeRawEmail(blob []byte, row internal.EmailRow) (internal.RawEmail, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(blob))
	if err != nil {
		return internal.RawEmail{}, err
	}

	labelParts := []string{}
	for _, att := range env.Attachments {
		if !strings.HasSuffix(strings.ToLower(att.FileName), ".pdf") {
			continue
		}
		if text := pdfText(att.Content); text != "" {
			labelParts = append(labelParts, text)
		}
	}

	internalDate := time.Now().UTC()
	if t, perr := time.Parse(time.RFC3339, row.ReceivedAt); perr == nil {
		internalDate = t
	}

	return internal.RawEmail{
		SourceID:     row.MessageID,
		Subject:      util.FirstNonEmpty(env.GetHeader("Subject"), row.Subject),
		BodyText:     env.Text,
		BodyHTML:     env.HTML,
		LabelText:    strings.Join(labelParts, "\n"),
		InternalDate: internalDate,
	}, nil
}

func pdfText(content []byte) string {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return ""
	}
	parts := []string{}
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		parts = append(parts, text)
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func traceID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}
