package pipeline

import (
	"flipflow/internal"
	"flipflow/internal/patterns"
)

// Orchestrator turns a batch of decoded emails into merged order records.
// It holds no mutable state between runs; cross-run concerns (duplicate
// cleanup of persisted rows) live in storage.
type Orchestrator struct {
	lib    *patterns.Library
	fields *Extractor
	sizes  *Extractor
}

func NewOrchestrator(lib *patterns.Library) *Orchestrator {
	return &Orchestrator{
		lib:    lib,
		fields: NewExtractor(nil),
		sizes:  NewExtractor(lib.PoisonSizes),
	}
}

// Run processes emails in the given order and emits one record per distinct
// order number. The merge rules are monotonic in priority, so the final
// records do not depend on email arrival order.
func (o *Orchestrator) Run(emails []internal.RawEmail) []internal.OrderRecord {
	byOrder := map[string]*internal.OrderRecord{}

	for _, email := range emails {
		category := Categorize(email.Subject, o.lib.Categories)
		if category == nil {
			continue
		}

		content := extractionContent(email.Subject, email.BodyText, email.BodyHTML, email.LabelText)

		orderRes := o.fields.Extract(content, o.lib.OrderNumber)
		if orderRes.Value == nil || *orderRes.Value == "" {
			continue
		}
		orderNumber := *orderRes.Value

		ex := Extraction{
			OrderNumber:    orderNumber,
			Status:         category.Status,
			StatusPriority: category.Priority,
			EmailDate:      email.InternalDate,
		}

		// Delivered/Canceled mail rarely carries tracking, but attempting
		// extraction is harmless and occasionally fills a gap.
		tracking := ClassifyTracking(content, o.lib.Tracking)
		if tracking.Value != nil {
			ex.TrackingNumber = tracking.Value
			ex.Carrier = tracking.Carrier
			ex.CarrierPriority = tracking.CarrierPriority
		}

		if sizeRes := o.sizes.Extract(content, o.lib.Size); sizeRes.Value != nil {
			ex.Size = sizeRes.Value
		}

		if category.Status == internal.StatusCanceled {
			if failRes := o.fields.Extract(content, o.lib.FailureReason); failRes.Value != nil {
				ex.FailureReason = failRes.Value
			}
		}

		byOrder[orderNumber] = Merge(byOrder[orderNumber], ex, email.SourceID)
	}

	out := make([]internal.OrderRecord, 0, len(byOrder))
	for _, rec := range byOrder {
		out = append(out, *rec)
	}
	SortRecords(out)
	return out
}
